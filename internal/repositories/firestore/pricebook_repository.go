package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hanko-field/configurator/internal/domain"
	pfirestore "github.com/hanko-field/configurator/internal/platform/firestore"
	"github.com/hanko-field/configurator/internal/repositories"
)

const (
	pricebooksCollection = "pricebooks"
	pointersCollection   = "pricebookPointers"
	currentPointerID     = "current"
)

type pointerDocument struct {
	Version   string    `firestore:"version"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// PricebookRepository stores one document per version under pricebooks/{version}
// and the active version in pricebookPointers/current.
type PricebookRepository struct {
	provider   *pfirestore.Provider
	pricebooks *pfirestore.Collection[domain.PricebookSnapshot]
	pointers   *pfirestore.Collection[pointerDocument]
	now        func() time.Time
}

var _ repositories.PricebookRepository = (*PricebookRepository)(nil)

func NewPricebookRepository(provider *pfirestore.Provider) (*PricebookRepository, error) {
	if provider == nil {
		return nil, errors.New("pricebook repository requires firestore provider")
	}
	return &PricebookRepository{
		provider:   provider,
		pricebooks: pfirestore.NewCollection[domain.PricebookSnapshot](provider, pricebooksCollection),
		pointers:   pfirestore.NewCollection[pointerDocument](provider, pointersCollection),
		now:        time.Now,
	}, nil
}

func (r *PricebookRepository) Current(ctx context.Context) (domain.PricebookSnapshot, error) {
	pointer, err := r.pointers.Get(ctx, currentPointerID)
	if err != nil {
		return domain.PricebookSnapshot{}, err
	}
	if strings.TrimSpace(pointer.Version) == "" {
		return domain.PricebookSnapshot{}, pfirestore.NotFound("pricebooks.current", errors.New("current pointer is empty"))
	}
	return r.Get(ctx, pointer.Version)
}

func (r *PricebookRepository) Get(ctx context.Context, version string) (domain.PricebookSnapshot, error) {
	snap, err := r.pricebooks.Get(ctx, version)
	if err != nil {
		return domain.PricebookSnapshot{}, err
	}
	return normalizeSnapshot(snap), nil
}

// Create writes a new version inside a transaction so that two publishers
// racing on one version cannot both succeed.
func (r *PricebookRepository) Create(ctx context.Context, snapshot domain.PricebookSnapshot) error {
	ref, err := r.pricebooks.Ref(ctx, snapshot.Version)
	if err != nil {
		return err
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		_, err := tx.Get(ref)
		switch status.Code(err) {
		case codes.NotFound:
			return tx.Create(ref, snapshot)
		case codes.OK:
			return pfirestore.Conflict("pricebooks.create", fmt.Errorf("pricebook %q already exists", snapshot.Version))
		default:
			return err
		}
	})
}

// Activate moves the current pointer after confirming the version exists.
func (r *PricebookRepository) Activate(ctx context.Context, version string) error {
	bookRef, err := r.pricebooks.Ref(ctx, version)
	if err != nil {
		return err
	}
	pointerRef, err := r.pointers.Ref(ctx, currentPointerID)
	if err != nil {
		return err
	}
	now := r.now().UTC()
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(bookRef); err != nil {
			if status.Code(err) == codes.NotFound {
				return pfirestore.NotFound("pricebooks.activate", fmt.Errorf("pricebook %q not found", version))
			}
			return err
		}
		return tx.Set(pointerRef, pointerDocument{Version: version, UpdatedAt: now})
	})
}

// ListVersions returns stored versions, newest first.
func (r *PricebookRepository) ListVersions(ctx context.Context, limit int) ([]string, error) {
	books, err := r.pricebooks.List(ctx, func(q firestore.Query) firestore.Query {
		q = q.OrderBy("publishedAt", firestore.Desc)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	versions := make([]string, 0, len(books))
	for _, b := range books {
		versions = append(versions, b.Version)
	}
	return versions, nil
}

// Firestore drops empty maps; callers expect non-nil tables.
func normalizeSnapshot(s domain.PricebookSnapshot) domain.PricebookSnapshot {
	if s.Products == nil {
		s.Products = map[string]domain.CatalogProduct{}
	}
	if s.Fees == nil {
		s.Fees = map[string]domain.CustomizationFee{}
	}
	if s.Addons == nil {
		s.Addons = map[string]domain.AddonDelta{}
	}
	s.PublishedAt = s.PublishedAt.UTC()
	return s
}
