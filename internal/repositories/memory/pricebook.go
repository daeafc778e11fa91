// Package memory holds process-local repositories used by tests, the CLI and
// local development without Firestore.
package memory

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/hanko-field/configurator/internal/domain"
	"github.com/hanko-field/configurator/internal/repositories"
)

//go:embed fixtures/pricebook.yaml
var fixturePricebook []byte

// FixturePricebook decodes the pricebook shipped with the binary.
func FixturePricebook() (domain.PricebookSnapshot, error) {
	return DecodePricebookYAML(fixturePricebook)
}

// LoadPricebookFile decodes a YAML pricebook from disk.
func LoadPricebookFile(path string) (domain.PricebookSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.PricebookSnapshot{}, fmt.Errorf("read pricebook %s: %w", path, err)
	}
	return DecodePricebookYAML(data)
}

// DecodePricebookYAML parses a YAML pricebook. Map keys become SKUs and keys,
// and entries without a currency inherit the pricebook currency.
func DecodePricebookYAML(data []byte) (domain.PricebookSnapshot, error) {
	var snap domain.PricebookSnapshot
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&snap); err != nil {
		return domain.PricebookSnapshot{}, fmt.Errorf("decode pricebook: %w", err)
	}
	snap.Version = strings.TrimSpace(snap.Version)
	snap.Currency = strings.ToUpper(strings.TrimSpace(snap.Currency))
	if snap.Version == "" {
		return domain.PricebookSnapshot{}, errors.New("decode pricebook: version is required")
	}
	if snap.Currency == "" {
		return domain.PricebookSnapshot{}, errors.New("decode pricebook: currency is required")
	}
	for sku, p := range snap.Products {
		p.SKU = sku
		if p.Currency == "" {
			p.Currency = snap.Currency
		}
		snap.Products[sku] = p
	}
	for key, f := range snap.Fees {
		f.Key = key
		if f.Currency == "" {
			f.Currency = snap.Currency
		}
		snap.Fees[key] = f
	}
	for key, a := range snap.Addons {
		a.Key = key
		if a.Currency == "" {
			a.Currency = snap.Currency
		}
		snap.Addons[key] = a
	}
	return snap, nil
}

// PricebookRepository keeps pricebook versions in memory.
type PricebookRepository struct {
	mu       sync.RWMutex
	versions map[string]domain.PricebookSnapshot
	current  string
}

var _ repositories.PricebookRepository = (*PricebookRepository)(nil)

// NewPricebookRepository seeds the store; the first snapshot becomes current.
func NewPricebookRepository(seed ...domain.PricebookSnapshot) *PricebookRepository {
	repo := &PricebookRepository{versions: make(map[string]domain.PricebookSnapshot, len(seed))}
	for i, snap := range seed {
		repo.versions[snap.Version] = snap.Clone()
		if i == 0 {
			repo.current = snap.Version
		}
	}
	return repo
}

func (r *PricebookRepository) Current(ctx context.Context) (domain.PricebookSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.PricebookSnapshot{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current == "" {
		return domain.PricebookSnapshot{}, repositories.NewStoreError("pricebooks.current", repositories.StoreErrorNotFound, "no active pricebook", nil)
	}
	return r.versions[r.current].Clone(), nil
}

func (r *PricebookRepository) Get(ctx context.Context, version string) (domain.PricebookSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.PricebookSnapshot{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap, ok := r.versions[version]
	if !ok {
		return domain.PricebookSnapshot{}, repositories.NewStoreError("pricebooks.get", repositories.StoreErrorNotFound, fmt.Sprintf("pricebook %q not found", version), nil)
	}
	return snap.Clone(), nil
}

// Create stores a new version; versions are immutable once stored.
func (r *PricebookRepository) Create(ctx context.Context, snapshot domain.PricebookSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.versions[snapshot.Version]; ok {
		return repositories.NewStoreError("pricebooks.create", repositories.StoreErrorConflict, fmt.Sprintf("pricebook %q already exists", snapshot.Version), nil)
	}
	r.versions[snapshot.Version] = snapshot.Clone()
	return nil
}

func (r *PricebookRepository) Activate(ctx context.Context, version string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.versions[version]; !ok {
		return repositories.NewStoreError("pricebooks.activate", repositories.StoreErrorNotFound, fmt.Sprintf("pricebook %q not found", version), nil)
	}
	r.current = version
	return nil
}

func (r *PricebookRepository) ListVersions(ctx context.Context, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	snaps := make([]domain.PricebookSnapshot, 0, len(r.versions))
	for _, snap := range r.versions {
		snaps = append(snaps, snap)
	}
	r.mu.RUnlock()

	sort.Slice(snaps, func(i, j int) bool {
		if !snaps[i].PublishedAt.Equal(snaps[j].PublishedAt) {
			return snaps[i].PublishedAt.After(snaps[j].PublishedAt)
		}
		return snaps[i].Version > snaps[j].Version
	})
	if limit > 0 && len(snaps) > limit {
		snaps = snaps[:limit]
	}
	versions := make([]string, 0, len(snaps))
	for _, snap := range snaps {
		versions = append(versions, snap.Version)
	}
	return versions, nil
}
