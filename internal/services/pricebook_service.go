package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"math"
	"reflect"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hanko-field/configurator/internal/platform/money"
	"github.com/hanko-field/configurator/internal/repositories"
)

var (
	// ErrPricebookInvalidInput indicates a snapshot failed validation.
	ErrPricebookInvalidInput = errors.New("pricebook: invalid input")
	// ErrPricebookNotFound indicates the requested version, or any active version, is missing.
	ErrPricebookNotFound = errors.New("pricebook: not found")
	// ErrPricebookConflict indicates a version was republished with different content.
	ErrPricebookConflict = errors.New("pricebook: conflict")
	// ErrPricebookUnavailable signals that the pricebook store is unreachable.
	ErrPricebookUnavailable = errors.New("pricebook: repository unavailable")
)

const (
	maxPricebookVersionLen = 64
	maxPricebookLabelLen   = 200
	maxVersionsLimit       = 100
)

var pricebookVersionPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// PublishPricebookCommand carries a new pricebook version.
type PublishPricebookCommand struct {
	Snapshot PricebookSnapshot
	Activate bool
}

// PublishPricebookResult reports what Publish changed. Created is false when
// an identical version already existed.
type PublishPricebookResult struct {
	Snapshot  PricebookSnapshot
	Created   bool
	Activated bool
}

// PricebookServiceDeps wires the pricebook service.
type PricebookServiceDeps struct {
	Repository repositories.PricebookRepository
	Clock      func() time.Time
	Logger     func(context.Context, string, map[string]any)
}

type pricebookService struct {
	repo     repositories.PricebookRepository
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
	sanitize *bluemonday.Policy
}

// NewPricebookService constructs a PricebookService over the given repository.
func NewPricebookService(deps PricebookServiceDeps) (PricebookService, error) {
	if deps.Repository == nil {
		return nil, errors.New("pricebook service: repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &pricebookService{
		repo:     deps.Repository,
		clock:    func() time.Time { return clock().UTC() },
		logger:   logger,
		sanitize: bluemonday.StrictPolicy(),
	}, nil
}

func (s *pricebookService) Current(ctx context.Context) (PricebookSnapshot, error) {
	snap, err := s.repo.Current(ctx)
	if err != nil {
		return PricebookSnapshot{}, s.mapError(err, "current")
	}
	return snap, nil
}

func (s *pricebookService) Get(ctx context.Context, version string) (PricebookSnapshot, error) {
	version = strings.TrimSpace(version)
	if version == "" {
		return PricebookSnapshot{}, fmt.Errorf("%w: version is required", ErrPricebookInvalidInput)
	}
	snap, err := s.repo.Get(ctx, version)
	if err != nil {
		return PricebookSnapshot{}, s.mapError(err, version)
	}
	return snap, nil
}

// ListVersions returns versions newest first. A non-positive limit lists all
// of them; callers page over the result.
func (s *pricebookService) ListVersions(ctx context.Context, limit int) ([]string, error) {
	if limit > maxVersionsLimit {
		limit = maxVersionsLimit
	}
	if limit < 0 {
		limit = 0
	}
	versions, err := s.repo.ListVersions(ctx, limit)
	if err != nil {
		return nil, s.mapError(err, "list")
	}
	return versions, nil
}

// Publish validates and stores a snapshot. Publishing the same content twice
// is a no-op so that webhook retries are safe.
func (s *pricebookService) Publish(ctx context.Context, cmd PublishPricebookCommand) (PublishPricebookResult, error) {
	snap, err := s.normalize(cmd.Snapshot)
	if err != nil {
		return PublishPricebookResult{}, err
	}
	if snap.PublishedAt.IsZero() {
		snap.PublishedAt = s.clock()
	}

	result := PublishPricebookResult{Snapshot: snap, Created: true}
	if err := s.repo.Create(ctx, snap); err != nil {
		if !repositories.IsConflict(err) {
			return PublishPricebookResult{}, s.mapError(err, snap.Version)
		}
		existing, getErr := s.repo.Get(ctx, snap.Version)
		if getErr != nil {
			return PublishPricebookResult{}, s.mapError(getErr, snap.Version)
		}
		if !samePricebookContent(existing, snap) {
			s.logger(ctx, "pricebook.publish.rejected", map[string]any{"version": snap.Version, "reason": "content_differs"})
			return PublishPricebookResult{}, fmt.Errorf("%w: version %q already published with different content", ErrPricebookConflict, snap.Version)
		}
		result.Snapshot = existing
		result.Created = false
	}

	if cmd.Activate {
		if err := s.repo.Activate(ctx, snap.Version); err != nil {
			return PublishPricebookResult{}, s.mapError(err, snap.Version)
		}
		result.Activated = true
	}
	s.logger(ctx, "pricebook.published", map[string]any{
		"version":   snap.Version,
		"created":   result.Created,
		"activated": result.Activated,
		"products":  len(snap.Products),
	})
	return result, nil
}

func (s *pricebookService) normalize(in PricebookSnapshot) (PricebookSnapshot, error) {
	snap := in.Clone()
	snap.Version = strings.TrimSpace(snap.Version)
	var problems []string
	switch {
	case snap.Version == "":
		problems = append(problems, "version is required")
	case len(snap.Version) > maxPricebookVersionLen:
		problems = append(problems, fmt.Sprintf("version must be at most %d characters", maxPricebookVersionLen))
	case !pricebookVersionPattern.MatchString(snap.Version):
		problems = append(problems, "version may only contain letters, digits, '.', '_' and '-'")
	}

	currency, err := money.ParseCurrency(snap.Currency)
	if err != nil {
		problems = append(problems, fmt.Sprintf("currency %q is not an ISO 4217 code", strings.TrimSpace(snap.Currency)))
	}
	snap.Currency = currency
	entryCurrency := func(field, code string) string {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code == "" {
			return currency
		}
		if code != currency {
			problems = append(problems, fmt.Sprintf("%s: currency %s does not match pricebook currency %s", field, code, currency))
		}
		return code
	}

	if len(snap.Products) == 0 {
		problems = append(problems, "products must contain at least one entry")
	}
	for sku, p := range snap.Products {
		field := fmt.Sprintf("products[%s]", sku)
		if strings.TrimSpace(sku) == "" {
			problems = append(problems, "products: sku keys must not be blank")
		}
		if !(p.Price > 0) || math.IsInf(p.Price, 0) {
			problems = append(problems, field+": price must be a positive finite number")
		}
		p.SKU = sku
		p.Title = s.cleanText(p.Title)
		p.Currency = entryCurrency(field, p.Currency)
		snap.Products[sku] = p
	}
	for key, f := range snap.Fees {
		field := fmt.Sprintf("fees[%s]", key)
		if !(f.Amount >= 0) || math.IsInf(f.Amount, 0) {
			problems = append(problems, field+": amount must be a non-negative finite number")
		}
		f.Key = key
		f.Description = s.cleanText(f.Description)
		f.Currency = entryCurrency(field, f.Currency)
		snap.Fees[key] = f
	}
	for key, a := range snap.Addons {
		field := fmt.Sprintf("addons[%s]", key)
		if !(a.Amount >= 0) || math.IsInf(a.Amount, 0) {
			problems = append(problems, field+": amount must be a non-negative finite number")
		}
		a.Key = key
		a.Unit = strings.TrimSpace(a.Unit)
		a.Description = s.cleanText(a.Description)
		a.Currency = entryCurrency(field, a.Currency)
		snap.Addons[key] = a
	}

	if len(problems) > 0 {
		slices.Sort(problems)
		return PricebookSnapshot{}, fmt.Errorf("%w: %s", ErrPricebookInvalidInput, strings.Join(problems, "; "))
	}
	return snap, nil
}

// cleanText reduces display text to plain characters. Entities are decoded
// before sanitising so encoded markup is stripped like literal markup, and the
// sanitiser's own escapes are decoded afterwards.
func (s *pricebookService) cleanText(value string) string {
	value = s.sanitize.Sanitize(html.UnescapeString(strings.TrimSpace(value)))
	value = angleBrackets.Replace(html.UnescapeString(value))
	value = strings.Join(strings.Fields(value), " ")
	if runes := []rune(value); len(runes) > maxPricebookLabelLen {
		value = string(runes[:maxPricebookLabelLen])
	}
	return value
}

var angleBrackets = strings.NewReplacer("<", "", ">", "")

func (s *pricebookService) mapError(err error, subject string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case repositories.IsNotFound(err):
		return fmt.Errorf("%w: %s", ErrPricebookNotFound, subject)
	case repositories.IsConflict(err):
		return fmt.Errorf("%w: %s", ErrPricebookConflict, subject)
	case repositories.IsUnavailable(err):
		return fmt.Errorf("%w: %v", ErrPricebookUnavailable, err)
	default:
		return fmt.Errorf("pricebook: %w", err)
	}
}

func samePricebookContent(a, b PricebookSnapshot) bool {
	a.PublishedAt = time.Time{}
	b.PublishedAt = time.Time{}
	return reflect.DeepEqual(emptyMapsToNil(a), emptyMapsToNil(b))
}

func emptyMapsToNil(s PricebookSnapshot) PricebookSnapshot {
	if len(s.Products) == 0 {
		s.Products = nil
	}
	if len(s.Fees) == 0 {
		s.Fees = nil
	}
	if len(s.Addons) == 0 {
		s.Addons = nil
	}
	return s
}
