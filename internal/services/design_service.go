package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/hanko-field/configurator/internal/domain"
	"github.com/hanko-field/configurator/internal/platform/numeric"
)

var (
	// ErrDesignInvalidInput indicates the caller provided an invalid payload.
	ErrDesignInvalidInput = errors.New("design: invalid input")
	// ErrDesignPricingInvalid indicates the payload references entries the pricebook cannot price.
	ErrDesignPricingInvalid = errors.New("design: pricing invalid")
)

const designIDPrefix = "dsg_"

// DesignPricingError carries the pricing result of a design that could not
// be frozen so that callers can show every unresolved reference.
type DesignPricingError struct {
	Pricing PricingResult
}

func (e *DesignPricingError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", ErrDesignPricingInvalid, strings.Join(e.Pricing.Errors, "; "))
}

func (e *DesignPricingError) Unwrap() error { return ErrDesignPricingInvalid }

// FreezeDesignCommand carries the payload to price and freeze.
type FreezeDesignCommand struct {
	Payload DesignPayload
}

// DuplicateDesignCommand carries the design to copy.
type DuplicateDesignCommand struct {
	Source DesignPayload
}

// DesignServiceDeps wires dependencies for the design service implementation.
type DesignServiceDeps struct {
	Pricebooks  PricebookService
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
}

type designService struct {
	pricebooks PricebookService
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewDesignService constructs a DesignService backed by the provided dependencies.
func NewDesignService(deps DesignServiceDeps) (DesignService, error) {
	if deps.Pricebooks == nil {
		return nil, errors.New("design service: pricebook service is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &designService{
		pricebooks: deps.Pricebooks,
		clock:      func() time.Time { return clock().UTC() },
		newID:      idGen,
		logger:     logger,
	}, nil
}

// FreezeDesign validates, prices and signs the payload. The returned design
// owns its own copy of the payload.
func (s *designService) FreezeDesign(ctx context.Context, cmd FreezeDesignCommand) (FrozenDesign, error) {
	payload := cmd.Payload.Clone()
	if err := validateDesignPayload(payload); err != nil {
		return FrozenDesign{}, err
	}
	payload.DesignID = strings.TrimSpace(payload.DesignID)
	if payload.DesignID == "" {
		payload.DesignID = s.nextDesignID()
	}

	snapshot, err := s.pricebooks.Current(ctx)
	if err != nil {
		return FrozenDesign{}, err
	}
	pricing := PriceDesign(payload, snapshot.Lookup(), PriceOptions{})
	if !pricing.Valid {
		s.logger(ctx, "design.freeze.rejected", map[string]any{
			"designId":         payload.DesignID,
			"pricebookVersion": pricing.PricebookVersion,
			"errors":           len(pricing.Errors),
		})
		return FrozenDesign{}, &DesignPricingError{Pricing: pricing}
	}

	frozen := FrozenDesign{Payload: payload, Pricing: pricing, FrozenAt: s.clock()}
	s.logger(ctx, "design.frozen", map[string]any{
		"designId":         payload.DesignID,
		"pricebookVersion": pricing.PricebookVersion,
		"total":            pricing.Total,
		"currency":         pricing.Currency,
	})
	return frozen, nil
}

// DuplicateDesign deep-copies the source under a fresh identifier.
func (s *designService) DuplicateDesign(ctx context.Context, cmd DuplicateDesignCommand) (DesignPayload, error) {
	if err := validateDesignPayload(cmd.Source); err != nil {
		return DesignPayload{}, err
	}
	dup := cmd.Source.Clone()
	dup.DesignID = s.nextDesignID()
	dup.PreviewURL = ""
	s.logger(ctx, "design.duplicated", map[string]any{
		"sourceDesignId": strings.TrimSpace(cmd.Source.DesignID),
		"designId":       dup.DesignID,
	})
	return dup, nil
}

func (s *designService) nextDesignID() string {
	return designIDPrefix + s.newID()
}

func validateDesignPayload(p DesignPayload) error {
	var problems []string
	if p.ProductFamily == "" {
		problems = append(problems, "productFamily is required")
	} else if !p.ProductFamily.Valid() {
		problems = append(problems, fmt.Sprintf("productFamily %q is not supported", p.ProductFamily))
	}
	if p.Colors != nil && p.ProductFamily.Valid() {
		want, _ := domain.SchemeKindForFamily(p.ProductFamily)
		if got := p.Colors.Kind(); got != want {
			problems = append(problems, fmt.Sprintf("colors of kind %s do not fit productFamily %s (expected %s)", got, p.ProductFamily, want))
		}
	}
	if p.Crop != nil {
		if !numeric.IsPositiveFinite(p.Crop.Scale) || !numeric.IsFinite(p.Crop.X) || !numeric.IsFinite(p.Crop.Y) {
			problems = append(problems, "crop must have a positive finite scale and finite offsets")
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrDesignInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}
