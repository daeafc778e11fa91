package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hanko-field/configurator/internal/payments"
	"github.com/hanko-field/configurator/internal/platform/money"
)

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid input parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutPaymentFailed indicates the PSP session could not be created.
	ErrCheckoutPaymentFailed = errors.New("checkout: payment failed")
	// ErrCheckoutPricingRejected indicates the client pricing failed server verification.
	ErrCheckoutPricingRejected = errors.New("checkout: pricing rejected")
)

// PricingVerificationError is returned when checkout is refused because the
// client's pricing did not verify. The PSP is never contacted in that case.
type PricingVerificationError struct {
	Result VerificationResult
}

func (e *PricingVerificationError) Error() string {
	if e == nil || e.Result.Error == nil {
		return ErrCheckoutPricingRejected.Error()
	}
	return fmt.Sprintf("%s: %s", ErrCheckoutPricingRejected, e.Result.Error.Error())
}

func (e *PricingVerificationError) Unwrap() error { return ErrCheckoutPricingRejected }

// StartDesignCheckoutCommand carries a frozen design and the pricing the client displayed.
type StartDesignCheckoutCommand struct {
	Payload                DesignPayload
	ClientSignature        string
	ClientPricebookVersion string
	Locale                 string
}

// DesignCheckoutSession is the PSP session together with the server pricing it charges.
type DesignCheckoutSession struct {
	DesignID    string                   `json:"designId"`
	Session     payments.CheckoutSession `json:"session"`
	Pricing     PricingResult            `json:"pricing"`
	AmountMinor int64                    `json:"amountMinor"`
}

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Pricing    PricingService
	Payments   payments.Provider
	SuccessURL string
	CancelURL  string
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	pricing    PricingService
	payments   payments.Provider
	successURL string
	cancelURL  string
	now        func() time.Time
	logger     func(ctx context.Context, event string, fields map[string]any)
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Pricing == nil {
		return nil, errors.New("checkout service: pricing service is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("checkout service: payment provider is required")
	}
	successURL := strings.TrimSpace(deps.SuccessURL)
	cancelURL := strings.TrimSpace(deps.CancelURL)
	if successURL == "" || cancelURL == "" {
		return nil, errors.New("checkout service: success and cancel urls are required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &checkoutService{
		pricing:    deps.Pricing,
		payments:   deps.Payments,
		successURL: successURL,
		cancelURL:  cancelURL,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// StartDesignCheckout re-verifies the client's pricing and charges the server
// breakdown. Amounts are converted to minor units per line.
func (s *checkoutService) StartDesignCheckout(ctx context.Context, cmd StartDesignCheckoutCommand) (DesignCheckoutSession, error) {
	designID := strings.TrimSpace(cmd.Payload.DesignID)
	if designID == "" {
		return DesignCheckoutSession{}, fmt.Errorf("%w: designId is required; freeze the design first", ErrCheckoutInvalidInput)
	}
	if err := validateDesignPayload(cmd.Payload); err != nil {
		return DesignCheckoutSession{}, fmt.Errorf("%w: %v", ErrCheckoutInvalidInput, err)
	}

	verification, err := s.pricing.Verify(ctx, VerifyPricingCommand{
		Payload:                cmd.Payload,
		ClientSignature:        cmd.ClientSignature,
		ClientPricebookVersion: cmd.ClientPricebookVersion,
	})
	if err != nil {
		return DesignCheckoutSession{}, err
	}
	if !verification.Valid {
		return DesignCheckoutSession{}, &PricingVerificationError{Result: verification}
	}
	pricing := verification.ServerPricing

	items := make([]payments.CheckoutLineItem, 0, len(pricing.BreakdownLines))
	for _, line := range pricing.BreakdownLines {
		unit, err := money.MinorUnits(line.UnitPrice, pricing.Currency)
		if err != nil {
			return DesignCheckoutSession{}, fmt.Errorf("%w: line %s: %v", ErrCheckoutInvalidInput, line.Key, err)
		}
		if unit == 0 {
			continue
		}
		name := line.Label
		if name == "" {
			name = line.Key
		}
		items = append(items, payments.CheckoutLineItem{
			Name:       name,
			Key:        line.Key,
			Quantity:   int64(line.Qty),
			UnitAmount: unit,
			Currency:   pricing.Currency,
		})
	}

	req := payments.CheckoutSessionRequest{
		Currency:       pricing.Currency,
		SuccessURL:     s.successURL,
		CancelURL:      s.cancelURL,
		Locale:         strings.TrimSpace(cmd.Locale),
		IdempotencyKey: "design-checkout:" + designID + ":" + pricing.PricingSignature,
		Items:          items,
		Metadata: map[string]string{
			"designId":         designID,
			"pricebookVersion": pricing.PricebookVersion,
			"pricingSignature": pricing.PricingSignature,
		},
	}
	session, err := s.payments.CreateCheckoutSession(ctx, req)
	if err != nil {
		s.logger(ctx, "checkout.session.failed", map[string]any{"designId": designID, "error": err.Error()})
		return DesignCheckoutSession{}, fmt.Errorf("%w: %v", ErrCheckoutPaymentFailed, err)
	}

	amount := req.Total()
	s.logger(ctx, "checkout.session.created", map[string]any{
		"designId":         designID,
		"sessionId":        session.ID,
		"amountMinor":      amount,
		"currency":         pricing.Currency,
		"pricebookVersion": pricing.PricebookVersion,
		"startedAt":        s.now(),
	})
	return DesignCheckoutSession{
		DesignID:    designID,
		Session:     session,
		Pricing:     pricing,
		AmountMinor: amount,
	}, nil
}
