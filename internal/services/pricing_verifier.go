package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// VerificationErrorCode distinguishes failures that need different client remediation.
type VerificationErrorCode string

const (
	// VerificationPricebookVersionMismatch means the client priced against another pricebook; refetch it.
	VerificationPricebookVersionMismatch VerificationErrorCode = "PRICEBOOK_VERSION_MISMATCH"
	// VerificationPricingCalculationError means the server could not price the payload.
	VerificationPricingCalculationError VerificationErrorCode = "PRICING_CALCULATION_ERROR"
	// VerificationSignatureMismatch means the client signature does not match the server's.
	VerificationSignatureMismatch VerificationErrorCode = "SIGNATURE_MISMATCH"
)

const pricingMetricNamespace = "github.com/hanko-field/configurator/internal/services/pricing"

// VerificationError describes why client pricing was rejected.
type VerificationError struct {
	Code    VerificationErrorCode `json:"code"`
	Message string                `json:"message"`
	Details []string              `json:"details,omitempty"`
}

func (e *VerificationError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// VerificationResult always carries the server pricing so that the client can resynchronise.
type VerificationResult struct {
	Valid         bool               `json:"valid"`
	Error         *VerificationError `json:"error,omitempty"`
	ServerPricing PricingResult      `json:"serverPricing"`
}

// VerifyPricingSignature recomputes pricing with book and compares it with
// the client's claim. The checks run in order: pricebook version, server
// pricing, then a constant-time signature comparison.
func VerifyPricingSignature(payload DesignPayload, book Pricebook, clientSignature, clientPricebookVersion string) VerificationResult {
	server := PriceDesign(payload, book, PriceOptions{})
	result := VerificationResult{ServerPricing: server}

	if book == nil {
		result.Error = &VerificationError{
			Code:    VerificationPricingCalculationError,
			Message: "pricebook unavailable",
		}
		return result
	}
	current := book.Version()
	if strings.TrimSpace(clientPricebookVersion) != current {
		result.Error = &VerificationError{
			Code:    VerificationPricebookVersionMismatch,
			Message: fmt.Sprintf("client priced with pricebook %q, current is %q", strings.TrimSpace(clientPricebookVersion), current),
		}
		return result
	}
	if !server.Valid {
		result.Error = &VerificationError{
			Code:    VerificationPricingCalculationError,
			Message: "payload could not be priced",
			Details: append([]string(nil), server.Errors...),
		}
		return result
	}
	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(clientSignature)), []byte(server.PricingSignature)) != 1 {
		result.Error = &VerificationError{
			Code:    VerificationSignatureMismatch,
			Message: "pricing signature does not match server pricing",
		}
		return result
	}
	result.Valid = true
	return result
}

// PricingVerifier quotes and verifies design pricing against the current pricebook.
type PricingVerifier struct {
	pricebooks    PricebookService
	logger        func(context.Context, string, map[string]any)
	verifications metric.Int64Counter
}

type PricingVerifierDeps struct {
	Pricebooks PricebookService
	Logger     func(context.Context, string, map[string]any)
	Meter      metric.Meter
}

// VerifyPricingCommand mirrors the verification endpoint body.
type VerifyPricingCommand struct {
	Payload                DesignPayload
	ClientSignature        string
	ClientPricebookVersion string
}

func NewPricingVerifier(deps PricingVerifierDeps) (*PricingVerifier, error) {
	if deps.Pricebooks == nil {
		return nil, errors.New("pricing verifier: pricebook service is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(pricingMetricNamespace)
	}
	counter, err := meter.Int64Counter(
		"pricing.verifications",
		metric.WithDescription("Count of pricing signature verifications by outcome"),
	)
	if err != nil {
		logger(context.Background(), "pricing.verifier.metric_unavailable", map[string]any{"error": err.Error()})
	}
	return &PricingVerifier{pricebooks: deps.Pricebooks, logger: logger, verifications: counter}, nil
}

// Quote prices payload with the current pricebook. Unresolved references are
// data in the result, not an error.
func (v *PricingVerifier) Quote(ctx context.Context, payload DesignPayload) (PricingResult, error) {
	snapshot, err := v.pricebooks.Current(ctx)
	if err != nil {
		return PricingResult{}, err
	}
	return PriceDesign(payload, snapshot.Lookup(), PriceOptions{}), nil
}

// Verify checks client pricing. The returned error is reserved for
// infrastructure failures; rejected pricing is reported in the result.
func (v *PricingVerifier) Verify(ctx context.Context, cmd VerifyPricingCommand) (VerificationResult, error) {
	snapshot, err := v.pricebooks.Current(ctx)
	if err != nil {
		return VerificationResult{}, err
	}
	result := VerifyPricingSignature(cmd.Payload, snapshot.Lookup(), cmd.ClientSignature, cmd.ClientPricebookVersion)

	outcome := "valid"
	if result.Error != nil {
		outcome = string(result.Error.Code)
		v.logger(ctx, "pricing.verification.rejected", map[string]any{
			"designId":         cmd.Payload.DesignID,
			"code":             outcome,
			"clientVersion":    cmd.ClientPricebookVersion,
			"pricebookVersion": snapshot.Version,
		})
	}
	if v.verifications != nil {
		v.verifications.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
	return result, nil
}
