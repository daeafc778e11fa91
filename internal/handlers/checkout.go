package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/configurator/internal/platform/httpx"
	"github.com/hanko-field/configurator/internal/services"
)

const maxCheckoutRequestBody = 64 * 1024

// CheckoutHandlers starts PSP checkout for frozen designs.
type CheckoutHandlers struct {
	checkout services.CheckoutService
}

func NewCheckoutHandlers(checkout services.CheckoutService) *CheckoutHandlers {
	return &CheckoutHandlers{checkout: checkout}
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/design-session", h.createDesignSession)
}

type designCheckoutRequest struct {
	Payload       services.DesignPayload `json:"payload"`
	ClientPricing clientPricing          `json:"clientPricing"`
	Locale        string                 `json:"locale"`
}

type designCheckoutResponse struct {
	DesignID    string                 `json:"designId"`
	SessionID   string                 `json:"sessionId"`
	Provider    string                 `json:"provider"`
	URL         string                 `json:"url"`
	ExpiresAt   string                 `json:"expiresAt,omitempty"`
	AmountMinor int64                  `json:"amountMinor"`
	Pricing     services.PricingResult `json:"pricing"`
}

func (h *CheckoutHandlers) createDesignSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}
	var req designCheckoutRequest
	if !decodeBody(ctx, w, r, maxCheckoutRequestBody, &req) {
		return
	}
	if strings.TrimSpace(req.ClientPricing.PricebookVersion) == "" {
		httpx.WriteError(ctx, w, httpx.BadRequest("clientPricing.pricebookVersion is required"))
		return
	}

	result, err := h.checkout.StartDesignCheckout(ctx, services.StartDesignCheckoutCommand{
		Payload:                req.Payload,
		ClientSignature:        strings.TrimSpace(req.ClientPricing.PricingSignature),
		ClientPricebookVersion: strings.TrimSpace(req.ClientPricing.PricebookVersion),
		Locale:                 strings.TrimSpace(req.Locale),
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	resp := designCheckoutResponse{
		DesignID:    result.DesignID,
		SessionID:   result.Session.ID,
		Provider:    result.Session.Provider,
		URL:         result.Session.RedirectURL,
		AmountMinor: result.AmountMinor,
		Pricing:     result.Pricing,
	}
	if !result.Session.ExpiresAt.IsZero() {
		resp.ExpiresAt = result.Session.ExpiresAt.UTC().Format(time.RFC3339Nano)
	}
	writeJSONResponse(w, http.StatusCreated, resp)
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	var verifyErr *services.PricingVerificationError
	switch {
	case errors.As(err, &verifyErr):
		if verifyErr.Result.Error != nil && verifyErr.Result.Error.Code == services.VerificationPricingCalculationError {
			httpx.WriteError(ctx, w, httpx.NewError(string(verifyErr.Result.Error.Code), verifyErr.Result.Error.Message, http.StatusUnprocessableEntity).
				WithDetails(map[string]any{"serverPricing": verifyErr.Result.ServerPricing}))
			return
		}
		writeVerificationError(ctx, w, verifyErr.Result)
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutPaymentFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_failed", "payment provider rejected the session", http.StatusBadGateway))
	default:
		writePricebookError(ctx, w, err)
	}
}
