package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/configurator/internal/platform/httpx"
	"github.com/hanko-field/configurator/internal/platform/pagination"
	"github.com/hanko-field/configurator/internal/services"
)

const maxPricingRequestBody = 64 * 1024

// PricingHandlers serves pricebooks and server-side quote/verify.
type PricingHandlers struct {
	pricebooks services.PricebookService
	pricing    services.PricingService
}

func NewPricingHandlers(pricebooks services.PricebookService, pricing services.PricingService) *PricingHandlers {
	return &PricingHandlers{pricebooks: pricebooks, pricing: pricing}
}

// Routes registers pricing endpoints under the provided router.
func (h *PricingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/pricebook", h.getPricebook)
	r.Get("/pricebooks", h.listPricebooks)
	r.Post("/quote", h.quote)
	r.Post("/verify", h.verify)
}

type clientPricing struct {
	PricingSignature string `json:"pricingSignature"`
	PricebookVersion string `json:"pricebookVersion"`
}

type verifyPricingRequest struct {
	Payload       services.DesignPayload `json:"payload"`
	ClientPricing clientPricing          `json:"clientPricing"`
}

type verifyPricingResponse struct {
	Valid         bool                   `json:"valid"`
	ServerPricing services.PricingResult `json:"serverPricing"`
}

type pricebookVersionsResponse struct {
	Versions      []string `json:"versions"`
	NextPageToken string   `json:"nextPageToken,omitempty"`
}

func (h *PricingHandlers) getPricebook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.pricebooks == nil {
		httpx.WriteError(ctx, w, httpx.NewError("pricing_unavailable", "pricebook service unavailable", http.StatusServiceUnavailable))
		return
	}
	var (
		snapshot services.PricebookSnapshot
		err      error
	)
	if version := strings.TrimSpace(r.URL.Query().Get("version")); version != "" {
		snapshot, err = h.pricebooks.Get(ctx, version)
	} else {
		snapshot, err = h.pricebooks.Current(ctx)
	}
	if err != nil {
		writePricebookError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, snapshot)
}

func (h *PricingHandlers) listPricebooks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.pricebooks == nil {
		httpx.WriteError(ctx, w, httpx.NewError("pricing_unavailable", "pricebook service unavailable", http.StatusServiceUnavailable))
		return
	}
	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.BadRequest(err.Error()))
		return
	}
	all, err := h.pricebooks.ListVersions(ctx, 0)
	if err != nil {
		writePricebookError(ctx, w, err)
		return
	}
	versions, next, err := pagination.Page(all, params)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.BadRequest(err.Error()))
		return
	}
	if versions == nil {
		versions = []string{}
	}
	writeJSONResponse(w, http.StatusOK, pricebookVersionsResponse{Versions: versions, NextPageToken: next})
}

// quote answers 200 even when the payload references unknown entries; the
// result's valid flag and errors carry that outcome.
func (h *PricingHandlers) quote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.pricing == nil {
		httpx.WriteError(ctx, w, httpx.NewError("pricing_unavailable", "pricing service unavailable", http.StatusServiceUnavailable))
		return
	}
	var payload services.DesignPayload
	if !decodeBody(ctx, w, r, maxPricingRequestBody, &payload) {
		return
	}
	result, err := h.pricing.Quote(ctx, payload)
	if err != nil {
		writePricebookError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, result)
}

func (h *PricingHandlers) verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.pricing == nil {
		httpx.WriteError(ctx, w, httpx.NewError("pricing_unavailable", "pricing service unavailable", http.StatusServiceUnavailable))
		return
	}
	var req verifyPricingRequest
	if !decodeBody(ctx, w, r, maxPricingRequestBody, &req) {
		return
	}
	if strings.TrimSpace(req.ClientPricing.PricebookVersion) == "" {
		httpx.WriteError(ctx, w, httpx.BadRequest("clientPricing.pricebookVersion is required"))
		return
	}
	result, err := h.pricing.Verify(ctx, services.VerifyPricingCommand{
		Payload:                req.Payload,
		ClientSignature:        strings.TrimSpace(req.ClientPricing.PricingSignature),
		ClientPricebookVersion: strings.TrimSpace(req.ClientPricing.PricebookVersion),
	})
	if err != nil {
		writePricebookError(ctx, w, err)
		return
	}
	if !result.Valid {
		writeVerificationError(ctx, w, result)
		return
	}
	writeJSONResponse(w, http.StatusOK, verifyPricingResponse{Valid: true, ServerPricing: result.ServerPricing})
}

// writeVerificationError renders rejected pricing as 409 with the server
// pricing attached so that the client can resynchronise.
func writeVerificationError(ctx context.Context, w http.ResponseWriter, result services.VerificationResult) {
	code := string(services.VerificationSignatureMismatch)
	message := "pricing verification failed"
	details := map[string]any{"serverPricing": result.ServerPricing}
	if result.Error != nil {
		code = string(result.Error.Code)
		message = result.Error.Message
		if len(result.Error.Details) > 0 {
			details["details"] = result.Error.Details
		}
	}
	httpx.WriteError(ctx, w, httpx.NewError(code, message, http.StatusConflict).WithDetails(details))
}

func writePricebookError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrPricebookNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("pricebook_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrPricebookInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_pricebook", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPricebookConflict):
		httpx.WriteError(ctx, w, httpx.NewError("pricebook_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrPricebookUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("pricing_unavailable", "pricebook store unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("request_timeout", "request cancelled", http.StatusGatewayTimeout))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process pricing request", http.StatusInternalServerError))
	}
}
