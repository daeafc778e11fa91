package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/configurator/internal/platform/httpx"
	"github.com/hanko-field/configurator/internal/services"
)

// Snapshots with a few hundred SKUs stay well below this.
const maxPricebookWebhookBody = 1 << 20

// PricebookWebhookHandlers receives pricebook publications from the catalog
// system. Authentication is applied by the /webhooks group middleware.
type PricebookWebhookHandlers struct {
	pricebooks services.PricebookService
}

func NewPricebookWebhookHandlers(pricebooks services.PricebookService) *PricebookWebhookHandlers {
	return &PricebookWebhookHandlers{pricebooks: pricebooks}
}

func (h *PricebookWebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/pricebooks", h.publish)
}

type publishPricebookRequest struct {
	Snapshot services.PricebookSnapshot `json:"snapshot"`
	Activate bool                       `json:"activate"`
}

type publishPricebookResponse struct {
	Version   string `json:"version"`
	Created   bool   `json:"created"`
	Activated bool   `json:"activated"`
}

// publish answers 201 for a new version and 200 when the identical version
// already existed, so retried deliveries are harmless.
func (h *PricebookWebhookHandlers) publish(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.pricebooks == nil {
		httpx.WriteError(ctx, w, httpx.NewError("pricing_unavailable", "pricebook service unavailable", http.StatusServiceUnavailable))
		return
	}
	var req publishPricebookRequest
	if !decodeBody(ctx, w, r, maxPricebookWebhookBody, &req) {
		return
	}
	result, err := h.pricebooks.Publish(ctx, services.PublishPricebookCommand{Snapshot: req.Snapshot, Activate: req.Activate})
	if err != nil {
		writePricebookError(ctx, w, err)
		return
	}
	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	writeJSONResponse(w, status, publishPricebookResponse{
		Version:   result.Snapshot.Version,
		Created:   result.Created,
		Activated: result.Activated,
	})
}
