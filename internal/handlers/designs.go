package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/configurator/internal/platform/httpx"
	"github.com/hanko-field/configurator/internal/services"
)

const maxDesignRequestBody = 64 * 1024

// DesignHandlers freezes and duplicates design payloads and queues print renders.
type DesignHandlers struct {
	designs services.DesignService
	renders services.CropRenderService
}

// DesignHandlersOption customises design handlers.
type DesignHandlersOption func(*DesignHandlers)

// WithDesignRenderService enables POST /designs/{designId}/crop:render.
func WithDesignRenderService(svc services.CropRenderService) DesignHandlersOption {
	return func(h *DesignHandlers) {
		h.renders = svc
	}
}

func NewDesignHandlers(designs services.DesignService, opts ...DesignHandlersOption) *DesignHandlers {
	h := &DesignHandlers{designs: designs}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers design endpoints. The router passed in is the API root
// because the actions use the /designs:verb form.
func (h *DesignHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/designs:freeze", h.freeze)
	r.Post("/designs/{designId}:duplicate", h.duplicate)
	if h.renders != nil {
		r.Post("/designs/{designId}/crop:render", h.enqueueRender)
	}
}

type freezeDesignRequest struct {
	Payload services.DesignPayload `json:"payload"`
}

type duplicateDesignRequest struct {
	Source services.DesignPayload `json:"source"`
}

type cropRenderRequest struct {
	SourceObject string                    `json:"sourceObject"`
	TargetW      int                       `json:"targetW"`
	TargetH      int                       `json:"targetH"`
	Crop         *services.CropState       `json:"crop,omitempty"`
	LegacyCrop   *services.LegacyCropState `json:"legacyCrop,omitempty"`
	FrameW       float64                   `json:"frameW,omitempty"`
	FrameH       float64                   `json:"frameH,omitempty"`
}

func (h *DesignHandlers) freeze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.designs == nil {
		httpx.WriteError(ctx, w, httpx.NewError("design_unavailable", "design service unavailable", http.StatusServiceUnavailable))
		return
	}
	var req freezeDesignRequest
	if !decodeBody(ctx, w, r, maxDesignRequestBody, &req) {
		return
	}
	frozen, err := h.designs.FreezeDesign(ctx, services.FreezeDesignCommand{Payload: req.Payload})
	if err != nil {
		writeDesignError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, frozen)
}

func (h *DesignHandlers) duplicate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.designs == nil {
		httpx.WriteError(ctx, w, httpx.NewError("design_unavailable", "design service unavailable", http.StatusServiceUnavailable))
		return
	}
	designID := strings.TrimSpace(chi.URLParam(r, "designId"))
	if designID == "" {
		httpx.WriteError(ctx, w, httpx.BadRequest("designId is required"))
		return
	}
	var req duplicateDesignRequest
	if !decodeBody(ctx, w, r, maxDesignRequestBody, &req) {
		return
	}
	source := req.Source
	switch strings.TrimSpace(source.DesignID) {
	case "":
		source.DesignID = designID
	case designID:
	default:
		httpx.WriteError(ctx, w, httpx.BadRequest("source.designId does not match the path"))
		return
	}

	copied, err := h.designs.DuplicateDesign(ctx, services.DuplicateDesignCommand{Source: source})
	if err != nil {
		writeDesignError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, copied)
}

func (h *DesignHandlers) enqueueRender(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	designID := strings.TrimSpace(chi.URLParam(r, "designId"))
	var req cropRenderRequest
	if !decodeBody(ctx, w, r, maxCropRequestBody, &req) {
		return
	}
	job, err := h.renders.Enqueue(ctx, services.EnqueueCropRenderCommand{
		DesignID:     designID,
		SourceObject: strings.TrimSpace(req.SourceObject),
		TargetW:      req.TargetW,
		TargetH:      req.TargetH,
		Crop:         req.Crop,
		LegacyCrop:   req.LegacyCrop,
		FrameW:       req.FrameW,
		FrameH:       req.FrameH,
	})
	if err != nil {
		writeCropRenderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusAccepted, job)
}

func writeDesignError(ctx context.Context, w http.ResponseWriter, err error) {
	var pricingErr *services.DesignPricingError
	switch {
	case errors.As(err, &pricingErr):
		httpx.WriteError(ctx, w, httpx.NewError("pricing_invalid", "design references entries the pricebook cannot price", http.StatusUnprocessableEntity).
			WithDetails(map[string]any{"pricing": pricingErr.Pricing}))
	case errors.Is(err, services.ErrDesignInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_design", err.Error(), http.StatusBadRequest))
	default:
		writePricebookError(ctx, w, err)
	}
}

func writeCropRenderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCropRenderInvalidJob):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_render_job", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCropRenderSourceNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("source_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrCropRenderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("render_unavailable", "render queue unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process render request", http.StatusInternalServerError))
	}
}
