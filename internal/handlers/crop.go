package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/configurator/internal/domain"
	"github.com/hanko-field/configurator/internal/platform/httpx"
	"github.com/hanko-field/configurator/internal/services"
)

const maxCropRequestBody = 4 * 1024

// CropHandlers exposes the geometry engine so that non-Go clients share one
// implementation of the preview and raster math.
type CropHandlers struct {
	engine *services.CropGeometryEngine
}

func NewCropHandlers(engine *services.CropGeometryEngine) *CropHandlers {
	if engine == nil {
		engine = services.NewCropGeometryEngine(services.CropGeometryEngineDeps{})
	}
	return &CropHandlers{engine: engine}
}

// Routes registers crop endpoints under the provided router.
func (h *CropHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/transform", h.transform)
	r.Post("/extract", h.extract)
	r.Post("/clamp", h.clamp)
}

type cropExtractResponse struct {
	Rect     domain.Rectangle `json:"rect"`
	ResizedW int              `json:"resizedW,omitempty"`
	ResizedH int              `json:"resizedH,omitempty"`
}

type cropClampRequest struct {
	Crop      domain.CropState `json:"crop"`
	Image     domain.Size      `json:"image"`
	Container domain.Size      `json:"container"`
}

type cropClampResponse struct {
	Crop       domain.CropState `json:"crop"`
	CoverScale float64          `json:"coverScale"`
}

func (h *CropHandlers) transform(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req services.TransformParams
	if !decodeBody(ctx, w, r, maxCropRequestBody, &req) {
		return
	}
	writeJSONResponse(w, http.StatusOK, h.engine.CoverTransform(ctx, req))
}

func (h *CropHandlers) extract(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req services.ExtractParams
	if !decodeBody(ctx, w, r, maxCropRequestBody, &req) {
		return
	}
	resp := cropExtractResponse{Rect: h.engine.ExtractRect(ctx, req)}
	if rw, rh, ok := h.engine.ResizedSize(req); ok {
		resp.ResizedW, resp.ResizedH = rw, rh
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *CropHandlers) clamp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req cropClampRequest
	if !decodeBody(ctx, w, r, maxCropRequestBody, &req) {
		return
	}
	writeJSONResponse(w, http.StatusOK, cropClampResponse{
		Crop:       h.engine.ClampCropState(ctx, req.Crop, req.Image, req.Container),
		CoverScale: h.engine.CoverScale(ctx, req.Image, req.Container),
	})
}

// DiagnosticsHandlers serves operator-only checks.
type DiagnosticsHandlers struct {
	engine *services.CropGeometryEngine
	cases  []services.ParityCase
}

// NewDiagnosticsHandlers runs the given parity cases, or the built-in suite
// when none are supplied.
func NewDiagnosticsHandlers(engine *services.CropGeometryEngine, cases []services.ParityCase) *DiagnosticsHandlers {
	if engine == nil {
		engine = services.NewCropGeometryEngine(services.CropGeometryEngineDeps{})
	}
	if len(cases) == 0 {
		cases = services.DefaultParityCases()
	}
	return &DiagnosticsHandlers{engine: engine, cases: cases}
}

func (h *DiagnosticsHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/crop-parity", h.cropParity)
}

// cropParity answers 200 when every case passes and 500 otherwise; the body
// always carries the full report.
func (h *DiagnosticsHandlers) cropParity(w http.ResponseWriter, r *http.Request) {
	report := h.engine.RunParitySuite(r.Context(), h.cases)
	if report.Failed > 0 {
		httpx.WriteError(r.Context(), w, httpx.NewError("crop_parity_failed", "crop parity cases failed", http.StatusInternalServerError).
			WithDetails(map[string]any{"report": report}))
		return
	}
	writeJSONResponse(w, http.StatusOK, report)
}
