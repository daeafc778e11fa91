package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/configurator/internal/platform/httpx"
	"github.com/hanko-field/configurator/internal/platform/jobs"
	"github.com/hanko-field/configurator/internal/services"
)

const maxPushEnvelopeBody = 256 * 1024

// InternalJobHandlers executes Pub/Sub push deliveries. Pub/Sub redelivers on
// any non-2xx answer, so only transient failures return an error status.
type InternalJobHandlers struct {
	renders services.CropRenderService
}

func NewInternalJobHandlers(renders services.CropRenderService) *InternalJobHandlers {
	return &InternalJobHandlers{renders: renders}
}

func (h *InternalJobHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/jobs/crop-render", h.cropRender)
}

type discardedJobResponse struct {
	Status string `json:"status"`
	JobID  string `json:"jobId,omitempty"`
	Reason string `json:"reason"`
}

func (h *InternalJobHandlers) cropRender(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.renders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("render_unavailable", "render service unavailable", http.StatusServiceUnavailable))
		return
	}
	var env jobs.PushEnvelope
	if !decodeBody(ctx, w, r, maxPushEnvelopeBody, &env) {
		return
	}
	job, err := jobs.DecodeCropRenderPush(env)
	if err != nil {
		// A malformed message will never succeed; acknowledge it.
		writeJSONResponse(w, http.StatusOK, discardedJobResponse{Status: "discarded", Reason: err.Error()})
		return
	}

	result, err := h.renders.Render(ctx, job)
	switch {
	case err == nil:
		writeJSONResponse(w, http.StatusOK, result)
	case errors.Is(err, services.ErrCropRenderInvalidJob), errors.Is(err, services.ErrCropRenderSourceNotFound):
		writeJSONResponse(w, http.StatusOK, discardedJobResponse{Status: "discarded", JobID: job.JobID, Reason: err.Error()})
	default:
		writeCropRenderError(ctx, w, err)
	}
}
