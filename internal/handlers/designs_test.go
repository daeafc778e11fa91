package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/configurator/internal/services"
)

type stubCropRenderService struct {
	enqueueFunc func(context.Context, services.EnqueueCropRenderCommand) (services.CropRenderJob, error)
	renderFunc  func(context.Context, services.CropRenderJob) (services.CropRenderResult, error)
}

func (s *stubCropRenderService) Enqueue(ctx context.Context, cmd services.EnqueueCropRenderCommand) (services.CropRenderJob, error) {
	if s.enqueueFunc == nil {
		return services.CropRenderJob{}, nil
	}
	return s.enqueueFunc(ctx, cmd)
}

func (s *stubCropRenderService) Render(ctx context.Context, job services.CropRenderJob) (services.CropRenderResult, error) {
	if s.renderFunc == nil {
		return services.CropRenderResult{}, nil
	}
	return s.renderFunc(ctx, job)
}

func newDesignRouter(t *testing.T, opts ...DesignHandlersOption) chi.Router {
	t.Helper()
	router := chi.NewRouter()
	NewDesignHandlers(newTestStack(t).designs, opts...).Routes(router)
	return router
}

func TestDesignHandlersFreeze(t *testing.T) {
	router := newDesignRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/designs:freeze", jsonBody(t, freezeDesignRequest{Payload: testPayload()})))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var frozen services.FrozenDesign
	decodeResponse(t, rr.Body.Bytes(), &frozen)
	if frozen.Payload.DesignID != "dsg_TEST" {
		t.Fatalf("expected assigned design id, got %q", frozen.Payload.DesignID)
	}
	if frozen.Pricing.Total != 234.25 || frozen.Pricing.PricingSignature == "" {
		t.Fatalf("unexpected pricing %+v", frozen.Pricing)
	}
	if !frozen.FrozenAt.Equal(handlerTestClock) {
		t.Fatalf("unexpected frozenAt %s", frozen.FrozenAt)
	}
}

func TestDesignHandlersFreezeErrors(t *testing.T) {
	unpriced := testPayload()
	unpriced.PremiumAddons = []services.PremiumAddon{{PricingKey: "velvet-pouch", Qty: 1}}
	invalid := testPayload()
	invalid.ProductFamily = "teapot"

	tests := []struct {
		name    string
		payload services.DesignPayload
		status  int
		code    string
	}{
		{name: "unresolved addon", payload: unpriced, status: http.StatusUnprocessableEntity, code: "pricing_invalid"},
		{name: "unknown family", payload: invalid, status: http.StatusBadRequest, code: "invalid_design"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			router := newDesignRouter(t)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/designs:freeze", jsonBody(t, freezeDesignRequest{Payload: tc.payload})))
			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
			var body struct {
				Error   string                  `json:"error"`
				Pricing *services.PricingResult `json:"pricing"`
			}
			decodeResponse(t, rr.Body.Bytes(), &body)
			if body.Error != tc.code {
				t.Fatalf("expected error %s, got %s", tc.code, body.Error)
			}
			if tc.status == http.StatusUnprocessableEntity && (body.Pricing == nil || body.Pricing.Valid) {
				t.Fatalf("expected invalid pricing attached, got %+v", body.Pricing)
			}
		})
	}
}

func TestDesignHandlersDuplicate(t *testing.T) {
	router := newDesignRouter(t)
	source := testPayload()
	source.PreviewURL = "https://cdn.example.com/p.png"

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/designs/dsg_source:duplicate", jsonBody(t, duplicateDesignRequest{Source: source})))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var copied services.DesignPayload
	decodeResponse(t, rr.Body.Bytes(), &copied)
	if copied.DesignID != "dsg_TEST" || copied.PreviewURL != "" {
		t.Fatalf("unexpected duplicate %+v", copied)
	}
	if len(copied.BaseComponents) != 2 {
		t.Fatalf("expected components copied, got %+v", copied.BaseComponents)
	}

	source.DesignID = "dsg_other"
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/designs/dsg_source:duplicate", jsonBody(t, duplicateDesignRequest{Source: source})))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for mismatched ids, got %d", rr.Code)
	}
}

func TestDesignHandlersEnqueueRender(t *testing.T) {
	var captured services.EnqueueCropRenderCommand
	renders := &stubCropRenderService{
		enqueueFunc: func(_ context.Context, cmd services.EnqueueCropRenderCommand) (services.CropRenderJob, error) {
			captured = cmd
			return services.CropRenderJob{JobID: "crj_1", DesignID: cmd.DesignID, TargetW: cmd.TargetW, TargetH: cmd.TargetH}, nil
		},
	}
	router := newDesignRouter(t, WithDesignRenderService(renders))

	body := `{"sourceObject":" uploads/dsg_1/photo.jpg ","targetW":900,"targetH":1125,"legacyCrop":{"scale":1.5,"nx":0.1,"ny":-0.2},"frameW":400,"frameH":500}`
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/designs/dsg_1/crop:render", strings.NewReader(body)))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.DesignID != "dsg_1" || captured.SourceObject != "uploads/dsg_1/photo.jpg" {
		t.Fatalf("unexpected command %+v", captured)
	}
	if captured.LegacyCrop == nil || captured.LegacyCrop.NX != 0.1 || captured.Crop != nil {
		t.Fatalf("expected legacy crop forwarded, got %+v", captured)
	}
}

func TestDesignHandlersEnqueueRenderErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "invalid", err: services.ErrCropRenderInvalidJob, status: http.StatusBadRequest},
		{name: "queue down", err: services.ErrCropRenderUnavailable, status: http.StatusServiceUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			renders := &stubCropRenderService{
				enqueueFunc: func(context.Context, services.EnqueueCropRenderCommand) (services.CropRenderJob, error) {
					return services.CropRenderJob{}, tc.err
				},
			}
			router := newDesignRouter(t, WithDesignRenderService(renders))
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/designs/dsg_1/crop:render", strings.NewReader(`{"sourceObject":"a.png","targetW":10,"targetH":10}`)))
			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rr.Code)
			}
		})
	}
}

var _ services.CropRenderService = (*stubCropRenderService)(nil)
