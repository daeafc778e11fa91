package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/go-cmp/cmp"

	"github.com/hanko-field/configurator/internal/domain"
	"github.com/hanko-field/configurator/internal/services"
)

func newCropRouter() chi.Router {
	router := chi.NewRouter()
	NewCropHandlers(nil).Routes(router)
	return router
}

func TestCropHandlersTransform(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/transform", strings.NewReader(`{"imgW":200,"imgH":100,"frameW":100,"frameH":100,"scale":1,"x":10,"y":0}`))
	rr := httptest.NewRecorder()
	newCropRouter().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var got domain.CoverTransform
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := domain.CoverTransform{
		Transform:      "translate(-10px, 0px) scale(1)",
		Origin:         "center center",
		BaseScale:      1,
		EffectiveScale: 1,
		TranslateX:     -10,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("transform mismatch (-want +got):\n%s", diff)
	}
}

func TestCropHandlersExtract(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/extract", strings.NewReader(`{"origW":200,"origH":100,"targetW":100,"targetH":100,"scale":1,"x":50,"y":0}`))
	rr := httptest.NewRecorder()
	newCropRouter().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var got cropExtractResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := cropExtractResponse{Rect: domain.Rectangle{Left: 100, Top: 0, Width: 100, Height: 100}, ResizedW: 200, ResizedH: 100}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("extract mismatch (-want +got):\n%s", diff)
	}
}

func TestCropHandlersClamp(t *testing.T) {
	body := `{"crop":{"scale":5,"x":999,"y":-999},"image":{"w":200,"h":100},"container":{"w":100,"h":100}}`
	req := httptest.NewRequest(http.MethodPost, "/clamp", strings.NewReader(body))
	rr := httptest.NewRecorder()
	newCropRouter().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var got cropClampResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := cropClampResponse{Crop: domain.CropState{Scale: 2.5, X: 200, Y: -75}, CoverScale: 1}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("clamp mismatch (-want +got):\n%s", diff)
	}
}

func TestCropHandlersRejectBadBodies(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{name: "empty", body: "", status: http.StatusBadRequest},
		{name: "not json", body: "scale=1", status: http.StatusBadRequest},
		{name: "two documents", body: `{"imgW":10}{"imgW":20}`, status: http.StatusBadRequest},
		{name: "too large", body: `{"imgW":` + strings.Repeat("1", maxCropRequestBody) + `}`, status: http.StatusRequestEntityTooLarge},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			newCropRouter().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/transform", strings.NewReader(tc.body)))
			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rr.Code)
			}
		})
	}
}

func TestDiagnosticsHandlersCropParity(t *testing.T) {
	router := chi.NewRouter()
	NewDiagnosticsHandlers(nil, nil).Routes(router)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/crop-parity", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var report services.ParitySuiteReport
	if err := json.Unmarshal(rr.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Failed != 0 || report.Passed != len(services.DefaultParityCases()) {
		t.Fatalf("unexpected report counts passed=%d failed=%d", report.Passed, report.Failed)
	}
}

func TestDiagnosticsHandlersCropParityFailure(t *testing.T) {
	router := chi.NewRouter()
	// Mismatched frame and target aspect ratios cannot pass.
	cases := []services.ParityCase{{Name: "mismatched", ImgW: 100, ImgH: 100, FrameW: 100, FrameH: 50, TargetW: 100, TargetH: 100, Scale: 1}}
	NewDiagnosticsHandlers(nil, cases).Routes(router)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/crop-parity", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "crop_parity_failed" || body["report"] == nil {
		t.Fatalf("unexpected body %v", body)
	}
}
