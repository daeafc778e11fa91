package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hanko-field/configurator/internal/platform/requestctx"
)

func TestWriteErrorMergesDetails(t *testing.T) {
	ctx := requestctx.WithTrace(context.Background(), requestctx.TraceInfo{TraceID: "abc123"})
	rec := httptest.NewRecorder()

	err := NewError("SIGNATURE_MISMATCH", "pricing\nchanged", http.StatusConflict).
		WithDetails(map[string]any{"serverPricing": map[string]any{"total": 89.0}})
	WriteError(ctx, rec, err)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	want := map[string]any{
		"error":         "SIGNATURE_MISMATCH",
		"message":       "pricing changed",
		"status":        float64(409),
		"trace_id":      "abc123",
		"serverPricing": map[string]any{"total": 89.0},
	}
	if diff := cmp.Diff(want, body); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	tests := []struct {
		name    string
		body    string
		strict  bool
		wantErr string
	}{
		{name: "ok", body: `{"name":"a"}`},
		{name: "empty", body: ``, wantErr: "request body is required"},
		{name: "unknown field strict", body: `{"name":"a","x":1}`, strict: true, wantErr: "unknown field"},
		{name: "unknown field lenient", body: `{"name":"a","x":1}`},
		{name: "trailing document", body: `{"name":"a"}{"name":"b"}`, wantErr: "single JSON document"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var dst payload
			err := DecodeJSON(strings.NewReader(tc.body), &dst, tc.strict)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}
