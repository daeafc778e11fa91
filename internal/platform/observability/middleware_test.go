package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hanko-field/configurator/internal/platform/requestctx"
)

func TestRequestLoggerMiddlewareLogsStatus(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	handler := InjectLoggerMiddleware(logger)(RequestLoggerMiddleware()(RecoveryMiddleware(nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/boom" {
				panic("kaboom")
			}
			w.WriteHeader(http.StatusTeapot)
		}),
	)))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected 418, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 after panic, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "internal_server_error") {
		t.Fatalf("expected JSON error body, got %s", rec.Body.String())
	}

	completed := logs.FilterMessage("request completed").All()
	if len(completed) != 2 {
		t.Fatalf("expected 2 completion logs, got %d", len(completed))
	}
	if got := completed[0].ContextMap()["status"]; got != int64(http.StatusTeapot) {
		t.Errorf("unexpected status field %v", got)
	}
	if completed[1].Level != zapcore.ErrorLevel {
		t.Errorf("expected error level for 500, got %s", completed[1].Level)
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Error("expected panic to be logged")
	}
}

func TestTraceMiddlewareContinuesCloudTraceHeader(t *testing.T) {
	var got requestctx.TraceInfo
	handler := TraceMiddleware("hf-dev")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = requestctx.Trace(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(cloudTraceHeader, "4bf92f3577b34da6a3ce929d0e0e4736/12345;o=1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got.ProjectID != "hf-dev" {
		t.Errorf("expected project id on trace info, got %q", got.ProjectID)
	}
}

func TestParseCloudTrace(t *testing.T) {
	tests := []struct {
		header  string
		ok      bool
		sampled bool
	}{
		{header: "4bf92f3577b34da6a3ce929d0e0e4736/12345;o=1", ok: true, sampled: true},
		{header: "4bf92f3577b34da6a3ce929d0e0e4736/00f067aa0ba902b7;o=0", ok: true},
		{header: "4bf92f3577b34da6a3ce929d0e0e4736/0", ok: false},
		{header: "short/1", ok: false},
		{header: "", ok: false},
	}
	for _, tc := range tests {
		sc, ok := parseCloudTrace(tc.header)
		if ok != tc.ok {
			t.Errorf("%q: expected ok=%v, got %v", tc.header, tc.ok, ok)
			continue
		}
		if ok && sc.IsSampled() != tc.sampled {
			t.Errorf("%q: expected sampled=%v", tc.header, tc.sampled)
		}
	}
}

func TestEventsLogsFailuresAtWarn(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	events := Events(zap.New(core), "pricing")

	events(context.Background(), "pricing.verification.rejected", map[string]any{"code": "SIGNATURE_MISMATCH"})
	events(context.Background(), "pricebook.published", nil)

	all := logs.All()
	if len(all) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(all))
	}
	if all[0].Level != zapcore.WarnLevel || all[1].Level != zapcore.InfoLevel {
		t.Errorf("unexpected levels %s, %s", all[0].Level, all[1].Level)
	}
	if all[0].LoggerName != "pricing" {
		t.Errorf("expected named logger, got %q", all[0].LoggerName)
	}
}
