package handlers

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hanko-field/configurator/internal/payments"
	"github.com/hanko-field/configurator/internal/platform/auth"
	"github.com/hanko-field/configurator/internal/platform/idempotency"
	"github.com/hanko-field/configurator/internal/services"
)

func TestRouterHealthAndNotFound(t *testing.T) {
	router := NewRouter()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected healthz 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected readyz 200 without a health service, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/checkout/design-session", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected disabled group to 404, got %d", rr.Code)
	}
	var body map[string]any
	decodeResponse(t, rr.Body.Bytes(), &body)
	if body["error"] != errorNotFoundCode {
		t.Fatalf("expected route_not_found, got %v", body["error"])
	}
}

func TestRouterMountsGroupsUnderAPIPrefix(t *testing.T) {
	stack := newTestStack(t)
	router := NewRouter(
		WithCropRoutes(NewCropHandlers(nil).Routes),
		WithPricingRoutes(NewPricingHandlers(stack.pricebooks, stack.pricing).Routes),
		WithDesignRoutes(NewDesignHandlers(stack.designs).Routes),
	)

	tests := []struct {
		method string
		path   string
		body   any
		status int
	}{
		{method: http.MethodPost, path: "/api/v1/crop/transform", body: map[string]float64{"imgW": 10, "imgH": 10, "frameW": 10, "frameH": 10, "scale": 1}, status: http.StatusOK},
		{method: http.MethodGet, path: "/api/v1/pricing/pricebook", status: http.StatusOK},
		{method: http.MethodPost, path: "/api/v1/designs:freeze", body: freezeDesignRequest{Payload: testPayload()}, status: http.StatusOK},
		{method: http.MethodGet, path: "/api/v1/crop/transform", status: http.StatusMethodNotAllowed},
	}
	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			var req *http.Request
			if tc.body != nil {
				req = httptest.NewRequest(tc.method, tc.path, jsonBody(t, tc.body))
			} else {
				req = httptest.NewRequest(tc.method, tc.path, nil)
			}
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestRouterPricebookWebhookRequiresSignature(t *testing.T) {
	stack := newTestStack(t)
	verifier := auth.NewHMACVerifier(auth.HMACConfig{Secrets: map[string]string{"pricebooks": "s3cret"}}, zap.NewNop())
	router := NewRouter(
		WithPricingRoutes(NewPricingHandlers(stack.pricebooks, stack.pricing).Routes),
		WithWebhookRoutes(NewPricebookWebhookHandlers(stack.pricebooks).Routes),
		WithWebhookMiddlewares(verifier.Require("pricebooks")),
	)

	next := testPricebook()
	next.Version = "2026.11.0"
	next.Products["TOP-M"] = services.CatalogProduct{SKU: "TOP-M", Title: "Modular top", Price: 49, Currency: "USD"}
	body, err := json.Marshal(publishPricebookRequest{Snapshot: next, Activate: true})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	const path = "/api/v1/webhooks/pricebooks"
	signed := func() *http.Request {
		ts := strconv.FormatInt(time.Now().Unix(), 10)
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
		req.Header.Set("X-Signature", hex.EncodeToString(auth.Sign([]byte("s3cret"), http.MethodPost, path, ts, body)))
		req.Header.Set("X-Signature-Timestamp", ts)
		return req
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body)))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected unsigned webhook to be rejected, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, signed())
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp publishPricebookResponse
	decodeResponse(t, rr.Body.Bytes(), &resp)
	if resp.Version != "2026.11.0" || !resp.Created || !resp.Activated {
		t.Fatalf("unexpected publish response %+v", resp)
	}

	// A redelivery of the same version is accepted without creating anything.
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, signed())
	if rr.Code != http.StatusOK {
		t.Fatalf("expected replay status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/pricing/pricebook", nil))
	var current services.PricebookSnapshot
	decodeResponse(t, rr.Body.Bytes(), &current)
	if current.Version != "2026.11.0" {
		t.Fatalf("expected activated pricebook to be current, got %s", current.Version)
	}
}

func TestRouterCheckoutReplaysIdempotentRequests(t *testing.T) {
	calls := 0
	svc := &stubCheckoutService{
		startFunc: func(_ context.Context, cmd services.StartDesignCheckoutCommand) (services.DesignCheckoutSession, error) {
			calls++
			return services.DesignCheckoutSession{
				DesignID:    cmd.Payload.DesignID,
				Session:     payments.CheckoutSession{ID: fmt.Sprintf("cs_%d", calls), Provider: "stripe"},
				AmountMinor: 23425,
			}, nil
		},
	}
	router := NewRouter(
		WithCheckoutRoutes(NewCheckoutHandlers(svc).Routes),
		WithCheckoutMiddlewares(idempotency.Middleware(idempotency.NewMemoryStore())),
	)

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/design-session", jsonBody(t, checkoutRequestBody()))
		req.Header.Set("Idempotency-Key", "retry-1")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	first := send()
	second := send()
	if first.Code != http.StatusCreated || second.Code != http.StatusCreated {
		t.Fatalf("expected 201 twice, got %d and %d", first.Code, second.Code)
	}
	if calls != 1 {
		t.Fatalf("expected one checkout session, got %d", calls)
	}
	if second.Header().Get("X-Idempotent-Replay") != "true" {
		t.Fatal("expected replay header on the second response")
	}
	var a, b designCheckoutResponse
	decodeResponse(t, first.Body.Bytes(), &a)
	decodeResponse(t, second.Body.Bytes(), &b)
	if a.SessionID != "cs_1" || b.SessionID != a.SessionID {
		t.Fatalf("expected replayed session cs_1, got %q and %q", a.SessionID, b.SessionID)
	}
}
