package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/configurator/internal/payments"
	"github.com/hanko-field/configurator/internal/services"
)

type stubCheckoutService struct {
	startFunc func(context.Context, services.StartDesignCheckoutCommand) (services.DesignCheckoutSession, error)
}

func (s *stubCheckoutService) StartDesignCheckout(ctx context.Context, cmd services.StartDesignCheckoutCommand) (services.DesignCheckoutSession, error) {
	if s.startFunc == nil {
		return services.DesignCheckoutSession{}, errors.New("not implemented")
	}
	return s.startFunc(ctx, cmd)
}

func checkoutRequestBody() designCheckoutRequest {
	payload := testPayload()
	payload.DesignID = "dsg_1"
	return designCheckoutRequest{
		Payload:       payload,
		ClientPricing: clientPricing{PricingSignature: "abc", PricebookVersion: "2026.10.0"},
		Locale:        "ja-JP",
	}
}

func TestCheckoutHandlersCreateDesignSession(t *testing.T) {
	var captured services.StartDesignCheckoutCommand
	svc := &stubCheckoutService{
		startFunc: func(_ context.Context, cmd services.StartDesignCheckoutCommand) (services.DesignCheckoutSession, error) {
			captured = cmd
			return services.DesignCheckoutSession{
				DesignID: cmd.Payload.DesignID,
				Session: payments.CheckoutSession{
					ID:          "cs_123",
					Provider:    "stripe",
					RedirectURL: "https://checkout.example/cs_123",
					ExpiresAt:   time.Date(2026, 10, 12, 9, 0, 0, 0, time.UTC),
				},
				AmountMinor: 23425,
			}, nil
		},
	}
	router := chi.NewRouter()
	NewCheckoutHandlers(svc).Routes(router)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/design-session", jsonBody(t, checkoutRequestBody())))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp designCheckoutResponse
	decodeResponse(t, rr.Body.Bytes(), &resp)
	if resp.SessionID != "cs_123" || resp.URL != "https://checkout.example/cs_123" || resp.AmountMinor != 23425 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.ExpiresAt != "2026-10-12T09:00:00Z" {
		t.Fatalf("unexpected expiresAt %q", resp.ExpiresAt)
	}
	if captured.ClientSignature != "abc" || captured.ClientPricebookVersion != "2026.10.0" || captured.Locale != "ja-JP" {
		t.Fatalf("unexpected command %+v", captured)
	}
}

func TestCheckoutHandlersMapsErrors(t *testing.T) {
	server := services.PricingResult{Total: 234.25, Currency: "USD", PricebookVersion: "2026.10.0"}
	reject := func(code services.VerificationErrorCode) error {
		return &services.PricingVerificationError{Result: services.VerificationResult{
			Error:         &services.VerificationError{Code: code, Message: "rejected"},
			ServerPricing: server,
		}}
	}
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "signature mismatch", err: reject(services.VerificationSignatureMismatch), status: http.StatusConflict, code: "SIGNATURE_MISMATCH"},
		{name: "stale pricebook", err: reject(services.VerificationPricebookVersionMismatch), status: http.StatusConflict, code: "PRICEBOOK_VERSION_MISMATCH"},
		{name: "unpriceable", err: reject(services.VerificationPricingCalculationError), status: http.StatusUnprocessableEntity, code: "PRICING_CALCULATION_ERROR"},
		{name: "invalid input", err: fmt.Errorf("%w: designId is required", services.ErrCheckoutInvalidInput), status: http.StatusBadRequest, code: "invalid_request"},
		{name: "psp failure", err: fmt.Errorf("%w: card network down", services.ErrCheckoutPaymentFailed), status: http.StatusBadGateway, code: "payment_failed"},
		{name: "pricebook store down", err: services.ErrPricebookUnavailable, status: http.StatusServiceUnavailable, code: "pricing_unavailable"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			router := chi.NewRouter()
			NewCheckoutHandlers(&stubCheckoutService{
				startFunc: func(context.Context, services.StartDesignCheckoutCommand) (services.DesignCheckoutSession, error) {
					return services.DesignCheckoutSession{}, tc.err
				},
			}).Routes(router)

			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/design-session", jsonBody(t, checkoutRequestBody())))
			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
			var body struct {
				Error         string                  `json:"error"`
				ServerPricing *services.PricingResult `json:"serverPricing"`
			}
			decodeResponse(t, rr.Body.Bytes(), &body)
			if body.Error != tc.code {
				t.Fatalf("expected error %s, got %s", tc.code, body.Error)
			}
			if (tc.status == http.StatusConflict || tc.status == http.StatusUnprocessableEntity) && (body.ServerPricing == nil || body.ServerPricing.Total != server.Total) {
				t.Fatalf("expected server pricing in body, got %+v", body.ServerPricing)
			}
		})
	}
}

func TestCheckoutHandlersRequirePricebookVersion(t *testing.T) {
	router := chi.NewRouter()
	svc := &stubCheckoutService{}
	NewCheckoutHandlers(svc).Routes(router)

	body := checkoutRequestBody()
	body.ClientPricing.PricebookVersion = " "
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/design-session", jsonBody(t, body)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

var _ services.CheckoutService = (*stubCheckoutService)(nil)
