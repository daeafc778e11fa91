package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hanko-field/configurator/internal/payments"
)

type fakePaymentProvider struct {
	calls int
	req   payments.CheckoutSessionRequest
	err   error
}

func (f *fakePaymentProvider) CreateCheckoutSession(_ context.Context, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
	f.calls++
	f.req = req
	if f.err != nil {
		return payments.CheckoutSession{}, f.err
	}
	return payments.CheckoutSession{ID: "cs_test", Provider: "stripe", RedirectURL: "https://checkout.example.com/cs_test"}, nil
}

func newTestCheckoutService(t *testing.T, provider payments.Provider) CheckoutService {
	t.Helper()
	pricebooks, _ := newTestPricebookService(t, designTestPricebook())
	verifier, err := NewPricingVerifier(PricingVerifierDeps{Pricebooks: pricebooks})
	if err != nil {
		t.Fatalf("new pricing verifier: %v", err)
	}
	svc, err := NewCheckoutService(CheckoutServiceDeps{
		Pricing:    verifier,
		Payments:   provider,
		SuccessURL: "https://shop.example.com/checkout/success",
		CancelURL:  "https://shop.example.com/checkout/cancel",
		Clock:      func() time.Time { return designTestClock },
	})
	if err != nil {
		t.Fatalf("new checkout service: %v", err)
	}
	return svc
}

func signedModularPayload(t *testing.T) (DesignPayload, PricingResult) {
	t.Helper()
	payload := modularPayload()
	payload.DesignID = "dsg_checkout"
	pricing := PriceDesign(payload, designTestPricebook().Lookup(), PriceOptions{})
	if !pricing.Valid {
		t.Fatalf("fixture payload should price: %v", pricing.Errors)
	}
	return payload, pricing
}

func TestCheckoutServiceStartDesignCheckout(t *testing.T) {
	provider := &fakePaymentProvider{}
	svc := newTestCheckoutService(t, provider)
	payload, pricing := signedModularPayload(t)

	session, err := svc.StartDesignCheckout(context.Background(), StartDesignCheckoutCommand{
		Payload:                payload,
		ClientSignature:        pricing.PricingSignature,
		ClientPricebookVersion: pricing.PricebookVersion,
		Locale:                 "en-US",
	})
	if err != nil {
		t.Fatalf("start checkout: %v", err)
	}
	if session.Session.ID != "cs_test" || session.DesignID != "dsg_checkout" {
		t.Fatalf("unexpected session %+v", session)
	}
	if session.AmountMinor != 23425 {
		t.Fatalf("expected 23425 minor units, got %d", session.AmountMinor)
	}

	wantItems := []payments.CheckoutLineItem{
		{Name: "Modular base", Key: "BASE-M", Quantity: 1, UnitAmount: 12000, Currency: "USD"},
		{Name: "Modular top", Key: "TOP-M", Quantity: 2, UnitAmount: 4550, Currency: "USD"},
		{Name: "Engraving", Key: "engraving", Quantity: 1, UnitAmount: 1500, Currency: "USD"},
		{Name: "Gift box", Key: "gift-box", Quantity: 1, UnitAmount: 825, Currency: "USD"},
	}
	if diff := cmp.Diff(wantItems, provider.req.Items); diff != "" {
		t.Fatalf("line items mismatch (-want +got):\n%s", diff)
	}
	wantMeta := map[string]string{
		"designId":         "dsg_checkout",
		"pricebookVersion": "2026.10.0",
		"pricingSignature": pricing.PricingSignature,
	}
	if diff := cmp.Diff(wantMeta, provider.req.Metadata); diff != "" {
		t.Fatalf("metadata mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckoutServiceRejectsUnverifiedPricing(t *testing.T) {
	_, pricing := signedModularPayload(t)
	tests := []struct {
		name      string
		signature string
		version   string
		want      VerificationErrorCode
	}{
		{name: "stale pricebook", signature: pricing.PricingSignature, version: "2026.09.0", want: VerificationPricebookVersionMismatch},
		{name: "tampered signature", signature: "deadbeef", version: pricing.PricebookVersion, want: VerificationSignatureMismatch},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			provider := &fakePaymentProvider{}
			svc := newTestCheckoutService(t, provider)
			payload, _ := signedModularPayload(t)
			_, err := svc.StartDesignCheckout(context.Background(), StartDesignCheckoutCommand{
				Payload:                payload,
				ClientSignature:        tc.signature,
				ClientPricebookVersion: tc.version,
			})
			var verr *PricingVerificationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *PricingVerificationError, got %v", err)
			}
			if verr.Result.Error.Code != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, verr.Result.Error.Code)
			}
			if verr.Result.ServerPricing.Total != pricing.Total {
				t.Fatalf("expected server pricing to be attached")
			}
			if provider.calls != 0 {
				t.Fatal("payment provider must not be called when verification fails")
			}
		})
	}
}

func TestCheckoutServiceRequiresFrozenDesign(t *testing.T) {
	provider := &fakePaymentProvider{}
	svc := newTestCheckoutService(t, provider)
	payload, pricing := signedModularPayload(t)
	payload.DesignID = ""
	_, err := svc.StartDesignCheckout(context.Background(), StartDesignCheckoutCommand{
		Payload:                payload,
		ClientSignature:        pricing.PricingSignature,
		ClientPricebookVersion: pricing.PricebookVersion,
	})
	if !errors.Is(err, ErrCheckoutInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestCheckoutServiceWrapsProviderFailure(t *testing.T) {
	provider := &fakePaymentProvider{err: errors.New("card network down")}
	svc := newTestCheckoutService(t, provider)
	payload, pricing := signedModularPayload(t)
	_, err := svc.StartDesignCheckout(context.Background(), StartDesignCheckoutCommand{
		Payload:                payload,
		ClientSignature:        pricing.PricingSignature,
		ClientPricebookVersion: pricing.PricebookVersion,
	})
	if !errors.Is(err, ErrCheckoutPaymentFailed) {
		t.Fatalf("expected payment failed, got %v", err)
	}
}
