package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v78"
)

type fakeSessions struct {
	params  *stripe.CheckoutSessionParams
	session *stripe.CheckoutSession
	err     error
}

func (f *fakeSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.params = params
	return f.session, f.err
}

func TestStripeProviderCreateCheckoutSession(t *testing.T) {
	sessions := &fakeSessions{session: &stripe.CheckoutSession{
		ID:            "cs_test_1",
		URL:           "https://checkout.stripe.com/c/pay/cs_test_1",
		PaymentIntent: &stripe.PaymentIntent{ID: "pi_1"},
		ExpiresAt:     time.Date(2026, 10, 3, 0, 0, 0, 0, time.UTC).Unix(),
	}}
	provider, err := NewStripeProvider(StripeProviderConfig{Sessions: sessions})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	session, err := provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{
		Currency:       "USD",
		SuccessURL:     "https://shop.example.com/success",
		CancelURL:      "https://shop.example.com/cancel",
		Locale:         "ja_JP",
		IdempotencyKey: "dsg_1:sig",
		Metadata:       map[string]string{"designId": "dsg_1"},
		Items: []CheckoutLineItem{
			{Name: "Modular base", Key: "BASE-M", Quantity: 2, UnitAmount: 12000},
			{Name: "Engraving", Key: "engraving", Quantity: 1, UnitAmount: 1500, Currency: "USD"},
		},
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.ID != "cs_test_1" || session.IntentID != "pi_1" || session.Provider != "stripe" {
		t.Fatalf("unexpected session %+v", session)
	}
	if !session.ExpiresAt.Equal(time.Date(2026, 10, 3, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected expiry %s", session.ExpiresAt)
	}

	params := sessions.params
	if got := len(params.LineItems); got != 2 {
		t.Fatalf("expected 2 line items, got %d", got)
	}
	first := params.LineItems[0]
	if *first.Quantity != 2 || *first.PriceData.UnitAmount != 12000 || *first.PriceData.Currency != "usd" {
		t.Fatalf("unexpected first line item %+v", first.PriceData)
	}
	if first.PriceData.ProductData.Metadata["pricingKey"] != "BASE-M" {
		t.Fatalf("expected pricing key metadata, got %v", first.PriceData.ProductData.Metadata)
	}
	if *params.Locale != "ja-jp" {
		t.Fatalf("unexpected locale %q", *params.Locale)
	}
	if params.Metadata["designId"] != "dsg_1" || params.PaymentIntentData.Metadata["designId"] != "dsg_1" {
		t.Fatalf("expected metadata on session and intent")
	}
	if params.IdempotencyKey == nil || *params.IdempotencyKey != "dsg_1:sig" {
		t.Fatalf("expected idempotency key to be set")
	}
}

func TestStripeProviderRejectsEmptyRequest(t *testing.T) {
	sessions := &fakeSessions{}
	provider, err := NewStripeProvider(StripeProviderConfig{Sessions: sessions})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	_, err = provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{SuccessURL: "a", CancelURL: "b"})
	if !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected invalid session, got %v", err)
	}
	if sessions.params != nil {
		t.Fatal("stripe must not be called for invalid requests")
	}
}

func TestCheckoutSessionRequestTotal(t *testing.T) {
	req := CheckoutSessionRequest{Items: []CheckoutLineItem{
		{UnitAmount: 12000, Quantity: 2},
		{UnitAmount: 1500},
	}}
	if got := req.Total(); got != 25500 {
		t.Fatalf("expected 25500, got %d", got)
	}
}

func TestNewStripeProviderRequiresKey(t *testing.T) {
	if _, err := NewStripeProvider(StripeProviderConfig{}); err == nil {
		t.Fatal("expected error without api key")
	}
}
