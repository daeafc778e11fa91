package handlers

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/hanko-field/configurator/internal/domain"
	"github.com/hanko-field/configurator/internal/repositories/memory"
	"github.com/hanko-field/configurator/internal/services"
)

var handlerTestClock = time.Date(2026, 10, 12, 8, 30, 0, 0, time.UTC)

func testPricebook() services.PricebookSnapshot {
	return services.PricebookSnapshot{
		Version:  "2026.10.0",
		Currency: "USD",
		Products: map[string]services.CatalogProduct{
			"BASE-M": {SKU: "BASE-M", Title: "Modular base", Price: 120, Currency: "USD"},
			"TOP-M":  {SKU: "TOP-M", Title: "Modular top", Price: 45.5, Currency: "USD"},
		},
		Fees: map[string]services.CustomizationFee{
			"engraving": {Key: "engraving", Amount: 15, Currency: "USD", Description: "Engraving"},
		},
		Addons: map[string]services.AddonDelta{
			"gift-box": {Key: "gift-box", Amount: 8.25, Currency: "USD", Description: "Gift box"},
		},
	}
}

func testPayload() services.DesignPayload {
	return services.DesignPayload{
		ProductFamily:  domain.ProductFamilyModular,
		BaseComponents: []services.BaseComponent{{SKU: "BASE-M", Qty: 1}, {SKU: "TOP-M", Qty: 2}},
		Customization:  services.Customization{Enabled: true, FeeKey: "engraving"},
		PremiumAddons:  []services.PremiumAddon{{PricingKey: "gift-box", Qty: 1}},
		Colors:         domain.FourPartColors{Base: "#111111", Top: "#222222", Accent: "#333333", Trim: "#444444"},
	}
}

type testStack struct {
	pricebooks services.PricebookService
	pricing    *services.PricingVerifier
	designs    services.DesignService
}

func newTestStack(t *testing.T) testStack {
	t.Helper()
	pricebooks, err := services.NewPricebookService(services.PricebookServiceDeps{
		Repository: memory.NewPricebookRepository(testPricebook()),
		Clock:      func() time.Time { return handlerTestClock },
	})
	if err != nil {
		t.Fatalf("new pricebook service: %v", err)
	}
	pricing, err := services.NewPricingVerifier(services.PricingVerifierDeps{Pricebooks: pricebooks})
	if err != nil {
		t.Fatalf("new pricing verifier: %v", err)
	}
	designs, err := services.NewDesignService(services.DesignServiceDeps{
		Pricebooks:  pricebooks,
		Clock:       func() time.Time { return handlerTestClock },
		IDGenerator: func() string { return "TEST" },
	})
	if err != nil {
		t.Fatalf("new design service: %v", err)
	}
	return testStack{pricebooks: pricebooks, pricing: pricing, designs: designs}
}

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return bytes.NewReader(data)
}

func decodeResponse(t *testing.T, data []byte, dst any) {
	t.Helper()
	if err := json.Unmarshal(data, dst); err != nil {
		t.Fatalf("failed to decode response %s: %v", data, err)
	}
}
