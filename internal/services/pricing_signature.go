package services

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"hash/fnv"
	"sort"
	"strings"
)

// Field order of these structs is the canonical key order.
type canonicalComponent struct {
	SKU string `json:"sku"`
	Qty int    `json:"qty"`
}

type canonicalCustomization struct {
	FeeKey string `json:"feeKey"`
}

type canonicalAddon struct {
	PricingKey string `json:"pricingKey"`
	Qty        int    `json:"qty"`
}

type canonicalPayload struct {
	BaseComponents []canonicalComponent    `json:"baseComponents"`
	Customization  *canonicalCustomization `json:"customization"`
	PremiumAddons  []canonicalAddon        `json:"premiumAddons"`
}

type canonicalTotals struct {
	BaseTotal        float64 `json:"baseTotal"`
	CustomizationFee float64 `json:"customizationFee"`
	AddonsTotal      float64 `json:"addonsTotal"`
	Total            float64 `json:"total"`
}

type canonicalDocument struct {
	Payload          canonicalPayload `json:"payload"`
	Totals           canonicalTotals  `json:"totals"`
	Currency         string           `json:"currency"`
	PricebookVersion string           `json:"pricebookVersion"`
}

// CanonicalPricingString renders the price-relevant parts of payload and the
// result totals as compact JSON. Array order, colours, crop state and preview
// URLs do not affect it.
func CanonicalPricingString(payload DesignPayload, result PricingResult) string {
	doc := canonicalDocument{
		Payload: canonicalPayload{
			BaseComponents: make([]canonicalComponent, 0, len(payload.BaseComponents)),
			PremiumAddons:  make([]canonicalAddon, 0, len(payload.PremiumAddons)),
		},
		Totals: canonicalTotals{
			BaseTotal:        result.BaseTotal,
			CustomizationFee: result.CustomizationFee,
			AddonsTotal:      result.AddonsTotal,
			Total:            result.Total,
		},
		Currency:         result.Currency,
		PricebookVersion: result.PricebookVersion,
	}
	for _, c := range payload.BaseComponents {
		doc.Payload.BaseComponents = append(doc.Payload.BaseComponents, canonicalComponent{SKU: strings.TrimSpace(c.SKU), Qty: c.Qty})
	}
	sort.SliceStable(doc.Payload.BaseComponents, func(i, j int) bool {
		a, b := doc.Payload.BaseComponents[i], doc.Payload.BaseComponents[j]
		if a.SKU != b.SKU {
			return a.SKU < b.SKU
		}
		return a.Qty < b.Qty
	})
	for _, a := range payload.PremiumAddons {
		doc.Payload.PremiumAddons = append(doc.Payload.PremiumAddons, canonicalAddon{PricingKey: strings.TrimSpace(a.PricingKey), Qty: a.Qty})
	}
	sort.SliceStable(doc.Payload.PremiumAddons, func(i, j int) bool {
		a, b := doc.Payload.PremiumAddons[i], doc.Payload.PremiumAddons[j]
		if a.PricingKey != b.PricingKey {
			return a.PricingKey < b.PricingKey
		}
		return a.Qty < b.Qty
	})
	if payload.Customization.Enabled {
		doc.Payload.Customization = &canonicalCustomization{FeeKey: strings.TrimSpace(payload.Customization.FeeKey)}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	// Browsers do not escape <, > or & in JSON.stringify.
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		// Only NaN/Inf totals can fail to encode; those never come from a valid pricing run.
		return ""
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// GeneratePricingSignature is the authoritative SHA-256 signature of the
// canonical pricing string, hex encoded.
func GeneratePricingSignature(payload DesignPayload, result PricingResult) string {
	canonical := CanonicalPricingString(payload, result)
	if canonical == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// ClientEchoSignature is the FNV-1a 32-bit digest browsers compute for
// display. It only lets the UI notice that its copy drifted; the server never
// accepts it as proof of a price.
func ClientEchoSignature(payload DesignPayload, result PricingResult) string {
	canonical := CanonicalPricingString(payload, result)
	if canonical == "" {
		return ""
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(canonical))
	return hex.EncodeToString(h.Sum(nil))
}
