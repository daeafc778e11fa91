package services

import (
	"fmt"
	"strings"
)

// PriceOptions tunes PriceDesign.
type PriceOptions struct {
	// Currency, when set, must match the pricebook currency.
	Currency string
	// SkipSignature leaves PricingSignature empty even for valid results.
	SkipSignature bool
}

// PriceDesign prices payload against book. Every unresolved reference is
// reported in Errors and its line is skipped; a result with any error is
// invalid and unsigned. Amounts are summed without rounding.
func PriceDesign(payload DesignPayload, book Pricebook, opts PriceOptions) PricingResult {
	result := PricingResult{
		BreakdownLines: make([]BreakdownLine, 0, len(payload.BaseComponents)+len(payload.PremiumAddons)+1),
		Errors:         make([]string, 0),
	}
	if book == nil {
		result.Errors = append(result.Errors, "pricebook unavailable")
		return result
	}
	currency := strings.ToUpper(strings.TrimSpace(book.Currency()))
	result.Currency = currency
	result.PricebookVersion = book.Version()

	if want := strings.ToUpper(strings.TrimSpace(opts.Currency)); want != "" && want != currency {
		result.Errors = append(result.Errors, fmt.Sprintf("currency %s does not match pricebook currency %s", want, currency))
	}
	if len(payload.BaseComponents) == 0 {
		result.Errors = append(result.Errors, "baseComponents must contain at least one component")
	}

	sameCurrency := func(c string) bool {
		c = strings.TrimSpace(c)
		return c == "" || strings.EqualFold(c, currency)
	}

	for i, component := range payload.BaseComponents {
		sku := strings.TrimSpace(component.SKU)
		switch {
		case sku == "":
			result.Errors = append(result.Errors, fmt.Sprintf("baseComponents[%d]: sku is required", i))
			continue
		case component.Qty < 1:
			result.Errors = append(result.Errors, fmt.Sprintf("baseComponents[%d]: qty for sku %q must be at least 1", i, sku))
			continue
		}
		product, ok := book.Product(sku)
		if !ok {
			result.Errors = append(result.Errors, fmt.Sprintf("unknown sku %q", sku))
			continue
		}
		if !sameCurrency(product.Currency) {
			result.Errors = append(result.Errors, fmt.Sprintf("sku %q is priced in %s, expected %s", sku, product.Currency, currency))
			continue
		}
		line := BreakdownLine{
			Type:      BreakdownLineBase,
			Key:       sku,
			Label:     product.Title,
			Qty:       component.Qty,
			UnitPrice: product.Price,
			LineTotal: float64(product.Price * float64(component.Qty)),
		}
		result.BaseTotal += line.LineTotal
		result.BreakdownLines = append(result.BreakdownLines, line)
	}

	if payload.Customization.Enabled {
		feeKey := strings.TrimSpace(payload.Customization.FeeKey)
		if feeKey == "" {
			result.Errors = append(result.Errors, "customization.feeKey is required when customization is enabled")
		} else if fee, ok := book.CustomizationFee(feeKey); !ok {
			result.Errors = append(result.Errors, fmt.Sprintf("unknown customization feeKey %q", feeKey))
		} else if !sameCurrency(fee.Currency) {
			result.Errors = append(result.Errors, fmt.Sprintf("customization feeKey %q is priced in %s, expected %s", feeKey, fee.Currency, currency))
		} else {
			line := BreakdownLine{
				Type:      BreakdownLineCustomization,
				Key:       feeKey,
				Label:     fee.Description,
				Qty:       1,
				UnitPrice: fee.Amount,
				LineTotal: fee.Amount,
			}
			result.CustomizationFee = line.LineTotal
			result.BreakdownLines = append(result.BreakdownLines, line)
		}
	}

	for i, addon := range payload.PremiumAddons {
		key := strings.TrimSpace(addon.PricingKey)
		switch {
		case key == "":
			result.Errors = append(result.Errors, fmt.Sprintf("premiumAddons[%d]: pricingKey is required", i))
			continue
		case addon.Qty < 1:
			result.Errors = append(result.Errors, fmt.Sprintf("premiumAddons[%d]: qty for pricingKey %q must be at least 1", i, key))
			continue
		}
		delta, ok := book.AddonDelta(key)
		if !ok {
			result.Errors = append(result.Errors, fmt.Sprintf("unknown addon pricingKey %q", key))
			continue
		}
		if !sameCurrency(delta.Currency) {
			result.Errors = append(result.Errors, fmt.Sprintf("addon pricingKey %q is priced in %s, expected %s", key, delta.Currency, currency))
			continue
		}
		line := BreakdownLine{
			Type:      BreakdownLineAddon,
			Key:       key,
			Label:     delta.Description,
			Qty:       addon.Qty,
			UnitPrice: delta.Amount,
			LineTotal: float64(delta.Amount * float64(addon.Qty)),
		}
		result.AddonsTotal += line.LineTotal
		result.BreakdownLines = append(result.BreakdownLines, line)
	}

	result.Total = result.BaseTotal + result.CustomizationFee + result.AddonsTotal
	result.Valid = len(result.Errors) == 0
	if result.Valid && !opts.SkipSignature {
		result.PricingSignature = GeneratePricingSignature(payload, result)
	}
	return result
}
