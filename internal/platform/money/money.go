// Package money converts decimal prices to PSP minor units and display text.
package money

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/hanko-field/configurator/internal/platform/numeric"
)

// ParseCurrency validates an ISO 4217 code and returns it upper-cased.
func ParseCurrency(code string) (string, error) {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return "", fmt.Errorf("money: invalid currency %q: %w", code, err)
	}
	return unit.String(), nil
}

// Scale is the number of minor-unit digits for the currency (2 for USD, 0 for JPY).
func Scale(code string) (int, error) {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return 0, fmt.Errorf("money: invalid currency %q: %w", code, err)
	}
	scale, _ := currency.Standard.Rounding(unit)
	return scale, nil
}

// MinorUnits converts a decimal amount to integer minor units, rounding half
// up at the currency's scale.
func MinorUnits(amount float64, code string) (int64, error) {
	if !numeric.IsFinite(amount) || amount < 0 {
		return 0, fmt.Errorf("money: amount %v is not a non-negative finite number", amount)
	}
	scale, err := Scale(code)
	if err != nil {
		return 0, err
	}
	factor := math.Pow10(scale)
	// Pre-round at 6 digits so 34.5*100 style products do not land on x.4999.
	scaled := math.Round(float64(amount*factor)*1e6) / 1e6
	return int64(numeric.RoundHalfUp(scaled)), nil
}

// Format renders amount with the currency symbol for the given BCP 47 locale;
// an unparseable locale falls back to English.
func Format(amount float64, code, locale string) string {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return fmt.Sprintf("%.2f %s", amount, code)
	}
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return message.NewPrinter(tag).Sprint(currency.Symbol(unit.Amount(amount)))
}
