package money

import (
	"strings"
	"testing"
)

func TestMinorUnits(t *testing.T) {
	tests := []struct {
		amount float64
		code   string
		want   int64
	}{
		{amount: 89, code: "USD", want: 8900},
		{amount: 34.5, code: "usd", want: 3450},
		{amount: 19.25, code: "EUR", want: 1925},
		{amount: 0.285, code: "USD", want: 29},
		{amount: 1200, code: "JPY", want: 1200},
		{amount: 1200.5, code: "JPY", want: 1201},
	}
	for _, tc := range tests {
		got, err := MinorUnits(tc.amount, tc.code)
		if err != nil {
			t.Fatalf("MinorUnits(%v, %s): %v", tc.amount, tc.code, err)
		}
		if got != tc.want {
			t.Errorf("MinorUnits(%v, %s) = %d, want %d", tc.amount, tc.code, got, tc.want)
		}
	}
}

func TestMinorUnitsRejectsInvalidInput(t *testing.T) {
	if _, err := MinorUnits(-1, "USD"); err == nil {
		t.Error("expected error for negative amount")
	}
	if _, err := MinorUnits(1, "DOLLARS"); err == nil {
		t.Error("expected error for invalid currency")
	}
}

func TestParseCurrency(t *testing.T) {
	got, err := ParseCurrency(" usd ")
	if err != nil || got != "USD" {
		t.Fatalf("ParseCurrency = %q, %v", got, err)
	}
	if _, err := ParseCurrency("XX"); err == nil {
		t.Fatal("expected error for short code")
	}
}

func TestFormatIncludesAmount(t *testing.T) {
	if got := Format(12.5, "USD", "en-US"); !strings.Contains(got, "12.5") {
		t.Fatalf("unexpected format %q", got)
	}
	if got := Format(3, "NOPE", "en"); got != "3.00 NOPE" {
		t.Fatalf("unexpected fallback %q", got)
	}
}
