package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanko-field/configurator/internal/services"
)

const modularPayloadJSON = `{
  "designId": "dsg_cli",
  "productFamily": "modular",
  "baseComponents": [{"sku": "MOD-BASE", "qty": 1}, {"sku": "MOD-TOP", "qty": 2}],
  "customization": {"enabled": true, "feeKey": "engraving-standard"},
  "premiumAddons": [{"pricingKey": "gift-box", "qty": 1}]
}`

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestParityDefaultSuitePasses(t *testing.T) {
	out, err := runCLI(t, "parity")
	require.NoError(t, err)

	for _, c := range services.DefaultParityCases() {
		assert.Contains(t, out, c.Name)
	}
	assert.Contains(t, out, "4 passed, 0 failed")
	assert.NotContains(t, out, "FAIL")
}

func TestParityCasesFileReportsFailures(t *testing.T) {
	path := writeFile(t, "cases.yaml", `cases:
  - name: square
    imgW: 1000
    imgH: 1000
    frameW: 100
    frameH: 100
    targetW: 500
    targetH: 500
    scale: 1
  - imgW: 100
    imgH: 100
    frameW: 100
    frameH: 50
    targetW: 100
    targetH: 100
    scale: 1
`)
	out, err := runCLI(t, "parity", "--cases", path)
	require.Error(t, err)
	assert.ErrorIs(t, err, errParityFailed)
	assert.Contains(t, out, "square")
	assert.Contains(t, out, "case-2")
	assert.Contains(t, out, "FAIL")
	assert.Contains(t, out, "1 passed, 1 failed")
}

func TestParityCasesFileRejectsUnknownFields(t *testing.T) {
	path := writeFile(t, "cases.yaml", "cases:\n  - name: typo\n    imgWidth: 10\n")
	_, err := runCLI(t, "parity", "--cases", path)
	require.Error(t, err)
	assert.NotErrorIs(t, err, errParityFailed)
}

func TestPricePayloadAgainstFixture(t *testing.T) {
	path := writeFile(t, "design.json", modularPayloadJSON)
	out, err := runCLI(t, "price", "--payload", path)
	require.NoError(t, err)

	var got priceOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.True(t, got.Pricing.Valid)
	assert.Equal(t, 181.25, got.Pricing.Total)
	assert.Equal(t, "2026.10.1", got.Pricing.PricebookVersion)
	assert.NotEmpty(t, got.ServerSignature)
	assert.Equal(t, got.Pricing.PricingSignature, got.ServerSignature)
	assert.NotEmpty(t, got.ClientEchoSignature)
	assert.Contains(t, got.Display, "$")
	assert.Contains(t, got.Display, "181.25")
}

func TestPriceWithCustomPricebook(t *testing.T) {
	payload := writeFile(t, "design.json", `{"productFamily":"modular","baseComponents":[{"sku":"A","qty":3}]}`)
	book := writeFile(t, "book.yaml", "version: \"2027.01.0\"\ncurrency: EUR\nproducts:\n  A:\n    title: Part A\n    price: 2.5\n")

	out, err := runCLI(t, "price", "--payload", payload, "--pricebook", book)
	require.NoError(t, err)

	var got priceOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 7.5, got.Pricing.Total)
	assert.Equal(t, "EUR", got.Pricing.Currency)
	assert.Contains(t, got.Display, "7.5")
}

func TestPriceInvalidPayloadExitsWithError(t *testing.T) {
	path := writeFile(t, "design.json", `{"productFamily":"modular","baseComponents":[{"sku":"GHOST","qty":1}]}`)
	out, err := runCLI(t, "price", "--payload", path)
	require.Error(t, err)
	assert.ErrorIs(t, err, errPricingInvalid)

	var got priceOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.False(t, got.Pricing.Valid)
	assert.Empty(t, got.ClientEchoSignature)
	assert.Empty(t, got.Display)
	assert.NotEmpty(t, got.Pricing.Errors)
}

func TestPriceRequiresPayloadFlag(t *testing.T) {
	_, err := runCLI(t, "price")
	require.Error(t, err)
}
