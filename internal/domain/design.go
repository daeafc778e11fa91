package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ProductFamily enumerates the made-to-order product lines the configurator supports.
type ProductFamily string

const (
	// ProductFamilyModular is the current four-part modular product.
	ProductFamilyModular ProductFamily = "modular"
	// ProductFamilyClassic is the discontinued three-part product still sold from stock designs.
	ProductFamilyClassic ProductFamily = "classic"
	// ProductFamilyBottleHolder is the bottle holder accessory line.
	ProductFamilyBottleHolder ProductFamily = "bottle_holder"
)

// Valid reports whether the family is one of the known product lines.
func (f ProductFamily) Valid() bool {
	switch f {
	case ProductFamilyModular, ProductFamilyClassic, ProductFamilyBottleHolder:
		return true
	}
	return false
}

// ColorSchemeKind tags the ColorScheme variants.
type ColorSchemeKind string

const (
	ColorSchemeFourPart        ColorSchemeKind = "four_part"
	ColorSchemeThreePartLegacy ColorSchemeKind = "three_part_legacy"
	ColorSchemeBottleHolder    ColorSchemeKind = "bottle_holder"
)

// ErrInvalidColorScheme reports a color payload that matches no known variant.
var ErrInvalidColorScheme = errors.New("design: invalid color scheme")

// ColorScheme is a closed sum type; the variants below are the only implementations.
type ColorScheme interface {
	Kind() ColorSchemeKind
	colorScheme()
}

// FourPartColors colours the modular product.
type FourPartColors struct {
	Base   string `json:"base"`
	Top    string `json:"top"`
	Accent string `json:"accent"`
	Trim   string `json:"trim"`
}

// ThreePartLegacyColors colours classic designs saved before the four-part layout.
type ThreePartLegacyColors struct {
	Body   string `json:"body"`
	Lid    string `json:"lid"`
	Accent string `json:"accent"`
}

// BottleHolderColors colours the bottle holder.
type BottleHolderColors struct {
	Holder string `json:"holder"`
	Strap  string `json:"strap"`
}

func (FourPartColors) Kind() ColorSchemeKind        { return ColorSchemeFourPart }
func (ThreePartLegacyColors) Kind() ColorSchemeKind { return ColorSchemeThreePartLegacy }
func (BottleHolderColors) Kind() ColorSchemeKind    { return ColorSchemeBottleHolder }

func (FourPartColors) colorScheme()        {}
func (ThreePartLegacyColors) colorScheme() {}
func (BottleHolderColors) colorScheme()    {}

// SchemeKindForFamily returns the colour layout a product family expects.
func SchemeKindForFamily(f ProductFamily) (ColorSchemeKind, bool) {
	switch f {
	case ProductFamilyModular:
		return ColorSchemeFourPart, true
	case ProductFamilyClassic:
		return ColorSchemeThreePartLegacy, true
	case ProductFamilyBottleHolder:
		return ColorSchemeBottleHolder, true
	}
	return "", false
}

// DecodeColorScheme parses a color payload once at the API boundary. Tagged
// payloads ({"kind": ...}) are decoded directly; untagged payloads from older
// clients are classified by their key set.
func DecodeColorScheme(raw json.RawMessage) (ColorScheme, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidColorScheme, err)
	}

	kind := ColorSchemeKind("")
	if tag, ok := keys["kind"]; ok {
		var s string
		if err := json.Unmarshal(tag, &s); err != nil {
			return nil, fmt.Errorf("%w: kind must be a string", ErrInvalidColorScheme)
		}
		kind = ColorSchemeKind(strings.TrimSpace(s))
	} else {
		kind = inferLegacyColorKind(keys)
	}

	var (
		scheme ColorScheme
		err    error
	)
	switch kind {
	case ColorSchemeFourPart:
		var c FourPartColors
		err = json.Unmarshal(raw, &c)
		scheme = c
	case ColorSchemeThreePartLegacy:
		var c ThreePartLegacyColors
		err = json.Unmarshal(raw, &c)
		scheme = c
	case ColorSchemeBottleHolder:
		var c BottleHolderColors
		err = json.Unmarshal(raw, &c)
		scheme = c
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidColorScheme, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidColorScheme, err)
	}
	return scheme, nil
}

func inferLegacyColorKind(keys map[string]json.RawMessage) ColorSchemeKind {
	has := func(k string) bool {
		_, ok := keys[k]
		return ok
	}
	switch {
	case has("holder") || has("strap"):
		return ColorSchemeBottleHolder
	case has("trim") || has("top") || has("base"):
		return ColorSchemeFourPart
	case has("body") || has("lid"):
		return ColorSchemeThreePartLegacy
	}
	return ""
}

// EncodeColorScheme writes the tagged representation of a colour scheme.
func EncodeColorScheme(scheme ColorScheme) (json.RawMessage, error) {
	if scheme == nil {
		return json.RawMessage("null"), nil
	}
	body, err := json.Marshal(scheme)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	fields["kind"] = string(scheme.Kind())
	return json.Marshal(fields)
}

// BaseComponent references a catalog SKU.
type BaseComponent struct {
	SKU string `json:"sku"`
	Qty int    `json:"qty"`
}

// Customization toggles the personalisation fee.
type Customization struct {
	Enabled bool   `json:"enabled"`
	FeeKey  string `json:"feeKey"`
}

// PremiumAddon references an addon pricing key.
type PremiumAddon struct {
	PricingKey string `json:"pricingKey"`
	Qty        int    `json:"qty"`
}

// DesignPayload is the frozen configuration a customer adds to the cart.
// Only the SKU/key/qty fields feed the price; the rest is carried for
// rendering and fulfilment.
type DesignPayload struct {
	DesignID       string          `json:"designId"`
	ProductFamily  ProductFamily   `json:"productFamily"`
	BaseComponents []BaseComponent `json:"baseComponents"`
	Customization  Customization   `json:"customization"`
	PremiumAddons  []PremiumAddon  `json:"premiumAddons"`
	Colors         ColorScheme     `json:"-"`
	Crop           *CropState      `json:"crop,omitempty"`
	PreviewURL     string          `json:"previewUrl,omitempty"`
}

type designPayloadWire struct {
	DesignID       string          `json:"designId"`
	ProductFamily  ProductFamily   `json:"productFamily"`
	BaseComponents []BaseComponent `json:"baseComponents"`
	Customization  Customization   `json:"customization"`
	PremiumAddons  []PremiumAddon  `json:"premiumAddons"`
	Colors         json.RawMessage `json:"colors,omitempty"`
	Crop           *CropState      `json:"crop,omitempty"`
	PreviewURL     string          `json:"previewUrl,omitempty"`
}

// UnmarshalJSON decodes the payload and classifies the colour scheme.
func (p *DesignPayload) UnmarshalJSON(data []byte) error {
	var wire designPayloadWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	colors, err := DecodeColorScheme(wire.Colors)
	if err != nil {
		return err
	}
	*p = DesignPayload{
		DesignID:       wire.DesignID,
		ProductFamily:  wire.ProductFamily,
		BaseComponents: wire.BaseComponents,
		Customization:  wire.Customization,
		PremiumAddons:  wire.PremiumAddons,
		Colors:         colors,
		Crop:           wire.Crop,
		PreviewURL:     wire.PreviewURL,
	}
	return nil
}

// MarshalJSON writes the payload with a tagged colour scheme.
func (p DesignPayload) MarshalJSON() ([]byte, error) {
	wire := designPayloadWire{
		DesignID:       p.DesignID,
		ProductFamily:  p.ProductFamily,
		BaseComponents: p.BaseComponents,
		Customization:  p.Customization,
		PremiumAddons:  p.PremiumAddons,
		Crop:           p.Crop,
		PreviewURL:     p.PreviewURL,
	}
	if p.Colors != nil {
		colors, err := EncodeColorScheme(p.Colors)
		if err != nil {
			return nil, err
		}
		wire.Colors = colors
	}
	return json.Marshal(wire)
}

// Clone returns a deep copy so that frozen payloads are never shared mutably.
func (p DesignPayload) Clone() DesignPayload {
	out := p
	if p.BaseComponents != nil {
		out.BaseComponents = append([]BaseComponent(nil), p.BaseComponents...)
	}
	if p.PremiumAddons != nil {
		out.PremiumAddons = append([]PremiumAddon(nil), p.PremiumAddons...)
	}
	if p.Crop != nil {
		crop := *p.Crop
		out.Crop = &crop
	}
	return out
}

// BreakdownLineType categorises pricing breakdown lines.
type BreakdownLineType string

const (
	BreakdownLineBase          BreakdownLineType = "base"
	BreakdownLineCustomization BreakdownLineType = "customization"
	BreakdownLineAddon         BreakdownLineType = "addon"
)

// BreakdownLine is one audited pricing line.
type BreakdownLine struct {
	Type      BreakdownLineType `json:"type"`
	Key       string            `json:"key"`
	Label     string            `json:"label,omitempty"`
	Qty       int               `json:"qty"`
	UnitPrice float64           `json:"unitPrice"`
	LineTotal float64           `json:"lineTotal"`
}

// PricingResult is the outcome of pricing a design payload.
type PricingResult struct {
	BaseTotal        float64         `json:"baseTotal"`
	CustomizationFee float64         `json:"customizationFee"`
	AddonsTotal      float64         `json:"addonsTotal"`
	Total            float64         `json:"total"`
	Currency         string          `json:"currency"`
	BreakdownLines   []BreakdownLine `json:"breakdownLines"`
	PricebookVersion string          `json:"pricebookVersion"`
	PricingSignature string          `json:"pricingSignature"`
	Errors           []string        `json:"errors"`
	Valid            bool            `json:"valid"`
}

// FrozenDesign is a payload that has been priced and signed and must not change.
type FrozenDesign struct {
	Payload  DesignPayload `json:"payload"`
	Pricing  PricingResult `json:"pricing"`
	FrozenAt time.Time     `json:"frozenAt"`
}
