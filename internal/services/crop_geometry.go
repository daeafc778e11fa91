package services

import (
	"context"
	"math"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/hanko-field/configurator/internal/platform/numeric"
)

const (
	// MinZoom is the smallest user zoom; 1 means plain cover-fit.
	MinZoom = 1.0
	// MaxZoom is the largest user zoom on top of cover-fit.
	MaxZoom = 2.5
	// maxInputScale caps caller-supplied zoom before any product is formed so
	// that effective scales and resized sizes stay finite.
	maxInputScale = 100.0

	identityTransform = "none"
	centerOrigin      = "center center"

	geometryMetricNamespace = "github.com/hanko-field/configurator/internal/services/crop"
)

// CropGeometryEngine maps zoom/pan gestures to preview transforms and raster
// extraction rectangles. Invalid input never fails: it degrades to an identity
// result, is logged, and is counted.
type CropGeometryEngine struct {
	logger    func(context.Context, string, map[string]any)
	fallbacks metric.Int64Counter
}

type CropGeometryEngineDeps struct {
	Logger func(context.Context, string, map[string]any)
	Meter  metric.Meter
}

// TransformParams describes the live preview: an image of ImgW×ImgH shown in a
// FrameW×FrameH frame with the user's crop state.
type TransformParams struct {
	ImgW   float64 `json:"imgW"`
	ImgH   float64 `json:"imgH"`
	FrameW float64 `json:"frameW"`
	FrameH float64 `json:"frameH"`
	Scale  float64 `json:"scale"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// ExtractParams describes the raster cut. When FrameW/FrameH are set, X and Y
// are frame pixels measured in a preview of that size and are mapped onto the
// target; otherwise they are already target pixels.
type ExtractParams struct {
	OrigW   float64 `json:"origW"`
	OrigH   float64 `json:"origH"`
	TargetW float64 `json:"targetW"`
	TargetH float64 `json:"targetH"`
	Scale   float64 `json:"scale"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	FrameW  float64 `json:"frameW,omitempty"`
	FrameH  float64 `json:"frameH,omitempty"`
}

// NewCropGeometryEngine builds an engine. The zero deps value is valid.
func NewCropGeometryEngine(deps CropGeometryEngineDeps) *CropGeometryEngine {
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(geometryMetricNamespace)
	}
	counter, err := meter.Int64Counter(
		"crop.geometry.fallbacks",
		metric.WithDescription("Count of crop geometry calls that fell back to an identity result"),
	)
	if err != nil {
		logger(context.Background(), "crop.geometry.metric_unavailable", map[string]any{"error": err.Error()})
	}
	return &CropGeometryEngine{logger: logger, fallbacks: counter}
}

// CoverScale returns the minimal uniform scale making image cover container.
func (e *CropGeometryEngine) CoverScale(ctx context.Context, image, container Size) float64 {
	if !numeric.ValidSize(image.W, image.H) || !numeric.ValidSize(container.W, container.H) {
		e.fallback(ctx, "cover_scale", map[string]any{
			"imageW": image.W, "imageH": image.H,
			"containerW": container.W, "containerH": container.H,
		})
		return 1
	}
	return coverScale(image.W, image.H, container.W, container.H)
}

// ClampCropState projects crop onto the valid range: zoom within
// [MinZoom, MaxZoom] and offsets that never reveal empty frame space.
func (e *CropGeometryEngine) ClampCropState(ctx context.Context, crop CropState, image, container Size) CropState {
	out := sanitizeCropState(crop)
	out.Scale = numeric.Clamp(out.Scale, MinZoom, MaxZoom)

	if !numeric.ValidSize(image.W, image.H) || !numeric.ValidSize(container.W, container.H) {
		e.fallback(ctx, "clamp_crop_state", map[string]any{
			"imageW": image.W, "imageH": image.H,
			"containerW": container.W, "containerH": container.H,
		})
		out.X, out.Y = 0, 0
		return out
	}

	eff := numeric.Mul(coverScale(image.W, image.H, container.W, container.H), out.Scale)
	scaledW := numeric.Mul(image.W, eff)
	scaledH := numeric.Mul(image.H, eff)
	maxX := math.Max(0, (scaledW-container.W)/2)
	maxY := math.Max(0, (scaledH-container.H)/2)
	out.X = positiveZero(numeric.Clamp(out.X, -maxX, maxX))
	out.Y = positiveZero(numeric.Clamp(out.Y, -maxY, maxY))
	return out
}

// CoverTransform returns the preview transform. The crop window sits at
// offset (X, Y) from the image centre in unscaled frame pixels, so the image
// is translated by (-X, -Y) and then scaled about its centre.
//
// The emitted string is always translate(-Xpx, -Ypx) scale(s). Callers
// must apply Transform (or TranslateX/TranslateY) as returned; feeding the raw
// X/Y into their own translate() shifts the image opposite to the window
// ExtractRect cuts.
func (e *CropGeometryEngine) CoverTransform(ctx context.Context, p TransformParams) CoverTransform {
	if !numeric.ValidSize(p.ImgW, p.ImgH) || !numeric.ValidSize(p.FrameW, p.FrameH) {
		e.fallback(ctx, "cover_transform", map[string]any{
			"imgW": p.ImgW, "imgH": p.ImgH, "frameW": p.FrameW, "frameH": p.FrameH,
		})
		return identityCoverTransform()
	}
	crop := sanitizeCropState(CropState{Scale: p.Scale, X: p.X, Y: p.Y})

	base := coverScale(p.ImgW, p.ImgH, p.FrameW, p.FrameH)
	eff := numeric.Mul(base, crop.Scale)
	if !numeric.IsPositiveFinite(eff) {
		e.fallback(ctx, "cover_transform", map[string]any{"scale": p.Scale, "baseScale": base})
		return identityCoverTransform()
	}
	tx := positiveZero(-crop.X)
	ty := positiveZero(-crop.Y)

	return CoverTransform{
		Transform:      "translate(" + formatCSSNumber(tx) + "px, " + formatCSSNumber(ty) + "px) scale(" + formatCSSNumber(eff) + ")",
		Origin:         centerOrigin,
		BaseScale:      base,
		EffectiveScale: eff,
		TranslateX:     tx,
		TranslateY:     ty,
	}
}

// ExtractRect returns the window to cut from the original resized by the
// effective scale. Offsets enter unscaled, mirroring CoverTransform.
func (e *CropGeometryEngine) ExtractRect(ctx context.Context, p ExtractParams) Rectangle {
	origOK := numeric.ValidSize(p.OrigW, p.OrigH)
	targetW := numeric.RoundToInt(p.TargetW)
	targetH := numeric.RoundToInt(p.TargetH)
	targetOK := numeric.ValidSize(p.TargetW, p.TargetH) && targetW >= 1 && targetH >= 1

	if !origOK || !targetOK {
		fields := map[string]any{
			"origW": p.OrigW, "origH": p.OrigH, "targetW": p.TargetW, "targetH": p.TargetH,
		}
		e.fallback(ctx, "extract_rect", fields)
		switch {
		case targetOK:
			return Rectangle{Width: targetW, Height: targetH}
		case origOK:
			return Rectangle{Width: max(1, numeric.RoundToInt(p.OrigW)), Height: max(1, numeric.RoundToInt(p.OrigH))}
		default:
			return Rectangle{Width: 1, Height: 1}
		}
	}

	crop := sanitizeCropState(CropState{Scale: p.Scale, X: p.X, Y: p.Y})
	x, y := crop.X, crop.Y
	if numeric.ValidSize(p.FrameW, p.FrameH) {
		x = numeric.Mul(x, numeric.Div(float64(targetW), p.FrameW, 1))
		y = numeric.Mul(y, numeric.Div(float64(targetH), p.FrameH, 1))
	}

	tw, th := float64(targetW), float64(targetH)
	eff := numeric.Mul(coverScale(p.OrigW, p.OrigH, tw, th), crop.Scale)
	if !numeric.IsPositiveFinite(eff) {
		e.fallback(ctx, "extract_rect", map[string]any{"scale": p.Scale, "origW": p.OrigW, "origH": p.OrigH})
		return Rectangle{Width: targetW, Height: targetH}
	}
	resizedW := max(1, numeric.RoundToInt(numeric.Mul(p.OrigW, eff)))
	resizedH := max(1, numeric.RoundToInt(numeric.Mul(p.OrigH, eff)))

	width := min(targetW, resizedW)
	height := min(targetH, resizedH)
	left := clampOffset(float64(resizedW)/2-tw/2+x, float64(resizedW-width))
	top := clampOffset(float64(resizedH)/2-th/2+y, float64(resizedH-height))

	return Rectangle{
		Left:   numeric.RoundToInt(left),
		Top:    numeric.RoundToInt(top),
		Width:  width,
		Height: height,
	}
}

// ResizedSize reports the dimensions ExtractRect resizes the original to.
func (e *CropGeometryEngine) ResizedSize(p ExtractParams) (int, int, bool) {
	targetW := numeric.RoundToInt(p.TargetW)
	targetH := numeric.RoundToInt(p.TargetH)
	if !numeric.ValidSize(p.OrigW, p.OrigH) || !numeric.ValidSize(p.TargetW, p.TargetH) || targetW < 1 || targetH < 1 {
		return 0, 0, false
	}
	scale := sanitizeCropState(CropState{Scale: p.Scale}).Scale
	eff := numeric.Mul(coverScale(p.OrigW, p.OrigH, float64(targetW), float64(targetH)), scale)
	if !numeric.IsPositiveFinite(eff) {
		return 0, 0, false
	}
	return max(1, numeric.RoundToInt(numeric.Mul(p.OrigW, eff))), max(1, numeric.RoundToInt(numeric.Mul(p.OrigH, eff))), true
}

func (e *CropGeometryEngine) fallback(ctx context.Context, op string, fields map[string]any) {
	fields["operation"] = op
	e.logger(ctx, "crop.geometry.fallback", fields)
	if e.fallbacks != nil {
		e.fallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op)))
	}
}

func coverScale(iw, ih, cw, ch float64) float64 {
	return math.Max(numeric.Div(cw, iw, 1), numeric.Div(ch, ih, 1))
}

// clampOffset bounds an offset to [0, hi] in float64 so that huge or infinite
// values pin to an edge instead of wrapping during the int conversion.
func clampOffset(v, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(v, math.Max(0, hi)))
}

func sanitizeCropState(c CropState) CropState {
	return CropState{
		Scale: math.Min(numeric.PositiveOr(c.Scale, 1), maxInputScale),
		X:     numeric.FiniteOr(c.X, 0),
		Y:     numeric.FiniteOr(c.Y, 0),
	}
}

func identityCoverTransform() CoverTransform {
	return CoverTransform{
		Transform:      identityTransform,
		Origin:         centerOrigin,
		BaseScale:      1,
		EffectiveScale: 1,
	}
}

// positiveZero folds -0 into +0 so that formatted transforms never show "-0".
func positiveZero(v float64) float64 {
	if v == 0 {
		return 0
	}
	return v
}

func formatCSSNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
