package services

import (
	"context"
	"math"

	"github.com/hanko-field/configurator/internal/platform/numeric"
)

// ParityTolerancePx is the largest per-axis disagreement, after rounding,
// allowed between the preview transform and the raster rectangle.
const ParityTolerancePx = 1

// ParityCase is one preview/raster pairing. Frame and target must share an
// aspect ratio; offsets are frame pixels.
type ParityCase struct {
	Name    string  `json:"name" yaml:"name"`
	ImgW    float64 `json:"imgW" yaml:"imgW"`
	ImgH    float64 `json:"imgH" yaml:"imgH"`
	FrameW  float64 `json:"frameW" yaml:"frameW"`
	FrameH  float64 `json:"frameH" yaml:"frameH"`
	TargetW float64 `json:"targetW" yaml:"targetW"`
	TargetH float64 `json:"targetH" yaml:"targetH"`
	Scale   float64 `json:"scale" yaml:"scale"`
	X       float64 `json:"x" yaml:"x"`
	Y       float64 `json:"y" yaml:"y"`
}

// ParityReport compares the rectangle implied by the preview transform with
// the one computed for the raster.
type ParityReport struct {
	Case              ParityCase     `json:"case"`
	Transform         CoverTransform `json:"transform"`
	Extract           Rectangle      `json:"extract"`
	FromTransform     Rectangle      `json:"fromTransform"`
	ExtractNorm       NormalizedRect `json:"extractNormalized"`
	FromTransformNorm NormalizedRect `json:"fromTransformNormalized"`
	DeltaX            int            `json:"deltaX"`
	DeltaY            int            `json:"deltaY"`
	Pass              bool           `json:"pass"`
	Reason            string         `json:"reason,omitempty"`
}

// ParitySuiteReport aggregates a run over several cases.
type ParitySuiteReport struct {
	Reports []ParityReport `json:"reports"`
	Passed  int            `json:"passed"`
	Failed  int            `json:"failed"`
}

// DefaultParityCases is the built-in regression suite.
func DefaultParityCases() []ParityCase {
	return []ParityCase{
		{Name: "portrait-target-zoomed", ImgW: 1920, ImgH: 1440, FrameW: 900, FrameH: 1125, TargetW: 900, TargetH: 1125, Scale: 1.9, X: -49, Y: -51},
		{Name: "portrait-preview-to-print", ImgW: 1920, ImgH: 1440, FrameW: 360, FrameH: 450, TargetW: 900, TargetH: 1125, Scale: 1.9, X: -19.6, Y: -20.4},
		{Name: "baseline", ImgW: 1920, ImgH: 1440, FrameW: 400, FrameH: 400, TargetW: 1200, TargetH: 1200, Scale: 1, X: 0, Y: 0},
		{Name: "landscape-max-zoom", ImgW: 1080, ImgH: 1920, FrameW: 320, FrameH: 180, TargetW: 1600, TargetH: 900, Scale: 2.5, X: 37.5, Y: -12.25},
	}
}

// CheckParity computes the preview transform and the raster rectangle
// independently and checks that they select the same region.
func (e *CropGeometryEngine) CheckParity(ctx context.Context, c ParityCase) ParityReport {
	report := ParityReport{Case: c}
	report.Transform = e.CoverTransform(ctx, TransformParams{
		ImgW: c.ImgW, ImgH: c.ImgH, FrameW: c.FrameW, FrameH: c.FrameH,
		Scale: c.Scale, X: c.X, Y: c.Y,
	})
	extractParams := ExtractParams{
		OrigW: c.ImgW, OrigH: c.ImgH, TargetW: c.TargetW, TargetH: c.TargetH,
		Scale: c.Scale, X: c.X, Y: c.Y, FrameW: c.FrameW, FrameH: c.FrameH,
	}
	report.Extract = e.ExtractRect(ctx, extractParams)

	resizedW, resizedH, ok := e.ResizedSize(extractParams)
	if !ok || !numeric.ValidSize(c.FrameW, c.FrameH) || report.Transform.Transform == identityTransform {
		report.Reason = "invalid dimensions"
		return report
	}
	if !sameAspect(c.FrameW, c.FrameH, c.TargetW, c.TargetH) {
		report.Reason = "frame and target aspect ratios differ"
		return report
	}

	// Visible window in the scaled preview, relative to the image's top-left.
	dispW := float64(c.ImgW * report.Transform.EffectiveScale)
	dispH := float64(c.ImgH * report.Transform.EffectiveScale)
	visLeft := dispW/2 - c.FrameW/2 - report.Transform.TranslateX
	visTop := dispH/2 - c.FrameH/2 - report.Transform.TranslateY

	report.FromTransformNorm = NormalizedRect{
		Left:   visLeft / dispW,
		Top:    visTop / dispH,
		Width:  c.FrameW / dispW,
		Height: c.FrameH / dispH,
	}
	rw, rh := float64(resizedW), float64(resizedH)
	width, height := report.Extract.Width, report.Extract.Height
	report.FromTransform = Rectangle{
		Left:   numeric.ClampInt(numeric.RoundToInt(float64(report.FromTransformNorm.Left*rw)), 0, resizedW-width),
		Top:    numeric.ClampInt(numeric.RoundToInt(float64(report.FromTransformNorm.Top*rh)), 0, resizedH-height),
		Width:  width,
		Height: height,
	}
	report.ExtractNorm = NormalizedRect{
		Left:   float64(report.Extract.Left) / rw,
		Top:    float64(report.Extract.Top) / rh,
		Width:  float64(report.Extract.Width) / rw,
		Height: float64(report.Extract.Height) / rh,
	}

	report.DeltaX = absInt(report.FromTransform.Left - report.Extract.Left)
	report.DeltaY = absInt(report.FromTransform.Top - report.Extract.Top)
	report.Pass = report.DeltaX <= ParityTolerancePx && report.DeltaY <= ParityTolerancePx
	if !report.Pass {
		report.Reason = "rectangles disagree beyond tolerance"
		e.logger(ctx, "crop.parity.failed", map[string]any{
			"case":   c.Name,
			"deltaX": report.DeltaX,
			"deltaY": report.DeltaY,
		})
	}
	return report
}

// RunParitySuite checks every case and counts the outcomes.
func (e *CropGeometryEngine) RunParitySuite(ctx context.Context, cases []ParityCase) ParitySuiteReport {
	suite := ParitySuiteReport{Reports: make([]ParityReport, 0, len(cases))}
	for _, c := range cases {
		r := e.CheckParity(ctx, c)
		if r.Pass {
			suite.Passed++
		} else {
			suite.Failed++
		}
		suite.Reports = append(suite.Reports, r)
	}
	return suite
}

func sameAspect(aw, ah, bw, bh float64) bool {
	// One pixel of slack on the target side absorbs integer target sizes.
	return math.Abs(aw/ah-bw/bh) <= 1/math.Min(bw, bh)
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
