// Package numeric holds the NaN/Infinity guards shared by the geometry and pricing engines.
//
// Every helper here is written so that the Go server produces exactly the same
// numbers as the browser preview: rounding follows Math.round and products are
// kept unfused.
package numeric

import "math"

const (
	// MinDimension and MaxDimension bound image, frame and target sizes in
	// pixels. Sub-pixel or astronomically large sizes would push the cover
	// scale products out of the float64 range.
	MinDimension = 1.0
	MaxDimension = 1 << 20

	// maxRoundable is the largest magnitude RoundToInt converts exactly.
	maxRoundable = 1 << 53
)

// IsFinite reports whether v is neither NaN nor ±Inf.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// IsPositiveFinite reports whether v is finite and strictly greater than zero.
func IsPositiveFinite(v float64) bool {
	return IsFinite(v) && v > 0
}

// FiniteOr returns v when finite, fallback otherwise.
func FiniteOr(v, fallback float64) float64 {
	if IsFinite(v) {
		return v
	}
	return fallback
}

// PositiveOr returns v when positive and finite, fallback otherwise.
func PositiveOr(v, fallback float64) float64 {
	if IsPositiveFinite(v) {
		return v
	}
	return fallback
}

// Clamp bounds v to [lo, hi]. A non-finite v collapses to lo. When lo > hi the
// result is lo.
func Clamp(v, lo, hi float64) float64 {
	if !IsFinite(v) {
		return lo
	}
	if v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}

// ClampInt bounds v to [lo, hi]; when lo > hi the result is lo.
func ClampInt(v, lo, hi int) int {
	if v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}

// RoundHalfUp matches JavaScript Math.round: halves round toward +Inf, so
// -2.5 becomes -2 rather than -3 as math.Round would give.
func RoundHalfUp(v float64) float64 {
	if !IsFinite(v) {
		return 0
	}
	return math.Floor(v + 0.5)
}

// RoundToInt rounds with RoundHalfUp and converts to int, saturating at
// ±2^53 so that out-of-range values never wrap around.
func RoundToInt(v float64) int {
	switch {
	case math.IsInf(v, 1) || v > maxRoundable:
		return maxRoundable
	case math.IsInf(v, -1) || v < -maxRoundable:
		return -maxRoundable
	}
	return int(RoundHalfUp(v))
}

// Mul multiplies a and b without letting the compiler fuse the product into a
// neighbouring addition.
func Mul(a, b float64) float64 {
	return float64(a * b)
}

// Div divides a by b; a zero or non-finite divisor yields fallback.
func Div(a, b, fallback float64) float64 {
	if b == 0 || !IsFinite(b) {
		return fallback
	}
	q := float64(a / b)
	if !IsFinite(q) {
		return fallback
	}
	return q
}

// ValidSize reports whether both dimensions are finite and within
// [MinDimension, MaxDimension].
func ValidSize(w, h float64) bool {
	return validDimension(w) && validDimension(h)
}

func validDimension(v float64) bool {
	return IsFinite(v) && v >= MinDimension && v <= MaxDimension
}
