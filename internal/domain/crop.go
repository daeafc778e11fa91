package domain

// Size is a width/height pair in pixels. Values are float64 so that invalid
// client input (NaN, Inf, negatives) can be detected instead of truncated.
type Size struct {
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// CropState is the user's zoom/pan gesture over an image shown in a frame.
// Scale multiplies the cover-fit base scale; X and Y are unscaled frame-pixel
// offsets of the crop window from the image centre.
type CropState struct {
	Scale float64 `json:"scale"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// DefaultCropState is the state assigned on first image load.
func DefaultCropState() CropState {
	return CropState{Scale: 1, X: 0, Y: 0}
}

// LegacyCropState stores offsets as fractions of the container size. Older
// saved designs use this shape.
type LegacyCropState struct {
	Scale float64 `json:"scale"`
	NX    float64 `json:"nx"`
	NY    float64 `json:"ny"`
}

// Resolve converts the normalized offsets into pixel offsets for the given container.
func (l LegacyCropState) Resolve(container Size) CropState {
	return CropState{
		Scale: l.Scale,
		X:     float64(l.NX * container.W),
		Y:     float64(l.NY * container.H),
	}
}

// Rectangle is an integer region in raster pixel space.
type Rectangle struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// NormalizedRect expresses a rectangle as fractions of the resized image.
type NormalizedRect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// CoverTransform is the CSS-equivalent visual transform for the live preview.
type CoverTransform struct {
	Transform      string  `json:"transform"`
	Origin         string  `json:"transformOrigin"`
	BaseScale      float64 `json:"baseScale"`
	EffectiveScale float64 `json:"effectiveScale"`
	TranslateX     float64 `json:"translateX"`
	TranslateY     float64 `json:"translateY"`
}
