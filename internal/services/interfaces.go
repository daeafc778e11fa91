package services

import (
	"context"

	domain "github.com/hanko-field/configurator/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Size              = domain.Size
	CropState         = domain.CropState
	LegacyCropState   = domain.LegacyCropState
	Rectangle         = domain.Rectangle
	NormalizedRect    = domain.NormalizedRect
	CoverTransform    = domain.CoverTransform
	DesignPayload     = domain.DesignPayload
	ProductFamily     = domain.ProductFamily
	BaseComponent     = domain.BaseComponent
	Customization     = domain.Customization
	PremiumAddon      = domain.PremiumAddon
	BreakdownLine     = domain.BreakdownLine
	BreakdownLineType = domain.BreakdownLineType
	PricingResult     = domain.PricingResult
	FrozenDesign      = domain.FrozenDesign
	Pricebook         = domain.Pricebook
	PricebookSnapshot = domain.PricebookSnapshot
	CatalogProduct    = domain.CatalogProduct
	CustomizationFee  = domain.CustomizationFee
	AddonDelta        = domain.AddonDelta
	CropRenderJob     = domain.CropRenderJob
	CropRenderResult  = domain.CropRenderResult
	HealthReport      = domain.HealthReport
	DependencyStatus  = domain.DependencyStatus
)

const (
	BreakdownLineBase          = domain.BreakdownLineBase
	BreakdownLineCustomization = domain.BreakdownLineCustomization
	BreakdownLineAddon         = domain.BreakdownLineAddon
)

// PricebookService owns the versioned pricebooks prices are computed from.
type PricebookService interface {
	Current(ctx context.Context) (PricebookSnapshot, error)
	Get(ctx context.Context, version string) (PricebookSnapshot, error)
	ListVersions(ctx context.Context, limit int) ([]string, error)
	Publish(ctx context.Context, cmd PublishPricebookCommand) (PublishPricebookResult, error)
}

// PricingService quotes designs and verifies client-side pricing.
type PricingService interface {
	Quote(ctx context.Context, payload DesignPayload) (PricingResult, error)
	Verify(ctx context.Context, cmd VerifyPricingCommand) (VerificationResult, error)
}

// DesignService freezes and duplicates design payloads.
type DesignService interface {
	FreezeDesign(ctx context.Context, cmd FreezeDesignCommand) (FrozenDesign, error)
	DuplicateDesign(ctx context.Context, cmd DuplicateDesignCommand) (DesignPayload, error)
}

// CheckoutService turns verified design pricing into a PSP checkout session.
type CheckoutService interface {
	StartDesignCheckout(ctx context.Context, cmd StartDesignCheckoutCommand) (DesignCheckoutSession, error)
}

// CropRenderService enqueues and executes print raster extraction.
type CropRenderService interface {
	Enqueue(ctx context.Context, cmd EnqueueCropRenderCommand) (CropRenderJob, error)
	Render(ctx context.Context, job CropRenderJob) (CropRenderResult, error)
}

// HealthService reports dependency health for probes.
type HealthService interface {
	Report(ctx context.Context) (HealthReport, error)
}
