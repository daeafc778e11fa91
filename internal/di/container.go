package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hanko-field/configurator/internal/payments"
	"github.com/hanko-field/configurator/internal/platform/config"
	"github.com/hanko-field/configurator/internal/platform/idempotency"
	"github.com/hanko-field/configurator/internal/platform/observability"
	"github.com/hanko-field/configurator/internal/repositories"
	"github.com/hanko-field/configurator/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Optional
// services stay nil when their feature flag or backing adapter is absent.
type Services struct {
	Pricebooks services.PricebookService
	Pricing    services.PricingService
	Designs    services.DesignService
	Checkout   services.CheckoutService
	Renders    services.CropRenderService
	Health     services.HealthService
	Geometry   *services.CropGeometryEngine
}

// Infrastructure carries the adapters the services are built on. Closers run in
// reverse order when the container is closed.
type Infrastructure struct {
	Pricebooks repositories.PricebookRepository
	Health     repositories.HealthRepository
	Objects    services.RenderObjectStore
	Publisher  services.CropRenderPublisher
	Payments   payments.Provider
	// Idempotency defaults to an in-process store when Redis is not configured.
	Idempotency idempotency.Store
	Build       services.BuildInfo
	Logger      *zap.Logger
	Clock       func() time.Time
	Closers     []func() error
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config      config.Config
	Services    Services
	Idempotency idempotency.Store

	closers []func() error
}

// NewContainer constructs the runtime dependencies from already dialled
// infrastructure. Tests supply in-memory adapters.
func NewContainer(ctx context.Context, cfg config.Config, infra Infrastructure) (*Container, error) {
	if infra.Pricebooks == nil {
		return nil, errors.New("pricebook repository is required")
	}
	if infra.Logger == nil {
		infra.Logger = zap.NewNop()
	}
	if infra.Clock == nil {
		infra.Clock = time.Now
	}
	if infra.Idempotency == nil {
		infra.Idempotency = idempotency.NewMemoryStore()
	}

	svc, err := buildServices(ctx, cfg, infra)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:      cfg,
		Services:    svc,
		Idempotency: infra.Idempotency,
		closers:     append([]func() error(nil), infra.Closers...),
	}, nil
}

// Close releases clients handed over through Infrastructure.Closers.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func buildServices(_ context.Context, cfg config.Config, infra Infrastructure) (Services, error) {
	var svc Services
	events := func(name string) observability.EventLogger {
		return observability.Events(infra.Logger, name)
	}

	pricebookSvc, err := services.NewPricebookService(services.PricebookServiceDeps{
		Repository: infra.Pricebooks,
		Clock:      infra.Clock,
		Logger:     events("pricebooks"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build pricebook service: %w", err)
	}
	svc.Pricebooks = pricebookSvc

	verifier, err := services.NewPricingVerifier(services.PricingVerifierDeps{
		Pricebooks: pricebookSvc,
		Logger:     events("pricing"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build pricing verifier: %w", err)
	}
	svc.Pricing = verifier

	designSvc, err := services.NewDesignService(services.DesignServiceDeps{
		Pricebooks: pricebookSvc,
		Clock:      infra.Clock,
		Logger:     events("designs"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build design service: %w", err)
	}
	svc.Designs = designSvc

	svc.Geometry = services.NewCropGeometryEngine(services.CropGeometryEngineDeps{Logger: events("crop")})

	if cfg.Features.EnableCheckout && infra.Payments != nil {
		checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
			Pricing:    verifier,
			Payments:   infra.Payments,
			SuccessURL: cfg.PSP.SuccessURL,
			CancelURL:  cfg.PSP.CancelURL,
			Clock:      infra.Clock,
			Logger:     events("checkout"),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build checkout service: %w", err)
		}
		svc.Checkout = checkoutSvc
	}

	if cfg.Features.EnableRenderJobs && infra.Publisher != nil && infra.Objects != nil {
		renderSvc, err := services.NewCropRenderService(services.CropRenderServiceDeps{
			Geometry:       svc.Geometry,
			Publisher:      infra.Publisher,
			Objects:        infra.Objects,
			SourcesBucket:  cfg.Storage.SourcesBucket,
			RendersBucket:  cfg.Storage.RendersBucket,
			JPEGQuality:    cfg.Render.JPEGQuality,
			MaxSourceBytes: cfg.Render.MaxSourceBytes,
			Clock:          infra.Clock,
			Logger:         events("renders"),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build crop render service: %w", err)
		}
		svc.Renders = renderSvc
	}

	if infra.Health != nil {
		build := infra.Build
		if build.Environment == "" {
			build.Environment = cfg.Security.Environment
		}
		healthSvc, err := services.NewHealthService(services.HealthServiceDeps{
			HealthRepository: infra.Health,
			Clock:            infra.Clock,
			Build:            build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build health service: %w", err)
		}
		svc.Health = healthSvc
	}

	return svc, nil
}
