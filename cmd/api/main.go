package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hanko-field/configurator/internal/di"
	"github.com/hanko-field/configurator/internal/handlers"
	"github.com/hanko-field/configurator/internal/platform/auth"
	"github.com/hanko-field/configurator/internal/platform/config"
	"github.com/hanko-field/configurator/internal/platform/idempotency"
	"github.com/hanko-field/configurator/internal/platform/observability"
	"github.com/hanko-field/configurator/internal/platform/secrets"
	"github.com/hanko-field/configurator/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("api")

	fetcher, err := newSecretFetcher(ctx, logger)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames()...),
	)
	if err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			logger.Fatal("invalid configuration", zap.Strings("fields", invalid.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	build := buildInfoFromEnv(cfg, startedAt)
	infra, err := buildInfrastructure(ctx, cfg, build, baseLogger)
	if err != nil {
		logger.Fatal("failed to initialise infrastructure", zap.Error(err))
	}

	container, err := di.NewContainer(ctx, cfg, infra)
	if err != nil {
		logger.Fatal("failed to build container", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()

	if err := warmPricebook(ctx, infra.Pricebooks, cfg.Pricing.WarmupTimeout, logger.Named("warmup")); err != nil {
		logger.Warn("pricebook warm-up did not complete; serving with cold cache", zap.Error(err))
	}

	router := handlers.NewRouter(routerOptions(cfg, container, build, logger)...)

	srv := &http.Server{
		Addr:         net.JoinHostPort("", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdownCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("http server starting",
			zap.String("addr", srv.Addr),
			zap.String("environment", cfg.Security.Environment),
			zap.String("pricingSource", cfg.Pricing.Source),
			zap.Bool("checkout", container.Services.Checkout != nil),
			zap.Bool("renderJobs", container.Services.Renders != nil),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdownCtx.Done()
	logger.Info("shutdown signal received")

	ctxTimeout, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctxTimeout); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	} else {
		logger.Info("server stopped")
	}
}

func routerOptions(cfg config.Config, container *di.Container, build services.BuildInfo, logger *zap.Logger) []handlers.Option {
	svc := container.Services
	opts := []handlers.Option{
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.TraceMiddleware(cfg.Firestore.ProjectID),
			observability.RecoveryMiddleware(logger),
			observability.RequestLoggerMiddleware(),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(
			handlers.WithHealthBuildInfo(build),
			handlers.WithHealthService(svc.Health),
		)),
		handlers.WithCropRoutes(handlers.NewCropHandlers(svc.Geometry).Routes),
		handlers.WithPricingRoutes(handlers.NewPricingHandlers(svc.Pricebooks, svc.Pricing).Routes),
	}

	var designOpts []handlers.DesignHandlersOption
	if svc.Renders != nil {
		designOpts = append(designOpts, handlers.WithDesignRenderService(svc.Renders))
	}
	opts = append(opts, handlers.WithDesignRoutes(handlers.NewDesignHandlers(svc.Designs, designOpts...).Routes))

	if cfg.Features.EnableDiagnostics {
		opts = append(opts, handlers.WithDiagnosticsRoutes(handlers.NewDiagnosticsHandlers(svc.Geometry, nil).Routes))
	}
	if svc.Checkout != nil {
		opts = append(opts,
			handlers.WithCheckoutRoutes(handlers.NewCheckoutHandlers(svc.Checkout).Routes),
			handlers.WithCheckoutMiddlewares(idempotency.Middleware(container.Idempotency,
				idempotency.WithHeader(cfg.Idempotency.Header),
				idempotency.WithTTL(cfg.Idempotency.TTL),
			)),
		)
	}

	authLogger := logger.Named("auth")
	hmac := auth.NewHMACVerifier(auth.HMACConfig{
		Secrets:         cfg.Security.HMAC.Secrets,
		SignatureHeader: cfg.Security.HMAC.SignatureHeader,
		TimestampHeader: cfg.Security.HMAC.TimestampHeader,
		ClockSkew:       cfg.Security.HMAC.ClockSkew,
	}, authLogger)
	opts = append(opts,
		handlers.WithWebhookRoutes(handlers.NewPricebookWebhookHandlers(svc.Pricebooks).Routes),
		handlers.WithWebhookMiddlewares(hmac.Require("pricebooks")),
	)

	if svc.Renders != nil {
		keys := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL, nil)
		oidc := auth.NewOIDCVerifier(keys, auth.OIDCConfig{
			Audience:        cfg.Security.OIDC.Audience,
			Issuers:         cfg.Security.OIDC.Issuers,
			ServiceAccounts: cfg.Security.OIDC.ServiceAccounts,
		}, authLogger)
		opts = append(opts,
			handlers.WithInternalRoutes(handlers.NewInternalJobHandlers(svc.Renders).Routes),
			handlers.WithInternalMiddlewares(oidc.Middleware),
		)
	}
	return opts
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger) (*secrets.Fetcher, error) {
	project, err := config.LookupEnv("SECRETS_PROJECT_ID")
	if err != nil {
		return nil, err
	}
	if project == "" {
		if project, err = config.LookupEnv("FIRESTORE_PROJECT_ID"); err != nil {
			return nil, err
		}
	}
	env, err := config.LookupEnv("SECURITY_ENVIRONMENT")
	if err != nil {
		return nil, err
	}
	if env == "" {
		env = "local"
	}
	opts := []secrets.Option{
		secrets.WithProject(project),
		secrets.WithEnvironment(env),
		secrets.WithLogger(logger),
	}
	if path, err := config.LookupEnv("SECRETS_FALLBACK_FILE"); err == nil && path != "" {
		opts = append(opts, secrets.WithFallbackFile(path))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists secret fields that must resolve before startup.
// Local runs are allowed to boot without them.
func requiredSecretNames() []string {
	env, _ := config.LookupEnv("SECURITY_ENVIRONMENT")
	if env == "" || strings.EqualFold(env, "local") {
		return nil
	}
	required := []string{"Security.HMAC.Secrets[pricebooks]"}
	if enabled, _ := config.LookupEnv("FEATURE_CHECKOUT"); isTruthy(enabled) {
		required = append(required, "PSP.StripeAPIKey")
	}
	sort.Strings(required)
	return required
}

func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

func buildInfoFromEnv(cfg config.Config, startedAt time.Time) services.BuildInfo {
	version, _ := config.LookupEnv("BUILD_VERSION")
	if version == "" {
		version = strings.TrimSpace(os.Getenv("K_REVISION"))
	}
	if version == "" {
		version = "dev"
	}
	commit, _ := config.LookupEnv("BUILD_COMMIT_SHA")
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: cfg.Security.Environment,
		StartedAt:   startedAt,
	}
}
