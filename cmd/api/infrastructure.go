package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/hanko-field/configurator/internal/di"
	"github.com/hanko-field/configurator/internal/domain"
	"github.com/hanko-field/configurator/internal/payments"
	"github.com/hanko-field/configurator/internal/platform/config"
	pfirestore "github.com/hanko-field/configurator/internal/platform/firestore"
	"github.com/hanko-field/configurator/internal/platform/jobs"
	"github.com/hanko-field/configurator/internal/platform/observability"
	platformstorage "github.com/hanko-field/configurator/internal/platform/storage"
	"github.com/hanko-field/configurator/internal/repositories"
	firestoreRepo "github.com/hanko-field/configurator/internal/repositories/firestore"
	"github.com/hanko-field/configurator/internal/repositories/memory"
	redisrepo "github.com/hanko-field/configurator/internal/repositories/redis"
	"github.com/hanko-field/configurator/internal/services"
)

const (
	warmupInitialInterval = 250 * time.Millisecond
	probeTimeout          = 1500 * time.Millisecond
)

// buildInfrastructure dials the backing services selected by cfg. Every client
// it opens is registered as a closer on the returned Infrastructure; on error
// the clients opened so far are closed.
func buildInfrastructure(ctx context.Context, cfg config.Config, build services.BuildInfo, logger *zap.Logger) (infra di.Infrastructure, err error) {
	infra = di.Infrastructure{Build: build, Logger: logger}
	defer func() {
		if err == nil {
			return
		}
		for i := len(infra.Closers) - 1; i >= 0; i-- {
			_ = infra.Closers[i]()
		}
	}()

	var checks []repositories.DependencyCheck

	var store repositories.PricebookRepository
	switch cfg.Pricing.Source {
	case config.PricingSourceFirestore:
		provider := pfirestore.NewProvider(cfg.Firestore)
		infra.Closers = append(infra.Closers, provider.Close)
		repo, err := firestoreRepo.NewPricebookRepository(provider)
		if err != nil {
			return infra, fmt.Errorf("firestore pricebook repository: %w", err)
		}
		store = repo
		checks = append(checks, repositories.DependencyCheck{Name: "firestore", Timeout: probeTimeout, Check: provider.Ping})
	default:
		seed, err := loadSeedPricebook(cfg.Pricing.FixtureFile)
		if err != nil {
			return infra, err
		}
		repo := memory.NewPricebookRepository(seed)
		store = repo
		checks = append(checks, repositories.DependencyCheck{
			Name: "pricebooks",
			Check: func(ctx context.Context) error {
				_, err := repo.Current(ctx)
				return err
			},
		})
	}

	if addr := strings.TrimSpace(cfg.Redis.Addr); addr != "" {
		client := redisrepo.NewClient(cfg.Redis)
		infra.Closers = append(infra.Closers, client.Close)
		cache, err := redisrepo.NewPricebookCache(redisrepo.PricebookCacheDeps{
			Next:       store,
			Cache:      client,
			CurrentTTL: cfg.Redis.CurrentTTL,
			VersionTTL: cfg.Redis.VersionTTL,
			Logger:     observability.Events(logger, "pricebook-cache"),
		})
		if err != nil {
			return infra, fmt.Errorf("redis pricebook cache: %w", err)
		}
		store = cache
		idem, err := redisrepo.NewIdempotencyStore(client)
		if err != nil {
			return infra, fmt.Errorf("redis idempotency store: %w", err)
		}
		infra.Idempotency = idem
		checks = append(checks, repositories.DependencyCheck{Name: "redis", Timeout: probeTimeout, Check: client.Ping})
	}
	infra.Pricebooks = store

	if cfg.Features.EnableRenderJobs {
		storageClient, err := cloudstorage.NewClient(ctx)
		if err != nil {
			return infra, fmt.Errorf("storage client: %w", err)
		}
		infra.Closers = append(infra.Closers, storageClient.Close)
		objects, err := platformstorage.NewGCSObjects(storageClient)
		if err != nil {
			return infra, fmt.Errorf("storage objects: %w", err)
		}
		infra.Objects = objects

		pubsubClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return infra, fmt.Errorf("pubsub client: %w", err)
		}
		infra.Closers = append(infra.Closers, pubsubClient.Close)
		topic := pubsubClient.Topic(cfg.PubSub.CropRenderTopic)
		topic.EnableMessageOrdering = true
		infra.Closers = append(infra.Closers, func() error {
			topic.Stop()
			return nil
		})
		publisher, err := jobs.NewCropRenderPublisher(topic)
		if err != nil {
			return infra, err
		}
		infra.Publisher = publisher
		checks = append(checks, repositories.DependencyCheck{
			Name:    "pubsub",
			Timeout: probeTimeout,
			Check: func(ctx context.Context) error {
				ok, err := topic.Exists(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("topic %s not found", cfg.PubSub.CropRenderTopic)
				}
				return nil
			},
		})
	}

	if cfg.Features.EnableCheckout {
		provider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey: cfg.PSP.StripeAPIKey,
			Logger: payments.StripeLogger(observability.Events(logger, "stripe")),
		})
		if err != nil {
			return infra, fmt.Errorf("stripe provider: %w", err)
		}
		infra.Payments = provider
	}

	health, err := repositories.NewProbeHealthRepository(checks, nil)
	if err != nil {
		return infra, fmt.Errorf("health repository: %w", err)
	}
	infra.Health = health
	return infra, nil
}

func loadSeedPricebook(path string) (domain.PricebookSnapshot, error) {
	if strings.TrimSpace(path) == "" {
		return memory.FixturePricebook()
	}
	snapshot, err := memory.LoadPricebookFile(path)
	if err != nil {
		return domain.PricebookSnapshot{}, fmt.Errorf("load pricebook %s: %w", path, err)
	}
	return snapshot, nil
}

// warmPricebook retries Current until it succeeds, the store reports that no
// pricebook is active, or timeout elapses.
func warmPricebook(ctx context.Context, repo repositories.PricebookRepository, timeout time.Duration, logger *zap.Logger) error {
	if repo == nil || timeout <= 0 {
		return nil
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = warmupInitialInterval
	policy.MaxElapsedTime = timeout

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var version string
	operation := func() error {
		snapshot, err := repo.Current(ctx)
		if err != nil {
			if repositories.IsNotFound(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		version = snapshot.Version
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("pricebook not ready", zap.Error(err), zap.Duration("retryIn", wait))
	}
	if err := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify); err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return permanent.Err
		}
		return err
	}
	logger.Info("pricebook warmed", zap.String("version", version))
	return nil
}
