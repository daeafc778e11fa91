package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hanko-field/configurator/internal/domain"
	"github.com/hanko-field/configurator/internal/repositories"
)

const (
	currentKey    = "pricebook:current"
	versionPrefix = "pricebook:v:"

	defaultCurrentTTL = 30 * time.Second
	defaultVersionTTL = 24 * time.Hour
)

// PricebookCache is a cache-aside decorator. Versions are immutable and cached
// for long; the current pointer is cached briefly and dropped on Activate.
// Cache failures are logged and never fail a read.
type PricebookCache struct {
	next       repositories.PricebookRepository
	cache      Cache
	currentTTL time.Duration
	versionTTL time.Duration
	logger     func(context.Context, string, map[string]any)
}

var _ repositories.PricebookRepository = (*PricebookCache)(nil)

type PricebookCacheDeps struct {
	Next       repositories.PricebookRepository
	Cache      Cache
	CurrentTTL time.Duration
	VersionTTL time.Duration
	Logger     func(context.Context, string, map[string]any)
}

func NewPricebookCache(deps PricebookCacheDeps) (*PricebookCache, error) {
	if deps.Next == nil {
		return nil, errors.New("pricebook cache: backing repository is required")
	}
	if deps.Cache == nil {
		return nil, errors.New("pricebook cache: cache client is required")
	}
	if deps.CurrentTTL <= 0 {
		deps.CurrentTTL = defaultCurrentTTL
	}
	if deps.VersionTTL <= 0 {
		deps.VersionTTL = defaultVersionTTL
	}
	if deps.Logger == nil {
		deps.Logger = func(context.Context, string, map[string]any) {}
	}
	return &PricebookCache{
		next:       deps.Next,
		cache:      deps.Cache,
		currentTTL: deps.CurrentTTL,
		versionTTL: deps.VersionTTL,
		logger:     deps.Logger,
	}, nil
}

func (c *PricebookCache) Current(ctx context.Context) (domain.PricebookSnapshot, error) {
	if version, err := c.cache.Get(ctx, currentKey); err == nil && len(version) > 0 {
		return c.Get(ctx, string(version))
	} else if err != nil && !errors.Is(err, ErrCacheMiss) {
		c.logger(ctx, "pricebook.cache.read_failed", map[string]any{"key": currentKey, "error": err.Error()})
	}

	snap, err := c.next.Current(ctx)
	if err != nil {
		return domain.PricebookSnapshot{}, err
	}
	if err := c.cache.Set(ctx, currentKey, []byte(snap.Version), c.currentTTL); err != nil {
		c.logger(ctx, "pricebook.cache.write_failed", map[string]any{"key": currentKey, "error": err.Error()})
	}
	c.store(ctx, snap)
	return snap, nil
}

func (c *PricebookCache) Get(ctx context.Context, version string) (domain.PricebookSnapshot, error) {
	key := versionPrefix + version
	data, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		var snap domain.PricebookSnapshot
		jsonErr := json.Unmarshal(data, &snap)
		if jsonErr == nil {
			return snap, nil
		}
		c.logger(ctx, "pricebook.cache.decode_failed", map[string]any{"key": key, "error": jsonErr.Error()})
	case !errors.Is(err, ErrCacheMiss):
		c.logger(ctx, "pricebook.cache.read_failed", map[string]any{"key": key, "error": err.Error()})
	}

	snap, err := c.next.Get(ctx, version)
	if err != nil {
		return domain.PricebookSnapshot{}, err
	}
	c.store(ctx, snap)
	return snap, nil
}

func (c *PricebookCache) Create(ctx context.Context, snapshot domain.PricebookSnapshot) error {
	return c.next.Create(ctx, snapshot)
}

func (c *PricebookCache) Activate(ctx context.Context, version string) error {
	if err := c.next.Activate(ctx, version); err != nil {
		return err
	}
	if err := c.cache.Del(ctx, currentKey); err != nil {
		c.logger(ctx, "pricebook.cache.invalidate_failed", map[string]any{"key": currentKey, "error": err.Error()})
	}
	return nil
}

func (c *PricebookCache) ListVersions(ctx context.Context, limit int) ([]string, error) {
	return c.next.ListVersions(ctx, limit)
}

func (c *PricebookCache) store(ctx context.Context, snap domain.PricebookSnapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		c.logger(ctx, "pricebook.cache.encode_failed", map[string]any{"version": snap.Version, "error": err.Error()})
		return
	}
	key := versionPrefix + snap.Version
	if err := c.cache.Set(ctx, key, data, c.versionTTL); err != nil {
		c.logger(ctx, "pricebook.cache.write_failed", map[string]any{"key": key, "error": err.Error()})
	}
}
