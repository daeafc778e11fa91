package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hanko-field/configurator/internal/platform/idempotency"
)

// LockingCache adds the atomic create needed for reservations.
type LockingCache interface {
	Cache
	SetNX(ctx context.Context, key string, data []byte, ttl time.Duration) (bool, error)
}

// IdempotencyStore keeps idempotency records in Redis with a TTL, so replays
// survive instance restarts and are shared across instances.
type IdempotencyStore struct {
	cache LockingCache
}

var (
	_ LockingCache      = (*Client)(nil)
	_ idempotency.Store = (*IdempotencyStore)(nil)
)

func NewIdempotencyStore(cache LockingCache) (*IdempotencyStore, error) {
	if cache == nil {
		return nil, errors.New("idempotency store: cache is required")
	}
	return &IdempotencyStore{cache: cache}, nil
}

func (s *IdempotencyStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (idempotency.Reservation, error) {
	if ttl <= 0 {
		ttl = idempotency.DefaultTTL
	}
	id := idempotency.StorageKey(key)
	pending := idempotency.NewPendingRecord(key, fingerprint, now, ttl)
	data, err := json.Marshal(pending)
	if err != nil {
		return idempotency.Reservation{}, err
	}

	// A record can expire between SetNX and Get; one retry covers that.
	for attempt := 0; attempt < 2; attempt++ {
		created, err := s.cache.SetNX(ctx, id, data, ttl)
		if err != nil {
			return idempotency.Reservation{}, fmt.Errorf("idempotency reserve: %w", err)
		}
		if created {
			return idempotency.Reservation{State: idempotency.ReservationStateNew, Record: pending}, nil
		}
		existing, err := s.load(ctx, id)
		if errors.Is(err, ErrCacheMiss) {
			continue
		}
		if err != nil {
			return idempotency.Reservation{}, err
		}
		return idempotency.Classify(existing, fingerprint)
	}
	return idempotency.Reservation{}, errors.New("idempotency reserve: key churned during reservation")
}

func (s *IdempotencyStore) Complete(ctx context.Context, key, fingerprint string, resp idempotency.Response, now time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = idempotency.DefaultTTL
	}
	id := idempotency.StorageKey(key)
	record, err := s.load(ctx, id)
	switch {
	case errors.Is(err, ErrCacheMiss):
		record = idempotency.Record{Key: key, Fingerprint: fingerprint}
	case err != nil:
		return err
	case record.Fingerprint != fingerprint:
		return idempotency.ErrFingerprintMismatch
	}

	data, err := json.Marshal(idempotency.CompleteRecord(record, resp, now, ttl))
	if err != nil {
		return err
	}
	if err := s.cache.Set(ctx, id, data, ttl); err != nil {
		return fmt.Errorf("idempotency complete: %w", err)
	}
	return nil
}

func (s *IdempotencyStore) Release(ctx context.Context, key, fingerprint string) error {
	id := idempotency.StorageKey(key)
	record, err := s.load(ctx, id)
	if errors.Is(err, ErrCacheMiss) {
		return nil
	}
	if err != nil {
		return err
	}
	if record.Fingerprint != fingerprint {
		return nil
	}
	return s.cache.Del(ctx, id)
}

func (s *IdempotencyStore) load(ctx context.Context, id string) (idempotency.Record, error) {
	data, err := s.cache.Get(ctx, id)
	if err != nil {
		return idempotency.Record{}, err
	}
	var record idempotency.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return idempotency.Record{}, fmt.Errorf("idempotency decode: %w", err)
	}
	return record, nil
}
