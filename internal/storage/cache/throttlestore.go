package cache

import (
	"context"
	"errors"
	"time"

	"github.com/tinywideclouds/go-notification-dispatch/pkg/dispatch"
)

// ThrottleStore implements dispatch.ThrottleStore on top of a CacheClient.
// Timestamps and counters share the same keyspace; a key holds either a
// last-sent time (timestamp strategy) or a counter (count strategy),
// never both, because each message type is owned by exactly one hook set.
type ThrottleStore struct {
	cache CacheClient
}

func NewThrottleStore(cache CacheClient) *ThrottleStore {
	return &ThrottleStore{cache: cache}
}

func (s *ThrottleStore) LastSent(ctx context.Context, key string) (time.Time, error) {
	var at time.Time
	err := s.cache.Get(ctx, key, &at)
	if errors.Is(err, ErrCacheMiss) {
		return time.Time{}, dispatch.ErrNotFound
	}
	if err != nil {
		return time.Time{}, err
	}
	return at, nil
}

func (s *ThrottleStore) MarkSent(ctx context.Context, key string, at time.Time, ttl time.Duration) error {
	return s.cache.Set(ctx, key, at, ttl)
}

func (s *ThrottleStore) Count(ctx context.Context, key string) (int64, error) {
	var count int64
	err := s.cache.Get(ctx, key, &count)
	if errors.Is(err, ErrCacheMiss) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *ThrottleStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return s.cache.Incr(ctx, key, ttl)
}
