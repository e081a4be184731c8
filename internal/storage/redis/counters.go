// internal/storage/redis/counters.go
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// CounterStore keeps event-name counters as plain integer values with a TTL.
// It deliberately exposes Get/Put rather than INCR so the caller's
// read-then-write cycle behaves identically across all CounterStore
// implementations; lost updates under concurrent writers are accepted.
type CounterStore struct {
	client *redis.Client
}

// NewCounterStore wraps an existing Redis client.
func NewCounterStore(client *redis.Client) *CounterStore {
	return &CounterStore{client: client}
}

// Get returns the counter value and whether the key exists.
func (s *CounterStore) Get(ctx context.Context, key string) (int64, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get counter %s: %w", key, err)
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse counter %s: %w", key, err)
	}
	return n, true, nil
}

// Put writes the counter value with a refreshed TTL.
func (s *CounterStore) Put(ctx context.Context, key string, value int64, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("set counter %s: %w", key, err)
	}
	return nil
}
