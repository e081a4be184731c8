// internal/storage/redis/behavior.go
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/eventflow/internal/types"
)

const behaviorPrefix = "behavior:"

// BehaviorStore keeps per-user behavior records as JSON values with a long TTL.
type BehaviorStore struct {
	client *redis.Client
}

// NewBehaviorStore wraps an existing Redis client.
func NewBehaviorStore(client *redis.Client) *BehaviorStore {
	return &BehaviorStore{client: client}
}

// Get returns the user's behavior record and whether one exists.
func (s *BehaviorStore) Get(ctx context.Context, userID string) (*types.BehaviorRecord, bool, error) {
	data, err := s.client.Get(ctx, behaviorPrefix+userID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get behavior %s: %w", userID, err)
	}
	var rec types.BehaviorRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, false, fmt.Errorf("unmarshal behavior %s: %w", userID, err)
	}
	return &rec, true, nil
}

// Put writes the record back with a refreshed TTL.
func (s *BehaviorStore) Put(ctx context.Context, userID string, rec *types.BehaviorRecord, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal behavior %s: %w", userID, err)
	}
	if err := s.client.Set(ctx, behaviorPrefix+userID, data, ttl).Err(); err != nil {
		return fmt.Errorf("set behavior %s: %w", userID, err)
	}
	return nil
}
