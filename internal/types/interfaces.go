// internal/types/interfaces.go
package types

import (
	"context"
	"time"
)

// EventStore is the durable event log.
type EventStore interface {
	Insert(ctx context.Context, event *Event) error
}

// CounterStore holds per-event-name counters with a bounded TTL. Callers do a
// read-then-write cycle; the store itself offers no atomic increment, so
// concurrent writers to the same key can lose updates. That weakness is part
// of the contract, not an implementation bug.
type CounterStore interface {
	Get(ctx context.Context, key string) (int64, bool, error)
	Put(ctx context.Context, key string, value int64, ttl time.Duration) error
}

// BehaviorStore holds per-user behavior records with a long TTL.
type BehaviorStore interface {
	Get(ctx context.Context, userID string) (*BehaviorRecord, bool, error)
	Put(ctx context.Context, userID string, rec *BehaviorRecord, ttl time.Duration) error
}

// Notifier broadcasts best-effort messages to a named channel. Callers log
// and swallow the returned error.
type Notifier interface {
	Broadcast(ctx context.Context, channel string, payload map[string]any) error
}
