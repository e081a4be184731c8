// Package memory provides in-process counter, behavior, and notifier
// implementations for zero-infrastructure runs and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/user/eventflow/internal/types"
)

type counterEntry struct {
	value     int64
	expiresAt time.Time
}

// CounterStore is a map-backed CounterStore honoring TTLs on read.
type CounterStore struct {
	mu sync.Mutex
	m  map[string]counterEntry
}

func NewCounterStore() *CounterStore {
	return &CounterStore{m: make(map[string]counterEntry)}
}

func (s *CounterStore) Get(_ context.Context, key string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[key]
	if !ok {
		return 0, false, nil
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		delete(s.m, key)
		return 0, false, nil
	}
	return e.value, true, nil
}

func (s *CounterStore) Put(_ context.Context, key string, value int64, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := counterEntry{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	s.m[key] = e
	return nil
}

// BehaviorStore is a map-backed BehaviorStore. Records are copied on both
// reads and writes so callers can't alias the stored state.
type BehaviorStore struct {
	mu sync.Mutex
	m  map[string]*types.BehaviorRecord
}

func NewBehaviorStore() *BehaviorStore {
	return &BehaviorStore{m: make(map[string]*types.BehaviorRecord)}
}

func (s *BehaviorStore) Get(_ context.Context, userID string) (*types.BehaviorRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.m[userID]
	if !ok {
		return nil, false, nil
	}
	return copyRecord(rec), true, nil
}

func (s *BehaviorStore) Put(_ context.Context, userID string, rec *types.BehaviorRecord, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[userID] = copyRecord(rec)
	return nil
}

func copyRecord(rec *types.BehaviorRecord) *types.BehaviorRecord {
	out := &types.BehaviorRecord{
		Events:       make([]types.BehaviorEntry, len(rec.Events)),
		LastActivity: rec.LastActivity,
	}
	copy(out.Events, rec.Events)
	return out
}

// Message is one recorded broadcast.
type Message struct {
	Channel string
	Payload map[string]any
}

// Notifier records broadcasts instead of delivering them.
type Notifier struct {
	mu       sync.Mutex
	messages []Message
}

func NewNotifier() *Notifier {
	return &Notifier{}
}

func (n *Notifier) Broadcast(_ context.Context, channel string, payload map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, Message{Channel: channel, Payload: payload})
	return nil
}

// Messages returns a snapshot of everything broadcast so far.
func (n *Notifier) Messages() []Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Message, len(n.messages))
	copy(out, n.messages)
	return out
}
