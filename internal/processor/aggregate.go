// internal/processor/aggregate.go
package processor

import (
	"context"
	"log/slog"

	"github.com/user/eventflow/internal/types"
)

const counterPrefix = "counter:"

// aggregateCounters counts the batch's events by name and folds each count
// into the shared counter store with a refreshed TTL. The read-then-write is
// not atomic: a concurrent writer to the same key from another instance can
// lose updates. Accepted for approximate analytics.
func (p *Processor) aggregateCounters(ctx context.Context, events []*types.Event) {
	counts := make(map[string]int64)
	for _, ev := range events {
		counts[ev.EventName]++
	}

	for name, n := range counts {
		key := counterPrefix + name
		current, _, err := p.counters.Get(ctx, key)
		if err != nil {
			slog.Warn("counter read failed", "key", key, "error", err)
			continue
		}
		if err := p.counters.Put(ctx, key, current+n, p.cfg.CounterTTL); err != nil {
			slog.Warn("counter write failed", "key", key, "error", err)
		}
	}
}

// trackBehavior appends each user-attributed event to that user's rolling
// window, keeping only the newest BehaviorCap entries, and refreshes the
// record's TTL. Store failures are logged and do not affect batch status.
func (p *Processor) trackBehavior(ctx context.Context, events []*types.Event) {
	for _, ev := range events {
		if ev.UserID == "" {
			continue
		}
		rec, ok, err := p.behavior.Get(ctx, ev.UserID)
		if err != nil {
			slog.Warn("behavior read failed", "user_id", ev.UserID, "error", err)
			continue
		}
		if !ok {
			rec = &types.BehaviorRecord{}
		}
		rec.Events = append(rec.Events, types.BehaviorEntry{
			EventName:  ev.EventName,
			Timestamp:  ev.Timestamp,
			Properties: ev.Properties,
		})
		if len(rec.Events) > p.cfg.BehaviorCap {
			rec.Events = rec.Events[len(rec.Events)-p.cfg.BehaviorCap:]
		}
		rec.LastActivity = ev.Timestamp
		if err := p.behavior.Put(ctx, ev.UserID, rec, p.cfg.BehaviorTTL); err != nil {
			slog.Warn("behavior write failed", "user_id", ev.UserID, "error", err)
		}
	}
}
