// internal/processor/persist.go
package processor

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/user/eventflow/internal/types"
)

// persistEvents writes every event of a draining batch to the event store.
// Writes are issued concurrently, bounded by WriteConcurrency, and every
// outcome is collected before returning; a failed write is logged and does
// not abort siblings or fail the batch. Returns the number persisted.
func (p *Processor) persistEvents(ctx context.Context, batchID types.BatchID, events []*types.Event) int {
	sem := semaphore.NewWeighted(p.cfg.WriteConcurrency)
	results := make([]error, len(events))
	var wg sync.WaitGroup

	for i, ev := range events {
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = err
			continue
		}
		wg.Add(1)
		go func(i int, ev *types.Event) {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = p.events.Insert(ctx, ev)
		}(i, ev)
	}
	wg.Wait()

	persisted := 0
	for i, err := range results {
		if err != nil {
			slog.Warn("event persist failed",
				"batch_id", string(batchID),
				"event_id", string(events[i].ID),
				"event_name", events[i].EventName,
				"error", err)
			continue
		}
		persisted++
	}
	return persisted
}
