// Package processor implements the event batch processor: it accumulates
// inbound analytics events into bounded batches, drains pending batches
// single-flight into the event store, and fans results out to the counter
// store, the behavior store, and the notifier.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/user/eventflow/internal/types"
)

// Config tunes batching and fan-out behavior.
type Config struct {
	BatchCapacity    int
	Debounce         time.Duration
	WriteConcurrency int64
	BatchTimeout     time.Duration // 0 disables the per-batch deadline
	CounterTTL       time.Duration
	BehaviorTTL      time.Duration
	BehaviorCap      int
	NotifyChannel    string
}

// DefaultConfig returns the production defaults: batches of 100, a 25ms
// debounce so bursts coalesce into one drain pass, and a 30-day behavior
// window capped at 100 entries.
func DefaultConfig() Config {
	return Config{
		BatchCapacity:    100,
		Debounce:         25 * time.Millisecond,
		WriteConcurrency: 8,
		BatchTimeout:     2 * time.Minute,
		CounterTTL:       time.Hour,
		BehaviorTTL:      30 * 24 * time.Hour,
		BehaviorCap:      100,
		NotifyChannel:    "analytics:batches",
	}
}

// Processor owns the batch queue. Intake and status calls serialize on the
// internal mutex; the drain loop runs on its own goroutine and is guarded so
// that at most one pass is active at a time.
type Processor struct {
	events   types.EventStore
	counters types.CounterStore
	behavior types.BehaviorStore
	notifier types.Notifier
	cfg      Config

	mu       sync.Mutex
	queue    []*types.Batch
	open     *types.Batch // pending batch still accepting events; always the newest queue entry
	flushing bool
	flushGen uint64 // bumped each time a drain pass claims the guard
	debounce *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Processor wired to the given collaborators. Zero config
// fields fall back to their defaults.
func New(events types.EventStore, counters types.CounterStore, behavior types.BehaviorStore, notifier types.Notifier, cfg Config) *Processor {
	def := DefaultConfig()
	if cfg.BatchCapacity <= 0 {
		cfg.BatchCapacity = def.BatchCapacity
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = def.Debounce
	}
	if cfg.WriteConcurrency <= 0 {
		cfg.WriteConcurrency = def.WriteConcurrency
	}
	if cfg.CounterTTL <= 0 {
		cfg.CounterTTL = def.CounterTTL
	}
	if cfg.BehaviorTTL <= 0 {
		cfg.BehaviorTTL = def.BehaviorTTL
	}
	if cfg.BehaviorCap <= 0 {
		cfg.BehaviorCap = def.BehaviorCap
	}
	if cfg.NotifyChannel == "" {
		cfg.NotifyChannel = def.NotifyChannel
	}
	return &Processor{
		events:   events,
		counters: counters,
		behavior: behavior,
		notifier: notifier,
		cfg:      cfg,
	}
}

// Start initialises the processor's context. Must be called before submitting.
func (p *Processor) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)
}

// Stop cancels the processor context and disarms the debounce timer. Batches
// still pending are left in the queue.
func (p *Processor) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Lock()
	if p.debounce != nil {
		p.debounce.Stop()
		p.debounce = nil
	}
	p.mu.Unlock()
}

// SubmitEvent validates the event and appends it to the open batch, creating
// one if none exists or the current one is full. Reaching capacity closes the
// batch and arms the debounced flush.
func (p *Processor) SubmitEvent(ev *types.Event) (types.EventID, error) {
	if err := types.ValidateEvent(ev); err != nil {
		return "", err
	}
	if ev.ID == "" {
		ev.ID = types.NewEventID()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.open == nil {
		p.open = types.NewBatch()
		p.queue = append(p.queue, p.open)
	}
	p.open.Events = append(p.open.Events, ev)
	if len(p.open.Events) >= p.cfg.BatchCapacity {
		p.open = nil // closed to new appends, eligible for flush
		p.armDebounceLocked()
	}
	return ev.ID, nil
}

// SubmitBatch validates every event and enqueues them as one closed batch,
// bypassing partial accumulation, then arms the debounced flush. The whole
// call fails on the first invalid event; nothing is enqueued in that case.
func (p *Processor) SubmitBatch(events []*types.Event) (types.BatchID, int, error) {
	if len(events) == 0 {
		return "", 0, &types.ValidationError{Fields: []types.FieldError{{Field: "events", Msg: "at least one event required"}}}
	}
	for _, ev := range events {
		if err := types.ValidateEvent(ev); err != nil {
			return "", 0, err
		}
	}
	b := types.NewBatch()
	for _, ev := range events {
		if ev.ID == "" {
			ev.ID = types.NewEventID()
		}
		b.Events = append(b.Events, ev)
	}

	p.mu.Lock()
	p.queue = append(p.queue, b)
	p.armDebounceLocked()
	p.mu.Unlock()
	return b.ID, len(b.Events), nil
}

// BatchSummary is the status view of one queued batch.
type BatchSummary struct {
	ID         string `json:"id"`
	EventCount int    `json:"eventCount"`
	Status     string `json:"status"`
	CreatedAt  string `json:"createdAt"`
}

// Status is a read-only snapshot of the processor.
type Status struct {
	IsProcessing bool           `json:"isProcessing"`
	QueueLength  int            `json:"queueLength"`
	Batches      []BatchSummary `json:"batches"`
}

// Status reports whether a drain pass is active, the queue depth, and
// per-batch summaries. Failed batches remain visible here indefinitely.
func (p *Processor) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := Status{
		IsProcessing: p.flushing,
		QueueLength:  len(p.queue),
		Batches:      make([]BatchSummary, 0, len(p.queue)),
	}
	for _, b := range p.queue {
		st.Batches = append(st.Batches, BatchSummary{
			ID:         string(b.ID),
			EventCount: len(b.Events),
			Status:     string(b.Status),
			CreatedAt:  time.UnixMilli(b.CreatedAt).UTC().Format(time.RFC3339),
		})
	}
	return st
}

// Flush is the single guarded entry point for both trigger sources. The
// active flag is set synchronously, before any store I/O, so concurrent
// triggers observing an active pass are no-ops; the running pass picks up
// newly closed batches because it re-reads the queue each iteration.
func (p *Processor) Flush() {
	p.mu.Lock()
	if p.flushing || p.nextPendingLocked() == nil {
		p.mu.Unlock()
		return
	}
	p.flushing = true
	p.flushGen++
	gen := p.flushGen
	p.mu.Unlock()
	go p.drain(gen)
}

// FlushAll closes the open batch, if any, and flushes. This is the timer
// trigger: it bounds latency for partial batches that never reach capacity.
func (p *Processor) FlushAll() {
	p.mu.Lock()
	p.open = nil
	p.mu.Unlock()
	p.Flush()
}

// drain processes pending batches oldest-first until none remain. The guard
// normally clears inside the loop, in the same critical section that observes
// the empty queue; the deferred clear is the backstop for an uncaught panic
// and checks the generation so it never stomps a later pass's guard.
func (p *Processor) drain(gen uint64) {
	defer func() {
		p.mu.Lock()
		if p.flushGen == gen {
			p.flushing = false
		}
		p.mu.Unlock()
	}()

	for {
		p.mu.Lock()
		b := p.nextPendingLocked()
		if b == nil {
			// Clear the guard while still holding the lock so a batch
			// enqueued right now sees an inactive flush and triggers its own.
			p.flushing = false
			failed := p.failedCountLocked()
			p.mu.Unlock()
			if failed > 0 {
				slog.Warn("failed batches resident in queue", "count", failed)
			}
			return
		}
		b.Status = types.BatchProcessing
		events := b.Events // frozen: nothing appends to a non-open batch
		p.mu.Unlock()

		err := p.processBatch(b.ID, events)

		p.mu.Lock()
		if err != nil {
			b.Status = types.BatchFailed
			p.mu.Unlock()
			slog.Error("batch processing failed", "batch_id", string(b.ID), "event_count", len(events), "error", err)
			continue
		}
		b.Status = types.BatchCompleted
		p.removeLocked(b.ID)
		p.mu.Unlock()

		slog.Info("batch processed", "batch_id", string(b.ID), "event_count", len(events))
		p.notifyProcessed(b.ID, len(events))
	}
}

// processBatch runs the fan-out phases for one batch. Individual store
// failures inside a phase are logged and absorbed; only a recovered panic or
// an expired batch deadline fails the batch as a whole.
func (p *Processor) processBatch(id types.BatchID, events []*types.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("batch %s: processing panic: %v", id, r)
		}
	}()

	ctx := p.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if p.cfg.BatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.BatchTimeout)
		defer cancel()
	}

	p.persistEvents(ctx, id, events)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("batch %s: persistence aborted: %w", id, ctxErr)
	}

	p.aggregateCounters(ctx, events)
	p.trackBehavior(ctx, events)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("batch %s: aggregation aborted: %w", id, ctxErr)
	}
	return nil
}

// nextPendingLocked returns the oldest pending closed batch. The open batch
// only drains via FlushAll; failed batches are skipped, never re-run.
func (p *Processor) nextPendingLocked() *types.Batch {
	for _, b := range p.queue {
		if b.Status == types.BatchPending && b != p.open {
			return b
		}
	}
	return nil
}

func (p *Processor) failedCountLocked() int {
	n := 0
	for _, b := range p.queue {
		if b.Status == types.BatchFailed {
			n++
		}
	}
	return n
}

func (p *Processor) removeLocked(id types.BatchID) {
	for i, b := range p.queue {
		if b.ID == id {
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			return
		}
	}
}

// armDebounceLocked schedules a flush after the debounce window so that a
// burst of near-simultaneous submissions triggers one pass. At most one timer
// is armed at a time.
func (p *Processor) armDebounceLocked() {
	if p.debounce != nil {
		return
	}
	p.debounce = time.AfterFunc(p.cfg.Debounce, func() {
		p.mu.Lock()
		p.debounce = nil
		p.mu.Unlock()
		p.Flush()
	})
}

// WaitIdle blocks until no drain pass is active, no flushable batch is
// queued, and no debounce timer is armed, or until the timeout expires.
// Returns true if idle, false if timed out.
func (p *Processor) WaitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		p.mu.Lock()
		idle := !p.flushing && p.debounce == nil && p.nextPendingLocked() == nil
		p.mu.Unlock()
		if idle {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(5 * time.Millisecond):
		}
	}
}
