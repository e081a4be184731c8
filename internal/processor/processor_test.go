package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/user/eventflow/internal/storage/memory"
	"github.com/user/eventflow/internal/types"
)

// fakeEventStore records inserts and can fail or delay individual writes. It
// also tracks how many inserts were in flight at once.
type fakeEventStore struct {
	mu          sync.Mutex
	events      []*types.Event
	failIDs     map[types.EventID]bool
	delay       time.Duration
	inflight    int
	maxInflight int
}

func (f *fakeEventStore) Insert(_ context.Context, ev *types.Event) error {
	f.mu.Lock()
	f.inflight++
	if f.inflight > f.maxInflight {
		f.maxInflight = f.inflight
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inflight--
	if f.failIDs[ev.ID] {
		return errors.New("write failed")
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeEventStore) maxConcurrent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInflight
}

func (f *fakeEventStore) all() []*types.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*types.Event, len(f.events))
	copy(out, f.events)
	return out
}

type testEnv struct {
	proc     *Processor
	store    *fakeEventStore
	counters *memory.CounterStore
	behavior *memory.BehaviorStore
	notifier *memory.Notifier
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    &fakeEventStore{},
		counters: memory.NewCounterStore(),
		behavior: memory.NewBehaviorStore(),
		notifier: memory.NewNotifier(),
	}
	if cfg.Debounce == 0 {
		cfg.Debounce = 5 * time.Millisecond
	}
	env.proc = New(env.store, env.counters, env.behavior, env.notifier, cfg)
	env.proc.Start(context.Background())
	t.Cleanup(env.proc.Stop)
	return env
}

func makeEvent(name, userID string, ts int64) *types.Event {
	return &types.Event{EventName: name, UserID: userID, Timestamp: ts}
}

func TestSubmitEventValidation(t *testing.T) {
	env := newTestEnv(t, Config{})

	_, err := env.proc.SubmitEvent(&types.Event{Timestamp: 1})
	var verr *types.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for missing name, got %v", err)
	}

	_, err = env.proc.SubmitEvent(&types.Event{EventName: "click"})
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for missing timestamp, got %v", err)
	}

	if st := env.proc.Status(); st.QueueLength != 0 {
		t.Errorf("invalid events must not enter the queue, got queue length %d", st.QueueLength)
	}
}

func TestCapacityTriggersFlush(t *testing.T) {
	env := newTestEnv(t, Config{BatchCapacity: 100})

	for i := 0; i < 100; i++ {
		if _, err := env.proc.SubmitEvent(makeEvent("page_view", "u1", int64(i+1))); err != nil {
			t.Fatal(err)
		}
	}
	if !env.proc.WaitIdle(2 * time.Second) {
		t.Fatal("processor did not go idle")
	}

	if got := len(env.store.all()); got != 100 {
		t.Errorf("expected 100 persisted events, got %d", got)
	}
	if st := env.proc.Status(); st.QueueLength != 0 {
		t.Errorf("expected empty queue after capacity flush, got %d", st.QueueLength)
	}

	// The 101st event starts a fresh batch that stays pending.
	if _, err := env.proc.SubmitEvent(makeEvent("page_view", "u1", 101)); err != nil {
		t.Fatal(err)
	}
	st := env.proc.Status()
	if st.QueueLength != 1 || st.Batches[0].EventCount != 1 || st.Batches[0].Status != string(types.BatchPending) {
		t.Errorf("expected one pending single-event batch, got %+v", st)
	}
}

func TestPartialBatchWaitsForTimer(t *testing.T) {
	env := newTestEnv(t, Config{BatchCapacity: 100})

	for i := 0; i < 150; i++ {
		if _, err := env.proc.SubmitEvent(makeEvent("click", "u1", int64(i+1))); err != nil {
			t.Fatal(err)
		}
	}
	if !env.proc.WaitIdle(2 * time.Second) {
		t.Fatal("processor did not go idle")
	}

	st := env.proc.Status()
	if st.QueueLength != 1 {
		t.Fatalf("expected queue length 1, got %d", st.QueueLength)
	}
	if st.Batches[0].EventCount != 50 || st.Batches[0].Status != string(types.BatchPending) {
		t.Errorf("expected 50 pending events, got %+v", st.Batches[0])
	}
	if got := len(env.store.all()); got != 100 {
		t.Errorf("expected 100 persisted events, got %d", got)
	}

	// Timer trigger closes and drains the partial batch.
	env.proc.FlushAll()
	if !env.proc.WaitIdle(2 * time.Second) {
		t.Fatal("processor did not go idle after FlushAll")
	}
	if got := len(env.store.all()); got != 150 {
		t.Errorf("expected 150 persisted events after timer flush, got %d", got)
	}
	if st := env.proc.Status(); st.QueueLength != 0 {
		t.Errorf("expected empty queue, got %d", st.QueueLength)
	}
}

func TestSubmitBatchPreservesOrder(t *testing.T) {
	// Concurrency 1 serializes writes so store order mirrors event order.
	env := newTestEnv(t, Config{WriteConcurrency: 1})

	events := make([]*types.Event, 5)
	for i := range events {
		events[i] = makeEvent(fmt.Sprintf("step_%d", i), "u1", int64(i+1))
	}
	if _, _, err := env.proc.SubmitBatch(events); err != nil {
		t.Fatal(err)
	}
	if !env.proc.WaitIdle(2 * time.Second) {
		t.Fatal("processor did not go idle")
	}

	got := env.store.all()
	if len(got) != 5 {
		t.Fatalf("expected 5 persisted events, got %d", len(got))
	}
	for i, ev := range got {
		if ev.EventName != fmt.Sprintf("step_%d", i) {
			t.Errorf("position %d: expected step_%d, got %s", i, i, ev.EventName)
		}
	}
}

func TestSubmitBatchRejectsInvalidElement(t *testing.T) {
	env := newTestEnv(t, Config{})

	events := []*types.Event{
		makeEvent("ok", "u1", 1),
		{EventName: "", Timestamp: 2},
	}
	if _, _, err := env.proc.SubmitBatch(events); err == nil {
		t.Fatal("expected validation error")
	}
	if st := env.proc.Status(); st.QueueLength != 0 {
		t.Errorf("nothing should be enqueued on validation failure, got %d", st.QueueLength)
	}
}

func TestSubmitBatchRejectsNilEvent(t *testing.T) {
	env := newTestEnv(t, Config{})

	// A JSON array with a null element decodes to a nil pointer.
	_, _, err := env.proc.SubmitBatch([]*types.Event{makeEvent("ok", "u1", 1), nil})
	var verr *types.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for nil event, got %v", err)
	}
	if st := env.proc.Status(); st.QueueLength != 0 {
		t.Errorf("nothing should be enqueued on validation failure, got %d", st.QueueLength)
	}

	if _, err := env.proc.SubmitEvent(nil); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for nil event, got %v", err)
	}
}

func TestSubmitBatchRejectsEmpty(t *testing.T) {
	env := newTestEnv(t, Config{})

	_, _, err := env.proc.SubmitBatch(nil)
	var verr *types.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for empty batch, got %v", err)
	}
	if _, _, err := env.proc.SubmitBatch([]*types.Event{}); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for empty batch, got %v", err)
	}
	if st := env.proc.Status(); st.QueueLength != 0 {
		t.Errorf("empty submissions must not enqueue a batch, got %d", st.QueueLength)
	}
	if got := len(env.notifier.Messages()); got != 0 {
		t.Errorf("empty submissions must not notify, got %d messages", got)
	}
}

func TestSingleFlightNoDoubleProcessing(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.store.delay = 2 * time.Millisecond

	total := 0
	for b := 0; b < 5; b++ {
		events := make([]*types.Event, 10)
		for i := range events {
			events[i] = makeEvent("burst", "u1", int64(total+i+1))
		}
		total += len(events)
		if _, _, err := env.proc.SubmitBatch(events); err != nil {
			t.Fatal(err)
		}
	}

	// Hammer every trigger source at once.
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				env.proc.Flush()
			} else {
				env.proc.FlushAll()
			}
		}(i)
	}
	wg.Wait()

	if !env.proc.WaitIdle(5 * time.Second) {
		t.Fatal("processor did not go idle")
	}

	if got := len(env.store.all()); got != total {
		t.Errorf("expected each of %d events persisted exactly once, got %d", total, got)
	}
	if got := len(env.notifier.Messages()); got != 5 {
		t.Errorf("expected 5 batch notifications, got %d", got)
	}
	if st := env.proc.Status(); st.QueueLength != 0 {
		t.Errorf("expected empty queue, got %d", st.QueueLength)
	}
}

func TestDrainHandoffKeepsSinglePass(t *testing.T) {
	// Interleave submissions with drain exits. Each pass must hand the guard
	// off cleanly: a pass that already released it must never clear the flag a
	// newer pass holds, which would let two passes run at once. With
	// WriteConcurrency 1 any overlap shows up as concurrent inserts.
	env := newTestEnv(t, Config{WriteConcurrency: 1, Debounce: time.Millisecond})
	env.store.delay = 100 * time.Microsecond

	const workers = 8
	const rounds = 50
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				ev := makeEvent("handoff", "u1", int64(w*rounds+r+1))
				if _, _, err := env.proc.SubmitBatch([]*types.Event{ev}); err != nil {
					t.Error(err)
					return
				}
				env.proc.Flush()
			}
		}(w)
	}
	wg.Wait()

	if !env.proc.WaitIdle(10 * time.Second) {
		t.Fatal("processor did not go idle")
	}

	if got := env.store.maxConcurrent(); got != 1 {
		t.Errorf("expected at most one insert in flight, saw %d", got)
	}
	if got := len(env.store.all()); got != workers*rounds {
		t.Errorf("expected %d persisted events, got %d", workers*rounds, got)
	}
	if st := env.proc.Status(); st.QueueLength != 0 {
		t.Errorf("expected empty queue, got %d", st.QueueLength)
	}
}

func TestPartialPersistFailureDoesNotFailBatch(t *testing.T) {
	env := newTestEnv(t, Config{})

	events := make([]*types.Event, 5)
	for i := range events {
		events[i] = makeEvent("order", "u1", int64(i+1))
		events[i].ID = types.NewEventID()
	}
	env.store.failIDs = map[types.EventID]bool{events[2].ID: true}

	if _, _, err := env.proc.SubmitBatch(events); err != nil {
		t.Fatal(err)
	}
	if !env.proc.WaitIdle(2 * time.Second) {
		t.Fatal("processor did not go idle")
	}

	// Events 1,2,4,5 persist; the batch still completes and is removed.
	if got := len(env.store.all()); got != 4 {
		t.Errorf("expected 4 persisted events, got %d", got)
	}
	if st := env.proc.Status(); st.QueueLength != 0 {
		t.Errorf("batch with one failed write must still complete, queue length %d", st.QueueLength)
	}
	if got := len(env.notifier.Messages()); got != 1 {
		t.Errorf("expected completion notification, got %d messages", got)
	}
}

// panicBehaviorStore panics on reads to simulate an unhandled failure inside
// the batch-level processing routine.
type panicBehaviorStore struct {
	memory.BehaviorStore
}

func (p *panicBehaviorStore) Get(context.Context, string) (*types.BehaviorRecord, bool, error) {
	panic("behavior store blew up")
}

func TestFailedBatchStaysVisible(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.proc.behavior = &panicBehaviorStore{}

	bad := []*types.Event{makeEvent("signup", "u1", 1)}
	badID, _, err := env.proc.SubmitBatch(bad)
	if err != nil {
		t.Fatal(err)
	}
	good := []*types.Event{makeEvent("signup", "", 2)} // no user id, behavior phase untouched
	if _, _, err := env.proc.SubmitBatch(good); err != nil {
		t.Fatal(err)
	}

	if !env.proc.WaitIdle(2 * time.Second) {
		t.Fatal("processor did not go idle")
	}

	st := env.proc.Status()
	if st.QueueLength != 1 {
		t.Fatalf("failed batch must remain in the queue, got length %d", st.QueueLength)
	}
	if st.Batches[0].ID != string(badID) || st.Batches[0].Status != string(types.BatchFailed) {
		t.Errorf("expected batch %s failed, got %+v", badID, st.Batches[0])
	}
	if st.IsProcessing {
		t.Error("flush guard must clear even after a batch-level failure")
	}
	// The good batch processed despite the earlier failure.
	if got := len(env.notifier.Messages()); got != 1 {
		t.Errorf("expected 1 completion notification, got %d", got)
	}
}

func TestBehaviorWindowCapped(t *testing.T) {
	env := newTestEnv(t, Config{BehaviorCap: 100})

	events := make([]*types.Event, 150)
	for i := range events {
		events[i] = makeEvent("scroll", "u42", int64(i+1))
	}
	if _, _, err := env.proc.SubmitBatch(events); err != nil {
		t.Fatal(err)
	}
	if !env.proc.WaitIdle(2 * time.Second) {
		t.Fatal("processor did not go idle")
	}

	rec, ok, err := env.behavior.Get(context.Background(), "u42")
	if err != nil || !ok {
		t.Fatalf("expected behavior record, ok=%v err=%v", ok, err)
	}
	if len(rec.Events) != 100 {
		t.Fatalf("expected window of 100 entries, got %d", len(rec.Events))
	}
	if rec.Events[0].Timestamp != 51 {
		t.Errorf("oldest 50 entries should be evicted, window starts at ts %d", rec.Events[0].Timestamp)
	}
	if rec.LastActivity != 150 {
		t.Errorf("expected lastActivityMs 150, got %d", rec.LastActivity)
	}
}

func TestCountersAggregateByName(t *testing.T) {
	env := newTestEnv(t, Config{})

	if _, _, err := env.proc.SubmitBatch([]*types.Event{
		makeEvent("click", "u1", 1),
		makeEvent("click", "u2", 2),
		makeEvent("view", "u1", 3),
	}); err != nil {
		t.Fatal(err)
	}
	if !env.proc.WaitIdle(2 * time.Second) {
		t.Fatal("processor did not go idle")
	}

	ctx := context.Background()
	if n, _, _ := env.counters.Get(ctx, "counter:click"); n != 2 {
		t.Errorf("expected counter:click=2, got %d", n)
	}
	if n, _, _ := env.counters.Get(ctx, "counter:view"); n != 1 {
		t.Errorf("expected counter:view=1, got %d", n)
	}

	// A later batch folds into the existing counts.
	if _, _, err := env.proc.SubmitBatch([]*types.Event{makeEvent("click", "u3", 4)}); err != nil {
		t.Fatal(err)
	}
	if !env.proc.WaitIdle(2 * time.Second) {
		t.Fatal("processor did not go idle")
	}
	if n, _, _ := env.counters.Get(ctx, "counter:click"); n != 3 {
		t.Errorf("expected counter:click=3 after second batch, got %d", n)
	}
}

// failingNotifier always errors.
type failingNotifier struct{}

func (failingNotifier) Broadcast(context.Context, string, map[string]any) error {
	return errors.New("broadcast down")
}

func TestNotifierFailureIsSwallowed(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.proc.notifier = failingNotifier{}

	if _, _, err := env.proc.SubmitBatch([]*types.Event{makeEvent("click", "u1", 1)}); err != nil {
		t.Fatal(err)
	}
	if !env.proc.WaitIdle(2 * time.Second) {
		t.Fatal("processor did not go idle")
	}

	if st := env.proc.Status(); st.QueueLength != 0 {
		t.Errorf("notification failure must not fail the batch, queue length %d", st.QueueLength)
	}
	if got := len(env.store.all()); got != 1 {
		t.Errorf("expected event persisted, got %d", got)
	}
}
