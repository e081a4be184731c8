package memory

import (
	"context"
	"testing"
	"time"

	"github.com/user/eventflow/internal/types"
)

func TestCounterStoreTTL(t *testing.T) {
	store := NewCounterStore()
	ctx := context.Background()

	if err := store.Put(ctx, "counter:click", 5, 20*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if n, ok, _ := store.Get(ctx, "counter:click"); !ok || n != 5 {
		t.Fatalf("expected 5 before expiry, got %d ok=%v", n, ok)
	}

	time.Sleep(30 * time.Millisecond)
	if _, ok, _ := store.Get(ctx, "counter:click"); ok {
		t.Error("expected key expired")
	}
}

func TestCounterStoreMissingKey(t *testing.T) {
	store := NewCounterStore()
	if n, ok, err := store.Get(context.Background(), "counter:nope"); ok || n != 0 || err != nil {
		t.Errorf("expected absent key, got n=%d ok=%v err=%v", n, ok, err)
	}
}

func TestBehaviorStoreCopies(t *testing.T) {
	store := NewBehaviorStore()
	ctx := context.Background()

	rec := &types.BehaviorRecord{
		Events:       []types.BehaviorEntry{{EventName: "click", Timestamp: 1}},
		LastActivity: 1,
	}
	if err := store.Put(ctx, "u1", rec, time.Hour); err != nil {
		t.Fatal(err)
	}

	// Mutating the caller's record must not leak into the store.
	rec.Events[0].EventName = "mutated"

	got, ok, err := store.Get(ctx, "u1")
	if err != nil || !ok {
		t.Fatalf("expected record, ok=%v err=%v", ok, err)
	}
	if got.Events[0].EventName != "click" {
		t.Errorf("stored record aliased caller state: %s", got.Events[0].EventName)
	}
}

func TestNotifierRecords(t *testing.T) {
	n := NewNotifier()
	ctx := context.Background()

	if err := n.Broadcast(ctx, "analytics:batches", map[string]any{"type": "batch_processed"}); err != nil {
		t.Fatal(err)
	}
	msgs := n.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Channel != "analytics:batches" {
		t.Errorf("unexpected channel %s", msgs[0].Channel)
	}
}
