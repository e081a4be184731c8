// internal/scheduler/scheduler_test.go
package scheduler

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerFiresHandler(t *testing.T) {
	var fires atomic.Int32
	sched := New(time.Second, func() {
		fires.Add(1)
	})
	if err := sched.Start(); err != nil {
		t.Fatal(err)
	}
	defer sched.Stop()

	// Wait up to 2.5 seconds for at least one fire
	deadline := time.After(2500 * time.Millisecond)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			t.Fatalf("handler did not fire within 2.5s, fires=%d", fires.Load())
		case <-ticker.C:
			if fires.Load() > 0 {
				return
			}
		}
	}
}

func TestSchedulerStop(t *testing.T) {
	var fires atomic.Int32
	sched := New(200*time.Millisecond, func() {
		fires.Add(1)
	})
	if err := sched.Start(); err != nil {
		t.Fatal(err)
	}
	sched.Stop()

	before := fires.Load()
	time.Sleep(500 * time.Millisecond)
	if after := fires.Load(); after != before {
		t.Errorf("handler fired after Stop: before=%d after=%d", before, after)
	}
}
