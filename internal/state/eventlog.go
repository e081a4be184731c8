// internal/state/eventlog.go
package state

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/user/eventflow/internal/types"
)

// EventLog is a JSONL-backed append-only event log partitioned by day.
// Events land in events/<YYYY-MM-DD>.jsonl keyed by their own timestamp.
// It is the default EventStore for zero-infrastructure runs.
type EventLog struct {
	root  string
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEventLog creates a file-backed EventLog rooted at the given directory.
func NewEventLog(root string) *EventLog {
	return &EventLog{
		root:  root,
		locks: make(map[string]*sync.Mutex),
	}
}

// getLock returns the per-day mutex, creating one if it doesn't exist.
func (l *EventLog) getLock(day string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lock, ok := l.locks[day]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	l.locks[day] = lock
	return lock
}

func (l *EventLog) dayOf(ev *types.Event) string {
	return time.UnixMilli(ev.Timestamp).UTC().Format("2006-01-02")
}

func (l *EventLog) path(day string) string {
	return filepath.Join(l.root, "events", day+".jsonl")
}

// Insert appends the event to its day's log file.
func (l *EventLog) Insert(_ context.Context, ev *types.Event) error {
	day := l.dayOf(ev)
	lock := l.getLock(day)
	lock.Lock()
	defer lock.Unlock()

	path := l.path(day)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create events dir: %w", err)
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// ReadDay returns all events logged for the given day (YYYY-MM-DD), in
// append order. A missing day yields no events and no error.
func (l *EventLog) ReadDay(_ context.Context, day string) ([]*types.Event, error) {
	lock := l.getLock(day)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.Open(l.path(day))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	var events []*types.Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev types.Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			return nil, fmt.Errorf("unmarshal event: %w", err)
		}
		events = append(events, &ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan event log: %w", err)
	}
	return events, nil
}

// CountDay returns the number of events logged for the given day.
func (l *EventLog) CountDay(ctx context.Context, day string) (int64, error) {
	events, err := l.ReadDay(ctx, day)
	if err != nil {
		return 0, err
	}
	return int64(len(events)), nil
}
