// internal/notify/registry_test.go
package notify

import (
	"context"
	"errors"
	"testing"
)

type recordingSink struct {
	channels []string
	err      error
}

func (s *recordingSink) Broadcast(_ context.Context, channel string, _ map[string]any) error {
	s.channels = append(s.channels, channel)
	return s.err
}

func TestRegistryRoutesByPrefix(t *testing.T) {
	analytics := &recordingSink{}
	alerts := &recordingSink{}

	r := NewRegistry()
	r.Register("analytics:", analytics)
	r.Register("alerts:", alerts)

	if err := r.Broadcast(context.Background(), "analytics:batches", map[string]any{"k": "v"}); err != nil {
		t.Fatal(err)
	}
	if len(analytics.channels) != 1 || len(alerts.channels) != 0 {
		t.Errorf("expected only the analytics sink to fire, got %v / %v", analytics.channels, alerts.channels)
	}
}

func TestRegistryFansOutToAllMatches(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{err: errors.New("sink down")}

	r := NewRegistry()
	r.Register("analytics:", a)
	r.Register("analytics:batches", b)

	err := r.Broadcast(context.Background(), "analytics:batches", nil)
	if err == nil {
		t.Fatal("expected joined sink error")
	}
	// The healthy sink still received the payload.
	if len(a.channels) != 1 {
		t.Errorf("expected healthy sink to fire, got %v", a.channels)
	}
}

func TestRegistryNoSink(t *testing.T) {
	r := NewRegistry()
	if err := r.Broadcast(context.Background(), "unknown:channel", nil); err == nil {
		t.Fatal("expected error for unmatched channel")
	}
}
