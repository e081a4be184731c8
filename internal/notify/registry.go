// internal/notify/registry.go
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Sink delivers a payload to a notification channel.
type Sink interface {
	Broadcast(ctx context.Context, channel string, payload map[string]any) error
}

// Registry fans broadcasts out to every sink registered under a prefix that
// matches the channel name (e.g. "analytics:", "telegram:"). It satisfies
// the processor's Notifier interface.
type Registry struct {
	mu    sync.RWMutex
	sinks map[string][]Sink
}

// NewRegistry creates an empty notification registry.
func NewRegistry() *Registry {
	return &Registry{
		sinks: make(map[string][]Sink),
	}
}

// Register adds a sink for channels starting with prefix. Multiple sinks may
// share a prefix; all of them receive matching broadcasts.
func (r *Registry) Register(prefix string, sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[prefix] = append(r.sinks[prefix], sink)
}

// Broadcast delivers the payload to every matching sink. Sink errors are
// joined so the caller can log them; a channel with no matching sink is an
// error too.
func (r *Registry) Broadcast(ctx context.Context, channel string, payload map[string]any) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	matched := false
	for prefix, sinks := range r.sinks {
		if !strings.HasPrefix(channel, prefix) {
			continue
		}
		for _, sink := range sinks {
			matched = true
			if err := sink.Broadcast(ctx, channel, payload); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if !matched {
		return fmt.Errorf("no notification sink for channel: %s", channel)
	}
	return errors.Join(errs...)
}
