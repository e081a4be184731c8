// internal/scheduler/scheduler.go
package scheduler

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Handler is the callback invoked on each flush tick.
type Handler func()

// Scheduler fires the flush handler on a fixed interval, bounding worst-case
// latency for partial batches that never reach capacity.
type Scheduler struct {
	interval time.Duration
	handler  Handler
	cron     *cron.Cron
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field, plus descriptors like @every.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// New creates a Scheduler that calls handler every interval.
func New(interval time.Duration, handler Handler) *Scheduler {
	return &Scheduler{
		interval: interval,
		handler:  handler,
		cron:     cron.New(cron.WithParser(cronParser)),
	}
}

// Start registers the interval entry and starts the cron ticker.
func (s *Scheduler) Start() error {
	spec := fmt.Sprintf("@every %s", s.interval)
	_, err := s.cron.AddFunc(spec, func() {
		slog.Debug("flush tick", "interval", s.interval.String())
		s.handler()
	})
	if err != nil {
		return fmt.Errorf("register flush tick: %w", err)
	}
	s.cron.Start()
	slog.Info("flush scheduler started", "interval", s.interval.String())
	return nil
}

// Stop stops the cron ticker.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
