// internal/processor/notify.go
package processor

import (
	"context"
	"log/slog"
	"time"

	"github.com/user/eventflow/internal/types"
)

// notifyProcessed broadcasts a batch-completion notice. Best effort: a
// failure is logged and swallowed, and never changes the batch's status.
func (p *Processor) notifyProcessed(id types.BatchID, eventCount int) {
	ctx := p.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	payload := map[string]any{
		"type":        "batch_processed",
		"batchId":     string(id),
		"eventCount":  eventCount,
		"timestampMs": time.Now().UnixMilli(),
	}
	if err := p.notifier.Broadcast(ctx, p.cfg.NotifyChannel, payload); err != nil {
		slog.Warn("batch notification failed", "batch_id", string(id), "channel", p.cfg.NotifyChannel, "error", err)
	}
}
