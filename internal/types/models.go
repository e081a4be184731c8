// internal/types/models.go
package types

import (
	"time"
)

// BatchStatus is the lifecycle state of a Batch.
type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
)

// Event is a single analytics event. Immutable once created; identity is ID.
type Event struct {
	ID         EventID        `json:"id"`
	EventName  string         `json:"eventName"`
	UserID     string         `json:"userId,omitempty"`
	SessionID  string         `json:"sessionId,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
	Timestamp  int64          `json:"timestampMs"`
}

// Batch groups events that flush together. The event list may grow only while
// the batch is pending and open; once it moves to processing the list is
// frozen and owned by the drain loop.
type Batch struct {
	ID        BatchID     `json:"id"`
	Events    []*Event    `json:"events"`
	CreatedAt int64       `json:"createdAtMs"`
	Status    BatchStatus `json:"status"`
}

// NewBatch creates an empty pending batch with a fresh id.
func NewBatch() *Batch {
	return &Batch{
		ID:        NewBatchID(),
		Status:    BatchPending,
		CreatedAt: time.Now().UnixMilli(),
	}
}

// BehaviorEntry is the per-event summary kept in a user's behavior window.
type BehaviorEntry struct {
	EventName  string         `json:"eventName"`
	Timestamp  int64          `json:"timestampMs"`
	Properties map[string]any `json:"properties,omitempty"`
}

// BehaviorRecord is a user's rolling window of recent events, newest last.
type BehaviorRecord struct {
	Events       []BehaviorEntry `json:"events"`
	LastActivity int64           `json:"lastActivityMs"`
}
