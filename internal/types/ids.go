// internal/types/ids.go
package types

import (
	"github.com/google/uuid"
)

type EventID string
type BatchID string

func NewEventID() EventID {
	return EventID(uuid.New().String())
}

func NewBatchID() BatchID {
	return BatchID(uuid.New().String())
}
