// internal/types/validate.go
package types

import (
	"fmt"
	"strings"
)

const (
	MaxEventNameLen = 128
	MaxUserIDLen    = 128
)

// FieldError describes a single field's validation failure.
type FieldError struct {
	Field string `json:"field"`
	Msg   string `json:"message"`
}

func (e FieldError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Msg) }

// ValidationError is returned for malformed intake payloads. Events that fail
// validation never enter the batch queue.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, fe := range e.Fields {
		msgs = append(msgs, fe.Error())
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// ValidateEvent checks required event fields. Returns nil or a *ValidationError.
// A nil event is rejected like any other malformed payload; JSON arrays may
// carry null elements that decode to nil pointers.
func ValidateEvent(ev *Event) error {
	if ev == nil {
		return &ValidationError{Fields: []FieldError{{"event", "must not be null"}}}
	}

	var errs []FieldError

	if ev.EventName == "" {
		errs = append(errs, FieldError{"eventName", "required"})
	} else if len(ev.EventName) > MaxEventNameLen {
		errs = append(errs, FieldError{"eventName", fmt.Sprintf("max length %d", MaxEventNameLen)})
	}

	if ev.Timestamp <= 0 {
		errs = append(errs, FieldError{"timestampMs", "required epoch milliseconds"})
	}

	if len(ev.UserID) > MaxUserIDLen {
		errs = append(errs, FieldError{"userId", fmt.Sprintf("max length %d", MaxUserIDLen)})
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
