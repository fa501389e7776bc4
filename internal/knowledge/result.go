package knowledge

import (
	"fmt"
	"strings"
)

// Statuses returned in structured tool results. Validation failures,
// missing entities, and duplicate detections are results, not errors:
// they resolve locally and every tool returns a well-formed payload.
const (
	StatusAdded     = "added"
	StatusUpdated   = "updated"
	StatusDeleted   = "deleted"
	StatusOK        = "ok"
	StatusNotFound  = "not_found"
	StatusDuplicate = "duplicate"
	StatusError     = "error"
)

// ErrNotInitialized is returned when a tool is called before the store
// gateway is ready. Fatal to the call, never retried.
var ErrNotInitialized = fmt.Errorf("memory store not initialized")

// ValidationError reports a bad enumeration value. It carries the field,
// the rejected value, and the allowed values so the caller can self-fix.
type ValidationError struct {
	Field   string
	Value   string
	Allowed []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("Invalid %s '%s'. Must be one of: %s",
		e.Field, e.Value, strings.Join(e.Allowed, ", "))
}

// ErrorResult is the structured payload for a failed tool call.
type ErrorResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// NewErrorResult wraps a message in the error status shape.
func NewErrorResult(format string, args ...any) ErrorResult {
	return ErrorResult{Status: StatusError, Message: fmt.Sprintf(format, args...)}
}
