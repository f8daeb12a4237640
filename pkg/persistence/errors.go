// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
	"strings"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrAlreadyExists indicates a record with the same identifier already exists.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrWorkOrderNotFound indicates an update targeted a work order that does not exist.
	ErrWorkOrderNotFound = errors.New("work order not found")

	// ErrStaleWorkOrder indicates the stored work order changed since it was read.
	ErrStaleWorkOrder = errors.New("work order was modified concurrently")

	// ErrSessionNotFound indicates an update targeted a session that does not exist.
	ErrSessionNotFound = errors.New("work session not found")
)

// RecordError wraps a persistence failure with the operation and record involved.
type RecordError struct {
	Op   string // Operation being performed (e.g., "Create", "Update")
	Kind string // Record kind ("work_order", "template", "station", "session")
	ID   string // Record ID if applicable
	Err  error  // Underlying error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Kind, e.ID, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for record errors.
func (e *RecordError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRecordError creates a new record error with context.
func NewRecordError(op, kind, id string, err error) *RecordError {
	return &RecordError{
		Op:   op,
		Kind: kind,
		ID:   id,
		Err:  err,
	}
}

// IsAlreadyExists checks if an error indicates a duplicate record.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsStaleWorkOrder checks if an error indicates a lost optimistic update.
func IsStaleWorkOrder(err error) bool {
	return errors.Is(err, ErrStaleWorkOrder)
}

// IsWorkOrderNotFound checks if an error indicates a missing work order.
func IsWorkOrderNotFound(err error) bool {
	return errors.Is(err, ErrWorkOrderNotFound)
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
