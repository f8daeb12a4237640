package models

import (
	"errors"
	"fmt"
	"time"
)

// Action names a work order state machine action.
type Action string

const (
	ActionApprove      Action = "approve"
	ActionReject       Action = "reject"
	ActionStartWork    Action = "start_work"
	ActionCompleteStep Action = "complete_step"
)

// Error codes shared by the HTTP adapter and log records.
const (
	CodeValidation        = "INVALID_INPUT"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeNotApplicable     = "STATION_NOT_APPLICABLE"
	CodeNoOpenWork        = "NO_OPEN_WORK"
	CodeConflict          = "CONFLICT"
	CodeNotFound          = "NOT_FOUND"
	CodeForbidden         = "FORBIDDEN"
)

// Sentinels matched by the typed errors below through errors.Is.
var (
	ErrValidation           = errors.New("validation failed")
	ErrInvalidTransition    = errors.New("invalid transition")
	ErrStationNotApplicable = errors.New("station not applicable")
	ErrNoOpenWork           = errors.New("no open work")
	ErrOccupancyConflict    = errors.New("station occupied")
	ErrNotFound             = errors.New("not found")
	ErrForbidden            = errors.New("forbidden")
)

// ValidationError reports a malformed or unknown identifier or payload field.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}

	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a validation error for field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// InvalidTransitionError reports an action the current status does not allow.
type InvalidTransitionError struct {
	From            WorkOrderStatus
	AttemptedAction Action
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s a work order in status %s", e.AttemptedAction, e.From)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// StationNotApplicableError reports a station that is not a legal next step.
type StationNotApplicableError struct {
	WorkOrderID string
	StationID   string
	Status      WorkOrderStatus
}

func (e *StationNotApplicableError) Error() string {
	return fmt.Sprintf("station %s is not a valid next step for work order %s (status %s)",
		e.StationID, e.WorkOrderID, e.Status)
}

func (e *StationNotApplicableError) Is(target error) bool {
	return target == ErrStationNotApplicable
}

// NoOpenWorkError reports a completion for a station with no open history entry.
type NoOpenWorkError struct {
	WorkOrderID string
	StationID   string
}

func (e *NoOpenWorkError) Error() string {
	return fmt.Sprintf("work order %s has no open work at station %s", e.WorkOrderID, e.StationID)
}

func (e *NoOpenWorkError) Is(target error) bool {
	return target == ErrNoOpenWork
}

// ConflictError reports that another operator holds the station.
type ConflictError struct {
	StationID       string
	CurrentOccupant string
	Since           time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("station %s is occupied by operator %s", e.StationID, e.CurrentOccupant)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrOccupancyConflict
}

// NotFoundError reports a missing work order, template or station.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ForbiddenError reports an actor whose role does not permit the action.
type ForbiddenError struct {
	ActorID string
	Role    Role
	Action  Action
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("actor %s with role %q may not %s", e.ActorID, e.Role, e.Action)
}

func (e *ForbiddenError) Is(target error) bool {
	return target == ErrForbidden
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

func IsStationNotApplicable(err error) bool {
	return errors.Is(err, ErrStationNotApplicable)
}

func IsNoOpenWork(err error) bool {
	return errors.Is(err, ErrNoOpenWork)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrOccupancyConflict)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// Code maps an error from the taxonomy to its code, or "" if it is not one.
func Code(err error) string {
	switch {
	case IsValidation(err):
		return CodeValidation
	case IsInvalidTransition(err):
		return CodeInvalidTransition
	case IsStationNotApplicable(err):
		return CodeNotApplicable
	case IsNoOpenWork(err):
		return CodeNoOpenWork
	case IsConflict(err):
		return CodeConflict
	case IsNotFound(err):
		return CodeNotFound
	case IsForbidden(err):
		return CodeForbidden
	default:
		return ""
	}
}
