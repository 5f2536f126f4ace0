// Package util provides logging, error types and small helpers shared by
// every vfd package.
package util

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Every typed error below unwraps to one of these so
// callers can classify a failure with errors.Is.
var (
	ErrNotLocked          = errors.New("config store not locked for changes")
	ErrNotFound           = errors.New("resource not found")
	ErrConflict           = errors.New("resource conflict")
	ErrResourceExhausted  = errors.New("resource exhausted")
	ErrValidationFailed   = errors.New("validation failed")
	ErrPreconditionFailed = errors.New("precondition not met")
	ErrInternal           = errors.New("internal error")
	ErrEventRejected      = errors.New("hardware event rejected")
)

// PreconditionError represents a failed precondition check with context
type PreconditionError struct {
	Operation    string
	Resource     string
	Precondition string
	Details      string
}

func (e *PreconditionError) Error() string {
	msg := fmt.Sprintf("precondition failed for %s on %s: %s", e.Operation, e.Resource, e.Precondition)
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	return msg
}

func (e *PreconditionError) Unwrap() error {
	return ErrPreconditionFailed
}

// NewPreconditionError creates a new precondition error
func NewPreconditionError(operation, resource, precondition, details string) *PreconditionError {
	return &PreconditionError{
		Operation:    operation,
		Resource:     resource,
		Precondition: precondition,
		Details:      details,
	}
}

// ValidationError is a rejected request. Its reason is returned verbatim
// to the administrative caller, so Error() carries no prefix when there is
// a single reason.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0]
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// NewValidationError creates a validation error from messages
func NewValidationError(messages ...string) *ValidationError {
	return &ValidationError{Errors: messages}
}

// ValidationBuilder helps accumulate validation errors
type ValidationBuilder struct {
	errors []string
}

// Add adds an error message if condition is false
func (v *ValidationBuilder) Add(condition bool, message string) *ValidationBuilder {
	if !condition {
		v.errors = append(v.errors, message)
	}
	return v
}

// AddErrorf adds a formatted error message
func (v *ValidationBuilder) AddErrorf(format string, args ...interface{}) *ValidationBuilder {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
	return v
}

// HasErrors returns true if there are validation errors
func (v *ValidationBuilder) HasErrors() bool {
	return len(v.errors) > 0
}

// Build returns the validation error or nil if no errors
func (v *ValidationBuilder) Build() error {
	if len(v.errors) == 0 {
		return nil
	}
	return &ValidationError{Errors: v.errors}
}

// ConflictError reports a duplicate VF id, MAC or VLAN.
type ConflictError struct {
	Resource string
	Reason   string
}

func (e *ConflictError) Error() string {
	return e.Reason
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// NewConflictError creates a conflict error
func NewConflictError(resource, format string, args ...interface{}) *ConflictError {
	return &ConflictError{Resource: resource, Reason: fmt.Sprintf(format, args...)}
}

// ResourceExhaustedError reports that a capacity cap was hit.
type ResourceExhaustedError struct {
	Resource string
	Limit    int
	Reason   string
}

func (e *ResourceExhaustedError) Error() string {
	return e.Reason
}

func (e *ResourceExhaustedError) Unwrap() error {
	return ErrResourceExhausted
}

// NewResourceExhaustedError creates a capacity error
func NewResourceExhaustedError(resource string, limit int, format string, args ...interface{}) *ResourceExhaustedError {
	return &ResourceExhaustedError{Resource: resource, Limit: limit, Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an unknown port or VF.
type NotFoundError struct {
	Kind string
	Name string
	// Reason replaces the default message when set.
	Reason string
}

func (e *NotFoundError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return fmt.Sprintf("%s %s not found", e.Kind, e.Name)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NewNotFoundError creates a not-found error
func NewNotFoundError(kind, name string) *NotFoundError {
	return &NotFoundError{Kind: kind, Name: name}
}

// InternalError fails a single request without affecting the daemon.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return "internal mishap: " + e.Op
	}
	return fmt.Sprintf("internal mishap: %s: %v", e.Op, e.Err)
}

func (e *InternalError) Unwrap() []error {
	return []error{ErrInternal, e.Err}
}

// NewInternalError wraps err as an internal error for op
func NewInternalError(op string, err error) *InternalError {
	return &InternalError{Op: op, Err: err}
}

// EventRejectedError is the error form of a mailbox NoopNack.
type EventRejectedError struct {
	Event  string
	Port   string
	VF     int
	Reason string
}

func (e *EventRejectedError) Error() string {
	return fmt.Sprintf("%s event rejected for %s/%d: %s", e.Event, e.Port, e.VF, e.Reason)
}

func (e *EventRejectedError) Unwrap() error {
	return ErrEventRejected
}

// NewEventRejectedError creates a hardware event rejection
func NewEventRejectedError(event, port string, vf int, reason string) *EventRejectedError {
	return &EventRejectedError{Event: event, Port: port, VF: vf, Reason: reason}
}
