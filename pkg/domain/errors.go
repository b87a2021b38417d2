package domain

import (
	"errors"
	"fmt"
)

// ValidationError reports a malformed or missing field. It is raised before
// any store state is touched and surfaced verbatim to the caller.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validationf builds a ValidationError for the named field.
func Validationf(field, format string, args ...any) error {
	return ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ConflictError reports a business conflict detected inside the critical
// section: insufficient stock, duplicate keys, wrong-state transitions, or an
// unauthorized actor. State is left unchanged.
type ConflictError struct {
	Message string
}

func (e ConflictError) Error() string { return e.Message }

// Conflictf builds a ConflictError.
func Conflictf(format string, args ...any) error {
	return ConflictError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing entity reference.
type NotFoundError struct {
	Entity EntityType
	ID     int64
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v ValidationError
	return errors.As(err, &v)
}

// IsConflict reports whether err is a ConflictError or a blocked-commit
// RuleViolationError; both leave state unchanged and are ordinary business
// outcomes, not faults.
func IsConflict(err error) bool {
	var c ConflictError
	if errors.As(err, &c) {
		return true
	}
	var r RuleViolationError
	return errors.As(err, &r)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var n NotFoundError
	return errors.As(err, &n)
}
