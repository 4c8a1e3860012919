package utils

import (
	"errors"
	"fmt"
)

var ErrorRecordNotFound = errors.New("record not found")

// ValidationError is returned when input fails validation or an operation is
// not allowed for the current state (illegal status transition, over-reception,
// negative stock result). Validation errors are never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field string, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// NotFoundError wraps ErrorRecordNotFound with the entity that was missing.
type NotFoundError struct {
	Entity string
	Id     any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v: %s", e.Entity, e.Id, ErrorRecordNotFound.Error())
}

func (e *NotFoundError) Unwrap() error { return ErrorRecordNotFound }

func NewNotFoundError(entity string, id any) error {
	return &NotFoundError{Entity: entity, Id: id}
}

// ConflictError marks concurrent-write conflicts (duplicate ledger key,
// deadlock, lock wait timeout). Callers may retry a bounded number of times;
// see RunInTransactionWithRetry.
type ConflictError struct {
	Message string
	Cause   error
}

func (e *ConflictError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ConflictError) Unwrap() error { return e.Cause }

func NewConflictError(message string, cause error) error {
	return &ConflictError{Message: message, Cause: cause}
}

func IsConflictError(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// DependencyError marks a failure in an external collaborator (mailer, lock
// service). The triggering state change is rolled back or compensated.
type DependencyError struct {
	Dependency string
	Cause      error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("dependency %s failed: %v", e.Dependency, e.Cause)
}

func (e *DependencyError) Unwrap() error { return e.Cause }

func NewDependencyError(dependency string, cause error) error {
	return &DependencyError{Dependency: dependency, Cause: cause}
}

// DataIntegrityWarning is a non-fatal inconsistency found by the repair and
// reconciliation jobs. It is reported (reconciliation_reports) and logged,
// never returned as a hard failure of the run.
type DataIntegrityWarning struct {
	EntityType string
	EntityId   string
	Message    string
}

func (e *DataIntegrityWarning) Error() string {
	return fmt.Sprintf("data integrity warning on %s %s: %s", e.EntityType, e.EntityId, e.Message)
}
