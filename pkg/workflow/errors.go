// Package workflow provides standardized error types for manager operations.
package workflow

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/planion/planion/pkg/models"
)

// Error codes carried to callers in structured results.
const (
	CodeValidationError   = "validation_error"
	CodeNotFound          = "not_found"
	CodeInvalidTransition = "invalid_transition"
	CodePersistenceError  = "persistence_error"
	CodeUnknownCommand    = "unknown_command"
	CodeInternalError     = "internal_error"
)

var (
	// ErrNoActivePlan indicates an operation requires a current plan and none exists.
	ErrNoActivePlan = errors.New("no active plan")

	// ErrTaskNotFound indicates the referenced task does not exist in the current plan.
	ErrTaskNotFound = errors.New("task not found")

	// ErrNoActionableTask indicates no task is available to focus on.
	ErrNoActionableTask = errors.New("no actionable task")

	// ErrProjectIDRequired indicates a caller addressed the registry without
	// naming a project.
	ErrProjectIDRequired = errors.New("project id is required")

	// ErrSnapshotFailed indicates the in-memory mutation succeeded but the
	// snapshot could not be persisted. Durability is at risk; the logical
	// operation is complete.
	ErrSnapshotFailed = errors.New("snapshot save failed")
)

// OperationError is the typed failure returned by manager operations. It
// carries a stable code and a human-readable message; it is never a raw
// stack trace.
type OperationError struct {
	Op      string
	Code    string
	Message string
	Err     error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

func (e *OperationError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// ErrorCode extracts the stable code from an operation error, mapping
// untyped errors to internal_error.
func ErrorCode(err error) string {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.Code
	}

	switch {
	case errors.Is(err, ErrProjectIDRequired):
		return CodeValidationError
	case errors.Is(err, ErrSnapshotFailed):
		return CodePersistenceError
	case errors.Is(err, ErrNoActivePlan), errors.Is(err, ErrNoActionableTask):
		return CodeInvalidTransition
	case errors.Is(err, ErrTaskNotFound):
		return CodeNotFound
	}

	return CodeInternalError
}

func newValidationError(op string, err error) *OperationError {
	return &OperationError{Op: op, Code: CodeValidationError, Message: err.Error(), Err: err}
}

func newNotFoundError(op, taskID string) *OperationError {
	return &OperationError{
		Op:      op,
		Code:    CodeNotFound,
		Message: fmt.Sprintf("task %s not found", taskID),
		Err:     ErrTaskNotFound,
	}
}

func newTransitionError(op string, err error) *OperationError {
	return &OperationError{Op: op, Code: CodeInvalidTransition, Message: err.Error(), Err: err}
}

// classify wraps a domain or validator error into the matching typed
// operation error.
func classify(op string, err error) *OperationError {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		return newValidationError(op, err)
	}

	switch {
	case errors.Is(err, models.ErrTaskCompleted),
		errors.Is(err, models.ErrTaskResolved),
		errors.Is(err, models.ErrTaskBlocked),
		errors.Is(err, models.ErrTaskNotBlocked),
		errors.Is(err, models.ErrPlanResolved),
		errors.Is(err, models.ErrPlanArchived),
		errors.Is(err, ErrNoActivePlan),
		errors.Is(err, ErrNoActionableTask):
		return newTransitionError(op, err)
	case errors.Is(err, ErrTaskNotFound):
		return &OperationError{Op: op, Code: CodeNotFound, Message: err.Error(), Err: err}
	}

	return &OperationError{Op: op, Code: CodeInternalError, Message: err.Error(), Err: err}
}

// IsValidationError checks if an error is a bad-input failure.
func IsValidationError(err error) bool {
	var opErr *OperationError

	return errors.As(err, &opErr) && opErr.Code == CodeValidationError
}

// IsNotFound checks if an error references a missing aggregate.
func IsNotFound(err error) bool {
	var opErr *OperationError

	return errors.As(err, &opErr) && opErr.Code == CodeNotFound
}

// IsInvalidTransition checks if an error is a rejected state transition.
func IsInvalidTransition(err error) bool {
	var opErr *OperationError

	return errors.As(err, &opErr) && opErr.Code == CodeInvalidTransition
}
