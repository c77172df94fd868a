package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrSnapshotNotFound indicates no snapshot exists for the project.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrSnapshotCorrupted indicates a stored snapshot failed schema
	// validation or decoding. Callers are expected to start from an empty
	// state rather than propagate this.
	ErrSnapshotCorrupted = errors.New("snapshot corrupted")
)

// SnapshotError wraps snapshot store failures with operation context.
type SnapshotError struct {
	Op        string // Operation being performed (e.g. "Save", "Load")
	ProjectID string
	Err       error
}

func (e *SnapshotError) Error() string {
	return fmt.Sprintf("%s operation failed for project %s: %v", e.Op, e.ProjectID, e.Err)
}

func (e *SnapshotError) Unwrap() error {
	return e.Err
}

func (e *SnapshotError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewSnapshotError creates a snapshot error with context.
func NewSnapshotError(op, projectID string, err error) *SnapshotError {
	return &SnapshotError{
		Op:        op,
		ProjectID: projectID,
		Err:       err,
	}
}

// IsSnapshotNotFound checks if an error indicates a missing snapshot.
func IsSnapshotNotFound(err error) bool {
	return errors.Is(err, ErrSnapshotNotFound)
}

// IsSnapshotCorrupted checks if an error indicates an unreadable snapshot.
func IsSnapshotCorrupted(err error) bool {
	return errors.Is(err, ErrSnapshotCorrupted)
}
