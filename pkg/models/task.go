package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"        // Created, not started
	TaskStatusInProgress TaskStatus = "in_progress" // Actively being worked on
	TaskStatusCompleted  TaskStatus = "completed"   // Terminal, finished successfully
	TaskStatusCancelled  TaskStatus = "cancelled"   // Terminal, cancelled or failed
)

// Output keys used for the blocked side-state. Blocking does not change the
// task status; the prior status is stashed here and restored on unblock.
const (
	OutputBlockedReason     = "blocked_reason"
	OutputBlockedAt         = "blocked_at"
	OutputStatusBeforeBlock = "status_before_block"
)

// Task is a single actionable item inside a plan.
type Task struct {
	ID              string         `json:"id"`
	Title           string         `json:"title"                      validate:"required,max=200"`
	Description     string         `json:"description"`
	Status          TaskStatus     `json:"status"                     validate:"required"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	DurationSeconds *float64       `json:"duration_seconds,omitempty"`
	Notes           []string       `json:"notes,omitempty"`
	Outputs         map[string]any `json:"outputs,omitempty"`
}

// NewTask creates a task in the todo status. The title is trimmed and must be
// non-empty and at most 200 characters.
func NewTask(title, description string) (*Task, error) {
	now := time.Now().UTC()

	task := &Task{
		ID:          uuid.New().String(),
		Title:       strings.TrimSpace(title),
		Description: strings.TrimSpace(description),
		Status:      TaskStatusTodo,
		CreatedAt:   now,
		UpdatedAt:   now,
		Outputs:     make(map[string]any),
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks the task against its struct constraints.
func (t *Task) Validate() error {
	return validate.Struct(t)
}

// Resolved reports whether the task reached a terminal status.
func (t *Task) Resolved() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusCancelled
}

// Blocked reports whether the task carries the blocked side-state.
func (t *Task) Blocked() bool {
	if t.Outputs == nil {
		return false
	}

	_, blocked := t.Outputs[OutputBlockedReason]

	return blocked
}

// Start moves the task into in_progress. A blocked task is unblocked first. A
// cancelled task may be restarted (this is the retry path); a completed task
// may not.
func (t *Task) Start() error {
	if t.Status == TaskStatusCompleted {
		return ErrTaskCompleted
	}

	if t.Blocked() {
		t.clearBlockState()
	}

	t.Status = TaskStatusInProgress

	now := time.Now().UTC()
	if t.StartedAt == nil {
		t.StartedAt = &now
	}

	t.UpdatedAt = now

	return nil
}

// Complete moves the task into the completed terminal status. Completing an
// already-completed task is a no-op success. The optional note is appended
// with a completion prefix.
func (t *Task) Complete(note string) error {
	if t.Status == TaskStatusCompleted {
		return nil
	}

	if t.Blocked() {
		t.clearBlockState()
	}

	now := time.Now().UTC()
	t.Status = TaskStatusCompleted
	t.CompletedAt = &now
	t.UpdatedAt = now

	if t.StartedAt != nil {
		duration := now.Sub(*t.StartedAt).Seconds()
		t.DurationSeconds = &duration
	}

	if note != "" {
		t.Notes = append(t.Notes, "Completed: "+note)
	}

	return nil
}

// Fail records a failure and moves the task into the cancelled terminal
// status. Failure detail is kept as a note; there is no separate failed
// status.
func (t *Task) Fail(errMessage string) error {
	if t.Status == TaskStatusCompleted {
		return ErrTaskCompleted
	}

	if t.Blocked() {
		t.clearBlockState()
	}

	t.Status = TaskStatusCancelled
	t.Notes = append(t.Notes, "Failed: "+errMessage)
	t.UpdatedAt = time.Now().UTC()

	return nil
}

// Cancel moves the task into the cancelled terminal status. Cancelling an
// already-cancelled task is a no-op success.
func (t *Task) Cancel(reason string) error {
	if t.Status == TaskStatusCompleted {
		return ErrTaskCompleted
	}

	if t.Status == TaskStatusCancelled {
		return nil
	}

	if t.Blocked() {
		t.clearBlockState()
	}

	t.Status = TaskStatusCancelled
	t.UpdatedAt = time.Now().UTC()

	if reason != "" {
		t.Notes = append(t.Notes, "Cancelled: "+reason)
	}

	return nil
}

// Block records the blocked side-state, preserving the current status so it
// can be restored on unblock.
func (t *Task) Block(reason string) error {
	if t.Resolved() {
		return ErrTaskResolved
	}

	if t.Blocked() {
		return ErrTaskBlocked
	}

	now := time.Now().UTC()

	if t.Outputs == nil {
		t.Outputs = make(map[string]any)
	}

	t.Outputs[OutputBlockedReason] = reason
	t.Outputs[OutputBlockedAt] = now.Format(time.RFC3339)
	t.Outputs[OutputStatusBeforeBlock] = string(t.Status)

	t.Notes = append(t.Notes, "Blocked: "+reason)
	t.UpdatedAt = now

	return nil
}

// Unblock clears the blocked side-state and restores the status the task had
// when it was blocked.
func (t *Task) Unblock() error {
	if !t.Blocked() {
		return ErrTaskNotBlocked
	}

	if prior, ok := t.Outputs[OutputStatusBeforeBlock].(string); ok {
		t.Status = TaskStatus(prior)
	}

	t.clearBlockState()

	t.Notes = append(t.Notes, "Unblocked")
	t.UpdatedAt = time.Now().UTC()

	return nil
}

// AddNote appends a free-text annotation.
func (t *Task) AddNote(note string) {
	t.Notes = append(t.Notes, note)
	t.UpdatedAt = time.Now().UTC()
}

// Clone returns a deep copy safe to hand to readers outside the manager
// lock.
func (t *Task) Clone() *Task {
	clone := *t

	clone.Notes = make([]string, len(t.Notes))
	copy(clone.Notes, t.Notes)

	clone.Outputs = make(map[string]any, len(t.Outputs))
	for k, v := range t.Outputs {
		clone.Outputs[k] = v
	}

	if t.StartedAt != nil {
		startedAt := *t.StartedAt
		clone.StartedAt = &startedAt
	}

	if t.CompletedAt != nil {
		completedAt := *t.CompletedAt
		clone.CompletedAt = &completedAt
	}

	if t.DurationSeconds != nil {
		duration := *t.DurationSeconds
		clone.DurationSeconds = &duration
	}

	return &clone
}

func (t *Task) clearBlockState() {
	delete(t.Outputs, OutputBlockedReason)
	delete(t.Outputs, OutputBlockedAt)
	delete(t.Outputs, OutputStatusBeforeBlock)
}
