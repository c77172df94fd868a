// Package events defines the immutable event records emitted on every
// workflow state transition and the factories that construct them.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/planion/planion/pkg/models"
)

// Topic is the bus topic carrying workflow events.
const Topic = "planion.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

// EventType identifies one kind of workflow state transition. The set is
// closed; the wire token is the lowercase snake_case value.
type EventType string

const (
	PlanCreatedEvent   EventType = "plan_created"
	PlanStartedEvent   EventType = "plan_started"
	PlanCompletedEvent EventType = "plan_completed"
	PlanArchivedEvent  EventType = "plan_archived"
	PlanPausedEvent    EventType = "plan_paused"

	TaskAddedEvent     EventType = "task_added"
	TaskStartedEvent   EventType = "task_started"
	TaskCompletedEvent EventType = "task_completed"
	TaskFailedEvent    EventType = "task_failed"
	TaskBlockedEvent   EventType = "task_blocked"
	TaskUnblockedEvent EventType = "task_unblocked"
	TaskCancelledEvent EventType = "task_cancelled"

	NoteAddedEvent   EventType = "note_added"
	SystemErrorEvent EventType = "system_error"
)

// AllEventTypes lists every member of the closed event type set in a stable
// order.
func AllEventTypes() []EventType {
	return []EventType{
		PlanCreatedEvent,
		PlanStartedEvent,
		PlanCompletedEvent,
		PlanArchivedEvent,
		PlanPausedEvent,
		TaskAddedEvent,
		TaskStartedEvent,
		TaskCompletedEvent,
		TaskFailedEvent,
		TaskBlockedEvent,
		TaskUnblockedEvent,
		TaskCancelledEvent,
		NoteAddedEvent,
		SystemErrorEvent,
	}
}

// Valid reports whether the event type is a member of the closed set.
func (t EventType) Valid() bool {
	for _, known := range AllEventTypes() {
		if t == known {
			return true
		}
	}

	return false
}

// SystemActor is the principal recorded on events not attributed to a caller.
const SystemActor = "system"

// Detail keys populated by the factories.
const (
	DetailName           = "name"
	DetailDescription    = "description"
	DetailTitle          = "title"
	DetailPosition       = "position"
	DetailNote           = "note"
	DetailReason         = "reason"
	DetailError          = "error"
	DetailFailed         = "failed"
	DetailOperation      = "operation"
	DetailDuration       = "duration_seconds"
	DetailRestoredStatus = "restored_status"
	DetailTotalTasks     = "total_tasks"
	DetailCompletedTasks = "completed_tasks"
)

// WorkflowEvent is an immutable record of a state transition that has already
// happened. Once appended to the event store it is never mutated or removed.
type WorkflowEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	PlanID    string         `json:"plan_id"`
	TaskID    string         `json:"task_id,omitempty"`
	Actor     string         `json:"actor"`
	Details   map[string]any `json:"details,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// GetType implements the event bus Event interface.
func (e *WorkflowEvent) GetType() EventType {
	return e.Type
}

func newEvent(eventType EventType, planID, taskID string, details map[string]any) *WorkflowEvent {
	return &WorkflowEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		PlanID:    planID,
		TaskID:    taskID,
		Actor:     SystemActor,
		Details:   details,
	}
}

// NewPlanCreated records the creation of a plan.
func NewPlanCreated(plan *models.Plan) *WorkflowEvent {
	return newEvent(PlanCreatedEvent, plan.ID, "", map[string]any{
		DetailName:        plan.Name,
		DetailDescription: plan.Description,
	})
}

// NewPlanStarted records the activation of a plan.
func NewPlanStarted(plan *models.Plan) *WorkflowEvent {
	return newEvent(PlanStartedEvent, plan.ID, "", map[string]any{
		DetailName: plan.Name,
	})
}

// NewPlanCompleted records the completion of a plan with its final counts.
func NewPlanCompleted(plan *models.Plan) *WorkflowEvent {
	stats := plan.Stats()

	return newEvent(PlanCompletedEvent, plan.ID, "", map[string]any{
		DetailName:           plan.Name,
		DetailTotalTasks:     stats.TotalTasks,
		DetailCompletedTasks: stats.CompletedTasks,
	})
}

// NewPlanArchived records the archival of a plan.
func NewPlanArchived(plan *models.Plan) *WorkflowEvent {
	return newEvent(PlanArchivedEvent, plan.ID, "", map[string]any{
		DetailName: plan.Name,
	})
}

// NewPlanPaused records an escalation pausing work on a plan.
func NewPlanPaused(plan *models.Plan, reason string) *WorkflowEvent {
	return newEvent(PlanPausedEvent, plan.ID, "", map[string]any{
		DetailName:   plan.Name,
		DetailReason: reason,
	})
}

// NewTaskAdded records a task being appended to a plan.
func NewTaskAdded(plan *models.Plan, task *models.Task, position int) *WorkflowEvent {
	return newEvent(TaskAddedEvent, plan.ID, task.ID, map[string]any{
		DetailTitle:       task.Title,
		DetailDescription: task.Description,
		DetailPosition:    position,
	})
}

// NewTaskStarted records a task moving into progress.
func NewTaskStarted(plan *models.Plan, task *models.Task) *WorkflowEvent {
	return newEvent(TaskStartedEvent, plan.ID, task.ID, map[string]any{
		DetailTitle: task.Title,
	})
}

// NewTaskCompleted records a task completion with its optional note and
// measured duration.
func NewTaskCompleted(plan *models.Plan, task *models.Task, note string) *WorkflowEvent {
	details := map[string]any{
		DetailTitle: task.Title,
	}

	if note != "" {
		details[DetailNote] = note
	}

	if task.DurationSeconds != nil {
		details[DetailDuration] = *task.DurationSeconds
	}

	return newEvent(TaskCompletedEvent, plan.ID, task.ID, details)
}

// NewTaskFailed records a task failure. The record is distinguishable from a
// plain cancellation by type and by the failed detail flag.
func NewTaskFailed(plan *models.Plan, task *models.Task, errMessage string) *WorkflowEvent {
	return newEvent(TaskFailedEvent, plan.ID, task.ID, map[string]any{
		DetailTitle:  task.Title,
		DetailError:  errMessage,
		DetailFailed: true,
	})
}

// NewTaskBlocked records the blocked side-state being applied to a task.
func NewTaskBlocked(plan *models.Plan, task *models.Task, reason string) *WorkflowEvent {
	return newEvent(TaskBlockedEvent, plan.ID, task.ID, map[string]any{
		DetailTitle:  task.Title,
		DetailReason: reason,
	})
}

// NewTaskUnblocked records the blocked side-state being cleared, with the
// status that was restored.
func NewTaskUnblocked(plan *models.Plan, task *models.Task) *WorkflowEvent {
	return newEvent(TaskUnblockedEvent, plan.ID, task.ID, map[string]any{
		DetailTitle:          task.Title,
		DetailRestoredStatus: string(task.Status),
	})
}

// NewTaskCancelled records a task cancellation.
func NewTaskCancelled(plan *models.Plan, task *models.Task, reason string) *WorkflowEvent {
	details := map[string]any{
		DetailTitle: task.Title,
	}

	if reason != "" {
		details[DetailReason] = reason
	}

	return newEvent(TaskCancelledEvent, plan.ID, task.ID, details)
}

// NewNoteAdded records a free-text annotation on a task.
func NewNoteAdded(plan *models.Plan, task *models.Task, note string) *WorkflowEvent {
	return newEvent(NoteAddedEvent, plan.ID, task.ID, map[string]any{
		DetailNote: note,
	})
}

// NewSystemError records a failure inside the engine itself, attributed to the
// operation that raised it.
func NewSystemError(planID, operation string, err error) *WorkflowEvent {
	return newEvent(SystemErrorEvent, planID, "", map[string]any{
		DetailOperation: operation,
		DetailError:     err.Error(),
	})
}
