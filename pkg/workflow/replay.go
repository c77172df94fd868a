package workflow

import (
	"time"

	"github.com/planion/planion/pkg/events"
	"github.com/planion/planion/pkg/models"
)

// Replay folds an event log in append order into a fresh plan. Folding the
// full log reproduces the same plan and task state as the live manager that
// emitted it; this is the event-sourcing recovery path and the consistency
// check used in tests.
//
// The returned plan is nil when the log contains no plan events or the last
// plan was archived away.
func Replay(log []*events.WorkflowEvent) *models.Plan {
	var plan *models.Plan

	for _, event := range log {
		plan = apply(plan, event)
	}

	return plan
}

func apply(plan *models.Plan, event *events.WorkflowEvent) *models.Plan {
	switch event.Type {
	case events.PlanCreatedEvent:
		return &models.Plan{
			ID:          event.PlanID,
			Name:        detailString(event, events.DetailName),
			Description: detailString(event, events.DetailDescription),
			Status:      models.PlanStatusDraft,
			Tasks:       make([]*models.Task, 0),
			CreatedAt:   event.Timestamp,
			UpdatedAt:   event.Timestamp,
		}
	case events.PlanStartedEvent:
		if plan != nil {
			plan.Status = models.PlanStatusActive
			plan.UpdatedAt = event.Timestamp
		}
	case events.PlanCompletedEvent:
		if plan != nil {
			timestamp := event.Timestamp
			plan.Status = models.PlanStatusCompleted
			plan.CompletedAt = &timestamp
			plan.UpdatedAt = timestamp
		}
	case events.PlanArchivedEvent:
		// The manager clears its current pointer on archive; replay does
		// the same so a following plan_created starts clean.
		return nil
	case events.PlanPausedEvent:
		if plan != nil {
			plan.Paused = true
			plan.PauseReason = detailString(event, events.DetailReason)
			plan.UpdatedAt = event.Timestamp
		}
	case events.TaskAddedEvent:
		if plan != nil {
			plan.Tasks = append(plan.Tasks, &models.Task{
				ID:          event.TaskID,
				Title:       detailString(event, events.DetailTitle),
				Description: detailString(event, events.DetailDescription),
				Status:      models.TaskStatusTodo,
				CreatedAt:   event.Timestamp,
				UpdatedAt:   event.Timestamp,
				Outputs:     make(map[string]any),
			})
		}
	case events.TaskStartedEvent:
		applyToTask(plan, event, func(task *models.Task) {
			if task.Blocked() {
				clearReplayBlockState(task)
			}

			task.Status = models.TaskStatusInProgress

			if task.StartedAt == nil {
				timestamp := event.Timestamp
				task.StartedAt = &timestamp
			}
		})
	case events.TaskCompletedEvent:
		applyToTask(plan, event, func(task *models.Task) {
			// Terminal transitions clear the blocked side-state, like the
			// live path does.
			clearReplayBlockState(task)

			timestamp := event.Timestamp
			task.Status = models.TaskStatusCompleted
			task.CompletedAt = &timestamp

			if duration, ok := detailFloat(event, events.DetailDuration); ok {
				task.DurationSeconds = &duration
			}

			if note := detailString(event, events.DetailNote); note != "" {
				task.Notes = append(task.Notes, "Completed: "+note)
			}
		})
	case events.TaskFailedEvent:
		applyToTask(plan, event, func(task *models.Task) {
			clearReplayBlockState(task)

			task.Status = models.TaskStatusCancelled
			task.Notes = append(task.Notes, "Failed: "+detailString(event, events.DetailError))
		})
	case events.TaskBlockedEvent:
		applyToTask(plan, event, func(task *models.Task) {
			reason := detailString(event, events.DetailReason)
			task.Outputs[models.OutputBlockedReason] = reason
			task.Outputs[models.OutputBlockedAt] = event.Timestamp.Format(time.RFC3339)
			task.Outputs[models.OutputStatusBeforeBlock] = string(task.Status)
			task.Notes = append(task.Notes, "Blocked: "+reason)
		})
	case events.TaskUnblockedEvent:
		applyToTask(plan, event, func(task *models.Task) {
			if restored := detailString(event, events.DetailRestoredStatus); restored != "" {
				task.Status = models.TaskStatus(restored)
			}

			clearReplayBlockState(task)
			task.Notes = append(task.Notes, "Unblocked")
		})
	case events.TaskCancelledEvent:
		applyToTask(plan, event, func(task *models.Task) {
			clearReplayBlockState(task)

			task.Status = models.TaskStatusCancelled

			if reason := detailString(event, events.DetailReason); reason != "" {
				task.Notes = append(task.Notes, "Cancelled: "+reason)
			}
		})
	case events.NoteAddedEvent:
		applyToTask(plan, event, func(task *models.Task) {
			task.Notes = append(task.Notes, detailString(event, events.DetailNote))
		})
	case events.SystemErrorEvent:
		// Diagnostic record; no state effect.
	}

	if plan != nil && event.Type != events.PlanCreatedEvent {
		plan.UpdatedAt = event.Timestamp
	}

	return plan
}

func applyToTask(plan *models.Plan, event *events.WorkflowEvent, mutate func(*models.Task)) {
	if plan == nil {
		return
	}

	if task, ok := plan.TaskByID(event.TaskID); ok {
		mutate(task)
		task.UpdatedAt = event.Timestamp
	}
}

func clearReplayBlockState(task *models.Task) {
	delete(task.Outputs, models.OutputBlockedReason)
	delete(task.Outputs, models.OutputBlockedAt)
	delete(task.Outputs, models.OutputStatusBeforeBlock)
}

func detailString(event *events.WorkflowEvent, key string) string {
	value, _ := event.Details[key].(string)

	return value
}

// detailFloat tolerates both the in-process int/float detail values and the
// float64 every number becomes after a JSON round trip.
func detailFloat(event *events.WorkflowEvent, key string) (float64, bool) {
	switch value := event.Details[key].(type) {
	case float64:
		return value, true
	case int:
		return float64(value), true
	case int64:
		return float64(value), true
	}

	return 0, false
}
