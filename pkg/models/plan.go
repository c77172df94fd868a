// Package models defines the core domain models for plan-based workflow orchestration.
package models

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

// PlanStatus represents the lifecycle state of a plan.
type PlanStatus string

const (
	PlanStatusDraft     PlanStatus = "draft"     // Created, not yet started
	PlanStatusActive    PlanStatus = "active"    // Current plan accepting work
	PlanStatusCompleted PlanStatus = "completed" // All tasks resolved
	PlanStatusArchived  PlanStatus = "archived"  // Terminal, historical
)

// Plan is a named, ordered collection of tasks representing one unit of work.
// Task order is semantically meaningful: it defines the default progression
// order.
type Plan struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"                   validate:"required,max=200"`
	Description      string     `json:"description"`
	Status           PlanStatus `json:"status"                 validate:"required"`
	Tasks            []*Task    `json:"tasks"`
	CurrentTaskIndex int        `json:"current_task_index"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	ArchivedAt       *time.Time `json:"archived_at,omitempty"`
	Paused           bool       `json:"paused,omitempty"`
	PauseReason      string     `json:"pause_reason,omitempty"`
}

// PlanStats is derived from the task list on demand and is never
// authoritative.
type PlanStats struct {
	TotalTasks             int     `json:"total_tasks"`
	CompletedTasks         int     `json:"completed_tasks"`
	CancelledTasks         int     `json:"cancelled_tasks"`
	ProgressPercent        int     `json:"progress_percent"`
	CompletionRate         float64 `json:"completion_rate"`
	TotalDurationSeconds   float64 `json:"total_duration_seconds"`
	AverageDurationSeconds float64 `json:"average_duration_seconds"`
}

// NewPlan creates a plan in the draft status. The name is trimmed and must be
// non-empty and at most 200 characters.
func NewPlan(name, description string) (*Plan, error) {
	now := time.Now().UTC()

	plan := &Plan{
		ID:          uuid.New().String(),
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		Status:      PlanStatusDraft,
		Tasks:       make([]*Task, 0),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := plan.Validate(); err != nil {
		return nil, err
	}

	return plan, nil
}

// Validate checks the plan against its struct constraints.
func (p *Plan) Validate() error {
	return validate.Struct(p)
}

// Start activates a draft plan. Starting an active plan is a no-op success.
func (p *Plan) Start() error {
	switch p.Status {
	case PlanStatusActive:
		return nil
	case PlanStatusCompleted, PlanStatusArchived:
		return ErrPlanResolved
	case PlanStatusDraft:
	}

	p.Status = PlanStatusActive
	p.UpdatedAt = time.Now().UTC()

	return nil
}

// Complete marks the plan completed. Unresolved tasks are tolerated; archival
// of an unfinished plan force-completes it through this path.
func (p *Plan) Complete() error {
	if p.Status == PlanStatusArchived {
		return ErrPlanArchived
	}

	if p.Status == PlanStatusCompleted {
		return nil
	}

	now := time.Now().UTC()
	p.Status = PlanStatusCompleted
	p.CompletedAt = &now
	p.UpdatedAt = now

	return nil
}

// Archive moves the plan into the archived terminal status, force-completing
// it first when needed.
func (p *Plan) Archive() error {
	if p.Status == PlanStatusArchived {
		return nil
	}

	if err := p.Complete(); err != nil {
		return err
	}

	now := time.Now().UTC()
	p.Status = PlanStatusArchived
	p.ArchivedAt = &now
	p.UpdatedAt = now

	return nil
}

// Pause records the paused side-state with an escalation reason.
func (p *Plan) Pause(reason string) {
	p.Paused = true
	p.PauseReason = reason
	p.UpdatedAt = time.Now().UTC()
}

// Resume clears the paused side-state.
func (p *Plan) Resume() {
	p.Paused = false
	p.PauseReason = ""
	p.UpdatedAt = time.Now().UTC()
}

// AddTask appends a task to the plan, preserving order.
func (p *Plan) AddTask(task *Task) {
	p.Tasks = append(p.Tasks, task)
	p.UpdatedAt = time.Now().UTC()
}

// TaskByID returns the task with the given ID, or false when absent.
func (p *Plan) TaskByID(id string) (*Task, bool) {
	for _, task := range p.Tasks {
		if task.ID == id {
			return task, true
		}
	}

	return nil, false
}

// CurrentTask returns the task currently in focus: the task at the index hint
// when it is still actionable, otherwise the first actionable task in order.
// The fallback scan updates the hint. Blocked and resolved tasks are never in
// focus. Returns nil when no task is actionable.
func (p *Plan) CurrentTask() *Task {
	if p.CurrentTaskIndex >= 0 && p.CurrentTaskIndex < len(p.Tasks) {
		task := p.Tasks[p.CurrentTaskIndex]
		if !task.Resolved() && !task.Blocked() {
			return task
		}
	}

	for i, task := range p.Tasks {
		if !task.Resolved() && !task.Blocked() {
			p.CurrentTaskIndex = i

			return task
		}
	}

	return nil
}

// AllTasksResolved reports whether every task reached a terminal status.
func (p *Plan) AllTasksResolved() bool {
	for _, task := range p.Tasks {
		if !task.Resolved() {
			return false
		}
	}

	return true
}

// Stats recomputes derived statistics from the task list.
func (p *Plan) Stats() PlanStats {
	stats := PlanStats{TotalTasks: len(p.Tasks)}

	for _, task := range p.Tasks {
		switch task.Status {
		case TaskStatusCompleted:
			stats.CompletedTasks++

			if task.DurationSeconds != nil {
				stats.TotalDurationSeconds += *task.DurationSeconds
			}
		case TaskStatusCancelled:
			stats.CancelledTasks++
		case TaskStatusTodo, TaskStatusInProgress:
		}
	}

	if stats.TotalTasks > 0 {
		stats.ProgressPercent = stats.CompletedTasks * 100 / stats.TotalTasks
		stats.CompletionRate = float64(stats.CompletedTasks) / float64(stats.TotalTasks)
	}

	if stats.CompletedTasks > 0 {
		stats.AverageDurationSeconds = stats.TotalDurationSeconds / float64(stats.CompletedTasks)
	}

	return stats
}
