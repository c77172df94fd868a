package workflow

import (
	"github.com/planion/planion/pkg/events"
	"github.com/planion/planion/pkg/models"
)

// Status is a read-only summary of the project's workflow state.
type Status struct {
	ProjectID   string            `json:"project_id"`
	HasPlan     bool              `json:"has_plan"`
	PlanID      string            `json:"plan_id,omitempty"`
	PlanName    string            `json:"plan_name,omitempty"`
	PlanStatus  models.PlanStatus `json:"plan_status,omitempty"`
	Paused      bool              `json:"paused,omitempty"`
	PauseReason string            `json:"pause_reason,omitempty"`
	Stats       models.PlanStats  `json:"stats"`
	CurrentTask *models.Task      `json:"current_task,omitempty"`
	TotalEvents int               `json:"total_events"`
}

// Status reports the current plan, its derived statistics, and the task in
// focus.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := Status{
		ProjectID:   m.projectID,
		TotalEvents: m.store.Len(),
	}

	if m.plan == nil {
		return status
	}

	status.HasPlan = true
	status.PlanID = m.plan.ID
	status.PlanName = m.plan.Name
	status.PlanStatus = m.plan.Status
	status.Paused = m.plan.Paused
	status.PauseReason = m.plan.PauseReason
	status.Stats = m.plan.Stats()

	if task := m.plan.CurrentTask(); task != nil {
		status.CurrentTask = task.Clone()
	}

	return status
}

// Tasks returns copies of the current plan's tasks in order. Callers never
// receive references into the live domain model.
func (m *Manager) Tasks() []*models.Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.plan == nil {
		return make([]*models.Task, 0)
	}

	tasks := make([]*models.Task, 0, len(m.plan.Tasks))
	for _, task := range m.plan.Tasks {
		tasks = append(tasks, task.Clone())
	}

	return tasks
}

// RecentEvents returns the n most recent events in append order.
func (m *Manager) RecentEvents(n int) []*events.WorkflowEvent {
	return m.store.Recent(n)
}

// EventsForPlan returns the events recorded for one plan.
func (m *Manager) EventsForPlan(planID string) []*events.WorkflowEvent {
	return m.store.ForPlan(planID)
}

// EventsByType returns the events recorded with one event type.
func (m *Manager) EventsByType(eventType events.EventType) []*events.WorkflowEvent {
	return m.store.ByType(eventType)
}

// EventsForTask returns the events recorded for one task.
func (m *Manager) EventsForTask(taskID string) []*events.WorkflowEvent {
	return m.store.ForTask(taskID)
}

// BusMetrics returns the event bus dispatch counters.
func (m *Manager) BusMetrics() map[string]int64 {
	metrics := m.bus.Metrics()

	return map[string]int64{
		"published": metrics.Published,
		"processed": metrics.Processed,
		"failed":    metrics.Failed,
	}
}
