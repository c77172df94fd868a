package models

import "errors"

// Standard domain transition errors.
var (
	// ErrTaskCompleted indicates a transition was attempted on a completed task.
	ErrTaskCompleted = errors.New("task already completed")

	// ErrTaskResolved indicates a transition was attempted on a terminal task.
	ErrTaskResolved = errors.New("task already resolved")

	// ErrTaskBlocked indicates the task already carries the blocked side-state.
	ErrTaskBlocked = errors.New("task already blocked")

	// ErrTaskNotBlocked indicates an unblock was attempted on a task that is not blocked.
	ErrTaskNotBlocked = errors.New("task is not blocked")

	// ErrPlanResolved indicates a start was attempted on a completed or archived plan.
	ErrPlanResolved = errors.New("plan already resolved")

	// ErrPlanArchived indicates a transition was attempted on an archived plan.
	ErrPlanArchived = errors.New("plan already archived")
)
