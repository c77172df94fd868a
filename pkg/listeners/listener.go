// Package listeners provides the pluggable consumers of the workflow event
// stream. Listeners perform side effects only; any state change they need is
// routed back through the manager's public API so it is itself recorded as an
// event.
package listeners

import (
	"context"

	"github.com/planion/planion/pkg/events"
	"github.com/planion/planion/pkg/models"
)

// Listener consumes events of the types it declares. Handle is only invoked
// with those types; the registry filters before dispatch. A returned error
// triggers the bus retry policy for this listener alone.
type Listener interface {
	Name() string
	SubscribedEventTypes() []events.EventType
	Handle(ctx context.Context, event *events.WorkflowEvent) error
}

// Workflow is the slice of the manager's public API listeners are allowed to
// call back into. No listener ever mutates domain objects directly.
type Workflow interface {
	StartTask(ctx context.Context, taskID string) (*models.Task, error)
	PausePlan(ctx context.Context, reason string) error
	AdvanceFocus(ctx context.Context) (*models.Task, error)
	ArchivePlan(ctx context.Context) error
	Tasks() []*models.Task
}
