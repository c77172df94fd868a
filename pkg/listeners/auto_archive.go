package listeners

import (
	"context"
	"log/slog"

	"github.com/planion/planion/pkg/events"
)

// AutoArchive archives a plan as soon as it completes, without operator
// action.
type AutoArchive struct {
	workflow Workflow
	logger   *slog.Logger
}

func NewAutoArchive(workflow Workflow, logger *slog.Logger) *AutoArchive {
	return &AutoArchive{
		workflow: workflow,
		logger:   logger.With("module", "auto_archive"),
	}
}

func (l *AutoArchive) Name() string {
	return "auto_archive"
}

func (l *AutoArchive) SubscribedEventTypes() []events.EventType {
	return []events.EventType{events.PlanCompletedEvent}
}

func (l *AutoArchive) Handle(ctx context.Context, event *events.WorkflowEvent) error {
	l.logger.Info("Archiving completed plan", "plan_id", event.PlanID)

	return l.workflow.ArchivePlan(ctx)
}
