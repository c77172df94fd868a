package listeners

import (
	"context"
	"log/slog"

	"github.com/planion/planion/pkg/events"
)

// AutoProgress advances the focus to the next actionable task whenever a task
// completes, so the operator never has to move the pointer by hand.
type AutoProgress struct {
	workflow Workflow
	logger   *slog.Logger
}

func NewAutoProgress(workflow Workflow, logger *slog.Logger) *AutoProgress {
	return &AutoProgress{
		workflow: workflow,
		logger:   logger.With("module", "auto_progress"),
	}
}

func (l *AutoProgress) Name() string {
	return "auto_progress"
}

func (l *AutoProgress) SubscribedEventTypes() []events.EventType {
	return []events.EventType{events.TaskCompletedEvent}
}

func (l *AutoProgress) Handle(ctx context.Context, _ *events.WorkflowEvent) error {
	next, err := l.workflow.AdvanceFocus(ctx)
	if err != nil {
		return err
	}

	if next != nil {
		l.logger.Info("Focus advanced", "task_id", next.ID, "title", next.Title)
	}

	return nil
}
