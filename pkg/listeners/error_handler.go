package listeners

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/planion/planion/pkg/events"
)

const defaultMaxTaskRetries = 2

// ErrorHandler retries a failed task by re-starting it through the manager,
// up to a configured limit per task. Once the limit is exceeded it stops
// retrying and requests the manager pause the plan: an explicit escalation,
// never a silent failure.
type ErrorHandler struct {
	workflow   Workflow
	maxRetries int
	logger     *slog.Logger

	mu       sync.Mutex
	failures map[string]int
}

// NewErrorHandler creates the retry listener with the default per-task limit.
func NewErrorHandler(workflow Workflow, logger *slog.Logger) *ErrorHandler {
	return &ErrorHandler{
		workflow:   workflow,
		maxRetries: defaultMaxTaskRetries,
		logger:     logger.With("module", "error_handler"),
		failures:   make(map[string]int),
	}
}

// WithMaxRetries overrides the per-task retry limit.
func (l *ErrorHandler) WithMaxRetries(maxRetries int) *ErrorHandler {
	l.maxRetries = maxRetries

	return l
}

func (l *ErrorHandler) Name() string {
	return "error_handler"
}

func (l *ErrorHandler) SubscribedEventTypes() []events.EventType {
	return []events.EventType{events.TaskFailedEvent}
}

func (l *ErrorHandler) Handle(ctx context.Context, event *events.WorkflowEvent) error {
	l.mu.Lock()
	l.failures[event.TaskID]++
	failures := l.failures[event.TaskID]
	l.mu.Unlock()

	if failures > l.maxRetries {
		reason := fmt.Sprintf("task %s failed %d times, retry limit %d exceeded",
			event.TaskID, failures, l.maxRetries)
		l.logger.Warn("Retry limit exceeded, requesting plan pause",
			"task_id", event.TaskID, "failures", failures)

		return l.workflow.PausePlan(ctx, reason)
	}

	l.logger.Info("Retrying failed task",
		"task_id", event.TaskID, "attempt", failures, "max_retries", l.maxRetries)

	_, err := l.workflow.StartTask(ctx, event.TaskID)

	return err
}
