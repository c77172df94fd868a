package listeners

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/planion/planion/pkg/events"
	"github.com/planion/planion/pkg/models"
)

// ContextSync projects the current task list into a context file on disk
// after every state change, so external tooling always sees an up-to-date
// picture without touching the engine.
type ContextSync struct {
	workflow Workflow
	filePath string
	logger   *slog.Logger
}

func NewContextSync(workflow Workflow, filePath string, logger *slog.Logger) *ContextSync {
	return &ContextSync{
		workflow: workflow,
		filePath: filePath,
		logger:   logger.With("module", "context_sync"),
	}
}

func (l *ContextSync) Name() string {
	return "context_sync"
}

// SubscribedEventTypes covers every type: any transition can change the
// projected context.
func (l *ContextSync) SubscribedEventTypes() []events.EventType {
	return events.AllEventTypes()
}

func (l *ContextSync) Handle(_ context.Context, event *events.WorkflowEvent) error {
	tasks := l.workflow.Tasks()

	var b strings.Builder

	b.WriteString("# Workflow Context\n\n")
	fmt.Fprintf(&b, "Updated: %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Last event: %s (%s)\n\n", event.Type, event.Timestamp.Format(time.RFC3339))
	b.WriteString("## Tasks\n\n")

	for i, task := range tasks {
		fmt.Fprintf(&b, "%d. %s %s (%s)\n", i+1, taskMarker(task), task.Title, task.Status)
	}

	err := os.MkdirAll(path.Dir(l.filePath), 0750)
	if err != nil {
		return fmt.Errorf("failed to create context directory: %w", err)
	}

	err = os.WriteFile(l.filePath, []byte(b.String()), 0600)
	if err != nil {
		return fmt.Errorf("failed to write context file: %w", err)
	}

	return nil
}

func taskMarker(task *models.Task) string {
	switch {
	case task.Status == models.TaskStatusCompleted:
		return "[x]"
	case task.Blocked():
		return "[!]"
	case task.Status == models.TaskStatusInProgress:
		return "[>]"
	default:
		return "[ ]"
	}
}
