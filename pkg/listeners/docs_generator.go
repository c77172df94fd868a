package listeners

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/planion/planion/pkg/events"
)

// DocsGenerator writes a summary document for each plan that reaches
// completion or archival.
type DocsGenerator struct {
	workflow Workflow
	docsDir  string
	logger   *slog.Logger
}

func NewDocsGenerator(workflow Workflow, docsDir string, logger *slog.Logger) *DocsGenerator {
	return &DocsGenerator{
		workflow: workflow,
		docsDir:  docsDir,
		logger:   logger.With("module", "docs_generator"),
	}
}

func (l *DocsGenerator) Name() string {
	return "docs_generator"
}

func (l *DocsGenerator) SubscribedEventTypes() []events.EventType {
	return []events.EventType{events.PlanCompletedEvent, events.PlanArchivedEvent}
}

func (l *DocsGenerator) Handle(_ context.Context, event *events.WorkflowEvent) error {
	planName, _ := event.Details[events.DetailName].(string)
	if planName == "" {
		planName = event.PlanID
	}

	var b strings.Builder

	fmt.Fprintf(&b, "# Plan: %s\n\n", planName)
	fmt.Fprintf(&b, "Status: %s\n", strings.TrimPrefix(string(event.Type), "plan_"))
	fmt.Fprintf(&b, "Recorded: %s\n\n", event.Timestamp.Format("2006-01-02 15:04:05 UTC"))
	b.WriteString("## Tasks\n\n")

	for _, task := range l.workflow.Tasks() {
		fmt.Fprintf(&b, "- **%s** (%s)\n", task.Title, task.Status)

		for _, note := range task.Notes {
			fmt.Fprintf(&b, "  - %s\n", note)
		}
	}

	err := os.MkdirAll(l.docsDir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create docs directory: %w", err)
	}

	filePath := path.Join(l.docsDir, slugify(planName)+".md")

	err = os.WriteFile(filePath, []byte(b.String()), 0600)
	if err != nil {
		return fmt.Errorf("failed to write plan doc: %w", err)
	}

	l.logger.Info("Generated plan doc", "path", filePath)

	return nil
}

func slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, slug)

	return strings.Trim(slug, "-")
}
