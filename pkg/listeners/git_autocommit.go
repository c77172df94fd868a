package listeners

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/planion/planion/pkg/events"
)

// GitAutoCommit commits the working tree after significant transitions so
// artifacts written by other listeners land in version control.
type GitAutoCommit struct {
	repoPath string
	logger   *slog.Logger
}

func NewGitAutoCommit(repoPath string, logger *slog.Logger) *GitAutoCommit {
	return &GitAutoCommit{
		repoPath: repoPath,
		logger:   logger.With("module", "git_autocommit"),
	}
}

func (l *GitAutoCommit) Name() string {
	return "git_autocommit"
}

func (l *GitAutoCommit) SubscribedEventTypes() []events.EventType {
	return []events.EventType{
		events.TaskCompletedEvent,
		events.PlanCompletedEvent,
		events.PlanArchivedEvent,
	}
}

func (l *GitAutoCommit) Handle(ctx context.Context, event *events.WorkflowEvent) error {
	err := l.git(ctx, "add", "-A")
	if err != nil {
		return err
	}

	title, _ := event.Details[events.DetailTitle].(string)
	if title == "" {
		title, _ = event.Details[events.DetailName].(string)
	}

	message := fmt.Sprintf("chore: %s %s", strings.ReplaceAll(string(event.Type), "_", " "), title)

	err = l.git(ctx, "commit", "-m", message)
	if err != nil {
		// An unchanged tree is not a failure.
		if strings.Contains(err.Error(), "nothing to commit") {
			return nil
		}

		return err
	}

	l.logger.Info("Committed", "message", message)

	return nil
}

func (l *GitAutoCommit) git(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = l.repoPath

	var output bytes.Buffer

	cmd.Stdout = &output
	cmd.Stderr = &output

	err := cmd.Run()
	if err != nil {
		return fmt.Errorf("git %s failed: %s", strings.Join(args, " "), output.String())
	}

	return nil
}
