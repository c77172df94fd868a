package main

import (
	"context"
	"fmt"

	cli "github.com/urfave/cli/v3"

	"github.com/planion/planion/pkg/cmd"
	"github.com/planion/planion/pkg/log"
	"github.com/planion/planion/pkg/models"
	"github.com/planion/planion/pkg/workflow"
)

func NewStatusCommand() *cli.Command {
	return &cli.Command{
		Name:    "status",
		Aliases: []string{"st"},
		Usage:   "Print the current plan and its tasks",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Snapshot store URL (file://, postgres://, redis://)",
				Value:   "file://./data",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "project-id",
				Usage:   "Project to report on",
				Value:   "default",
				Sources: cli.EnvVars("PROJECT_ID"),
			},
		},
		Action: status,
	}
}

func status(ctx context.Context, command *cli.Command) error {
	log.Setup("error", "text")

	logger := log.WithModule("status")

	eventBus := cmd.NewEventBus("gochannel", logger)
	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	snapshots, err := cmd.NewSnapshotStore(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := snapshots.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close snapshot store", "error", err)
		}
	}()

	manager := workflow.NewManager(ctx, command.String("project-id"), eventBus, snapshots, logger)

	summary := manager.Status()
	if !summary.HasPlan {
		fmt.Printf("Project %s: no active plan\n", summary.ProjectID)

		return nil
	}

	fmt.Printf("Plan: %s (%s)\n", summary.PlanName, summary.PlanStatus)

	if summary.Paused {
		fmt.Printf("Paused: %s\n", summary.PauseReason)
	}

	fmt.Printf("Progress: %d/%d tasks, %d%%\n",
		summary.Stats.CompletedTasks, summary.Stats.TotalTasks, summary.Stats.ProgressPercent)

	for _, task := range manager.Tasks() {
		fmt.Printf("  %s %s\n", taskMarker(task), task.Title)
	}

	if summary.CurrentTask != nil {
		fmt.Printf("Focus: %s\n", summary.CurrentTask.Title)
	}

	return nil
}

func taskMarker(task *models.Task) string {
	switch {
	case task.Blocked():
		return "[!]"
	case task.Status == models.TaskStatusCompleted:
		return "[x]"
	case task.Status == models.TaskStatusCancelled:
		return "[-]"
	case task.Status == models.TaskStatusInProgress:
		return "[>]"
	default:
		return "[ ]"
	}
}
