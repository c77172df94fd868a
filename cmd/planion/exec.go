package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	cli "github.com/urfave/cli/v3"

	"github.com/planion/planion/pkg/cmd"
	"github.com/planion/planion/pkg/commands"
	"github.com/planion/planion/pkg/log"
	"github.com/planion/planion/pkg/workflow"
)

var errCommandFailed = errors.New("command failed")

func NewExecCommand() *cli.Command {
	return &cli.Command{
		Name:      "exec",
		Aliases:   []string{"e"},
		Usage:     "Execute one slash command and exit",
		ArgsUsage: "\"/task Write docs | cover the API\"",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Snapshot store URL (file://, postgres://, redis://)",
				Value:   "file://./data",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "project-id",
				Usage:   "Project to run the command against",
				Value:   "default",
				Sources: cli.EnvVars("PROJECT_ID"),
			},
			&cli.StringFlag{
				Name:    "actor",
				Usage:   "Actor recorded on resulting events",
				Value:   "cli",
				Sources: cli.EnvVars("PLANION_ACTOR"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "warn",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: exec,
	}
}

func exec(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"), "text")

	logger := log.WithModule("exec")

	input := strings.TrimSpace(strings.Join(command.Args().Slice(), " "))
	if input == "" {
		return errors.New("exec requires a command, e.g. planion exec \"/status\"")
	}

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

	manager := workflow.NewManager(ctx, command.String("project-id"), eventBus, snapshots, logger).
		WithActor(command.String("actor"))

	executor := commands.NewExecutor(manager, logger)
	result := executor.Run(ctx, input)

	if err := manager.Close(ctx); err != nil {
		logger.ErrorContext(ctx, "Failed to save snapshot", "error", err)
	}

	body, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}

	fmt.Println(string(body))

	if !result.Success {
		return fmt.Errorf("%w: %s", errCommandFailed, result.Message)
	}

	return nil
}
