package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	cli "github.com/urfave/cli/v3"

	"github.com/planion/planion/pkg/channels/kafka"
	"github.com/planion/planion/pkg/cmd"
	"github.com/planion/planion/pkg/eventbus"
	"github.com/planion/planion/pkg/listeners"
	"github.com/planion/planion/pkg/log"
	"github.com/planion/planion/pkg/otelhelper"
	"github.com/planion/planion/pkg/persistence"
	"github.com/planion/planion/pkg/web"
	"github.com/planion/planion/pkg/workflow"
)

const defaultPort = 9091

func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start the orchestration service",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the HTTP API on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Snapshot store URL (file://, postgres://, redis://)",
				Value:   "file://./data",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "project-id",
				Usage:   "Project the background listeners attach to",
				Value:   "default",
				Sources: cli.EnvVars("PROJECT_ID"),
			},
			&cli.DurationFlag{
				Name:    "autosave-interval",
				Usage:   "Interval between periodic snapshot saves",
				Value:   30 * time.Second,
				Sources: cli.EnvVars("AUTOSAVE_INTERVAL"),
			},
			&cli.IntFlag{
				Name:    "max-task-retries",
				Usage:   "Automatic retries per task before the plan pauses",
				Value:   2,
				Sources: cli.EnvVars("MAX_TASK_RETRIES"),
			},
			&cli.StringFlag{
				Name:    "context-file",
				Usage:   "Markdown file kept in sync with the current plan (empty disables)",
				Value:   "",
				Sources: cli.EnvVars("CONTEXT_FILE"),
			},
			&cli.StringFlag{
				Name:    "docs-dir",
				Usage:   "Directory for completed plan summaries (empty disables)",
				Value:   "",
				Sources: cli.EnvVars("DOCS_DIR"),
			},
			&cli.StringFlag{
				Name:    "git-repo",
				Usage:   "Repository path for automatic commits (empty disables)",
				Value:   "",
				Sources: cli.EnvVars("GIT_REPO"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export OpenTelemetry traces (requires an OTLP endpoint)",
				Value:   false,
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			&cli.BoolFlag{
				Name:    "kafka-notifier",
				Usage:   "Mirror events to Kafka (requires KAFKA_BROKERS)",
				Value:   false,
				Sources: cli.EnvVars("KAFKA_NOTIFIER"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Action: serve,
	}
}

func serve(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"), command.String("log-format"))

	logger := log.WithModule("serve")
	logger.InfoContext(ctx, "Initializing Planion")

	if command.Bool("tracing") {
		tracerProvider, err := otelhelper.InitTracer(ctx, "planion")
		if err != nil {
			return err
		}

		defer func() {
			if err := tracerProvider.Shutdown(ctx); err != nil {
				logger.ErrorContext(ctx, "Failed to shut down tracer provider", "error", err)
			}
		}()
	}

	eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
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

	managers := workflow.NewManagers(eventBus, snapshots, logger)
	manager := managers.GetOrCreate(ctx, command.String("project-id"))

	if err := registerListeners(command, eventBus, manager, logger); err != nil {
		return err
	}

	if err := eventBus.Subscribe(ctx); err != nil {
		return err
	}

	autoSaver := workflow.NewAutoSaver(manager, command.Duration("autosave-interval"), logger)
	if err := autoSaver.Start(); err != nil {
		return err
	}

	app := newApp(managers, snapshots, logger)

	go func() {
		if err := app.Listen(":" + strconv.Itoa(command.Int("port"))); err != nil {
			logger.ErrorContext(ctx, "HTTP server stopped", "error", err)
		}
	}()

	logger.InfoContext(ctx, "Planion started", "port", command.Int("port"))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	logger.InfoContext(ctx, "Shutting down...")

	autoSaver.Stop()

	if err := app.Shutdown(); err != nil {
		logger.ErrorContext(ctx, "Failed to shut down HTTP server", "error", err)
	}

	managers.CloseAll(ctx)

	return nil
}

func newApp(managers *workflow.Managers, snapshots persistence.SnapshotStore, logger *slog.Logger) *fiber.App {
	app := fiber.New()
	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Planion")
	})

	web.NewAPIHandlers(managers, snapshots, logger).Register(app)

	return app
}

// registerListeners wires the built-in listeners onto the shared bus. The
// retry, progression, and archival listeners attach to the project named by
// the project-id flag; the rest are enabled by their flags.
func registerListeners(
	command *cli.Command,
	eventBus eventbus.EventBus,
	manager *workflow.Manager,
	logger *slog.Logger,
) error {
	registry := listeners.NewRegistry(eventBus, logger)

	all := []listeners.Listener{
		listeners.NewErrorHandler(manager, logger).WithMaxRetries(command.Int("max-task-retries")),
		listeners.NewAutoProgress(manager, logger),
		listeners.NewAutoArchive(manager, logger),
	}

	if path := command.String("context-file"); path != "" {
		all = append(all, listeners.NewContextSync(manager, path, logger))
	}

	if dir := command.String("docs-dir"); dir != "" {
		all = append(all, listeners.NewDocsGenerator(manager, dir, logger))
	}

	if repo := command.String("git-repo"); repo != "" {
		all = append(all, listeners.NewGitAutoCommit(repo, logger))
	}

	if command.Bool("kafka-notifier") {
		publisher, err := kafka.CreatePublisher(watermill.NewSlogLogger(logger))
		if err != nil {
			return err
		}

		all = append(all, listeners.NewNotifier(publisher, logger))
	}

	for _, listener := range all {
		if err := registry.Register(listener); err != nil {
			return err
		}
	}

	return nil
}
