// Package web provides the HTTP surface for project workflows: status and
// task reads, the event log, and slash-command execution.
package web

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/planion/planion/pkg/commands"
	"github.com/planion/planion/pkg/persistence"
	"github.com/planion/planion/pkg/workflow"
)

const defaultEventLimit = 50

type APIHandlers struct {
	managers  *workflow.Managers
	snapshots persistence.SnapshotStore
	validator *validator.Validate
	logger    *slog.Logger
}

func NewAPIHandlers(
	managers *workflow.Managers,
	snapshots persistence.SnapshotStore,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		managers:  managers,
		snapshots: snapshots,
		validator: validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger.With("module", "web"),
	}
}

// Register mounts all routes on the app.
func (h *APIHandlers) Register(app *fiber.App) {
	app.Get("/health", h.HealthCheck)

	p := app.Group("/projects/:projectId")
	p.Get("/status", h.GetStatus)
	p.Get("/tasks", h.GetTasks)
	p.Get("/events", h.GetEvents)
	p.Post("/commands", h.RunCommand)

	app.Use(func(c fiber.Ctx) error {
		return notFound(c, "no route for "+c.Path())
	})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	checkers := map[string]string{"snapshots": "ok"}

	status := "healthy"
	message := "Planion is healthy"
	httpStatus := http.StatusOK

	if err := h.snapshots.HealthCheck(c.Context()); err != nil {
		checkers["snapshots"] = err.Error()
		status = "unhealthy"
		message = "Planion is unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(HealthResponse{
		Status:   status,
		Message:  message,
		Checkers: checkers,
	})
}

func (h *APIHandlers) GetStatus(c fiber.Ctx) error {
	manager, err := h.manager(c)
	if err != nil {
		return handleWorkflowError(c, err)
	}

	return c.JSON(manager.Status())
}

func (h *APIHandlers) GetTasks(c fiber.Ctx) error {
	manager, err := h.manager(c)
	if err != nil {
		return handleWorkflowError(c, err)
	}

	return c.JSON(fiber.Map{"tasks": manager.Tasks()})
}

func (h *APIHandlers) GetEvents(c fiber.Ctx) error {
	manager, err := h.manager(c)
	if err != nil {
		return handleWorkflowError(c, err)
	}

	limit := defaultEventLimit

	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 0 {
			return badRequest(c, "limit must be a non-negative integer")
		}

		limit = parsed
	}

	events := manager.RecentEvents(limit)

	return c.JSON(fiber.Map{
		"events": events,
		"count":  len(events),
	})
}

// RunCommand executes one slash command against the project. Command-level
// failures come back as 200 responses with success=false so callers can
// distinguish grammar errors from transport errors.
func (h *APIHandlers) RunCommand(c fiber.Ctx) error {
	manager, err := h.manager(c)
	if err != nil {
		return handleWorkflowError(c, err)
	}

	var req CommandRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	ctx := c.Context()
	if req.Actor != "" {
		// Managers are shared across requests; the actor rides on the
		// context so it only applies to this call.
		ctx = workflow.ContextWithActor(ctx, req.Actor)
	}

	executor := commands.NewExecutor(manager, h.logger)
	result := executor.Run(ctx, req.Input)

	return c.JSON(result)
}

func (h *APIHandlers) manager(c fiber.Ctx) (*workflow.Manager, error) {
	projectID := c.Params("projectId")
	if projectID == "" {
		return nil, workflow.ErrProjectIDRequired
	}

	return h.managers.GetOrCreate(c.Context(), projectID), nil
}
