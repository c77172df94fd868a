package commands

import (
	"context"
	"errors"
	"log/slog"

	"github.com/planion/planion/pkg/events"
	"github.com/planion/planion/pkg/workflow"
)

// Result is the structured outcome of one executed command. Failures are
// results too, with a machine-readable code mirrored from the workflow
// error taxonomy.
type Result struct {
	Success   bool   `json:"success"`
	ErrorCode string `json:"error_code,omitempty"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
}

// PlanSummary is the /plan list entry for one plan seen in the event log.
type PlanSummary struct {
	PlanID  string `json:"plan_id"`
	Name    string `json:"name"`
	Current bool   `json:"current"`
}

// Executor runs parsed commands against one project's workflow manager.
type Executor struct {
	manager *workflow.Manager
	logger  *slog.Logger
}

func NewExecutor(manager *workflow.Manager, logger *slog.Logger) *Executor {
	return &Executor{
		manager: manager,
		logger:  logger.With("module", "commands"),
	}
}

// Run parses and executes one input line. Every input produces a Result.
func (e *Executor) Run(ctx context.Context, input string) *Result {
	cmd, err := Parse(input)
	if err != nil {
		var parseErr *ParseError
		if errors.As(err, &parseErr) {
			return failure("unknown_command", parseErr.Message)
		}

		return failure("unknown_command", err.Error())
	}

	return e.Execute(ctx, cmd)
}

// Execute dispatches one parsed command.
func (e *Executor) Execute(ctx context.Context, cmd *Command) *Result {
	switch cmd.Kind {
	case KindStart:
		return e.startPlan(ctx, cmd)
	case KindTask:
		return e.addTask(ctx, cmd)
	case KindFocus:
		return e.focusTask(ctx, cmd)
	case KindNext:
		return e.completeNext(ctx, cmd)
	case KindStatus:
		return e.status(cmd)
	case KindPlan:
		return e.plan(cmd)
	}

	return failure("unknown_command", "unknown command kind: "+string(cmd.Kind))
}

func (e *Executor) startPlan(ctx context.Context, cmd *Command) *Result {
	plan, err := e.manager.StartPlan(ctx, cmd.Arg, cmd.Description)
	if err != nil {
		return e.failureFrom(err)
	}

	return success("started plan "+plan.Name, plan)
}

func (e *Executor) addTask(ctx context.Context, cmd *Command) *Result {
	task, err := e.manager.AddTask(ctx, cmd.Arg, cmd.Description)
	if err != nil {
		return e.failureFrom(err)
	}

	return success("added task "+task.Title, task)
}

func (e *Executor) focusTask(ctx context.Context, cmd *Command) *Result {
	task, err := e.manager.FocusTask(ctx, cmd.Arg)
	if err != nil {
		return e.failureFrom(err)
	}

	return success("focused on "+task.Title, task)
}

// completeNext completes the task currently in focus, starting it first when
// it was never started.
func (e *Executor) completeNext(ctx context.Context, cmd *Command) *Result {
	current := e.manager.CurrentTask()
	if current == nil {
		return e.failureFrom(workflow.ErrNoActionableTask)
	}

	if current.StartedAt == nil {
		if _, err := e.manager.StartTask(ctx, current.ID); err != nil {
			return e.failureFrom(err)
		}
	}

	task, err := e.manager.CompleteTask(ctx, current.ID, cmd.Arg)
	if err != nil {
		return e.failureFrom(err)
	}

	return success("completed "+task.Title, task)
}

func (e *Executor) status(cmd *Command) *Result {
	status := e.manager.Status()

	if cmd.Arg == "history" {
		return success("status with history", map[string]any{
			"status": status,
			"events": e.manager.RecentEvents(20),
		})
	}

	return success("status", status)
}

func (e *Executor) plan(cmd *Command) *Result {
	status := e.manager.Status()

	if cmd.Arg == "list" {
		return success("plans", e.planList(status.PlanID))
	}

	if !status.HasPlan {
		return failure("not_found", "no active plan")
	}

	return success("plan "+status.PlanName, map[string]any{
		"status": status,
		"tasks":  e.manager.Tasks(),
	})
}

// planList folds plan_created events into one summary per plan ever started
// in this project, including archived ones.
func (e *Executor) planList(currentPlanID string) []PlanSummary {
	created := e.manager.EventsByType(events.PlanCreatedEvent)

	summaries := make([]PlanSummary, 0, len(created))
	for _, event := range created {
		name, _ := event.Details[events.DetailName].(string)
		summaries = append(summaries, PlanSummary{
			PlanID:  event.PlanID,
			Name:    name,
			Current: event.PlanID == currentPlanID,
		})
	}

	return summaries
}

func (e *Executor) failureFrom(err error) *Result {
	e.logger.Debug("command failed", "error", err)

	return failure(workflow.ErrorCode(err), err.Error())
}

func success(message string, data any) *Result {
	return &Result{Success: true, Message: message, Data: data}
}

func failure(code, message string) *Result {
	return &Result{Success: false, ErrorCode: code, Message: message}
}
