package commands

import (
	"context"
	"log/slog"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planion/planion/pkg/channels/gochannel"
	"github.com/planion/planion/pkg/eventbus"
	"github.com/planion/planion/pkg/models"
	"github.com/planion/planion/pkg/persistence/file"
	"github.com/planion/planion/pkg/workflow"
)

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()

	pub, sub := gochannel.CreateTestChannel(watermill.NopLogger{})
	bus := eventbus.NewWatermillEventBus(pub, sub, slog.Default())

	t.Cleanup(func() {
		_ = bus.Close()
	})

	snapshots := file.NewSnapshotStore(t.TempDir())
	manager := workflow.NewManager(context.Background(), "test-project", bus, snapshots, slog.Default())

	return NewExecutor(manager, slog.Default())
}

func TestExecutor_StartPlan(t *testing.T) {
	executor := newTestExecutor(t)

	result := executor.Run(context.Background(), "/start Release 1.0 | ship it")
	require.True(t, result.Success, result.Message)
	assert.Contains(t, result.Message, "Release 1.0")

	plan, ok := result.Data.(*models.Plan)
	require.True(t, ok)
	assert.Equal(t, models.PlanStatusActive, plan.Status)
}

func TestExecutor_AddTask(t *testing.T) {
	executor := newTestExecutor(t)
	ctx := context.Background()

	require.True(t, executor.Run(ctx, "/start Release 1.0").Success)

	result := executor.Run(ctx, "/task Write docs | cover the API")
	require.True(t, result.Success, result.Message)

	task, ok := result.Data.(*models.Task)
	require.True(t, ok)
	assert.Equal(t, "Write docs", task.Title)
	assert.Equal(t, "cover the API", task.Description)
}

func TestExecutor_AddTask_NoPlan(t *testing.T) {
	executor := newTestExecutor(t)

	result := executor.Run(context.Background(), "/task Write docs")
	require.False(t, result.Success)
	assert.Equal(t, workflow.CodeInvalidTransition, result.ErrorCode)
}

func TestExecutor_Next_CompletesCurrentTask(t *testing.T) {
	executor := newTestExecutor(t)
	ctx := context.Background()

	require.True(t, executor.Run(ctx, "/start Release 1.0").Success)
	require.True(t, executor.Run(ctx, "/task Design").Success)
	require.True(t, executor.Run(ctx, "/task Build").Success)

	result := executor.Run(ctx, "/next looks good")
	require.True(t, result.Success, result.Message)
	assert.Contains(t, result.Message, "Design")

	task, ok := result.Data.(*models.Task)
	require.True(t, ok)
	assert.Equal(t, models.TaskStatusCompleted, task.Status)
	assert.Contains(t, task.Notes, "Completed: looks good")

	// The next /next moves on to the second task.
	result = executor.Run(ctx, "/next")
	require.True(t, result.Success, result.Message)
	assert.Contains(t, result.Message, "Build")
}

func TestExecutor_Next_NothingActionable(t *testing.T) {
	executor := newTestExecutor(t)
	ctx := context.Background()

	require.True(t, executor.Run(ctx, "/start Release 1.0").Success)

	result := executor.Run(ctx, "/next")
	require.False(t, result.Success)
	assert.Equal(t, workflow.CodeInvalidTransition, result.ErrorCode)
}

func TestExecutor_Focus(t *testing.T) {
	executor := newTestExecutor(t)
	ctx := context.Background()

	require.True(t, executor.Run(ctx, "/start Release 1.0").Success)
	require.True(t, executor.Run(ctx, "/task Design").Success)
	require.True(t, executor.Run(ctx, "/task Build").Success)

	result := executor.Run(ctx, "/focus 1")
	require.True(t, result.Success, result.Message)
	assert.Contains(t, result.Message, "Build")
}

func TestExecutor_Focus_UnknownRef(t *testing.T) {
	executor := newTestExecutor(t)
	ctx := context.Background()

	require.True(t, executor.Run(ctx, "/start Release 1.0").Success)

	result := executor.Run(ctx, "/focus 7")
	require.False(t, result.Success)
	assert.Equal(t, workflow.CodeNotFound, result.ErrorCode)
}

func TestExecutor_Status(t *testing.T) {
	executor := newTestExecutor(t)
	ctx := context.Background()

	require.True(t, executor.Run(ctx, "/start Release 1.0").Success)
	require.True(t, executor.Run(ctx, "/task Design").Success)

	result := executor.Run(ctx, "/status")
	require.True(t, result.Success)

	status, ok := result.Data.(workflow.Status)
	require.True(t, ok)
	assert.Equal(t, "Release 1.0", status.PlanName)
	assert.Equal(t, 1, status.Stats.TotalTasks)
}

func TestExecutor_StatusHistory(t *testing.T) {
	executor := newTestExecutor(t)
	ctx := context.Background()

	require.True(t, executor.Run(ctx, "/start Release 1.0").Success)

	result := executor.Run(ctx, "/status history")
	require.True(t, result.Success)

	data, ok := result.Data.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, data, "status")
	assert.Contains(t, data, "events")
}

func TestExecutor_Plan_NoActivePlan(t *testing.T) {
	executor := newTestExecutor(t)

	result := executor.Run(context.Background(), "/plan")
	require.False(t, result.Success)
	assert.Equal(t, workflow.CodeNotFound, result.ErrorCode)
}

func TestExecutor_PlanList_IncludesArchived(t *testing.T) {
	executor := newTestExecutor(t)
	ctx := context.Background()

	require.True(t, executor.Run(ctx, "/start First").Success)
	require.True(t, executor.Run(ctx, "/start Second").Success)

	result := executor.Run(ctx, "/plan list")
	require.True(t, result.Success)

	summaries, ok := result.Data.([]PlanSummary)
	require.True(t, ok)
	require.Len(t, summaries, 2)

	assert.Equal(t, "First", summaries[0].Name)
	assert.False(t, summaries[0].Current)
	assert.Equal(t, "Second", summaries[1].Name)
	assert.True(t, summaries[1].Current)
}

func TestExecutor_UnknownCommand(t *testing.T) {
	executor := newTestExecutor(t)

	result := executor.Run(context.Background(), "/explode now")
	require.False(t, result.Success)
	assert.Equal(t, "unknown_command", result.ErrorCode)
	assert.Contains(t, result.Message, "unknown command")
}
