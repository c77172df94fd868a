package workflow

import (
	"context"
	"log/slog"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planion/planion/pkg/channels/gochannel"
	"github.com/planion/planion/pkg/eventbus"
	"github.com/planion/planion/pkg/events"
	"github.com/planion/planion/pkg/models"
	"github.com/planion/planion/pkg/persistence"
	"github.com/planion/planion/pkg/persistence/file"
)

func newTestBus(t *testing.T) eventbus.EventBus {
	t.Helper()

	pub, sub := gochannel.CreateTestChannel(watermill.NopLogger{})
	bus := eventbus.NewWatermillEventBus(pub, sub, slog.Default())

	t.Cleanup(func() {
		_ = bus.Close()
	})

	return bus
}

func newTestManager(t *testing.T) (*Manager, persistence.SnapshotStore) {
	t.Helper()

	snapshots := file.NewSnapshotStore(t.TempDir())

	return NewManager(context.Background(), "test-project", newTestBus(t), snapshots, slog.Default()), snapshots
}

func startedPlanWithTasks(t *testing.T, m *Manager, titles ...string) []*models.Task {
	t.Helper()

	ctx := context.Background()

	_, err := m.StartPlan(ctx, "Release 1.0", "ship it")
	require.NoError(t, err)

	tasks := make([]*models.Task, 0, len(titles))

	for _, title := range titles {
		task, err := m.AddTask(ctx, title, "")
		require.NoError(t, err)
		tasks = append(tasks, task)
	}

	return tasks
}

func eventTypes(log []*events.WorkflowEvent) []events.EventType {
	types := make([]events.EventType, 0, len(log))
	for _, event := range log {
		types = append(types, event.Type)
	}

	return types
}

func TestManager_StartPlan(t *testing.T) {
	m, _ := newTestManager(t)

	plan, err := m.StartPlan(context.Background(), "Release 1.0", "ship it")
	require.NoError(t, err)

	assert.Equal(t, models.PlanStatusActive, plan.Status)

	status := m.Status()
	assert.True(t, status.HasPlan)
	assert.Equal(t, "Release 1.0", status.PlanName)

	assert.Equal(t, []events.EventType{
		events.PlanCreatedEvent,
		events.PlanStartedEvent,
	}, eventTypes(m.RecentEvents(10)))
}

func TestManager_StartPlan_InvalidName(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.StartPlan(context.Background(), "   ", "")
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Equal(t, CodeValidationError, ErrorCode(err))
}

func TestManager_StartPlan_ArchivesExistingPlan(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	first, err := m.StartPlan(ctx, "First", "")
	require.NoError(t, err)

	second, err := m.StartPlan(ctx, "Second", "")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	status := m.Status()
	assert.Equal(t, second.ID, status.PlanID)

	// The unfinished first plan is force-completed before it is archived,
	// just as an explicit archive would do.
	assert.Equal(t, []events.EventType{
		events.PlanCreatedEvent,
		events.PlanStartedEvent,
		events.PlanCompletedEvent,
		events.PlanArchivedEvent,
		events.PlanCreatedEvent,
		events.PlanStartedEvent,
	}, eventTypes(m.RecentEvents(10)))

	completed := m.EventsByType(events.PlanCompletedEvent)
	require.Len(t, completed, 1)
	assert.Equal(t, first.ID, completed[0].PlanID)

	archived := m.EventsByType(events.PlanArchivedEvent)
	require.Len(t, archived, 1)
	assert.Equal(t, first.ID, archived[0].PlanID)
}

func TestManager_AddTask_RequiresActivePlan(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.AddTask(context.Background(), "Design", "")
	require.Error(t, err)
	assert.True(t, IsInvalidTransition(err))
	assert.ErrorIs(t, err, ErrNoActivePlan)
}

func TestManager_AddTask_RecordsPosition(t *testing.T) {
	m, _ := newTestManager(t)
	startedPlanWithTasks(t, m, "Design", "Build")

	added := m.EventsByType(events.TaskAddedEvent)
	require.Len(t, added, 2)
	assert.Equal(t, 0, added[0].Details[events.DetailPosition])
	assert.Equal(t, 1, added[1].Details[events.DetailPosition])
}

func TestManager_StartTask_SetsFocus(t *testing.T) {
	m, _ := newTestManager(t)
	tasks := startedPlanWithTasks(t, m, "Design", "Build")

	ctx := context.Background()

	_, err := m.StartTask(ctx, tasks[1].ID)
	require.NoError(t, err)

	current := m.CurrentTask()
	require.NotNil(t, current)
	assert.Equal(t, "Build", current.Title)
}

func TestManager_StartTask_UnknownTask(t *testing.T) {
	m, _ := newTestManager(t)
	startedPlanWithTasks(t, m, "Design")

	_, err := m.StartTask(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestManager_CompleteTask_IdempotentWithoutEvent(t *testing.T) {
	m, _ := newTestManager(t)
	tasks := startedPlanWithTasks(t, m, "Design", "Build")

	ctx := context.Background()

	_, err := m.CompleteTask(ctx, tasks[0].ID, "done")
	require.NoError(t, err)

	before := m.Status().TotalEvents

	task, err := m.CompleteTask(ctx, tasks[0].ID, "again")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCompleted, task.Status)
	assert.Equal(t, before, m.Status().TotalEvents)
}

func TestManager_CompleteLastTask_CompletesPlan(t *testing.T) {
	m, _ := newTestManager(t)
	tasks := startedPlanWithTasks(t, m, "Design", "Build")

	ctx := context.Background()

	_, err := m.CompleteTask(ctx, tasks[0].ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.PlanStatusActive, m.Status().PlanStatus)

	_, err = m.CompleteTask(ctx, tasks[1].ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.PlanStatusCompleted, m.Status().PlanStatus)

	completed := m.EventsByType(events.PlanCompletedEvent)
	require.Len(t, completed, 1)
	assert.Equal(t, 2, completed[0].Details[events.DetailTotalTasks])
	assert.Equal(t, 2, completed[0].Details[events.DetailCompletedTasks])
}

func TestManager_CancelLastTask_CompletesPlan(t *testing.T) {
	m, _ := newTestManager(t)
	tasks := startedPlanWithTasks(t, m, "Design", "Build")

	ctx := context.Background()

	_, err := m.CompleteTask(ctx, tasks[0].ID, "")
	require.NoError(t, err)

	_, err = m.CancelTask(ctx, tasks[1].ID, "descoped")
	require.NoError(t, err)

	assert.Equal(t, models.PlanStatusCompleted, m.Status().PlanStatus)
}

func TestManager_FailTask_LeavesPlanOpen(t *testing.T) {
	m, _ := newTestManager(t)
	tasks := startedPlanWithTasks(t, m, "Design")

	ctx := context.Background()

	task, err := m.FailTask(ctx, tasks[0].ID, "compile error")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCancelled, task.Status)

	// The plan stays active so the failure can be retried.
	assert.Equal(t, models.PlanStatusActive, m.Status().PlanStatus)

	failed := m.EventsByType(events.TaskFailedEvent)
	require.Len(t, failed, 1)
	assert.Equal(t, true, failed[0].Details[events.DetailFailed])
}

func TestManager_FailedTask_CanBeRestarted(t *testing.T) {
	m, _ := newTestManager(t)
	tasks := startedPlanWithTasks(t, m, "Design")

	ctx := context.Background()

	_, err := m.FailTask(ctx, tasks[0].ID, "flaky")
	require.NoError(t, err)

	task, err := m.StartTask(ctx, tasks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusInProgress, task.Status)
}

func TestManager_BlockUnblock_RestoresStatus(t *testing.T) {
	m, _ := newTestManager(t)
	tasks := startedPlanWithTasks(t, m, "Design", "Build")

	ctx := context.Background()

	_, err := m.StartTask(ctx, tasks[0].ID)
	require.NoError(t, err)

	_, err = m.BlockTask(ctx, tasks[0].ID, "waiting on review")
	require.NoError(t, err)

	// A blocked task is never in focus.
	current := m.CurrentTask()
	require.NotNil(t, current)
	assert.Equal(t, "Build", current.Title)

	task, err := m.UnblockTask(ctx, tasks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusInProgress, task.Status)

	unblocked := m.EventsByType(events.TaskUnblockedEvent)
	require.Len(t, unblocked, 1)
	assert.Equal(t, string(models.TaskStatusInProgress), unblocked[0].Details[events.DetailRestoredStatus])
}

func TestManager_BlockTask_AlreadyBlocked(t *testing.T) {
	m, _ := newTestManager(t)
	tasks := startedPlanWithTasks(t, m, "Design")

	ctx := context.Background()

	_, err := m.BlockTask(ctx, tasks[0].ID, "first")
	require.NoError(t, err)

	_, err = m.BlockTask(ctx, tasks[0].ID, "second")
	require.Error(t, err)
	assert.True(t, IsInvalidTransition(err))
}

func TestManager_AddNote(t *testing.T) {
	m, _ := newTestManager(t)
	tasks := startedPlanWithTasks(t, m, "Design")

	task, err := m.AddNote(context.Background(), tasks[0].ID, "remember the docs")
	require.NoError(t, err)
	assert.Contains(t, task.Notes, "remember the docs")

	notes := m.EventsByType(events.NoteAddedEvent)
	require.Len(t, notes, 1)
	assert.Equal(t, "remember the docs", notes[0].Details[events.DetailNote])
}

func TestManager_FocusTask_ByIndexAndID(t *testing.T) {
	m, _ := newTestManager(t)
	tasks := startedPlanWithTasks(t, m, "Design", "Build", "Test")

	ctx := context.Background()

	task, err := m.FocusTask(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, "Test", task.Title)

	task, err = m.FocusTask(ctx, tasks[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "Build", task.Title)

	current := m.CurrentTask()
	require.NotNil(t, current)
	assert.Equal(t, "Build", current.Title)
}

func TestManager_FocusTask_ResolvedRejected(t *testing.T) {
	m, _ := newTestManager(t)
	tasks := startedPlanWithTasks(t, m, "Design", "Build")

	ctx := context.Background()

	_, err := m.CompleteTask(ctx, tasks[0].ID, "")
	require.NoError(t, err)

	_, err = m.FocusTask(ctx, "0")
	require.Error(t, err)
	assert.True(t, IsInvalidTransition(err))
}

func TestManager_FocusTask_UnknownRef(t *testing.T) {
	m, _ := newTestManager(t)
	startedPlanWithTasks(t, m, "Design")

	_, err := m.FocusTask(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestManager_AdvanceFocus(t *testing.T) {
	m, _ := newTestManager(t)
	tasks := startedPlanWithTasks(t, m, "Design", "Build")

	ctx := context.Background()

	_, err := m.CompleteTask(ctx, tasks[0].ID, "")
	require.NoError(t, err)

	next, err := m.AdvanceFocus(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "Build", next.Title)
}

func TestManager_PauseAndResume(t *testing.T) {
	m, _ := newTestManager(t)
	startedPlanWithTasks(t, m, "Design")

	ctx := context.Background()

	require.NoError(t, m.PausePlan(ctx, "retry budget exhausted"))

	status := m.Status()
	assert.True(t, status.Paused)
	assert.Equal(t, "retry budget exhausted", status.PauseReason)
	assert.Equal(t, models.PlanStatusActive, status.PlanStatus)
	require.Len(t, m.EventsByType(events.PlanPausedEvent), 1)

	require.NoError(t, m.ResumePlan(ctx))
	assert.False(t, m.Status().Paused)
}

func TestManager_ArchivePlan(t *testing.T) {
	m, _ := newTestManager(t)
	startedPlanWithTasks(t, m, "Design")

	ctx := context.Background()

	require.NoError(t, m.ArchivePlan(ctx))
	assert.False(t, m.Status().HasPlan)

	// An unfinished plan is force-completed on archive.
	require.Len(t, m.EventsByType(events.PlanCompletedEvent), 1)
	require.Len(t, m.EventsByType(events.PlanArchivedEvent), 1)

	require.ErrorIs(t, m.ArchivePlan(ctx), ErrNoActivePlan)
}

func TestManager_WithActor_StampsEvents(t *testing.T) {
	m, _ := newTestManager(t)
	m.WithActor("alice")

	startedPlanWithTasks(t, m, "Design")

	for _, event := range m.RecentEvents(10) {
		assert.Equal(t, "alice", event.Actor)
	}
}

func TestManager_ContextActor_ScopedToOneCall(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.StartPlan(ContextWithActor(ctx, "alice"), "Launch", "")
	require.NoError(t, err)

	// A later call without an actor on its context falls back to the
	// manager default; the earlier caller's identity must not stick.
	_, err = m.AddTask(ctx, "Design", "")
	require.NoError(t, err)

	recent := m.RecentEvents(10)
	require.Len(t, recent, 3)
	assert.Equal(t, "alice", recent[0].Actor)
	assert.Equal(t, "alice", recent[1].Actor)
	assert.Equal(t, events.SystemActor, recent[2].Actor)
}

func TestManager_SnapshotRestore_AcrossManagers(t *testing.T) {
	snapshots := file.NewSnapshotStore(t.TempDir())
	ctx := context.Background()

	m := NewManager(ctx, "test-project", newTestBus(t), snapshots, slog.Default())
	tasks := startedPlanWithTasks(t, m, "Design", "Build")

	_, err := m.CompleteTask(ctx, tasks[0].ID, "done")
	require.NoError(t, err)
	require.NoError(t, m.Close(ctx))

	restored := NewManager(ctx, "test-project", newTestBus(t), snapshots, slog.Default())

	status := restored.Status()
	assert.True(t, status.HasPlan)
	assert.Equal(t, "Release 1.0", status.PlanName)
	assert.Equal(t, 2, status.Stats.TotalTasks)
	assert.Equal(t, 1, status.Stats.CompletedTasks)
	assert.Equal(t, m.Status().TotalEvents, status.TotalEvents)

	current := restored.CurrentTask()
	require.NotNil(t, current)
	assert.Equal(t, "Build", current.Title)
}

func TestManager_ReleaseScenario(t *testing.T) {
	m, _ := newTestManager(t)
	tasks := startedPlanWithTasks(t, m, "Design", "Build", "Test")

	ctx := context.Background()

	_, err := m.StartTask(ctx, tasks[0].ID)
	require.NoError(t, err)

	_, err = m.CompleteTask(ctx, tasks[0].ID, "design approved")
	require.NoError(t, err)

	status := m.Status()
	assert.Equal(t, 33, status.Stats.ProgressPercent)
	assert.Equal(t, 3, status.Stats.TotalTasks)
	assert.Equal(t, 1, status.Stats.CompletedTasks)

	current := m.CurrentTask()
	require.NotNil(t, current)
	assert.Equal(t, "Build", current.Title)
}
