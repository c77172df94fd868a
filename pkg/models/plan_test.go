package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPlanWithTasks(t *testing.T, titles ...string) *Plan {
	t.Helper()

	plan, err := NewPlan("Release 1.0", "ship it")
	require.NoError(t, err)
	require.NoError(t, plan.Start())

	for _, title := range titles {
		task, err := NewTask(title, "")
		require.NoError(t, err)
		plan.AddTask(task)
	}

	return plan
}

func TestNewPlan_Defaults(t *testing.T) {
	plan, err := NewPlan("  Release 1.0 ", " ship it ")
	require.NoError(t, err)

	assert.NotEmpty(t, plan.ID)
	assert.Equal(t, "Release 1.0", plan.Name)
	assert.Equal(t, "ship it", plan.Description)
	assert.Equal(t, PlanStatusDraft, plan.Status)
	assert.Empty(t, plan.Tasks)
}

func TestNewPlan_EmptyName(t *testing.T) {
	_, err := NewPlan("   ", "")
	assert.Error(t, err)
}

func TestPlan_Start_Idempotent(t *testing.T) {
	plan, err := NewPlan("Release 1.0", "")
	require.NoError(t, err)

	require.NoError(t, plan.Start())
	require.NoError(t, plan.Start())
	assert.Equal(t, PlanStatusActive, plan.Status)
}

func TestPlan_Start_ResolvedPlanRejected(t *testing.T) {
	plan, err := NewPlan("Release 1.0", "")
	require.NoError(t, err)

	require.NoError(t, plan.Complete())
	assert.ErrorIs(t, plan.Start(), ErrPlanResolved)
}

func TestPlan_Archive_ForceCompletes(t *testing.T) {
	plan := newPlanWithTasks(t, "Design")

	require.NoError(t, plan.Archive())
	assert.Equal(t, PlanStatusArchived, plan.Status)
	assert.NotNil(t, plan.CompletedAt)
	assert.NotNil(t, plan.ArchivedAt)
}

func TestPlan_Complete_ArchivedRejected(t *testing.T) {
	plan, err := NewPlan("Release 1.0", "")
	require.NoError(t, err)

	require.NoError(t, plan.Archive())
	assert.ErrorIs(t, plan.Complete(), ErrPlanArchived)
}

func TestPlan_PauseResume(t *testing.T) {
	plan := newPlanWithTasks(t)

	plan.Pause("too many failures")
	assert.True(t, plan.Paused)
	assert.Equal(t, "too many failures", plan.PauseReason)

	plan.Resume()
	assert.False(t, plan.Paused)
	assert.Empty(t, plan.PauseReason)
}

func TestPlan_CurrentTask_FollowsOrder(t *testing.T) {
	plan := newPlanWithTasks(t, "Design", "Build", "Test")

	current := plan.CurrentTask()
	require.NotNil(t, current)
	assert.Equal(t, "Design", current.Title)

	require.NoError(t, current.Complete(""))

	current = plan.CurrentTask()
	require.NotNil(t, current)
	assert.Equal(t, "Build", current.Title)
	assert.Equal(t, 1, plan.CurrentTaskIndex)
}

func TestPlan_CurrentTask_SkipsBlocked(t *testing.T) {
	plan := newPlanWithTasks(t, "Design", "Build")

	require.NoError(t, plan.Tasks[0].Block("waiting"))

	current := plan.CurrentTask()
	require.NotNil(t, current)
	assert.Equal(t, "Build", current.Title)
}

func TestPlan_CurrentTask_NoneActionable(t *testing.T) {
	plan := newPlanWithTasks(t, "Design")

	require.NoError(t, plan.Tasks[0].Cancel("descoped"))
	assert.Nil(t, plan.CurrentTask())
}

func TestPlan_CurrentTask_HonorsExplicitIndex(t *testing.T) {
	plan := newPlanWithTasks(t, "Design", "Build", "Test")

	plan.CurrentTaskIndex = 2

	current := plan.CurrentTask()
	require.NotNil(t, current)
	assert.Equal(t, "Test", current.Title)
}

func TestPlan_AllTasksResolved(t *testing.T) {
	plan := newPlanWithTasks(t, "Design", "Build")

	assert.False(t, plan.AllTasksResolved())

	require.NoError(t, plan.Tasks[0].Complete(""))
	require.NoError(t, plan.Tasks[1].Cancel("descoped"))
	assert.True(t, plan.AllTasksResolved())
}

func TestPlan_AllTasksResolved_EmptyPlan(t *testing.T) {
	plan := newPlanWithTasks(t)
	assert.True(t, plan.AllTasksResolved())
}

func TestPlan_Stats(t *testing.T) {
	plan := newPlanWithTasks(t, "Design", "Build", "Test")

	require.NoError(t, plan.Tasks[0].Start())
	require.NoError(t, plan.Tasks[0].Complete(""))
	require.NoError(t, plan.Tasks[1].Cancel("descoped"))

	stats := plan.Stats()
	assert.Equal(t, 3, stats.TotalTasks)
	assert.Equal(t, 1, stats.CompletedTasks)
	assert.Equal(t, 1, stats.CancelledTasks)
	assert.Equal(t, 33, stats.ProgressPercent)
	assert.InDelta(t, 1.0/3.0, stats.CompletionRate, 0.001)
}

func TestPlan_Stats_EmptyPlan(t *testing.T) {
	plan := newPlanWithTasks(t)

	stats := plan.Stats()
	assert.Equal(t, 0, stats.TotalTasks)
	assert.Equal(t, 0, stats.ProgressPercent)
	assert.Zero(t, stats.CompletionRate)
}

func TestPlan_TaskByID(t *testing.T) {
	plan := newPlanWithTasks(t, "Design")

	task, found := plan.TaskByID(plan.Tasks[0].ID)
	require.True(t, found)
	assert.Equal(t, "Design", task.Title)

	_, found = plan.TaskByID("missing")
	assert.False(t, found)
}
