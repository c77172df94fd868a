package events

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planion/planion/pkg/models"
)

func testPlan(t *testing.T) (*models.Plan, *models.Task) {
	t.Helper()

	plan, err := models.NewPlan("Release 1.0", "")
	require.NoError(t, err)

	task, err := models.NewTask("Design", "")
	require.NoError(t, err)
	plan.AddTask(task)

	return plan, task
}

func TestEventType_Valid(t *testing.T) {
	for _, eventType := range AllEventTypes() {
		assert.True(t, eventType.Valid(), string(eventType))
	}

	assert.False(t, EventType("plan_exploded").Valid())
	assert.False(t, EventType("").Valid())
}

func TestAllEventTypes_Count(t *testing.T) {
	assert.Len(t, AllEventTypes(), 14)
}

func TestNewPlanCreated(t *testing.T) {
	plan, _ := testPlan(t)

	event := NewPlanCreated(plan)
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, PlanCreatedEvent, event.Type)
	assert.Equal(t, plan.ID, event.PlanID)
	assert.Empty(t, event.TaskID)
	assert.Equal(t, SystemActor, event.Actor)
	assert.Equal(t, "Release 1.0", event.Details[DetailName])
	assert.False(t, event.Timestamp.IsZero())
}

func TestNewPlanCompleted_CarriesCounts(t *testing.T) {
	plan, task := testPlan(t)
	require.NoError(t, task.Complete(""))

	event := NewPlanCompleted(plan)
	assert.Equal(t, 1, event.Details[DetailTotalTasks])
	assert.Equal(t, 1, event.Details[DetailCompletedTasks])
}

func TestNewPlanPaused_CarriesReason(t *testing.T) {
	plan, _ := testPlan(t)

	event := NewPlanPaused(plan, "retry budget exhausted")
	assert.Equal(t, PlanPausedEvent, event.Type)
	assert.Equal(t, "retry budget exhausted", event.Details[DetailReason])
}

func TestNewTaskAdded_CarriesTitleAndDescription(t *testing.T) {
	plan, _ := testPlan(t)

	task, err := models.NewTask("Design", "write the design doc")
	require.NoError(t, err)
	plan.AddTask(task)

	event := NewTaskAdded(plan, task, 1)
	assert.Equal(t, task.ID, event.TaskID)
	assert.Equal(t, "Design", event.Details[DetailTitle])
	assert.Equal(t, "write the design doc", event.Details[DetailDescription])
	assert.Equal(t, 1, event.Details[DetailPosition])
}

func TestNewTaskCompleted_OmitsEmptyNote(t *testing.T) {
	plan, task := testPlan(t)
	require.NoError(t, task.Start())
	require.NoError(t, task.Complete(""))

	event := NewTaskCompleted(plan, task, "")
	assert.NotContains(t, event.Details, DetailNote)
	assert.Contains(t, event.Details, DetailDuration)
}

func TestNewTaskFailed_DistinguishableFromCancelled(t *testing.T) {
	plan, task := testPlan(t)

	failed := NewTaskFailed(plan, task, "compile error")
	assert.Equal(t, TaskFailedEvent, failed.Type)
	assert.Equal(t, "compile error", failed.Details[DetailError])
	assert.Equal(t, true, failed.Details[DetailFailed])

	cancelled := NewTaskCancelled(plan, task, "descoped")
	assert.Equal(t, TaskCancelledEvent, cancelled.Type)
	assert.NotContains(t, cancelled.Details, DetailFailed)
}

func TestNewTaskUnblocked_CarriesRestoredStatus(t *testing.T) {
	plan, task := testPlan(t)
	require.NoError(t, task.Start())

	event := NewTaskUnblocked(plan, task)
	assert.Equal(t, string(models.TaskStatusInProgress), event.Details[DetailRestoredStatus])
}

func TestNewSystemError(t *testing.T) {
	event := NewSystemError("plan-1", "save", errors.New("disk full"))
	assert.Equal(t, SystemErrorEvent, event.Type)
	assert.Equal(t, "save", event.Details[DetailOperation])
	assert.Equal(t, "disk full", event.Details[DetailError])
}

func TestWorkflowEvent_UniqueIDs(t *testing.T) {
	plan, _ := testPlan(t)

	first := NewPlanStarted(plan)
	second := NewPlanStarted(plan)
	assert.NotEqual(t, first.ID, second.ID)
}
