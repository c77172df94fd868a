package workflow

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/planion/planion/pkg/eventbus"
	"github.com/planion/planion/pkg/events"
	"github.com/planion/planion/pkg/eventstore"
	"github.com/planion/planion/pkg/models"
	"github.com/planion/planion/pkg/otelhelper"
	"github.com/planion/planion/pkg/persistence"
)

// Manager orchestrates one project's workflow. It exclusively owns the live
// plan and the event store; every mutation goes through its operations, which
// are serialized by the manager lock. Each operation validates, mutates the
// domain model, appends the event, publishes it, and persists a snapshot
// before returning.
type Manager struct {
	projectID string
	actor     string
	mu        sync.Mutex
	plan      *models.Plan
	store     *eventstore.Store
	bus       eventbus.EventBus
	snapshots persistence.SnapshotStore
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewManager creates a manager for the project and loads its latest snapshot.
// A missing or corrupt snapshot yields an empty state, never an error.
func NewManager(ctx context.Context, projectID string, bus eventbus.EventBus, snapshots persistence.SnapshotStore, logger *slog.Logger) *Manager {
	m := &Manager{
		projectID: projectID,
		actor:     events.SystemActor,
		store:     eventstore.NewStore(),
		bus:       bus,
		snapshots: snapshots,
		logger: logger.With(
			"module", "workflow_manager",
			"project_id", projectID,
		),
		tracer: otel.Tracer("planion/workflow"),
	}

	m.restore(ctx)

	return m
}

// WithActor sets the default principal recorded on events this manager
// emits. Only the manager's owner may call it, before sharing; per-request
// attribution on a shared manager goes through ContextWithActor.
func (m *Manager) WithActor(actor string) *Manager {
	m.actor = actor

	return m
}

// ProjectID returns the project this manager owns.
func (m *Manager) ProjectID() string {
	return m.projectID
}

func (m *Manager) restore(ctx context.Context) {
	snapshot, err := m.snapshots.Load(ctx, m.projectID)
	if err != nil {
		if persistence.IsSnapshotNotFound(err) {
			return
		}

		m.logger.Warn("Starting from empty state, snapshot unreadable", "error", err)

		return
	}

	m.plan = snapshot.Plan
	m.store.Restore(snapshot.Events)
	m.logger.Info("Restored snapshot", "events", len(snapshot.Events), "has_plan", m.plan != nil)
}

// StartPlan archives any existing current plan, then creates and activates a
// new one. At most one plan is ever active per project.
func (m *Manager) StartPlan(ctx context.Context, name, description string) (*models.Plan, error) {
	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "StartPlan",
		attribute.String(otelhelper.ProjectIDKey, m.projectID))
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	plan, err := models.NewPlan(name, description)
	if err != nil {
		opErr := newValidationError("StartPlan", err)
		otelhelper.SetError(span, opErr)

		return nil, opErr
	}

	if m.plan != nil && m.plan.Status != models.PlanStatusArchived {
		wasCompleted := m.plan.Status == models.PlanStatusCompleted
		if archiveErr := m.plan.Archive(); archiveErr == nil {
			// Same event sequence as an explicit archive.
			if !wasCompleted {
				m.record(ctx, events.NewPlanCompleted(m.plan))
			}

			m.record(ctx, events.NewPlanArchived(m.plan))
		}
	}

	_ = plan.Start()
	m.plan = plan

	m.record(ctx, events.NewPlanCreated(plan))
	m.record(ctx, events.NewPlanStarted(plan))

	m.logger.Info("Started plan", "plan_id", plan.ID, "name", plan.Name)

	return plan, m.persist(ctx, "StartPlan")
}

// AddTask appends a task to the current plan.
func (m *Manager) AddTask(ctx context.Context, title, description string) (*models.Task, error) {
	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "AddTask",
		attribute.String(otelhelper.ProjectIDKey, m.projectID))
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireActivePlan("AddTask"); err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	task, err := models.NewTask(title, description)
	if err != nil {
		opErr := newValidationError("AddTask", err)
		otelhelper.SetError(span, opErr)

		return nil, opErr
	}

	m.plan.AddTask(task)
	m.record(ctx, events.NewTaskAdded(m.plan, task, len(m.plan.Tasks)-1))

	return task, m.persist(ctx, "AddTask")
}

// StartTask moves a task into progress and focuses it. Restarting a failed
// task goes through here; this is the retry entry point.
func (m *Manager) StartTask(ctx context.Context, taskID string) (*models.Task, error) {
	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "StartTask",
		attribute.String(otelhelper.ProjectIDKey, m.projectID),
		attribute.String(otelhelper.TaskIDKey, taskID))
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	task, index, err := m.findTask("StartTask", taskID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	err = task.Start()
	if err != nil {
		opErr := classify("StartTask", err)
		otelhelper.SetError(span, opErr)

		return nil, opErr
	}

	m.plan.CurrentTaskIndex = index
	m.record(ctx, events.NewTaskStarted(m.plan, task))

	return task, m.persist(ctx, "StartTask")
}

// CompleteTask completes a task. Completing an already-completed task is a
// no-op success and emits nothing. When the last unresolved task completes,
// the plan is completed as well.
func (m *Manager) CompleteTask(ctx context.Context, taskID, note string) (*models.Task, error) {
	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "CompleteTask",
		attribute.String(otelhelper.ProjectIDKey, m.projectID),
		attribute.String(otelhelper.TaskIDKey, taskID))
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	task, _, err := m.findTask("CompleteTask", taskID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	if task.Status == models.TaskStatusCompleted {
		return task, nil
	}

	_ = task.Complete(note)
	m.record(ctx, events.NewTaskCompleted(m.plan, task, note))
	m.completePlanIfResolved(ctx)

	return task, m.persist(ctx, "CompleteTask")
}

// FailTask records a task failure. The plan is left open so the failure can
// be retried or escalated by listeners.
func (m *Manager) FailTask(ctx context.Context, taskID, errMessage string) (*models.Task, error) {
	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "FailTask",
		attribute.String(otelhelper.ProjectIDKey, m.projectID),
		attribute.String(otelhelper.TaskIDKey, taskID))
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	task, _, err := m.findTask("FailTask", taskID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	err = task.Fail(errMessage)
	if err != nil {
		opErr := classify("FailTask", err)
		otelhelper.SetError(span, opErr)

		return nil, opErr
	}

	m.record(ctx, events.NewTaskFailed(m.plan, task, errMessage))

	return task, m.persist(ctx, "FailTask")
}

// BlockTask applies the blocked side-state to a task.
func (m *Manager) BlockTask(ctx context.Context, taskID, reason string) (*models.Task, error) {
	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "BlockTask",
		attribute.String(otelhelper.ProjectIDKey, m.projectID),
		attribute.String(otelhelper.TaskIDKey, taskID))
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	task, _, err := m.findTask("BlockTask", taskID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	err = task.Block(reason)
	if err != nil {
		opErr := classify("BlockTask", err)
		otelhelper.SetError(span, opErr)

		return nil, opErr
	}

	m.record(ctx, events.NewTaskBlocked(m.plan, task, reason))

	return task, m.persist(ctx, "BlockTask")
}

// UnblockTask clears the blocked side-state, restoring the prior status.
func (m *Manager) UnblockTask(ctx context.Context, taskID string) (*models.Task, error) {
	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "UnblockTask",
		attribute.String(otelhelper.ProjectIDKey, m.projectID),
		attribute.String(otelhelper.TaskIDKey, taskID))
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	task, _, err := m.findTask("UnblockTask", taskID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	err = task.Unblock()
	if err != nil {
		opErr := classify("UnblockTask", err)
		otelhelper.SetError(span, opErr)

		return nil, opErr
	}

	m.record(ctx, events.NewTaskUnblocked(m.plan, task))

	return task, m.persist(ctx, "UnblockTask")
}

// CancelTask moves a task into the cancelled terminal status. When the last
// unresolved task is cancelled, the plan is completed.
func (m *Manager) CancelTask(ctx context.Context, taskID, reason string) (*models.Task, error) {
	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "CancelTask",
		attribute.String(otelhelper.ProjectIDKey, m.projectID),
		attribute.String(otelhelper.TaskIDKey, taskID))
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	task, _, err := m.findTask("CancelTask", taskID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	err = task.Cancel(reason)
	if err != nil {
		opErr := classify("CancelTask", err)
		otelhelper.SetError(span, opErr)

		return nil, opErr
	}

	m.record(ctx, events.NewTaskCancelled(m.plan, task, reason))
	m.completePlanIfResolved(ctx)

	return task, m.persist(ctx, "CancelTask")
}

// AddNote appends a free-text annotation to a task.
func (m *Manager) AddNote(ctx context.Context, taskID, note string) (*models.Task, error) {
	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "AddNote",
		attribute.String(otelhelper.ProjectIDKey, m.projectID),
		attribute.String(otelhelper.TaskIDKey, taskID))
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	task, _, err := m.findTask("AddNote", taskID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	task.AddNote(note)
	m.record(ctx, events.NewNoteAdded(m.plan, task, note))

	return task, m.persist(ctx, "AddNote")
}

// FocusTask moves the focus hint to the task referenced by position (0-based
// index) or ID. The task must not be resolved.
func (m *Manager) FocusTask(ctx context.Context, ref string) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireActivePlan("FocusTask"); err != nil {
		return nil, err
	}

	index := -1

	if n, convErr := strconv.Atoi(ref); convErr == nil && n >= 0 && n < len(m.plan.Tasks) {
		index = n
	} else {
		for i, task := range m.plan.Tasks {
			if task.ID == ref {
				index = i

				break
			}
		}
	}

	if index < 0 {
		return nil, newNotFoundError("FocusTask", ref)
	}

	task := m.plan.Tasks[index]
	if task.Resolved() {
		return nil, newTransitionError("FocusTask", models.ErrTaskResolved)
	}

	m.plan.CurrentTaskIndex = index

	return task, m.persist(ctx, "FocusTask")
}

// AdvanceFocus moves the focus hint to the next actionable task and returns
// it, or nil when none remains.
func (m *Manager) AdvanceFocus(ctx context.Context) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.plan == nil {
		return nil, newTransitionError("AdvanceFocus", ErrNoActivePlan)
	}

	task := m.plan.CurrentTask()

	return task, m.persist(ctx, "AdvanceFocus")
}

// CurrentTask returns the task currently in focus, or nil.
func (m *Manager) CurrentTask() *models.Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.plan == nil {
		return nil
	}

	if task := m.plan.CurrentTask(); task != nil {
		return task.Clone()
	}

	return nil
}

// PausePlan records an escalation pausing work on the current plan.
func (m *Manager) PausePlan(ctx context.Context, reason string) error {
	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "PausePlan",
		attribute.String(otelhelper.ProjectIDKey, m.projectID))
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireActivePlan("PausePlan"); err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	m.plan.Pause(reason)
	m.record(ctx, events.NewPlanPaused(m.plan, reason))
	m.logger.Warn("Plan paused", "plan_id", m.plan.ID, "reason", reason)

	return m.persist(ctx, "PausePlan")
}

// ResumePlan clears the paused side-state.
func (m *Manager) ResumePlan(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireActivePlan("ResumePlan"); err != nil {
		return err
	}

	m.plan.Resume()

	return m.persist(ctx, "ResumePlan")
}

// ArchivePlan archives the current plan and clears the current pointer. An
// unfinished plan is force-completed first.
func (m *Manager) ArchivePlan(ctx context.Context) error {
	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "ArchivePlan",
		attribute.String(otelhelper.ProjectIDKey, m.projectID))
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.plan == nil {
		opErr := newTransitionError("ArchivePlan", ErrNoActivePlan)
		otelhelper.SetError(span, opErr)

		return opErr
	}

	wasCompleted := m.plan.Status == models.PlanStatusCompleted

	err := m.plan.Archive()
	if err != nil {
		opErr := classify("ArchivePlan", err)
		otelhelper.SetError(span, opErr)

		return opErr
	}

	if !wasCompleted {
		m.record(ctx, events.NewPlanCompleted(m.plan))
	}

	m.record(ctx, events.NewPlanArchived(m.plan))
	m.logger.Info("Archived plan", "plan_id", m.plan.ID)

	m.plan = nil

	return m.persist(ctx, "ArchivePlan")
}

// Save persists a snapshot of the current state. It shares the lock and the
// persistence path with every mutating operation, so the periodic auto-save
// can never race an explicit save.
func (m *Manager) Save(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.persist(ctx, "Save")
}

// Close performs a final save. The bus and snapshot store are shared and are
// closed by their owner, not here.
func (m *Manager) Close(ctx context.Context) error {
	return m.Save(ctx)
}

// requireActivePlan must be called with the lock held.
func (m *Manager) requireActivePlan(op string) error {
	if m.plan == nil || m.plan.Status == models.PlanStatusArchived {
		return newTransitionError(op, ErrNoActivePlan)
	}

	return nil
}

// findTask must be called with the lock held.
func (m *Manager) findTask(op, taskID string) (*models.Task, int, error) {
	if m.plan == nil {
		return nil, -1, newTransitionError(op, ErrNoActivePlan)
	}

	for i, task := range m.plan.Tasks {
		if task.ID == taskID {
			return task, i, nil
		}
	}

	return nil, -1, newNotFoundError(op, taskID)
}

// completePlanIfResolved must be called with the lock held.
func (m *Manager) completePlanIfResolved(ctx context.Context) {
	if m.plan.Status != models.PlanStatusActive || len(m.plan.Tasks) == 0 {
		return
	}

	if !m.plan.AllTasksResolved() {
		return
	}

	_ = m.plan.Complete()
	m.record(ctx, events.NewPlanCompleted(m.plan))
	m.logger.Info("Plan completed", "plan_id", m.plan.ID)
}

// record appends the event to the store and publishes it on the bus. The
// store append always happens; a publish failure is logged and counted but
// never fails the operation.
func (m *Manager) record(ctx context.Context, event *events.WorkflowEvent) {
	event.Actor = actorFromContext(ctx, m.actor)

	m.store.Add(event)

	err := m.bus.Publish(ctx, m.projectID, event)
	if err != nil {
		m.logger.Error("Failed to publish event",
			"event_id", event.ID, "event_type", event.Type, "error", err)
	}
}

// persist must be called with the lock held. A persistence failure leaves the
// completed in-memory mutation standing and surfaces ErrSnapshotFailed so the
// caller knows durability is at risk.
func (m *Manager) persist(ctx context.Context, op string) error {
	snapshot := &persistence.Snapshot{
		Plan:   m.plan,
		Events: m.store.Snapshot(),
	}

	err := m.snapshots.Save(ctx, m.projectID, snapshot)
	if err != nil {
		m.logger.Error("Failed to persist snapshot", "operation", op, "error", err)

		return &OperationError{
			Op:      op,
			Code:    CodePersistenceError,
			Message: "state updated but snapshot save failed: " + err.Error(),
			Err:     ErrSnapshotFailed,
		}
	}

	return nil
}
