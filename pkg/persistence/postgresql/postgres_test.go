package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/planion/planion/pkg/events"
	"github.com/planion/planion/pkg/models"
	"github.com/planion/planion/pkg/persistence"
	"github.com/planion/planion/pkg/persistence/postgresql"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"workflow_events", "snapshots", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.SnapshotStore, context.Context, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("planion_test"),
			postgres.WithUsername("planion"),
			postgres.WithPassword("planion"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := postgresql.NewSnapshotStore(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = store.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return store, ctx, databaseURL
}

func testSnapshot(t *testing.T) *persistence.Snapshot {
	t.Helper()

	plan, err := models.NewPlan("Release 1.0", "ship it")
	require.NoError(t, err)
	require.NoError(t, plan.Start())

	task, err := models.NewTask("Design", "")
	require.NoError(t, err)
	plan.AddTask(task)

	return &persistence.Snapshot{
		Plan: plan,
		Events: []*events.WorkflowEvent{
			events.NewPlanCreated(plan),
			events.NewPlanStarted(plan),
			events.NewTaskAdded(plan, task, 0),
		},
	}
}

func TestNewSnapshotStore_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	var exists bool

	err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = 'snapshots')`).Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists, "snapshots table should exist")

	err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = 'workflow_events')`).Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists, "workflow_events table should exist")

	var version int

	err = db.QueryRowContext(ctx, "SELECT version FROM schema_migrations WHERE version = 1").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestNewSnapshotStore_HealthCheck(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	err := store.HealthCheck(ctx)
	assert.NoError(t, err)
}

func TestSnapshotStore_SaveAndLoad(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	original := testSnapshot(t)

	err := store.Save(ctx, "proj-1", original)
	require.NoError(t, err)
	assert.Equal(t, persistence.SnapshotVersion, original.Version)
	assert.False(t, original.LastSaved.IsZero())

	loaded, err := store.Load(ctx, "proj-1")
	require.NoError(t, err)
	require.NotNil(t, loaded.Plan)

	assert.Equal(t, original.Plan.ID, loaded.Plan.ID)
	assert.Equal(t, original.Plan.Name, loaded.Plan.Name)
	assert.Equal(t, models.PlanStatusActive, loaded.Plan.Status)
	require.Len(t, loaded.Plan.Tasks, 1)
	assert.Equal(t, "Design", loaded.Plan.Tasks[0].Title)

	// Events come back in append order.
	require.Len(t, loaded.Events, 3)

	for i, event := range loaded.Events {
		assert.Equal(t, original.Events[i].ID, event.ID)
		assert.Equal(t, original.Events[i].Type, event.Type)
		assert.Equal(t, original.Plan.ID, event.PlanID)
		assert.Equal(t, events.SystemActor, event.Actor)
	}

	assert.Empty(t, loaded.Events[0].TaskID)
	assert.Equal(t, original.Plan.Tasks[0].ID, loaded.Events[2].TaskID)
	// JSONB round-trip decodes numbers as float64.
	assert.Equal(t, float64(0), loaded.Events[2].Details["position"])
}

func TestSnapshotStore_Resave_BackupAndEventDedup(t *testing.T) {
	store, ctx, databaseURL := setupTestDB(t)

	snapshot := testSnapshot(t)
	firstPlanID := snapshot.Plan.ID

	err := store.Save(ctx, "proj-1", snapshot)
	require.NoError(t, err)

	// A later save carries the same events plus new ones. Recorded events
	// must not be duplicated.
	task := snapshot.Plan.Tasks[0]
	require.NoError(t, task.Start())
	snapshot.Events = append(snapshot.Events, events.NewTaskStarted(snapshot.Plan, task))

	err = store.Save(ctx, "proj-1", snapshot)
	require.NoError(t, err)

	loaded, err := store.Load(ctx, "proj-1")
	require.NoError(t, err)
	assert.Len(t, loaded.Events, 4)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	var backupPlanID string

	err = db.QueryRowContext(ctx,
		"SELECT plan_backup->>'id' FROM snapshots WHERE project_id = $1",
		"proj-1").Scan(&backupPlanID)
	require.NoError(t, err)
	assert.Equal(t, firstPlanID, backupPlanID)
}

func TestSnapshotStore_Load_Missing(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	_, err := store.Load(ctx, "ghost")
	require.Error(t, err)
	assert.True(t, persistence.IsSnapshotNotFound(err))
}

func TestSnapshotStore_ProjectIsolation(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	first := testSnapshot(t)
	second := testSnapshot(t)

	require.NoError(t, store.Save(ctx, "proj-1", first))
	require.NoError(t, store.Save(ctx, "proj-2", second))

	loadedFirst, err := store.Load(ctx, "proj-1")
	require.NoError(t, err)

	loadedSecond, err := store.Load(ctx, "proj-2")
	require.NoError(t, err)

	assert.Equal(t, first.Plan.ID, loadedFirst.Plan.ID)
	assert.Equal(t, second.Plan.ID, loadedSecond.Plan.ID)
	assert.NotEqual(t, loadedFirst.Plan.ID, loadedSecond.Plan.ID)
	assert.Len(t, loadedFirst.Events, 3)
	assert.Len(t, loadedSecond.Events, 3)
}
