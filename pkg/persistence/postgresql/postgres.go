// Package postgresql provides the PostgreSQL snapshot store. The plan is
// stored as a JSONB document per project; events are kept in their own
// append-only table so the audit log survives snapshot overwrites.
package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq" // postgres driver

	"github.com/planion/planion/pkg/events"
	"github.com/planion/planion/pkg/persistence"
	"github.com/planion/planion/pkg/persistence/sqlbase"
)

// SnapshotStore implements persistence.SnapshotStore on PostgreSQL.
type SnapshotStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSnapshotStore connects, runs migrations, and returns the store.
func NewSnapshotStore(ctx context.Context, logger *slog.Logger, databaseURL string) (*SnapshotStore, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SnapshotStore{
		db:     database,
		logger: logger,
	}, nil
}

// Save upserts the plan document and appends any events not yet recorded.
// The previous plan document is moved to the backup column before being
// overwritten.
func (s *SnapshotStore) Save(ctx context.Context, projectID string, snapshot *persistence.Snapshot) error {
	snapshot.Version = persistence.SnapshotVersion
	snapshot.LastSaved = time.Now().UTC()

	planJSON, err := json.Marshal(snapshot.Plan)
	if err != nil {
		return persistence.NewSnapshotError("Save", projectID, fmt.Errorf("failed to marshal plan: %w", err))
	}

	transaction, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence.NewSnapshotError("Save", projectID, err)
	}

	_, err = transaction.ExecContext(ctx, `
		INSERT INTO snapshots (project_id, plan, plan_backup, version, last_saved)
		VALUES ($1, $2, NULL, $3, $4)
		ON CONFLICT (project_id) DO UPDATE SET
			plan_backup = snapshots.plan,
			plan = EXCLUDED.plan,
			version = EXCLUDED.version,
			last_saved = EXCLUDED.last_saved`,
		projectID, planJSON, snapshot.Version, snapshot.LastSaved)
	if err != nil {
		_ = transaction.Rollback()

		return persistence.NewSnapshotError("Save", projectID, err)
	}

	for _, event := range snapshot.Events {
		err = s.insertEvent(ctx, transaction, projectID, event)
		if err != nil {
			_ = transaction.Rollback()

			return persistence.NewSnapshotError("Save", projectID, err)
		}
	}

	err = transaction.Commit()
	if err != nil {
		return persistence.NewSnapshotError("Save", projectID, err)
	}

	return nil
}

func (s *SnapshotStore) insertEvent(ctx context.Context, tx *sql.Tx, projectID string, event *events.WorkflowEvent) error {
	detailsJSON, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal details for event %s: %w", event.ID, err)
	}

	metadataJSON, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata for event %s: %w", event.ID, err)
	}

	// The log is append-only; an already-recorded event is skipped, never
	// updated.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflow_events (id, project_id, type, occurred_at, plan_id, task_id, actor, details, metadata)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		event.ID, projectID, string(event.Type), event.Timestamp,
		event.PlanID, event.TaskID, event.Actor, detailsJSON, metadataJSON)
	if err != nil {
		return fmt.Errorf("failed to insert event %s: %w", event.ID, err)
	}

	return nil
}

// Load reassembles the snapshot from the plan document and the event table.
func (s *SnapshotStore) Load(ctx context.Context, projectID string) (*persistence.Snapshot, error) {
	var (
		planJSON  []byte
		version   int
		lastSaved time.Time
	)

	err := s.db.QueryRowContext(ctx,
		"SELECT plan, version, last_saved FROM snapshots WHERE project_id = $1",
		projectID).Scan(&planJSON, &version, &lastSaved)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, persistence.NewSnapshotError("Load", projectID, persistence.ErrSnapshotNotFound)
		}

		return nil, persistence.NewSnapshotError("Load", projectID, err)
	}

	snapshot := &persistence.Snapshot{
		Version:   version,
		LastSaved: lastSaved,
		Events:    make([]*events.WorkflowEvent, 0),
	}

	if len(planJSON) > 0 && string(planJSON) != "null" {
		err = json.Unmarshal(planJSON, &snapshot.Plan)
		if err != nil {
			return nil, persistence.NewSnapshotError("Load", projectID,
				fmt.Errorf("%w: %s", persistence.ErrSnapshotCorrupted, err.Error()))
		}
	}

	snapshot.Events, err = s.loadEvents(ctx, projectID)
	if err != nil {
		return nil, persistence.NewSnapshotError("Load", projectID, err)
	}

	return snapshot, nil
}

func (s *SnapshotStore) loadEvents(ctx context.Context, projectID string) ([]*events.WorkflowEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, occurred_at, plan_id, COALESCE(task_id, ''), actor, details, metadata
		FROM workflow_events WHERE project_id = $1 ORDER BY seq`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stored := make([]*events.WorkflowEvent, 0)

	for rows.Next() {
		var (
			event        events.WorkflowEvent
			eventType    string
			detailsJSON  []byte
			metadataJSON []byte
		)

		err = rows.Scan(&event.ID, &eventType, &event.Timestamp, &event.PlanID,
			&event.TaskID, &event.Actor, &detailsJSON, &metadataJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}

		event.Type = events.EventType(eventType)

		err = unmarshalJSONColumn(detailsJSON, &event.Details)
		if err != nil {
			return nil, fmt.Errorf("failed to decode details for event %s: %w", event.ID, err)
		}

		err = unmarshalJSONColumn(metadataJSON, &event.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to decode metadata for event %s: %w", event.ID, err)
		}

		stored = append(stored, &event)
	}

	return stored, rows.Err()
}

func unmarshalJSONColumn(data []byte, target *map[string]any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}

	return json.Unmarshal(data, target)
}

// HealthCheck verifies the database connection is healthy.
func (s *SnapshotStore) HealthCheck(ctx context.Context) error {
	err := s.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SnapshotStore) Close(_ context.Context) error {
	if s.db != nil {
		err := s.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
