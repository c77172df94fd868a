// Package persistence provides the snapshot storage abstraction for the
// workflow engine.
package persistence

import (
	"context"
	"time"

	"github.com/planion/planion/pkg/events"
	"github.com/planion/planion/pkg/models"
)

// SnapshotVersion is the current snapshot format version.
const SnapshotVersion = 1

// Snapshot is a point-in-time serialization of one project's workflow state:
// the live plan (if any) and the full event log.
type Snapshot struct {
	Plan      *models.Plan            `json:"plan,omitempty"`
	Events    []*events.WorkflowEvent `json:"events"`
	Version   int                     `json:"version"`
	LastSaved time.Time               `json:"last_saved"`
}

// SnapshotStore durably stores snapshots keyed by project. Implementations
// retain at least one prior version as a backup before overwriting.
type SnapshotStore interface {
	Save(ctx context.Context, projectID string, snapshot *Snapshot) error
	Load(ctx context.Context, projectID string) (*Snapshot, error)
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
