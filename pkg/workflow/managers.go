package workflow

import (
	"context"
	"log/slog"
	"sync"

	"github.com/planion/planion/pkg/eventbus"
	"github.com/planion/planion/pkg/persistence"
)

// Managers is the explicit registry of manager instances, keyed by project.
// Creation and teardown are mutually exclusive under the registry lock so two
// managers can never race on the same persisted snapshot.
type Managers struct {
	mu        sync.Mutex
	managers  map[string]*Manager
	bus       eventbus.EventBus
	snapshots persistence.SnapshotStore
	logger    *slog.Logger
}

// NewManagers creates an empty registry sharing one bus and snapshot store
// across projects.
func NewManagers(bus eventbus.EventBus, snapshots persistence.SnapshotStore, logger *slog.Logger) *Managers {
	return &Managers{
		managers:  make(map[string]*Manager),
		bus:       bus,
		snapshots: snapshots,
		logger:    logger,
	}
}

// GetOrCreate returns the manager for the project, creating and restoring it
// on first use.
func (r *Managers) GetOrCreate(ctx context.Context, projectID string) *Manager {
	r.mu.Lock()
	defer r.mu.Unlock()

	if manager, exists := r.managers[projectID]; exists {
		return manager
	}

	manager := NewManager(ctx, projectID, r.bus, r.snapshots, r.logger)
	r.managers[projectID] = manager

	return manager
}

// Get returns the manager for the project when one exists.
func (r *Managers) Get(projectID string) (*Manager, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	manager, exists := r.managers[projectID]

	return manager, exists
}

// Evict removes the project's manager after a final save.
func (r *Managers) Evict(ctx context.Context, projectID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	manager, exists := r.managers[projectID]
	if !exists {
		return nil
	}

	delete(r.managers, projectID)

	return manager.Close(ctx)
}

// CloseAll evicts every manager. Used at shutdown.
func (r *Managers) CloseAll(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for projectID, manager := range r.managers {
		err := manager.Close(ctx)
		if err != nil {
			r.logger.Error("Failed to close manager", "project_id", projectID, "error", err)
		}

		delete(r.managers, projectID)
	}
}
