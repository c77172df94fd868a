package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// AutoSaver periodically persists the manager's snapshot. It goes through
// Manager.Save, so every write shares the manager lock and there is never a
// second independent writer racing explicit saves.
type AutoSaver struct {
	manager  *Manager
	interval time.Duration
	cron     *cron.Cron
	logger   *slog.Logger
}

// NewAutoSaver creates a stopped auto-saver for the manager.
func NewAutoSaver(manager *Manager, interval time.Duration, logger *slog.Logger) *AutoSaver {
	return &AutoSaver{
		manager:  manager,
		interval: interval,
		cron:     cron.New(),
		logger: logger.With(
			"module", "autosave",
			"project_id", manager.ProjectID(),
			"interval", interval.String(),
		),
	}
}

// Start schedules the periodic save.
func (a *AutoSaver) Start() error {
	_, err := a.cron.AddFunc(fmt.Sprintf("@every %s", a.interval), func() {
		err := a.manager.Save(context.Background())
		if err != nil {
			a.logger.Error("Periodic save failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule auto-save: %w", err)
	}

	a.cron.Start()
	a.logger.Info("Auto-save started")

	return nil
}

// Stop halts the schedule and waits for any in-flight save to finish before
// returning, so shutdown never truncates a write.
func (a *AutoSaver) Stop() {
	<-a.cron.Stop().Done()
	a.logger.Info("Auto-save stopped")
}
