package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/planion/planion/pkg/persistence"
	"github.com/planion/planion/pkg/persistence/file"
	"github.com/planion/planion/pkg/persistence/postgresql"
	"github.com/planion/planion/pkg/persistence/redis"
)

var supportedSnapshotProviders = []string{"file", "postgres", "postgresql", "redis", "rediss"}

// NewSnapshotStore selects the snapshot backend from the database URL
// scheme. Anything unrecognized is treated as a filesystem path.
func NewSnapshotStore(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.SnapshotStore, error) {
	provider := parseSnapshotProvider(databaseURL)

	switch provider {
	case "postgres", "postgresql":
		return postgresql.NewSnapshotStore(ctx, logger, databaseURL)
	case "redis", "rediss":
		return redis.NewSnapshotStore(ctx, databaseURL)
	default:
		return file.NewSnapshotStore(databaseURL), nil
	}
}

func parseSnapshotProvider(databaseURL string) string {
	parts := strings.Split(databaseURL, "://")

	provider := parts[0]
	for _, supported := range supportedSnapshotProviders {
		if provider == supported {
			return provider
		}
	}

	return "file"
}
