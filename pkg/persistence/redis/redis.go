// Package redis provides the Redis snapshot store. Snapshots are JSON values
// keyed by project; the previous value is copied to a backup key before each
// overwrite.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/planion/planion/pkg/persistence"
)

const keyPrefix = "planion:snapshot:"

// SnapshotStore implements persistence.SnapshotStore on Redis.
type SnapshotStore struct {
	client goredis.UniversalClient
}

// NewSnapshotStore connects to Redis using the given URL
// (redis://[user:pass@]host:port/db).
func NewSnapshotStore(ctx context.Context, redisURL string) (*SnapshotStore, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := goredis.NewClient(opts)

	err = client.Ping(ctx).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &SnapshotStore{client: client}, nil
}

// Save writes the snapshot value, moving any existing value to the backup key
// first.
func (s *SnapshotStore) Save(ctx context.Context, projectID string, snapshot *persistence.Snapshot) error {
	snapshot.Version = persistence.SnapshotVersion
	snapshot.LastSaved = time.Now().UTC()

	data, err := json.Marshal(snapshot)
	if err != nil {
		return persistence.NewSnapshotError("Save", projectID, fmt.Errorf("failed to marshal snapshot: %w", err))
	}

	key := keyPrefix + projectID

	previous, err := s.client.Get(ctx, key).Result()
	if err == nil {
		err = s.client.Set(ctx, key+":backup", previous, 0).Err()
		if err != nil {
			return persistence.NewSnapshotError("Save", projectID, fmt.Errorf("failed to write backup: %w", err))
		}
	} else if err != goredis.Nil {
		return persistence.NewSnapshotError("Save", projectID, err)
	}

	err = s.client.Set(ctx, key, data, 0).Err()
	if err != nil {
		return persistence.NewSnapshotError("Save", projectID, err)
	}

	return nil
}

// Load reads and decodes the stored snapshot.
func (s *SnapshotStore) Load(ctx context.Context, projectID string) (*persistence.Snapshot, error) {
	data, err := s.client.Get(ctx, keyPrefix+projectID).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, persistence.NewSnapshotError("Load", projectID, persistence.ErrSnapshotNotFound)
		}

		return nil, persistence.NewSnapshotError("Load", projectID, err)
	}

	var snapshot persistence.Snapshot

	err = json.Unmarshal(data, &snapshot)
	if err != nil {
		return nil, persistence.NewSnapshotError("Load", projectID,
			fmt.Errorf("%w: %s", persistence.ErrSnapshotCorrupted, err.Error()))
	}

	return &snapshot, nil
}

// HealthCheck verifies the Redis connection is healthy.
func (s *SnapshotStore) HealthCheck(ctx context.Context) error {
	err := s.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

// Close closes the Redis client.
func (s *SnapshotStore) Close(_ context.Context) error {
	return s.client.Close()
}
