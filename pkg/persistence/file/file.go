// Package file provides the file-based snapshot store. Snapshots are JSON
// documents under <root>/snapshots; each save keeps the previous document as
// a .bak backup before overwriting.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/planion/planion/pkg/persistence"
)

const snapshotsDir = "snapshots"

// SnapshotStore implements persistence.SnapshotStore on the file system.
type SnapshotStore struct {
	root string
}

// NewSnapshotStore creates a store rooted at the given directory. A file://
// prefix is accepted and stripped.
func NewSnapshotStore(root string) *SnapshotStore {
	return &SnapshotStore{
		root: strings.Replace(root, "file://", "", 1),
	}
}

// Save writes the snapshot, preserving any existing document as a backup
// first.
func (s *SnapshotStore) Save(_ context.Context, projectID string, snapshot *persistence.Snapshot) error {
	dir := path.Join(s.root, snapshotsDir)

	err := os.MkdirAll(dir, 0750)
	if err != nil {
		return persistence.NewSnapshotError("Save", projectID, fmt.Errorf("failed to create snapshots directory: %w", err))
	}

	snapshot.Version = persistence.SnapshotVersion
	snapshot.LastSaved = time.Now().UTC()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return persistence.NewSnapshotError("Save", projectID, fmt.Errorf("failed to marshal snapshot: %w", err))
	}

	filePath := s.snapshotPath(projectID)

	if previous, readErr := os.ReadFile(filePath); readErr == nil {
		err = os.WriteFile(filePath+".bak", previous, 0600)
		if err != nil {
			return persistence.NewSnapshotError("Save", projectID, fmt.Errorf("failed to write backup: %w", err))
		}
	}

	err = os.WriteFile(filePath, data, 0600)
	if err != nil {
		return persistence.NewSnapshotError("Save", projectID, err)
	}

	return nil
}

// Load reads and validates the stored snapshot. A document that fails schema
// validation or decoding yields ErrSnapshotCorrupted.
func (s *SnapshotStore) Load(_ context.Context, projectID string) (*persistence.Snapshot, error) {
	body, err := os.ReadFile(s.snapshotPath(projectID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewSnapshotError("Load", projectID, persistence.ErrSnapshotNotFound)
		}

		return nil, persistence.NewSnapshotError("Load", projectID, err)
	}

	err = validateSnapshotDocument(body)
	if err != nil {
		return nil, persistence.NewSnapshotError("Load", projectID, err)
	}

	var snapshot persistence.Snapshot

	err = json.Unmarshal(body, &snapshot)
	if err != nil {
		return nil, persistence.NewSnapshotError("Load", projectID,
			fmt.Errorf("%w: %s", persistence.ErrSnapshotCorrupted, err.Error()))
	}

	return &snapshot, nil
}

// HealthCheck verifies the root directory exists.
func (s *SnapshotStore) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(s.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close performs any necessary cleanup. For file storage there is nothing to
// clean up.
func (s *SnapshotStore) Close(_ context.Context) error {
	return nil
}

func (s *SnapshotStore) snapshotPath(projectID string) string {
	return filepath.Clean(path.Join(s.root, snapshotsDir, projectID+".json"))
}

func validateSnapshotDocument(body []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(snapshotSchema),
		gojsonschema.NewBytesLoader(body),
	)
	if err != nil {
		return fmt.Errorf("%w: %s", persistence.ErrSnapshotCorrupted, err.Error())
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return fmt.Errorf("%w: %s", persistence.ErrSnapshotCorrupted, strings.Join(details, "; "))
	}

	return nil
}
