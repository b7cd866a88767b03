// Package cache persists JobRecord snapshots between runs so local
// development can replay expensive steps without re-calling the external
// services.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/streamgank/videogen/pkg/models"
)

// Store reads and writes per-workflow record snapshots. Mode semantics:
// local environments read and write, dev only writes (snapshots feed
// debugging, never production output), prod does neither.
type Store struct {
	dir          string
	readEnabled  bool
	writeEnabled bool
	logger       *slog.Logger
}

// NewStore creates a Store rooted at dir with the given mode flags.
func NewStore(dir string, readEnabled, writeEnabled bool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, readEnabled: readEnabled, writeEnabled: writeEnabled, logger: logger}
}

func (s *Store) path(workflowID string) string {
	return filepath.Join(s.dir, workflowID+".json")
}

// Save writes the record snapshot. A no-op when writing is disabled;
// write failures are logged, not returned, because caching never fails a
// job.
func (s *Store) Save(record *models.JobRecord) {
	if !s.writeEnabled || record == nil {
		return
	}
	if err := s.save(record); err != nil {
		s.logger.Warn("Record cache write failed", "workflow_id", record.WorkflowID, "error", err)
	}
}

func (s *Store) save(record *models.JobRecord) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}

	// Write-then-rename keeps a concurrent reader from seeing a torn file.
	tmp := s.path(record.WorkflowID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}
	if err := os.Rename(tmp, s.path(record.WorkflowID)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming cache file: %w", err)
	}
	return nil
}

// Load returns the cached record for a workflow, or (nil, false) when
// reading is disabled or no snapshot exists.
func (s *Store) Load(workflowID string) (*models.JobRecord, bool, error) {
	if !s.readEnabled {
		return nil, false, nil
	}
	data, err := os.ReadFile(s.path(workflowID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading cache file: %w", err)
	}

	var record models.JobRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, false, fmt.Errorf("decoding cached record %s: %w", workflowID, err)
	}
	return &record, true, nil
}
