package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
)

// Snapshotter persists per-stage pipeline output for later inspection
// when debug mode is enabled. Snapshots are diagnostic only: write
// failures are logged and never affect control flow.
type Snapshotter struct {
	enabled bool
	dir     string
	logger  arbor.ILogger
}

// NewSnapshotter creates a snapshotter writing under dir/<task_id>/<stage>.json
func NewSnapshotter(enabled bool, dir string, logger arbor.ILogger) *Snapshotter {
	return &Snapshotter{
		enabled: enabled,
		dir:     dir,
		logger:  logger,
	}
}

// Snapshot writes one stage's output keyed by task id and stage name
func (s *Snapshotter) Snapshot(taskID, stage string, v interface{}) {
	if !s.enabled {
		return
	}

	taskDir := filepath.Join(s.dir, taskID)
	if err := os.MkdirAll(taskDir, 0755); err != nil {
		s.logger.Warn().Err(err).Str("dir", taskDir).Msg("Failed to create debug directory")
		return
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		s.logger.Warn().Err(err).Str("stage", stage).Msg("Failed to marshal debug snapshot")
		return
	}

	path := filepath.Join(taskDir, stage+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("Failed to write debug snapshot")
		return
	}

	s.logger.Debug().
		Str("task_id", taskID).
		Str("stage", stage).
		Str("path", path).
		Msg("Debug snapshot written")
}
