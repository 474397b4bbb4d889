// -----------------------------------------------------------------------
// Badger Artifact Store - persistent storage for completed results
// -----------------------------------------------------------------------

package storage

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// BadgerArtifactStore persists completed knowledge-base artifacts in an
// embedded BadgerDB, keyed by task id. Saves are upserts so re-running a
// completion path is harmless.
type BadgerArtifactStore struct {
	store  *badgerhold.Store
	logger arbor.ILogger
}

// NewBadgerArtifactStore opens (or creates) the artifact database at path
func NewBadgerArtifactStore(path string, logger arbor.ILogger) (*BadgerArtifactStore, error) {
	options := badgerhold.DefaultOptions
	options.Dir = path
	options.ValueDir = path
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact store at %s: %w", path, err)
	}

	logger.Info().Str("path", path).Msg("Artifact store opened")
	return &BadgerArtifactStore{store: store, logger: logger}, nil
}

// Save upserts an artifact keyed by its task id
func (s *BadgerArtifactStore) Save(artifact *models.Artifact) error {
	if err := s.store.Upsert(artifact.TaskID, artifact); err != nil {
		return fmt.Errorf("failed to save artifact %s: %w", artifact.TaskID, err)
	}

	s.logger.Debug().
		Str("task_id", artifact.TaskID).
		Str("url", artifact.URL).
		Msg("Artifact saved")
	return nil
}

// Get returns the artifact for a task id, or models.ErrTaskNotFound
func (s *BadgerArtifactStore) Get(taskID string) (*models.Artifact, error) {
	var artifact models.Artifact
	if err := s.store.Get(taskID, &artifact); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrTaskNotFound, taskID)
		}
		return nil, fmt.Errorf("failed to get artifact %s: %w", taskID, err)
	}
	return &artifact, nil
}

// List returns all stored artifacts, newest first
func (s *BadgerArtifactStore) List() ([]*models.Artifact, error) {
	var artifacts []models.Artifact
	if err := s.store.Find(&artifacts, nil); err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}

	out := make([]*models.Artifact, len(artifacts))
	for i := range artifacts {
		out[i] = &artifacts[i]
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Close closes the underlying database
func (s *BadgerArtifactStore) Close() error {
	return s.store.Close()
}

// gcDiscardRatio is the badger value-log GC reclaim threshold
const gcDiscardRatio = 0.5

// RunGC triggers one round of badger value-log garbage collection.
// badger returns ErrNoRewrite when there is nothing to reclaim.
func (s *BadgerArtifactStore) RunGC() {
	if err := s.store.Badger().RunValueLogGC(gcDiscardRatio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		s.logger.Warn().Err(err).Msg("Artifact store GC failed")
	}
}
