package interfaces

import (
	"github.com/ternarybob/colligo/internal/models"
)

// ArtifactStore persists completed knowledge-base results keyed by task id
type ArtifactStore interface {
	Save(artifact *models.Artifact) error
	Get(taskID string) (*models.Artifact, error)
	List() ([]*models.Artifact, error)
	Close() error
}
