package interfaces

import (
	"context"
)

// EmbeddingService generates fixed-dimension vector embeddings
type EmbeddingService interface {
	// Embed generates an embedding vector for the given text
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the embedding vector dimension
	Dimension() int
}
