package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/models"
)

// fakeEmbedder maps chunk text to fixed vectors; unknown text fails
type fakeEmbedder struct {
	vectors map[string][]float32
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec, ok := f.vectors[text]
	if !ok {
		return nil, fmt.Errorf("no embedding for %q", text)
	}
	return vec, nil
}

func (f *fakeEmbedder) Dimension() int { return 3 }

func TestClusterEmpty(t *testing.T) {
	engine := NewClusterEngine(&fakeEmbedder{}, 0.82, 0.5, 4, arbor.NewLogger())
	assignments, err := engine.Cluster(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, assignments)
}

func TestClusterGroupsBySimilarity(t *testing.T) {
	// Two orthogonal directions: cats along x, dogs along y
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"cat one": {1, 0, 0},
		"cat two": {0.99, 0.1, 0},
		"dog one": {0, 1, 0},
		"dog two": {0.1, 0.99, 0},
	}}

	engine := NewClusterEngine(embedder, 0.82, 0.5, 4, arbor.NewLogger())
	chunks := makeChunks("cat one", "dog one", "cat two", "dog two")
	assignments, err := engine.Cluster(context.Background(), chunks)
	require.NoError(t, err)
	require.Len(t, assignments, 2)

	// Cluster ids follow discovery order: cats first
	assert.Equal(t, 0, assignments[0].ClusterID)
	assert.Equal(t, []int{0, 2}, assignments[0].ChunkIndices)
	assert.Equal(t, 1, assignments[1].ClusterID)
	assert.Equal(t, []int{1, 3}, assignments[1].ChunkIndices)
}

func TestClusterExactPartition(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"a": {1, 0, 0},
		"b": {0, 1, 0},
		"c": {0, 0, 1},
		"d": {0.9, 0.4, 0.2},
	}}

	engine := NewClusterEngine(embedder, 0.82, 0.5, 4, arbor.NewLogger())
	chunks := makeChunks("a", "b", "c", "d")
	assignments, err := engine.Cluster(context.Background(), chunks)
	require.NoError(t, err)

	seen := make(map[int]int)
	for _, a := range assignments {
		for _, idx := range a.ChunkIndices {
			seen[idx]++
		}
	}
	require.Len(t, seen, len(chunks))
	for idx, count := range seen {
		assert.Equal(t, 1, count, "chunk %d assigned %d times", idx, count)
	}
}

func TestClusterFailedChunkAttachesToNeighbor(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"first":  {1, 0, 0},
		"third":  {0, 1, 0},
		"fourth": {0, 0.99, 0.1},
	}}

	engine := NewClusterEngine(embedder, 0.82, 0.5, 4, arbor.NewLogger())
	// "second" has no embedding and must join its preceding neighbor's cluster
	chunks := makeChunks("first", "second", "third", "fourth")
	assignments, err := engine.Cluster(context.Background(), chunks)
	require.NoError(t, err)
	require.Len(t, assignments, 2)

	assert.Equal(t, []int{0, 1}, assignments[0].ChunkIndices)
	assert.Equal(t, []int{2, 3}, assignments[1].ChunkIndices)
}

func TestClusterDegradedTooManyFailures(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"only": {1, 0, 0},
	}}

	engine := NewClusterEngine(embedder, 0.82, 0.5, 4, arbor.NewLogger())
	chunks := makeChunks("only", "missing one", "missing two")
	_, err := engine.Cluster(context.Background(), chunks)
	assert.True(t, errors.Is(err, models.ErrEmbeddingDegraded))
}

func TestClusterDeterministic(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"a": {1, 0, 0},
		"b": {0.95, 0.3, 0},
		"c": {0, 1, 0},
		"d": {0, 0.9, 0.4},
		"e": {0.5, 0.5, 0.7},
	}}

	engine := NewClusterEngine(embedder, 0.82, 0.5, 4, arbor.NewLogger())
	chunks := makeChunks("a", "b", "c", "d", "e")

	first, err := engine.Cluster(context.Background(), chunks)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := engine.Cluster(context.Background(), chunks)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestSingleClusterAssignment(t *testing.T) {
	chunks := makeChunks("a", "b", "c")
	assignments := SingleClusterAssignment(chunks)
	require.Len(t, assignments, 1)
	assert.Equal(t, 0, assignments[0].ClusterID)
	assert.Equal(t, []int{0, 1, 2}, assignments[0].ChunkIndices)
}

func TestCosineHelpers(t *testing.T) {
	a := unitFromF32([]float32{3, 4, 0})
	assert.InDelta(t, 1.0, cosine(a, a), 1e-9)

	b := unitFromF32([]float32{0, 0, 5})
	assert.InDelta(t, 0.0, cosine(a, b), 1e-9)

	zero := unit([]float64{0, 0, 0})
	assert.Equal(t, []float64{0, 0, 0}, zero)
}
