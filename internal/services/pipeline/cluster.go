// -----------------------------------------------------------------------
// Clustering Engine - embeds chunks and groups them by cosine similarity
// -----------------------------------------------------------------------

package pipeline

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// ClusterEngine groups chunks into clusters of semantically similar text.
//
// The algorithm is greedy centroid-based agglomeration over cosine
// similarity: chunks are visited in document order and each joins the
// best-matching existing cluster whose centroid similarity meets the
// threshold, or starts a new cluster. There is no randomized
// initialization, so the result is reproducible for a fixed embedding
// provider and fixed inputs. Cluster ids are dense and follow discovery
// order.
type ClusterEngine struct {
	embedder           interfaces.EmbeddingService
	threshold          float64
	maxFailureFraction float64
	concurrency        int
	logger             arbor.ILogger
}

// NewClusterEngine creates a clustering engine
func NewClusterEngine(embedder interfaces.EmbeddingService, threshold, maxFailureFraction float64, concurrency int, logger arbor.ILogger) *ClusterEngine {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &ClusterEngine{
		embedder:           embedder,
		threshold:          threshold,
		maxFailureFraction: maxFailureFraction,
		concurrency:        concurrency,
		logger:             logger,
	}
}

// clusterState accumulates the member vectors of one cluster so the
// centroid can be updated incrementally
type clusterState struct {
	sum     []float64
	count   int
	indices []int
}

func (c *clusterState) add(vec []float64, index int) {
	if c.sum == nil {
		c.sum = make([]float64, len(vec))
	}
	for i, v := range vec {
		c.sum[i] += v
	}
	c.count++
	c.indices = append(c.indices, index)
}

func (c *clusterState) centroid() []float64 {
	out := make([]float64, len(c.sum))
	for i, v := range c.sum {
		out[i] = v / float64(c.count)
	}
	return out
}

// Cluster embeds every chunk and partitions the chunk set into cluster
// assignments. Chunks whose embedding failed are attached to the cluster
// of their nearest successfully embedded neighbor in document order, so
// the partition invariant holds regardless of provider failures. When
// more than maxFailureFraction of chunks fail embedding, the stage
// returns models.ErrEmbeddingDegraded and the caller falls back to a
// single-cluster result.
func (e *ClusterEngine) Cluster(ctx context.Context, chunks []models.Chunk) ([]models.ClusterAssignment, error) {
	if len(chunks) == 0 {
		return []models.ClusterAssignment{}, nil
	}

	vectors, failed := e.embedAll(ctx, chunks)

	failureCount := 0
	for _, f := range failed {
		if f {
			failureCount++
		}
	}
	if fraction := float64(failureCount) / float64(len(chunks)); fraction > e.maxFailureFraction {
		return nil, fmt.Errorf("%w: %d of %d chunks failed (max fraction %.2f)",
			models.ErrEmbeddingDegraded, failureCount, len(chunks), e.maxFailureFraction)
	}

	// Greedy centroid assignment in document order
	var clusters []*clusterState
	assigned := make(map[int]int, len(chunks)) // chunk index -> cluster id
	for i := range chunks {
		if failed[i] {
			continue
		}
		vec := unitFromF32(vectors[i])

		best := -1
		bestSim := e.threshold
		for id, c := range clusters {
			sim := cosine(unit(c.centroid()), vec)
			if sim > bestSim {
				best = id
				bestSim = sim
			}
		}

		if best < 0 {
			best = len(clusters)
			clusters = append(clusters, &clusterState{})
		}
		clusters[best].add(vec, i)
		assigned[i] = best
	}

	// Attach failed chunks to the cluster of the closest neighbor by index
	for i := range chunks {
		if !failed[i] {
			continue
		}
		id := e.neighborCluster(assigned, i, len(chunks))
		if id < 0 {
			// Every chunk failed embedding; the fraction check only lets
			// this through when maxFailureFraction is 1.0.
			if len(clusters) == 0 {
				clusters = append(clusters, &clusterState{})
			}
			id = 0
		}
		clusters[id].indices = append(clusters[id].indices, i)
		assigned[i] = id
	}

	assignments := make([]models.ClusterAssignment, len(clusters))
	for id, c := range clusters {
		indices := append([]int{}, c.indices...)
		sort.Ints(indices)
		assignments[id] = models.ClusterAssignment{ClusterID: id, ChunkIndices: indices}
	}

	e.logger.Info().
		Int("chunks", len(chunks)).
		Int("clusters", len(assignments)).
		Int("embed_failures", failureCount).
		Msg("Clustering complete")

	return assignments, nil
}

// embedAll generates embeddings for all chunks with bounded fan-out,
// recording per-chunk failures instead of aborting
func (e *ClusterEngine) embedAll(ctx context.Context, chunks []models.Chunk) ([][]float32, []bool) {
	vectors := make([][]float32, len(chunks))
	failed := make([]bool, len(chunks))

	var wg sync.WaitGroup
	sem := make(chan struct{}, e.concurrency)
	for i := range chunks {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			vec, err := e.embedder.Embed(ctx, chunks[idx].Text)
			if err != nil {
				e.logger.Warn().
					Err(err).
					Int("chunk_index", idx).
					Msg("Embedding failed for chunk")
				failed[idx] = true
				return
			}
			vectors[idx] = vec
		}(i)
	}
	wg.Wait()

	return vectors, failed
}

// neighborCluster returns the cluster of the nearest assigned chunk by
// document order, preferring the preceding chunk; -1 when nothing is assigned
func (e *ClusterEngine) neighborCluster(assigned map[int]int, index, total int) int {
	for i := index - 1; i >= 0; i-- {
		if id, ok := assigned[i]; ok {
			return id
		}
	}
	for i := index + 1; i < total; i++ {
		if id, ok := assigned[i]; ok {
			return id
		}
	}
	return -1
}

// SingleClusterAssignment maps every chunk to the implicit cluster 0.
// Used below the summarization threshold and as the degraded fallback.
func SingleClusterAssignment(chunks []models.Chunk) []models.ClusterAssignment {
	indices := make([]int, len(chunks))
	for i := range chunks {
		indices[i] = i
	}
	return []models.ClusterAssignment{{ClusterID: 0, ChunkIndices: indices}}
}

// unitFromF32 converts an embedding vector to unit length in float64
func unitFromF32(vec []float32) []float64 {
	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = float64(v)
	}
	return unit(out)
}

// unit scales a vector to unit length; zero vectors are returned as-is
func unit(vec []float64) []float64 {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	n := math.Sqrt(sum)
	if n == 0 {
		return vec
	}
	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = v / n
	}
	return out
}

// cosine computes the cosine similarity of two unit-length vectors
func cosine(a, b []float64) float64 {
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot
}
