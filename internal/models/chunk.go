package models

// Chunk is a bounded, ordered segment of extracted text. Index is the
// 0-based document-order position and is preserved through repair and
// clustering regardless of processing concurrency.
type Chunk struct {
	Index    int    `json:"index"`
	Text     string `json:"text"`
	Repaired bool   `json:"repaired"`
}

// ClusterAssignment maps a dense cluster id to the chunk ordinals it
// contains. Assignments for one task partition the chunk set exactly:
// every chunk index appears in exactly one assignment.
type ClusterAssignment struct {
	ClusterID    int   `json:"cluster_id"`
	ChunkIndices []int `json:"chunk_indices"`
}
