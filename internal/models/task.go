// -----------------------------------------------------------------------
// Task - lifecycle state for one URL-to-knowledge-base job
// -----------------------------------------------------------------------

package models

import (
	"time"
)

// TaskStatus represents the lifecycle state of a task
type TaskStatus string

const (
	// TaskStatusProcessing indicates the pipeline is still running
	TaskStatusProcessing TaskStatus = "processing"
	// TaskStatusCompleted indicates the pipeline finished and Result is attached
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the pipeline terminated with an error
	TaskStatusFailed TaskStatus = "failed"
)

// IsTerminal reports whether the status is a terminal state
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Task is one end-to-end URL-to-knowledge-base job. It is created in the
// processing state at submission and receives exactly one terminal
// transition (completed or failed). A terminal task is immutable.
type Task struct {
	ID          string     `json:"task_id"`
	URL         string     `json:"url"`
	Status      TaskStatus `json:"status"`
	Result      *Result    `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Result is the assembled knowledge-base artifact for a completed task.
// Built once at assembly time and never mutated afterward.
type Result struct {
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	OverallSummary string    `json:"overall_summary,omitempty"`
	Clusters       []Cluster `json:"clusters"`
}

// Cluster is the result view of one group of semantically similar chunks.
// Summary is empty when summarization was disabled or failed for this cluster.
type Cluster struct {
	ClusterID int      `json:"cluster_id"`
	Summary   string   `json:"summary,omitempty"`
	Docs      []string `json:"docs"`
}

// Artifact is a persisted knowledge-base result, stored after task
// completion so finished work survives registry retention.
type Artifact struct {
	TaskID    string    `json:"task_id" badgerhold:"key"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Result    *Result   `json:"result"`
	CreatedAt time.Time `json:"created_at"`
}
