package models

import (
	"errors"
)

// Sentinel errors for the task pipeline. Stage-local provider failures are
// absorbed by the stages themselves; only these cross component boundaries.
var (
	// ErrTaskNotFound is returned by the registry for unknown task ids
	ErrTaskNotFound = errors.New("task not found")

	// ErrNoContent is returned when a fetched page yields no extractable content
	ErrNoContent = errors.New("no extractable content")

	// ErrRateLimitDisabled is returned when a usage class with RPM <= 0 is invoked
	ErrRateLimitDisabled = errors.New("rate limit class is disabled")

	// ErrEmbeddingDegraded is returned when too many chunks failed embedding
	// and the clustering stage falls back to a single-cluster result
	ErrEmbeddingDegraded = errors.New("too many embedding failures")

	// ErrTerminalTask is returned on an attempted second terminal transition
	ErrTerminalTask = errors.New("task already in terminal state")
)
