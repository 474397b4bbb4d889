// -----------------------------------------------------------------------
// Task Registry - in-memory task lifecycle store with terminal-state guard
// -----------------------------------------------------------------------

package tasks

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/models"
)

// Registry holds all known tasks in memory. Tasks enter in the processing
// state and receive exactly one terminal transition; a second transition
// attempt is rejected with models.ErrTerminalTask. Reads return snapshot
// copies so callers never observe in-flight mutation.
type Registry struct {
	mu     sync.RWMutex
	tasks  map[string]*models.Task
	logger arbor.ILogger
}

// NewRegistry creates an empty task registry
func NewRegistry(logger arbor.ILogger) *Registry {
	return &Registry{
		tasks:  make(map[string]*models.Task),
		logger: logger,
	}
}

// Create registers a new task in the processing state and returns its copy
func (r *Registry) Create(url string) *models.Task {
	task := &models.Task{
		ID:        common.NewTaskID(),
		URL:       url,
		Status:    models.TaskStatusProcessing,
		CreatedAt: time.Now().UTC(),
	}

	r.mu.Lock()
	r.tasks[task.ID] = task
	r.mu.Unlock()

	r.logger.Info().
		Str("task_id", task.ID).
		Str("url", url).
		Msg("Task created")

	snapshot := *task
	return &snapshot
}

// Get returns a snapshot of the task, or models.ErrTaskNotFound
func (r *Registry) Get(id string) (*models.Task, error) {
	r.mu.RLock()
	task, ok := r.tasks[id]
	if !ok {
		r.mu.RUnlock()
		return nil, fmt.Errorf("%w: %s", models.ErrTaskNotFound, id)
	}
	snapshot := *task
	r.mu.RUnlock()

	return &snapshot, nil
}

// List returns snapshots of all tasks, newest first
func (r *Registry) List() []*models.Task {
	r.mu.RLock()
	out := make([]*models.Task, 0, len(r.tasks))
	for _, task := range r.tasks {
		snapshot := *task
		out = append(out, &snapshot)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Complete transitions a task to completed with its result attached
func (r *Registry) Complete(id string, result *models.Result) error {
	return r.finish(id, func(task *models.Task) {
		task.Status = models.TaskStatusCompleted
		task.Result = result
	})
}

// Fail transitions a task to failed with a non-empty error message
func (r *Registry) Fail(id string, message string) error {
	if message == "" {
		message = "task failed"
	}
	return r.finish(id, func(task *models.Task) {
		task.Status = models.TaskStatusFailed
		task.Error = message
	})
}

// finish applies one terminal transition under the registry lock
func (r *Registry) finish(id string, apply func(*models.Task)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrTaskNotFound, id)
	}
	if task.Status.IsTerminal() {
		r.logger.Warn().
			Str("task_id", id).
			Str("status", string(task.Status)).
			Msg("Ignoring repeated terminal transition")
		return fmt.Errorf("%w: %s", models.ErrTerminalTask, id)
	}

	apply(task)
	now := time.Now().UTC()
	task.CompletedAt = &now

	r.logger.Info().
		Str("task_id", id).
		Str("status", string(task.Status)).
		Msg("Task finished")
	return nil
}

// Prune removes terminal tasks older than maxAge and returns the count
// removed. Processing tasks are never pruned.
func (r *Registry) Prune(maxAge time.Duration) int {
	cutoff := time.Now().UTC().Add(-maxAge)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, task := range r.tasks {
		if !task.Status.IsTerminal() || task.CompletedAt == nil {
			continue
		}
		if task.CompletedAt.Before(cutoff) {
			delete(r.tasks, id)
			removed++
		}
	}

	if removed > 0 {
		r.logger.Info().
			Int("removed", removed).
			Int("remaining", len(r.tasks)).
			Msg("Pruned terminal tasks")
	}
	return removed
}
