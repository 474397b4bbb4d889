package tasks

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/models"
)

func TestCreateAndGet(t *testing.T) {
	registry := NewRegistry(arbor.NewLogger())

	task := registry.Create("https://example.com")
	assert.True(t, strings.HasPrefix(task.ID, "task_"))
	assert.Equal(t, models.TaskStatusProcessing, task.Status)
	assert.Equal(t, "https://example.com", task.URL)
	assert.False(t, task.CreatedAt.IsZero())

	got, err := registry.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)
	assert.Nil(t, got.Result)
}

func TestGetUnknownTask(t *testing.T) {
	registry := NewRegistry(arbor.NewLogger())

	_, err := registry.Get("task_does_not_exist")
	assert.True(t, errors.Is(err, models.ErrTaskNotFound))
}

func TestGetReturnsSnapshot(t *testing.T) {
	registry := NewRegistry(arbor.NewLogger())
	task := registry.Create("https://example.com")

	got, err := registry.Get(task.ID)
	require.NoError(t, err)
	got.Status = models.TaskStatusFailed

	// Mutating the returned copy must not touch registry state
	again, err := registry.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusProcessing, again.Status)
}

func TestCompleteAttachesResult(t *testing.T) {
	registry := NewRegistry(arbor.NewLogger())
	task := registry.Create("https://example.com")

	result := &models.Result{Title: "Title", Content: "content", Clusters: []models.Cluster{}}
	require.NoError(t, registry.Complete(task.ID, result))

	got, err := registry.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCompleted, got.Status)
	assert.Equal(t, result, got.Result)
	require.NotNil(t, got.CompletedAt)
}

func TestFailRecordsMessage(t *testing.T) {
	registry := NewRegistry(arbor.NewLogger())
	task := registry.Create("https://example.com")

	require.NoError(t, registry.Fail(task.ID, "fetch timed out"))

	got, err := registry.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, got.Status)
	assert.Equal(t, "fetch timed out", got.Error)
}

func TestFailEmptyMessageGetsDefault(t *testing.T) {
	registry := NewRegistry(arbor.NewLogger())
	task := registry.Create("https://example.com")

	require.NoError(t, registry.Fail(task.ID, ""))

	got, err := registry.Get(task.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, got.Error)
}

func TestSingleTerminalTransition(t *testing.T) {
	registry := NewRegistry(arbor.NewLogger())
	task := registry.Create("https://example.com")

	require.NoError(t, registry.Complete(task.ID, &models.Result{}))

	err := registry.Fail(task.ID, "late failure")
	assert.True(t, errors.Is(err, models.ErrTerminalTask))

	// First transition wins
	got, gerr := registry.Get(task.ID)
	require.NoError(t, gerr)
	assert.Equal(t, models.TaskStatusCompleted, got.Status)
	assert.Empty(t, got.Error)
}

func TestListNewestFirst(t *testing.T) {
	registry := NewRegistry(arbor.NewLogger())
	a := registry.Create("https://example.com/a")
	time.Sleep(2 * time.Millisecond)
	b := registry.Create("https://example.com/b")

	list := registry.List()
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID)
	assert.Equal(t, a.ID, list[1].ID)
}

func TestPruneRemovesOldTerminalTasks(t *testing.T) {
	registry := NewRegistry(arbor.NewLogger())

	old := registry.Create("https://example.com/old")
	require.NoError(t, registry.Complete(old.ID, &models.Result{}))
	running := registry.Create("https://example.com/running")

	// Everything terminal is older than a zero max age
	time.Sleep(2 * time.Millisecond)
	removed := registry.Prune(0)
	assert.Equal(t, 1, removed)

	_, err := registry.Get(old.ID)
	assert.True(t, errors.Is(err, models.ErrTaskNotFound))

	// Processing tasks survive regardless of age
	_, err = registry.Get(running.ID)
	assert.NoError(t, err)
}

func TestPruneKeepsRecentTerminalTasks(t *testing.T) {
	registry := NewRegistry(arbor.NewLogger())
	task := registry.Create("https://example.com")
	require.NoError(t, registry.Fail(task.ID, "boom"))

	removed := registry.Prune(time.Hour)
	assert.Zero(t, removed)

	_, err := registry.Get(task.ID)
	assert.NoError(t, err)
}
