package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/services/pipeline"
	"github.com/ternarybob/colligo/internal/services/tasks"
)

// stubExtractor returns fixed page content for any URL
type stubExtractor struct {
	text string
}

func (s *stubExtractor) Extract(_ context.Context, url string) (*interfaces.ExtractedPage, error) {
	return &interfaces.ExtractedPage{URL: url, Title: "Stub Page", Text: s.text}, nil
}

func (s *stubExtractor) Close() error { return nil }

// noopLLM fails the test if invoked
type noopLLM struct {
	t *testing.T
}

func (m *noopLLM) Generate(_ context.Context, _ *interfaces.GenerateRequest) (string, error) {
	m.t.Error("unexpected LLM call")
	return "", nil
}

func (m *noopLLM) Close() error { return nil }

type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (stubEmbedder) Dimension() int { return 3 }

// stubArtifactStore keeps artifacts in memory
type stubArtifactStore struct {
	mu        sync.Mutex
	artifacts map[string]*models.Artifact
}

func newStubArtifactStore() *stubArtifactStore {
	return &stubArtifactStore{artifacts: make(map[string]*models.Artifact)}
}

func (s *stubArtifactStore) Save(artifact *models.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[artifact.TaskID] = artifact
	return nil
}

func (s *stubArtifactStore) Get(taskID string) (*models.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	artifact, ok := s.artifacts[taskID]
	if !ok {
		return nil, models.ErrTaskNotFound
	}
	return artifact, nil
}

func (s *stubArtifactStore) List() ([]*models.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Artifact, 0, len(s.artifacts))
	for _, a := range s.artifacts {
		out = append(out, a)
	}
	return out, nil
}

func (s *stubArtifactStore) Close() error { return nil }

func newTestHandler(t *testing.T) (*TaskHandler, *tasks.Registry) {
	t.Helper()
	logger := arbor.NewLogger()
	registry := tasks.NewRegistry(logger)

	limiter := pipeline.NewClassLimiter(logger)
	limiter.SetRPM(pipeline.UsageRepair, 60000)
	limiter.SetRPM(pipeline.UsageSummarize, 60000)

	cfg := common.PipelineConfig{
		ChunkSize:                   100,
		ChunkOverlap:                20,
		SummarizationChunkThreshold: 10,
		RepairConcurrency:           2,
		EmbedConcurrency:            2,
		SimilarityThreshold:         0.82,
		MaxEmbedFailureFraction:     0.5,
		SafeContextSize:             20000,
	}

	orchestrator := pipeline.NewOrchestrator(
		&stubExtractor{text: "A small page with one chunk of text."},
		&noopLLM{t: t},
		stubEmbedder{},
		limiter,
		registry,
		newStubArtifactStore(),
		pipeline.NewSnapshotter(false, "", logger),
		cfg,
		logger,
	)

	return NewTaskHandler(orchestrator, registry, logger), registry
}

func waitForTerminal(t *testing.T, registry *tasks.Registry, taskID string) *models.Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		task, err := registry.Get(taskID)
		require.NoError(t, err)
		if task.Status.IsTerminal() {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s never finished", taskID)
	return nil
}

func TestSubmitAccepted(t *testing.T) {
	handler, registry := newTestHandler(t)

	body := `{"url": "https://example.com/article", "use_clustering_summary": false}`
	req := httptest.NewRequest(http.MethodPost, "/api/tasks", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.SubmitHandler(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "accepted", resp["status"])
	assert.True(t, strings.HasPrefix(resp["task_id"], "task_"))

	done := waitForTerminal(t, registry, resp["task_id"])
	assert.Equal(t, models.TaskStatusCompleted, done.Status)
}

func TestSubmitInvalidJSON(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/tasks", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	handler.SubmitHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitMissingURL(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/tasks", strings.NewReader(`{"use_llm_repair": true}`))
	rec := httptest.NewRecorder()
	handler.SubmitHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitInvalidChunkParams(t *testing.T) {
	handler, registry := newTestHandler(t)

	body := `{"url": "https://example.com", "chunk_size": 50, "chunk_overlap": 80}`
	req := httptest.NewRequest(http.MethodPost, "/api/tasks", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.SubmitHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, registry.List())
}

func TestSubmitExplicitZeroOverlap(t *testing.T) {
	handler, registry := newTestHandler(t)

	// An explicit 0 is a valid choice, distinct from omitting the field
	body := `{"url": "https://example.com", "use_clustering_summary": false, "chunk_overlap": 0}`
	req := httptest.NewRequest(http.MethodPost, "/api/tasks", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.SubmitHandler(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	done := waitForTerminal(t, registry, resp["task_id"])
	assert.Equal(t, models.TaskStatusCompleted, done.Status)
}

func TestSubmitWrongMethod(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	rec := httptest.NewRecorder()
	handler.SubmitHandler(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStatusNotFound(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/tasks/task_missing", nil)
	rec := httptest.NewRecorder()
	handler.StatusHandler(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusReturnsTask(t *testing.T) {
	handler, registry := newTestHandler(t)
	task := registry.Create("https://example.com")

	req := httptest.NewRequest(http.MethodGet, "/api/tasks/"+task.ID, nil)
	rec := httptest.NewRecorder()
	handler.StatusHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got models.Task
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, task.ID, got.ID)
	assert.Equal(t, models.TaskStatusProcessing, got.Status)
}

func TestListTasks(t *testing.T) {
	handler, registry := newTestHandler(t)
	registry.Create("https://example.com/1")
	registry.Create("https://example.com/2")

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	rec := httptest.NewRecorder()
	handler.ListHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Tasks []models.Task `json:"tasks"`
		Count int           `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 2, resp.Count)
	assert.Len(t, resp.Tasks, 2)
}
