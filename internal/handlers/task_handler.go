// -----------------------------------------------------------------------
// Task Handler - submit and poll URL-to-knowledge-base tasks
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/services/pipeline"
	"github.com/ternarybob/colligo/internal/services/tasks"
)

// SubmitRequest is the POST /api/tasks request body. Clustering defaults
// to enabled when the field is omitted; chunk_size defaults to the
// configured pipeline value when zero. chunk_overlap distinguishes
// omitted (configured default) from an explicit 0 (no overlap).
type SubmitRequest struct {
	URL                  string `json:"url" validate:"required,url"`
	UseRepair            bool   `json:"use_llm_repair"`
	UseClusteringSummary *bool  `json:"use_clustering_summary"`
	RepairModel          string `json:"repair_model"`
	SummarizeModel       string `json:"summarize_model"`
	ChunkSize            int    `json:"chunk_size" validate:"gte=0"`
	ChunkOverlap         *int   `json:"chunk_overlap" validate:"omitempty,gte=0"`
}

// TaskHandler serves task submission and status polling
type TaskHandler struct {
	orchestrator *pipeline.Orchestrator
	registry     *tasks.Registry
	validate     *validator.Validate
	logger       arbor.ILogger
}

// NewTaskHandler creates a task handler
func NewTaskHandler(orchestrator *pipeline.Orchestrator, registry *tasks.Registry, logger arbor.ILogger) *TaskHandler {
	return &TaskHandler{
		orchestrator: orchestrator,
		registry:     registry,
		validate:     validator.New(),
		logger:       logger,
	}
}

// SubmitHandler handles POST /api/tasks. Accepted submissions return 202
// with the task id; the pipeline runs in the background.
func (h *TaskHandler) SubmitHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	useClustering := true
	if req.UseClusteringSummary != nil {
		useClustering = *req.UseClusteringSummary
	}

	task, err := h.orchestrator.Submit(pipeline.SubmitOptions{
		URL:                  req.URL,
		UseRepair:            req.UseRepair,
		UseClusteringSummary: useClustering,
		RepairModel:          req.RepairModel,
		SummarizeModel:       req.SummarizeModel,
		ChunkSize:            req.ChunkSize,
		ChunkOverlap:         req.ChunkOverlap,
	})
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.logger.Info().
		Str("task_id", task.ID).
		Str("url", req.URL).
		Bool("use_llm_repair", req.UseRepair).
		Bool("use_clustering_summary", useClustering).
		Msg("Task submitted")

	WriteAccepted(w, task.ID)
}

// StatusHandler handles GET /api/tasks/{id}
func (h *TaskHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	taskID := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
	if taskID == "" || strings.Contains(taskID, "/") {
		WriteError(w, http.StatusBadRequest, "Invalid task id")
		return
	}

	task, err := h.registry.Get(taskID)
	if err != nil {
		if errors.Is(err, models.ErrTaskNotFound) {
			WriteError(w, http.StatusNotFound, "Task not found: "+taskID)
			return
		}
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, task)
}

// ListHandler handles GET /api/tasks
func (h *TaskHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	list := h.registry.List()
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"tasks": list,
		"count": len(list),
	})
}
