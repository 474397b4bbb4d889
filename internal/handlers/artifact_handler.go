package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// ArtifactHandler serves persisted knowledge-base results
type ArtifactHandler struct {
	store  interfaces.ArtifactStore
	logger arbor.ILogger
}

// NewArtifactHandler creates an artifact handler
func NewArtifactHandler(store interfaces.ArtifactStore, logger arbor.ILogger) *ArtifactHandler {
	return &ArtifactHandler{
		store:  store,
		logger: logger,
	}
}

// ListHandler handles GET /api/artifacts
func (h *ArtifactHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	artifacts, err := h.store.List()
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to list artifacts")
		WriteError(w, http.StatusInternalServerError, "Failed to list artifacts")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"artifacts": artifacts,
		"count":     len(artifacts),
	})
}

// GetHandler handles GET /api/artifacts/{task_id}
func (h *ArtifactHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	taskID := strings.TrimPrefix(r.URL.Path, "/api/artifacts/")
	if taskID == "" || strings.Contains(taskID, "/") {
		WriteError(w, http.StatusBadRequest, "Invalid task id")
		return
	}

	artifact, err := h.store.Get(taskID)
	if err != nil {
		if errors.Is(err, models.ErrTaskNotFound) {
			WriteError(w, http.StatusNotFound, "Artifact not found: "+taskID)
			return
		}
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, artifact)
}
