package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// API routes - Tasks
	mux.HandleFunc("/api/tasks", s.handleTasksRoute)              // POST (submit), GET (list)
	mux.HandleFunc("/api/tasks/", s.app.TaskHandler.StatusHandler) // GET /{id}

	// API routes - Artifacts (persisted results)
	mux.HandleFunc("/api/artifacts", s.app.ArtifactHandler.ListHandler)
	mux.HandleFunc("/api/artifacts/", s.app.ArtifactHandler.GetHandler) // GET /{task_id}

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// Catch-all for unknown API paths
	mux.HandleFunc("/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleTasksRoute dispatches /api/tasks by method
func (s *Server) handleTasksRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.app.TaskHandler.SubmitHandler(w, r)
	case http.MethodGet:
		s.app.TaskHandler.ListHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
