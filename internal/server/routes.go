package server

import (
	"net/http"

	"github.com/ternarybob/calbuddy/internal/common"
	"github.com/ternarybob/calbuddy/internal/handlers"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)

	// Live progress
	mux.HandleFunc("/ws", s.app.ProgressHandler.HandleWebSocket)
	mux.HandleFunc("/api/progress", s.app.ProgressHandler.HandleProgress)

	// Run history
	if s.app.RunsHandler != nil {
		mux.HandleFunc("/api/runs", s.app.RunsHandler.ListHandler)
		mux.HandleFunc("/api/runs/", s.app.RunsHandler.GetHandler)
	}

	// Cron schedule, only present in schedule mode
	if s.app.SchedulerHandler != nil {
		mux.HandleFunc("/api/schedule", s.app.SchedulerHandler.StatusHandler)
		mux.HandleFunc("/api/schedule/trigger", s.app.SchedulerHandler.TriggerHandler)
	}

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !handlers.RequireMethod(w, r, http.MethodGet) {
		return
	}
	handlers.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": common.Version,
	})
}
