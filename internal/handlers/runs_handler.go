package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/calbuddy/internal/interfaces"
	"github.com/ternarybob/calbuddy/internal/models"
)

// RunSummary is the list view of a stored run
type RunSummary struct {
	ID         string          `json:"id"`
	Tag        string          `json:"tag"`
	Mode       models.RunMode  `json:"mode"`
	Stats      models.RunStats `json:"stats"`
	Added      int             `json:"added"`
	Removed    int             `json:"removed"`
	Moved      int             `json:"moved"`
	Incomplete int             `json:"incomplete"`
}

// RunsHandler serves stored run history
type RunsHandler struct {
	runs   interfaces.RunStorage
	logger arbor.ILogger
}

// NewRunsHandler creates a new RunsHandler
func NewRunsHandler(runs interfaces.RunStorage, logger arbor.ILogger) *RunsHandler {
	return &RunsHandler{
		runs:   runs,
		logger: logger,
	}
}

// ListHandler handles GET /api/runs?limit=N
func (h *RunsHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	runs, err := h.runs.ListRuns(r.Context(), queryInt(r, "limit", 20, 200))
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list runs")
		WriteError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	summaries := make([]RunSummary, 0, len(runs))
	for _, run := range runs {
		summaries = append(summaries, RunSummary{
			ID:         run.ID,
			Tag:        run.Tag,
			Mode:       run.Mode,
			Stats:      run.Stats,
			Added:      run.AddedCount,
			Removed:    run.RemovedCount,
			Moved:      run.MovedCount,
			Incomplete: len(run.Incomplete),
		})
	}
	WriteJSON(w, http.StatusOK, summaries)
}

// GetHandler handles GET /api/runs/{id} and GET /api/runs/latest
func (h *RunsHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/runs/"), "/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Run ID is required")
		return
	}

	var (
		run *models.RunRecord
		err error
	)
	if id == "latest" {
		run, err = h.runs.LatestRun(r.Context())
	} else {
		run, err = h.runs.GetRun(r.Context(), id)
	}

	switch {
	case errors.Is(err, interfaces.ErrNotFound):
		WriteError(w, http.StatusNotFound, "Run not found")
	case err != nil:
		h.logger.Error().Err(err).Str("run_id", id).Msg("Failed to load run")
		WriteError(w, http.StatusInternalServerError, "Failed to load run")
	default:
		WriteJSON(w, http.StatusOK, run)
	}
}
