package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/calbuddy/internal/services/scheduler"
)

// ScheduleController is the part of the cron service exposed over HTTP
type ScheduleController interface {
	TriggerNow() bool
	Status() scheduler.Status
}

// SchedulerHandler handles scheduler-related endpoints
type SchedulerHandler struct {
	scheduler ScheduleController
	logger    arbor.ILogger
}

// NewSchedulerHandler creates a new scheduler handler
func NewSchedulerHandler(controller ScheduleController, logger arbor.ILogger) *SchedulerHandler {
	return &SchedulerHandler{
		scheduler: controller,
		logger:    logger,
	}
}

// StatusHandler handles GET /api/schedule
func (h *SchedulerHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, h.scheduler.Status())
}

// TriggerHandler handles POST /api/schedule/trigger. The run starts in the
// background; a run already in progress is not interrupted.
func (h *SchedulerHandler) TriggerHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if h.scheduler.Status().IsProcessing {
		h.logger.Info().Msg("Manual trigger skipped, run already in progress")
		WriteJSON(w, http.StatusConflict, map[string]interface{}{
			"success": false,
			"message": "A run is already in progress",
		})
		return
	}

	go h.scheduler.TriggerNow()

	WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"success": true,
		"message": "Run triggered",
	})
}
