package events

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/calbuddy/internal/interfaces"
	"github.com/ternarybob/calbuddy/internal/models"
)

// NewLoggerSubscriber creates an event handler that logs pipeline events
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		switch payload := event.Payload.(type) {
		case models.ProgressSnapshot:
			logger.Info().
				Int("completed", payload.Completed).
				Int("total", payload.Total).
				Float64("jobs_per_sec", payload.JobsPerSec).
				Float64("sec_per_job", payload.SecPerJob).
				Float64("eta_seconds", payload.ETASeconds).
				Msg("Progress")
		case models.JobOutcome:
			if payload.Failure != nil {
				logger.Warn().
					Int("worker", payload.WorkerID).
					Str("job_id", payload.Job.ID).
					Str("kind", string(payload.Failure.FailureKind)).
					Str("reason", payload.Failure.FailureReason).
					Msg("Job incomplete")
			} else if payload.Result != nil {
				logger.Debug().
					Int("worker", payload.WorkerID).
					Str("job_id", payload.Job.ID).
					Str("assignee", payload.Result.Assignee).
					Int("work_order", payload.Result.WorkOrderNumber).
					Msg("Job collected")
			}
		case models.TransientSignal:
			logger.Warn().
				Int("worker", payload.WorkerID).
				Int("status", payload.Status).
				Str("url", payload.URL).
				Str("headers", fmt.Sprintf("%v", payload.Headers)).
				Msg("Transient response from remote system")
		default:
			logger.Debug().
				Str("event_type", string(event.Type)).
				Msg("Event published")
		}
		return nil
	}
}

// SubscribeLoggerToAllEvents subscribes the logger to all known event types
func SubscribeLoggerToAllEvents(eventService interfaces.EventService, logger arbor.ILogger) error {
	subscriber := NewLoggerSubscriber(logger)

	eventTypes := []interfaces.EventType{
		interfaces.EventJobCompleted,
		interfaces.EventProgress,
		interfaces.EventRunCompleted,
		interfaces.EventTransientSignal,
		interfaces.EventSessionAcquired,
	}

	for _, eventType := range eventTypes {
		if err := eventService.Subscribe(eventType, subscriber); err != nil {
			return fmt.Errorf("failed to subscribe logger to event type %s: %w", eventType, err)
		}
	}

	return nil
}
