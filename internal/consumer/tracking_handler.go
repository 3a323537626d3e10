package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"example.com/trackme/internal/domain"
	"example.com/trackme/internal/platform/logger"
)

// FixRecorder is the part of the tracker the handler depends on.
type FixRecorder interface {
	Record(ctx context.Context, fix domain.LocationFix) (domain.LocationSample, error)
}

// FixPayload is the JSON body devices publish to the fix topic.
type FixPayload struct {
	UserID             string    `json:"user_id"`
	RecordedAt         time.Time `json:"recorded_at"`
	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
	HorizontalAccuracy float64   `json:"horizontal_accuracy"`
}

// TrackingHandler converts fix messages and records them through the tracker.
type TrackingHandler struct {
	recorder FixRecorder
	log      *logger.Logger
}

// NewTrackingHandler builds a TrackingHandler. log may be nil.
func NewTrackingHandler(recorder FixRecorder, log *logger.Logger) *TrackingHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &TrackingHandler{recorder: recorder, log: log.With("component", "tracking_handler")}
}

// Handle records the fix. Fixes the tracker refuses are dropped so they are committed;
// any other failure is returned and the message stays uncommitted.
func (h *TrackingHandler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType != DefaultEventType {
		h.log.Debug("ignoring event", "event_type", msg.EventType)
		return nil
	}

	var payload FixPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		recordDropped("undecodable")
		h.log.Warn("dropping fix with bad payload", "offset", msg.Offset, "error", err)
		return nil
	}
	if payload.UserID == "" {
		payload.UserID = msg.Key
	}

	sample, err := h.recorder.Record(ctx, domain.LocationFix{
		UserID:             payload.UserID,
		RecordedAt:         payload.RecordedAt,
		Latitude:           payload.Latitude,
		Longitude:          payload.Longitude,
		HorizontalAccuracy: payload.HorizontalAccuracy,
	})
	switch {
	case err == nil:
		h.log.Debug("fix recorded", "user_id", sample.UserID, "sample_id", sample.ID)
		return nil
	case errors.Is(err, domain.ErrTrackingDisabled):
		recordDropped("tracking_disabled")
		return nil
	case errors.Is(err, domain.ErrFixRejected):
		recordDropped("rejected")
		return nil
	case errors.Is(err, domain.ErrInvalidSample):
		recordDropped("invalid")
		h.log.Warn("dropping invalid fix", "user_id", payload.UserID, "error", err)
		return nil
	default:
		return fmt.Errorf("record fix for %s: %w", payload.UserID, err)
	}
}
