package outbox

import (
	"fmt"
	"time"
)

// EventLocationRecorded is emitted when a location sample has been persisted.
const EventLocationRecorded = "location.recorded"

// TopicLocationEvents carries location.recorded events.
const TopicLocationEvents = "location_events"

// LocationRecorded is the payload of a location.recorded event.
type LocationRecorded struct {
	SampleID           string    `json:"sample_id"`
	UserID             string    `json:"user_id"`
	RecordedAt         time.Time `json:"recorded_at"`
	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
	HorizontalAccuracy float64   `json:"horizontal_accuracy"`
}

// EventMetadata describes how an event type is routed and framed.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
	Schema        string
}

var catalog = map[string]EventMetadata{
	EventLocationRecorded: {
		Topic:         TopicLocationEvents,
		SchemaSubject: TopicLocationEvents + "-value",
		Schema:        locationRecordedSchema,
	},
}

// Lookup returns routing metadata for the event type.
func Lookup(eventType string) (EventMetadata, error) {
	meta, ok := catalog[eventType]
	if !ok {
		return EventMetadata{}, fmt.Errorf("unknown event type: %s", eventType)
	}
	return meta, nil
}

const locationRecordedSchema = `{
  "type": "object",
  "title": "LocationRecorded",
  "properties": {
    "sample_id": {"type": "string"},
    "user_id": {"type": "string"},
    "recorded_at": {"type": "string", "format": "date-time"},
    "latitude": {"type": "number", "minimum": -90, "maximum": 90},
    "longitude": {"type": "number", "minimum": -180, "maximum": 180},
    "horizontal_accuracy": {"type": "number"}
  },
  "required": ["sample_id", "user_id", "recorded_at", "latitude", "longitude"],
  "additionalProperties": false
}`
