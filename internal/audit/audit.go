// Package audit publishes staff-action events. Delivery is best effort:
// a failed publish is logged locally and swallowed, never failing the
// operation it records.
package audit

import (
	"context"
	"encoding/json"
	"time"
)

// Event is one recorded staff action.
type Event struct {
	DormID     int64          `json:"dorm_id"`
	ActorID    int64          `json:"actor_id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   int64          `json:"entity_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

func NewEvent(dormID, actorID int64, action, entityType string, entityID int64, metadata map[string]any) Event {
	return Event{
		DormID:     dormID,
		ActorID:    actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Metadata:   metadata,
		OccurredAt: time.Now().UTC(),
	}
}

func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func EventFromJSON(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, err
	}
	return e, nil
}

// NopSink discards events. Used by tests and AMQP-less deployments.
type NopSink struct{}

func (NopSink) LogEvent(context.Context, int64, int64, string, string, int64, map[string]any) {}

func (NopSink) Close() error { return nil }
