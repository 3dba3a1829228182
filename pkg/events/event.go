package events

import "time"

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "SESSION_CREATED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event types mirrored to NATS by the session service. Turn terminal states
// travel over the watermill finalized-turn topic instead, and sessions have
// no close event: they expire by TTL and stay resumable until then.
const (
	TypeSessionCreated = "SESSION_CREATED"
	TypeSessionResumed = "SESSION_RESUMED"
)

// BaseEvent is the plain implementation used across the app.
type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}
