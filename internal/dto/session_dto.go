package dto

import (
	"time"

	"github.com/google/uuid"
)

// SessionSnapshotResponse is the read-only REST view of a session.
// Serving it must not extend the session TTL.
type SessionSnapshotResponse struct {
	Id             uuid.UUID         `json:"id"`
	PrincipalId    uuid.UUID         `json:"principal_id"`
	CreatedAt      time.Time         `json:"created_at"`
	LastActivityAt time.Time         `json:"last_activity_at"`
	Preferences    PreferencesDTO    `json:"preferences"`
	Turns          []SnapshotTurnDTO `json:"turns"`
	ActiveTurnId   *uuid.UUID        `json:"active_turn_id,omitempty"`
}

type SnapshotTurnDTO struct {
	Id        uuid.UUID   `json:"id"`
	Role      string      `json:"role"`
	Modality  string      `json:"modality"`
	Content   string      `json:"content"`
	Sources   []SourceDTO `json:"sources,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// TurnFinalizedMessage is the watermill payload emitted when a turn reaches a
// terminal state, consumed by the archive service.
type TurnFinalizedMessage struct {
	SessionId   uuid.UUID   `json:"session_id"`
	TurnId      uuid.UUID   `json:"turn_id"`
	MessageId   string      `json:"message_id"`
	Role        string      `json:"role"`
	Modality    string      `json:"modality"`
	Content     string      `json:"content"`
	Sources     []SourceDTO `json:"sources,omitempty"`
	LatencyMs   int64       `json:"latency_ms"`
	CompletedAt time.Time   `json:"completed_at"`
}
