package entity

import (
	"time"

	"github.com/google/uuid"
)

// Preferences carries the per-session client preferences negotiated on connect.
type Preferences struct {
	TtsEnabled bool   `json:"tts_enabled"`
	VoiceId    string `json:"voice_id"`
	Language   string `json:"language"`
}

// TurnSource is one retrieval source attached to an assistant turn.
type TurnSource struct {
	Title string `json:"title"`
	Url   string `json:"url,omitempty"`
}

// Turn is one finalized user or assistant message. Immutable once appended
// to a session's history.
type Turn struct {
	Id        uuid.UUID    `json:"id"`
	Role      string       `json:"role"`     // constant.TurnRoleUser | constant.TurnRoleAssistant
	Modality  string       `json:"modality"` // constant.TurnModalityVoice | constant.TurnModalityText
	Content   string       `json:"content"`
	Sources   []TurnSource `json:"sources,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// Session is the context store record for one logical conversation.
// It is mutated only by the owning connection's dispatch path.
type Session struct {
	Id             uuid.UUID   `json:"id"`
	PrincipalId    uuid.UUID   `json:"principal_id"`
	CreatedAt      time.Time   `json:"created_at"`
	LastActivityAt time.Time   `json:"last_activity_at"`
	Preferences    Preferences `json:"preferences"`
	History        []*Turn     `json:"history"`
	ActiveTurnId   *uuid.UUID  `json:"active_turn_id,omitempty"`
	TTLSeconds     int         `json:"ttl_seconds"`
}

// Clone returns a deep copy for out-of-band readers (REST snapshots, metrics).
// Readers must never mutate live session state.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.History = make([]*Turn, len(s.History))
	for i, t := range s.History {
		turn := *t
		if t.Sources != nil {
			turn.Sources = append([]TurnSource(nil), t.Sources...)
		}
		cp.History[i] = &turn
	}
	if s.ActiveTurnId != nil {
		id := *s.ActiveTurnId
		cp.ActiveTurnId = &id
	}
	return &cp
}
