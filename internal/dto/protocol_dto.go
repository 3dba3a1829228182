package dto

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope is the tagged wire frame carried in both directions:
// {"event": "...", "data": {...}}
type Envelope struct {
	Event string          `json:"event" validate:"required"`
	Data  json.RawMessage `json:"data"`
}

type PreferencesDTO struct {
	TtsEnabled bool   `json:"tts_enabled"`
	VoiceId    string `json:"voice_id"`
	Language   string `json:"language"`
}

// --- Client -> server ---

type ConnectRequest struct {
	Token        string         `json:"token" validate:"required"`
	SessionId    *uuid.UUID     `json:"session_id,omitempty"`
	Capabilities []string       `json:"capabilities"`
	Preferences  PreferencesDTO `json:"preferences"`
}

type VoiceMessageRequest struct {
	SessionId  uuid.UUID `json:"session_id" validate:"required"`
	MessageId  string    `json:"message_id" validate:"required"`
	Audio      string    `json:"audio" validate:"required"` // base64 encoded
	Format     string    `json:"format" validate:"required"`
	SampleRate int       `json:"sample_rate" validate:"required,gt=0"`
	DurationMs int       `json:"duration_ms" validate:"gte=0"`
	Timestamp  time.Time `json:"timestamp"`
}

type TextMessageRequest struct {
	SessionId uuid.UUID `json:"session_id" validate:"required"`
	MessageId string    `json:"message_id" validate:"required"`
	Text      string    `json:"text" validate:"required"`
	// AudioResponse requests TTS audio back for a text-originated turn.
	AudioResponse bool      `json:"audio_response,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

type CancelRequest struct {
	SessionId uuid.UUID `json:"session_id" validate:"required"`
	MessageId string    `json:"message_id,omitempty"`
}

// --- Server -> client ---

type ConnectedEvent struct {
	SessionId          uuid.UUID `json:"session_id"`
	ServerCapabilities []string  `json:"server_capabilities"`
	LatencyEstimateMs  int       `json:"latency_estimate_ms"`
}

type TranscriptEvent struct {
	MessageId     string    `json:"message_id"`
	Text          string    `json:"text"`
	Confidence    float64   `json:"confidence"`
	Language      string    `json:"language"`
	LowConfidence bool      `json:"low_confidence,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

type AudioPayload struct {
	Data       string `json:"data"` // base64 encoded
	Format     string `json:"format"`
	SampleRate int    `json:"sample_rate"`
	VoiceId    string `json:"voice_id,omitempty"`
}

type SourceDTO struct {
	Title string `json:"title"`
	Url   string `json:"url,omitempty"`
}

type ResponseEvent struct {
	MessageId  string        `json:"message_id"`
	Text       string        `json:"text"`
	Audio      *AudioPayload `json:"audio"` // null for text-only responses
	Sources    []SourceDTO   `json:"sources"`
	Confidence float64       `json:"confidence"`
	LatencyMs  int64         `json:"latency_ms"`
	Timestamp  time.Time     `json:"timestamp"`
}

type ResponseChunkEvent struct {
	MessageId  string `json:"message_id"`
	Chunk      string `json:"chunk"`
	ChunkIndex int    `json:"chunk_index"`
	IsFinal    bool   `json:"is_final"`
}

type ErrorEvent struct {
	MessageId    string    `json:"message_id"`
	ErrorCode    string    `json:"error_code"`
	ErrorMessage string    `json:"error_message"`
	Fallback     string    `json:"fallback,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}
