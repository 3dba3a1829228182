package stt

import (
	"context"
)

// Transcript is the outcome of one speech-to-text call.
type Transcript struct {
	Text       string
	Confidence float64 // 0.0 - 1.0
	Language   string
}

// Provider defines the contract for any speech-to-text backend.
type Provider interface {
	// Transcribe converts one utterance of encoded audio into text.
	Transcribe(ctx context.Context, audio []byte, format string, sampleRate int, language string) (*Transcript, error)
}
