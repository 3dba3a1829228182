package tts

import (
	"context"
)

// Audio is one synthesized utterance.
type Audio struct {
	Data       []byte
	Format     string
	SampleRate int
	VoiceId    string
}

// Provider defines the contract for any text-to-speech backend.
type Provider interface {
	// Synthesize converts text into encoded audio with the given voice.
	Synthesize(ctx context.Context, text, voiceId, language string) (*Audio, error)
}
