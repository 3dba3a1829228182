package llm

import (
	"context"
)

// Message represents a chat message in a provider-agnostic format
type Message struct {
	Role    string // "user", "assistant", "system"
	Content string
}

// Source is one retrieval source the provider attaches to a response.
type Source struct {
	Title string
	Url   string
}

// Result is a complete generation outcome.
type Result struct {
	Text    string
	Sources []Source
}

// Chunk is one streamed fragment. Err is set on the terminating chunk when
// the stream fails mid-flight. Sources may arrive on any chunk and are
// accumulated by the caller.
type Chunk struct {
	Text    string
	Sources []Source
	Err     error
}

// Option allows for optional parameters like Temperature, MaxTokens, etc.
type Option func(*Options)

type Options struct {
	Temperature float64
	MaxTokens   int
	Model       string // Override default model
}

func WithTemperature(temp float64) Option {
	return func(o *Options) {
		o.Temperature = temp
	}
}

func WithMaxTokens(n int) Option {
	return func(o *Options) {
		o.MaxTokens = n
	}
}

func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

// LLMProvider defines the contract for any generation backend
type LLMProvider interface {
	// Chat sends a chat history to the model and returns the full response
	Chat(ctx context.Context, history []Message, options ...Option) (*Result, error)

	// ChatStream sends a chat history and returns a channel of ordered
	// chunks. The channel is closed when the stream ends; a chunk with a
	// non-nil Err terminates the stream early.
	ChatStream(ctx context.Context, history []Message, options ...Option) (<-chan Chunk, error)

	// Generate sends a single prompt to the model (convenience method)
	Generate(ctx context.Context, prompt string, options ...Option) (string, error)
}
