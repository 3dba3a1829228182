package pipeline

import (
	"context"
	"sync"
	"time"

	"ai-voicechat-be/internal/dto"
	"ai-voicechat-be/internal/entity"
	"ai-voicechat-be/internal/repository/memory"
	"ai-voicechat-be/pkg/contextwindow"
	"ai-voicechat-be/pkg/llm"
	"ai-voicechat-be/pkg/stt"
	"ai-voicechat-be/pkg/tts"

	"github.com/google/uuid"
)

type nopLogger struct{}

func (nopLogger) Debug(module, message string, details map[string]interface{}) {}
func (nopLogger) Info(module, message string, details map[string]interface{})  {}
func (nopLogger) Warn(module, message string, details map[string]interface{})  {}
func (nopLogger) Error(module, message string, details map[string]interface{}) {}
func (nopLogger) Sync() error                                                  { return nil }

// captureEmitter records every emitted event in order.
type captureEmitter struct {
	mu     sync.Mutex
	events []capturedEvent
}

type capturedEvent struct {
	event string
	data  interface{}
}

func (c *captureEmitter) Emit(event string, data interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, capturedEvent{event: event, data: data})
}

func (c *captureEmitter) all() []capturedEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]capturedEvent(nil), c.events...)
}

func (c *captureEmitter) byEvent(event string) []interface{} {
	var out []interface{}
	for _, e := range c.all() {
		if e.event == event {
			out = append(out, e.data)
		}
	}
	return out
}

func (c *captureEmitter) errorEvents() []*dto.ErrorEvent {
	var out []*dto.ErrorEvent
	for _, data := range c.byEvent("error") {
		out = append(out, data.(*dto.ErrorEvent))
	}
	return out
}

type fakeSTT struct {
	transcript *stt.Transcript
	err        error
	calls      int
}

func (f *fakeSTT) Transcribe(ctx context.Context, audio []byte, format string, sampleRate int, language string) (*stt.Transcript, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.transcript, nil
}

// fakeLLM fails the first failures calls, then succeeds. Streaming responses
// are cut into the configured chunks.
type fakeLLM struct {
	mu       sync.Mutex
	text     string
	sources  []llm.Source
	chunks   []string
	failures int
	err      error
	calls    int
}

func (f *fakeLLM) take() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return f.err
	}
	return nil
}

func (f *fakeLLM) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (*llm.Result, error) {
	if err := f.take(); err != nil {
		return nil, err
	}
	return &llm.Result{Text: f.text, Sources: f.sources}, nil
}

func (f *fakeLLM) ChatStream(ctx context.Context, history []llm.Message, options ...llm.Option) (<-chan llm.Chunk, error) {
	if err := f.take(); err != nil {
		return nil, err
	}
	ch := make(chan llm.Chunk)
	go func() {
		defer close(ch)
		for i, chunk := range f.chunks {
			out := llm.Chunk{Text: chunk}
			if i == 0 {
				out.Sources = f.sources
			}
			select {
			case ch <- out:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	return "summary", nil
}

type fakeTTS struct {
	audio *tts.Audio
	err   error
	calls int
}

func (f *fakeTTS) Synthesize(ctx context.Context, text, voiceId, language string) (*tts.Audio, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.audio, nil
}

type capturePublisher struct {
	mu       sync.Mutex
	messages []*dto.TurnFinalizedMessage
}

func (p *capturePublisher) PublishTurnFinalized(ctx context.Context, msg *dto.TurnFinalizedMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

// fixture wires a full pipeline over the in-memory session store.
type fixture struct {
	sessions  *memory.SessionRepository
	session   *entity.Session
	sttP      *fakeSTT
	llmP      *fakeLLM
	ttsP      *fakeTTS
	publisher *capturePublisher
	emitter   *captureEmitter
}

func newFixture(prefs entity.Preferences) *fixture {
	sessions := memory.NewSessionRepository(time.Hour)
	session := &entity.Session{
		Id:             uuid.New(),
		PrincipalId:    uuid.New(),
		CreatedAt:      time.Now(),
		LastActivityAt: time.Now(),
		Preferences:    prefs,
		History:        []*entity.Turn{},
		TTLSeconds:     3600,
	}
	if err := sessions.Create(context.Background(), session); err != nil {
		panic(err)
	}

	return &fixture{
		sessions: sessions,
		session:  session,
		sttP: &fakeSTT{
			transcript: &stt.Transcript{Text: "hello there", Confidence: 0.95, Language: "en"},
		},
		llmP:      &fakeLLM{text: "hi, how can I help?", chunks: []string{"hi, ", "how can ", "I help?"}},
		ttsP:      &fakeTTS{audio: &tts.Audio{Data: []byte{1, 2, 3}, Format: "pcm", SampleRate: 24000, VoiceId: "Kore"}},
		publisher: &capturePublisher{},
		emitter:   &captureEmitter{},
	}
}

func testConfig() Config {
	return Config{
		SttTimeout:          5 * time.Second,
		GenerationTimeout:   15 * time.Second,
		TtsTimeout:          8 * time.Second,
		SttConfidenceAccept: 0.3,
		SttConfidenceWarn:   0.6,
	}
}

func (f *fixture) voiceCoordinator() *VoiceCoordinator {
	assembler := contextwindow.NewAssembler(f.llmP, 10, 4096, nopLogger{})
	return NewVoiceCoordinator(f.sessions, f.sttP, f.llmP, f.ttsP, assembler, NewFallbackHandler(nopLogger{}), f.publisher, nopLogger{}, testConfig())
}

func (f *fixture) textCoordinator() *TextCoordinator {
	assembler := contextwindow.NewAssembler(f.llmP, 10, 4096, nopLogger{})
	return NewTextCoordinator(f.sessions, f.llmP, f.ttsP, assembler, NewFallbackHandler(nopLogger{}), f.publisher, nopLogger{}, testConfig())
}

func (f *fixture) newRequest(messageId string) *Request {
	req := NewRequest(context.Background(), f.session.Id, messageId)
	if err := f.sessions.SetActiveTurn(context.Background(), f.session.Id, &req.TurnId); err != nil {
		panic(err)
	}
	return req
}

func (f *fixture) reload() *entity.Session {
	sess, err := f.sessions.Get(context.Background(), f.session.Id)
	if err != nil {
		panic(err)
	}
	return sess
}

func voiceMsg(f *fixture, messageId string) *dto.VoiceMessageRequest {
	return &dto.VoiceMessageRequest{
		SessionId:  f.session.Id,
		MessageId:  messageId,
		Format:     "wav",
		SampleRate: 16000,
		Timestamp:  time.Now(),
	}
}
