package pipeline

import (
	"context"
	"fmt"
	"time"

	"ai-voicechat-be/internal/constant"
	"ai-voicechat-be/internal/dto"
	"ai-voicechat-be/internal/entity"
	"ai-voicechat-be/internal/pkg/logger"
	"ai-voicechat-be/internal/repository/contract"
	"ai-voicechat-be/pkg/contextwindow"
	"ai-voicechat-be/pkg/llm"
	"ai-voicechat-be/pkg/streamer"
	"ai-voicechat-be/pkg/stt"
	"ai-voicechat-be/pkg/tts"
)

// VoiceCoordinator drives one voice turn: STT, context assembly, generation
// and optional TTS, in that order. The whole pipeline is one cancellable
// request; generation only runs if transcription succeeded.
type VoiceCoordinator struct {
	coordinator
	sttProvider stt.Provider
}

func NewVoiceCoordinator(
	sessions contract.ISessionRepository,
	sttProvider stt.Provider,
	llmProvider llm.LLMProvider,
	ttsProvider tts.Provider,
	assembler *contextwindow.Assembler,
	fallback *FallbackHandler,
	publisher TurnPublisher,
	log logger.ILogger,
	cfg Config,
) *VoiceCoordinator {
	return &VoiceCoordinator{
		coordinator: coordinator{
			sessions:    sessions,
			llmProvider: llmProvider,
			ttsProvider: ttsProvider,
			assembler:   assembler,
			fallback:    fallback,
			publisher:   publisher,
			logger:      log,
			cfg:         cfg,
		},
		sttProvider: sttProvider,
	}
}

// Run executes the turn. sess is the snapshot taken when the message was
// accepted; audio is the already-decoded payload.
func (c *VoiceCoordinator) Run(req *Request, msg *dto.VoiceMessageRequest, audio []byte, sess *entity.Session, em streamer.Emitter, streaming bool) {
	start := time.Now()

	// Stage 1: speech to text
	if !req.EnterStage(constant.StageStt) {
		return
	}
	sttCtx, cancel := context.WithTimeout(req.Context(), c.cfg.SttTimeout)
	transcript, err := c.sttProvider.Transcribe(sttCtx, audio, msg.Format, msg.SampleRate, sess.Preferences.Language)
	cancel()
	if err != nil {
		// No user turn is appended on STT failure
		c.fail(req, constant.StageStt, err, em)
		return
	}
	if transcript.Confidence < c.cfg.SttConfidenceAccept {
		c.fail(req, constant.StageStt, fmt.Errorf("%w (%.2f < %.2f)", ErrLowConfidence, transcript.Confidence, c.cfg.SttConfidenceAccept), em)
		return
	}

	userTurn := &entity.Turn{
		Id:        req.TurnId,
		Role:      constant.TurnRoleUser,
		Modality:  constant.TurnModalityVoice,
		Content:   transcript.Text,
		CreatedAt: time.Now(),
	}
	updated, err := c.appendTurn(req, userTurn)
	if err != nil {
		c.fail(req, constant.StageStt, err, em)
		return
	}

	if req.Cancelled() {
		return
	}
	em.Emit(constant.EventTranscript, &dto.TranscriptEvent{
		MessageId:     msg.MessageId,
		Text:          transcript.Text,
		Confidence:    transcript.Confidence,
		Language:      transcript.Language,
		LowConfidence: transcript.Confidence < c.cfg.SttConfidenceWarn,
		Timestamp:     time.Now(),
	})
	c.publishTurn(req, userTurn, time.Since(start))

	// Stage 2: generation over the assembled context window
	result, err := c.generate(req, updated.History, em, streaming)
	if err != nil {
		c.fail(req, constant.StageGenerate, err, em)
		return
	}

	assistantTurn := newAssistantTurn(constant.TurnModalityVoice, result.Text, result.Sources)
	if _, err := c.appendTurn(req, assistantTurn); err != nil {
		c.fail(req, constant.StageGenerate, err, em)
		return
	}

	// Stage 3: optional TTS; failure degrades to text-only, never aborts
	var audioPayload *dto.AudioPayload
	if sess.Preferences.TtsEnabled {
		audioPayload = c.synthesize(req, result.Text, sess.Preferences, em)
	}

	c.respond(req, em, result.Text, audioPayload, result.Sources, transcript.Confidence, start)
	if req.Complete() {
		c.publishTurn(req, assistantTurn, time.Since(start))
		c.clearActiveTurn(req)
	}
}
