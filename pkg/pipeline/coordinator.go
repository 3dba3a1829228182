package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"ai-voicechat-be/internal/constant"
	"ai-voicechat-be/internal/dto"
	"ai-voicechat-be/internal/entity"
	"ai-voicechat-be/internal/pkg/logger"
	"ai-voicechat-be/internal/repository/contract"
	"ai-voicechat-be/pkg/contextwindow"
	"ai-voicechat-be/pkg/llm"
	"ai-voicechat-be/pkg/streamer"
	"ai-voicechat-be/pkg/tts"

	"github.com/google/uuid"
)

var errCancelled = errors.New("pipeline request cancelled")

// Config carries the per-stage timeouts and confidence thresholds.
type Config struct {
	SttTimeout        time.Duration
	GenerationTimeout time.Duration
	TtsTimeout        time.Duration

	SttConfidenceAccept float64
	SttConfidenceWarn   float64
}

// TurnPublisher receives finalized turns for out-of-band consumers
// (archive, telemetry). Must not block the pipeline.
type TurnPublisher interface {
	PublishTurnFinalized(ctx context.Context, msg *dto.TurnFinalizedMessage) error
}

// coordinator holds the stages shared by the voice and text pipelines:
// context assembly, generation with retry, optional TTS, response emission
// and failure conversion.
type coordinator struct {
	sessions    contract.ISessionRepository
	llmProvider llm.LLMProvider
	ttsProvider tts.Provider
	assembler   *contextwindow.Assembler
	fallback    *FallbackHandler
	publisher   TurnPublisher // nil when eventing is disabled
	logger      logger.ILogger
	cfg         Config
}

// appendTurn persists a finalized turn. Cancelled requests must never mutate
// session history, so the request state is checked immediately before the
// write.
func (c *coordinator) appendTurn(req *Request, turn *entity.Turn) (*entity.Session, error) {
	if req.Cancelled() {
		return nil, errCancelled
	}
	return c.sessions.AppendTurn(req.Context(), req.SessionId, turn)
}

// generate runs context assembly and the generation engine. Failures are
// retried exactly once with the same context window, unless chunks already
// reached the client.
func (c *coordinator) generate(req *Request, history []*entity.Turn, em streamer.Emitter, streaming bool) (*llm.Result, error) {
	if !req.EnterStage(constant.StageGenerate) {
		return nil, errCancelled
	}

	window := c.assembler.Assemble(req.Context(), history)
	messages := c.assembler.Messages(window)

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		result, chunksSent, err := c.generateOnce(req, messages, em, streaming)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, errCancelled) {
			return nil, errCancelled
		}
		if chunksSent > 0 {
			// A partial stream reached the client; retrying would restart
			// chunk numbering mid-turn.
			return nil, err
		}
		lastErr = err
		if attempt == 0 {
			c.logger.Warn("Pipeline", "Generation failed, retrying once with same context window", map[string]interface{}{
				"message_id": req.MessageId,
				"error":      err.Error(),
			})
		}
	}
	return nil, lastErr
}

func (c *coordinator) generateOnce(req *Request, messages []llm.Message, em streamer.Emitter, streaming bool) (*llm.Result, int, error) {
	genCtx, cancel := context.WithTimeout(req.Context(), c.cfg.GenerationTimeout)
	defer cancel()

	if !streaming {
		result, err := c.llmProvider.Chat(genCtx, messages)
		if err != nil {
			return nil, 0, err
		}
		return result, 0, nil
	}

	ch, err := c.llmProvider.ChatStream(genCtx, messages)
	if err != nil {
		return nil, 0, err
	}

	str := streamer.New(em, req.MessageId, req.Cancelled)
	var sb strings.Builder
	var sources []llm.Source
	var pending *llm.Chunk

	for chunk := range ch {
		if chunk.Err != nil {
			drain(ch)
			return nil, str.ChunksSent(), chunk.Err
		}
		// Hold one chunk back so the last one can be sent with is_final=true
		if pending != nil {
			if !str.Send(pending.Text) {
				drain(ch)
				return nil, str.ChunksSent(), errCancelled
			}
		}
		sb.WriteString(chunk.Text)
		sources = append(sources, chunk.Sources...)
		cp := chunk
		pending = &cp
	}

	if pending == nil {
		return nil, str.ChunksSent(), fmt.Errorf("generation returned empty stream")
	}
	if !str.Final(pending.Text) {
		return nil, str.ChunksSent(), errCancelled
	}
	return &llm.Result{Text: sb.String(), Sources: sources}, str.ChunksSent(), nil
}

func drain(ch <-chan llm.Chunk) {
	go func() {
		for range ch {
		}
	}()
}

// synthesize runs the TTS stage. TTS failure never fails the turn: the error
// event is emitted as a warning and the text response goes out without audio.
func (c *coordinator) synthesize(req *Request, text string, prefs entity.Preferences, em streamer.Emitter) *dto.AudioPayload {
	if !req.EnterStage(constant.StageTts) {
		return nil
	}

	ttsCtx, cancel := context.WithTimeout(req.Context(), c.cfg.TtsTimeout)
	defer cancel()

	audio, err := c.ttsProvider.Synthesize(ttsCtx, text, prefs.VoiceId, prefs.Language)
	if err != nil {
		if req.Cancelled() {
			return nil
		}
		code, _ := c.fallback.Classify(constant.StageTts, err)
		c.fallback.EmitError(em, req.MessageId, code, "speech synthesis failed, delivering text only", "")
		c.logger.Warn("Pipeline", "TTS failed, degrading to text-only response", map[string]interface{}{
			"message_id": req.MessageId,
			"error":      err.Error(),
		})
		return nil
	}

	return &dto.AudioPayload{
		Data:       base64.StdEncoding.EncodeToString(audio.Data),
		Format:     audio.Format,
		SampleRate: audio.SampleRate,
		VoiceId:    audio.VoiceId,
	}
}

// respond emits the turn's consolidated response event.
func (c *coordinator) respond(req *Request, em streamer.Emitter, text string, audio *dto.AudioPayload, sources []llm.Source, confidence float64, start time.Time) {
	if req.Cancelled() {
		return
	}

	sourceDTOs := make([]dto.SourceDTO, 0, len(sources))
	for _, s := range sources {
		sourceDTOs = append(sourceDTOs, dto.SourceDTO{Title: s.Title, Url: s.Url})
	}

	em.Emit(constant.EventResponse, &dto.ResponseEvent{
		MessageId:  req.MessageId,
		Text:       text,
		Audio:      audio,
		Sources:    sourceDTOs,
		Confidence: confidence,
		LatencyMs:  time.Since(start).Milliseconds(),
		Timestamp:  time.Now(),
	})
}

// fail converts a stage error into the turn's single error event. Cancelled
// requests stay silent.
func (c *coordinator) fail(req *Request, stage string, err error, em streamer.Emitter) {
	if errors.Is(err, errCancelled) || req.Cancelled() {
		return
	}
	if !req.Fail() {
		return
	}

	stageErr := &StageError{Stage: stage, Err: err}
	if errors.Is(err, contract.ErrSessionNotFound) {
		c.fallback.EmitError(em, req.MessageId, constant.ErrCodeSessionExpired, "session expired mid-turn, reconnect to start fresh", "")
	} else {
		code, fallbackHint := c.fallback.Classify(stage, err)
		c.fallback.EmitError(em, req.MessageId, code, stageErr.Error(), fallbackHint)
	}

	c.logger.Warn("Pipeline", "Turn failed", map[string]interface{}{
		"message_id": req.MessageId,
		"session_id": req.SessionId,
		"error":      stageErr.Error(),
	})
	c.clearActiveTurn(req)
}

// clearActiveTurn resets the session's active turn marker, but only when
// this request still owns it (a barge-in successor may have replaced it).
func (c *coordinator) clearActiveTurn(req *Request) {
	sess, err := c.sessions.Get(context.Background(), req.SessionId)
	if err != nil {
		return
	}
	if sess.ActiveTurnId != nil && *sess.ActiveTurnId == req.TurnId {
		if err := c.sessions.SetActiveTurn(context.Background(), req.SessionId, nil); err != nil {
			c.logger.Warn("Pipeline", "Failed to clear active turn", map[string]interface{}{
				"session_id": req.SessionId,
				"error":      err.Error(),
			})
		}
	}
}

// publishTurn hands a finalized turn to out-of-band consumers.
func (c *coordinator) publishTurn(req *Request, turn *entity.Turn, latency time.Duration) {
	if c.publisher == nil {
		return
	}

	sourceDTOs := make([]dto.SourceDTO, 0, len(turn.Sources))
	for _, s := range turn.Sources {
		sourceDTOs = append(sourceDTOs, dto.SourceDTO{Title: s.Title, Url: s.Url})
	}

	msg := &dto.TurnFinalizedMessage{
		SessionId:   req.SessionId,
		TurnId:      turn.Id,
		MessageId:   req.MessageId,
		Role:        turn.Role,
		Modality:    turn.Modality,
		Content:     turn.Content,
		Sources:     sourceDTOs,
		LatencyMs:   latency.Milliseconds(),
		CompletedAt: time.Now(),
	}
	// Publishing is fire-and-forget; the archive consumer acks on its side
	if err := c.publisher.PublishTurnFinalized(context.Background(), msg); err != nil {
		c.logger.Warn("Pipeline", "Failed to publish finalized turn", map[string]interface{}{
			"turn_id": turn.Id,
			"error":   err.Error(),
		})
	}
}

func newAssistantTurn(modality, content string, sources []llm.Source) *entity.Turn {
	turn := &entity.Turn{
		Id:        uuid.New(),
		Role:      constant.TurnRoleAssistant,
		Modality:  modality,
		Content:   content,
		CreatedAt: time.Now(),
	}
	for _, s := range sources {
		turn.Sources = append(turn.Sources, entity.TurnSource{Title: s.Title, Url: s.Url})
	}
	return turn
}
