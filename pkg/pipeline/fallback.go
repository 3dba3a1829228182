package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ai-voicechat-be/internal/constant"
	"ai-voicechat-be/internal/dto"
	"ai-voicechat-be/internal/pkg/logger"
	"ai-voicechat-be/pkg/streamer"
)

// ErrLowConfidence marks a transcript rejected below the accept threshold.
var ErrLowConfidence = errors.New("transcript confidence below accept threshold")

// StageError wraps a failure with the pipeline stage that produced it.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// FallbackHandler converts stage failures into the single client-visible
// error event for a turn, including the modality fallback hint.
type FallbackHandler struct {
	logger logger.ILogger
}

func NewFallbackHandler(log logger.ILogger) *FallbackHandler {
	return &FallbackHandler{logger: log}
}

// Classify maps a stage failure to its wire error code and fallback hint.
// Timeouts keep the owning stage's recovery behavior but surface as TIMEOUT.
func (f *FallbackHandler) Classify(stage string, err error) (code string, fallback string) {
	timedOut := errors.Is(err, context.DeadlineExceeded)

	switch stage {
	case constant.StageStt:
		// STT failures always point the client at typed input
		fallback = constant.FallbackText
		code = constant.ErrCodeSttFailed
	case constant.StageGenerate:
		code = constant.ErrCodeGenerationFailed
	case constant.StageTts:
		code = constant.ErrCodeTtsFailed
	default:
		code = constant.ErrCodeGenerationFailed
	}

	if timedOut {
		code = constant.ErrCodeTimeout
	}
	return code, fallback
}

// EmitError sends the turn's error event. Exactly one per failed turn;
// callers gate on the request state machine before invoking.
func (f *FallbackHandler) EmitError(em streamer.Emitter, messageId, code, message, fallback string) {
	em.Emit(constant.EventError, &dto.ErrorEvent{
		MessageId:    messageId,
		ErrorCode:    code,
		ErrorMessage: message,
		Fallback:     fallback,
		Timestamp:    time.Now(),
	})
}
