package pipeline

import (
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
)

// TextCoordinator drives one text turn. Text never fails to "transcribe",
// so the user turn is appended immediately and the pipeline goes straight
// to generation. TTS only runs when the message explicitly asks for audio.
type TextCoordinator struct {
	coordinator
}

func NewTextCoordinator(
	sessions contract.ISessionRepository,
	llmProvider llm.LLMProvider,
	ttsProvider tts.Provider,
	assembler *contextwindow.Assembler,
	fallback *FallbackHandler,
	publisher TurnPublisher,
	log logger.ILogger,
	cfg Config,
) *TextCoordinator {
	return &TextCoordinator{
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
	}
}

// Run executes the turn. sess is the snapshot taken when the message was
// accepted.
func (c *TextCoordinator) Run(req *Request, msg *dto.TextMessageRequest, sess *entity.Session, em streamer.Emitter, streaming bool) {
	start := time.Now()

	userTurn := &entity.Turn{
		Id:        req.TurnId,
		Role:      constant.TurnRoleUser,
		Modality:  constant.TurnModalityText,
		Content:   msg.Text,
		CreatedAt: time.Now(),
	}
	updated, err := c.appendTurn(req, userTurn)
	if err != nil {
		c.fail(req, constant.StageGenerate, err, em)
		return
	}
	c.publishTurn(req, userTurn, time.Since(start))

	result, err := c.generate(req, updated.History, em, streaming)
	if err != nil {
		c.fail(req, constant.StageGenerate, err, em)
		return
	}

	assistantTurn := newAssistantTurn(constant.TurnModalityText, result.Text, result.Sources)
	if _, err := c.appendTurn(req, assistantTurn); err != nil {
		c.fail(req, constant.StageGenerate, err, em)
		return
	}

	// Default response carries no audio; audio-back is opt-in per message
	var audioPayload *dto.AudioPayload
	if msg.AudioResponse {
		audioPayload = c.synthesize(req, result.Text, sess.Preferences, em)
	}

	c.respond(req, em, result.Text, audioPayload, result.Sources, 1.0, start)
	if req.Complete() {
		c.publishTurn(req, assistantTurn, time.Since(start))
		c.clearActiveTurn(req)
	}
}
