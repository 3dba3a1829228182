package contextwindow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ai-voicechat-be/internal/constant"
	"ai-voicechat-be/internal/entity"
	"ai-voicechat-be/internal/pkg/logger"
	"ai-voicechat-be/pkg/llm"
	"ai-voicechat-be/pkg/utils"
)

// Window is the bounded, ordered slice of history fed to the generation
// engine for one turn. Rebuilt per call, never persisted.
type Window struct {
	Turns      []*entity.Turn
	TokenCount int
	Summarized bool
}

// Assembler builds context windows from session history. Voice- and
// text-origin turns are mixed by timestamp order; the window is capped by
// turn count and token budget.
type Assembler struct {
	llmProvider    llm.LLMProvider
	maxTurns       int
	maxTokens      int
	summaryTimeout time.Duration
	logger         logger.ILogger
}

func NewAssembler(llmProvider llm.LLMProvider, maxTurns, maxTokens int, log logger.ILogger) *Assembler {
	return &Assembler{
		llmProvider:    llmProvider,
		maxTurns:       maxTurns,
		maxTokens:      maxTokens,
		summaryTimeout: 5 * time.Second,
		logger:         log,
	}
}

// Assemble never fails: if history overflows and summarization errors out,
// it falls back to hard truncation (drop oldest) rather than blocking the turn.
func (a *Assembler) Assemble(ctx context.Context, history []*entity.Turn) *Window {
	window := &Window{}

	if len(history) > a.maxTurns {
		// Overflowed turns are replaced by one synthesized summary turn so
		// the window still fits in maxTurns.
		keep := a.maxTurns - 1
		overflow := history[:len(history)-keep]
		recent := history[len(history)-keep:]

		summary, err := a.summarize(ctx, overflow)
		if err != nil {
			a.logger.Warn("ContextAssembler", "Summarization failed, falling back to hard truncation", map[string]interface{}{
				"error":          err.Error(),
				"dropped_turns":  len(history) - a.maxTurns,
				"history_length": len(history),
			})
			window.Turns = append(window.Turns, history[len(history)-a.maxTurns:]...)
		} else {
			window.Turns = append(window.Turns, summary)
			window.Turns = append(window.Turns, recent...)
			window.Summarized = true
		}
	} else {
		window.Turns = append(window.Turns, history...)
	}

	a.enforceTokenBudget(window)
	return window
}

// Messages converts a window into the provider-agnostic chat format.
func (a *Assembler) Messages(window *Window) []llm.Message {
	messages := make([]llm.Message, 0, len(window.Turns))
	for _, turn := range window.Turns {
		messages = append(messages, llm.Message{
			Role:    turn.Role,
			Content: turn.Content,
		})
	}
	return messages
}

func (a *Assembler) summarize(ctx context.Context, overflow []*entity.Turn) (*entity.Turn, error) {
	var sb strings.Builder
	for _, turn := range overflow {
		sb.WriteString(turn.Role)
		sb.WriteString(": ")
		sb.WriteString(turn.Content)
		sb.WriteString("\n")
	}

	summaryCtx, cancel := context.WithTimeout(ctx, a.summaryTimeout)
	defer cancel()

	text, err := a.llmProvider.Generate(
		summaryCtx,
		fmt.Sprintf(constant.SummarizeHistoryPromptV1, sb.String()),
		llm.WithMaxTokens(256),
	)
	if err != nil {
		return nil, fmt.Errorf("summarize history: %w", err)
	}

	oldest := overflow[0]
	return &entity.Turn{
		Id:        oldest.Id, // keep the anchor of the oldest summarized turn
		Role:      constant.TurnRoleAssistant,
		Modality:  constant.TurnModalityText,
		Content:   "Conversation so far: " + text,
		CreatedAt: oldest.CreatedAt,
	}, nil
}

// enforceTokenBudget drops the oldest turns until the window fits. A single
// oversized turn is truncated rather than dropped.
func (a *Assembler) enforceTokenBudget(window *Window) {
	total := 0
	for _, turn := range window.Turns {
		total += utils.EstimateTokens(turn.Content)
	}

	for total > a.maxTokens && len(window.Turns) > 1 {
		total -= utils.EstimateTokens(window.Turns[0].Content)
		window.Turns = window.Turns[1:]
	}

	if total > a.maxTokens && len(window.Turns) == 1 {
		turn := *window.Turns[0]
		turn.Content = utils.TruncateText(turn.Content, a.maxTokens)
		window.Turns[0] = &turn
		total = utils.EstimateTokens(turn.Content)
	}

	window.TokenCount = total
}
