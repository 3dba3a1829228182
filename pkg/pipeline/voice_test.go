package pipeline

import (
	"errors"
	"testing"

	"ai-voicechat-be/internal/constant"
	"ai-voicechat-be/internal/dto"
	"ai-voicechat-be/internal/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVoiceTurnHappyPath(t *testing.T) {
	f := newFixture(entity.Preferences{TtsEnabled: true, VoiceId: "Kore", Language: "en"})
	req := f.newRequest("m1")

	f.voiceCoordinator().Run(req, voiceMsg(f, "m1"), []byte("audio"), f.session, f.emitter, false)

	assert.Equal(t, StateCompleted, req.State())

	transcripts := f.emitter.byEvent(constant.EventTranscript)
	require.Len(t, transcripts, 1)
	transcript := transcripts[0].(*dto.TranscriptEvent)
	assert.Equal(t, "hello there", transcript.Text)
	assert.InDelta(t, 0.95, transcript.Confidence, 0.001)
	assert.False(t, transcript.LowConfidence)

	responses := f.emitter.byEvent(constant.EventResponse)
	require.Len(t, responses, 1)
	resp := responses[0].(*dto.ResponseEvent)
	assert.Equal(t, "hi, how can I help?", resp.Text)
	require.NotNil(t, resp.Audio, "TTS enabled sessions get audio back")
	assert.Equal(t, "pcm", resp.Audio.Format)
	assert.Empty(t, f.emitter.errorEvents())

	// Both turns landed in history; the assistant turn keeps the voice modality
	sess := f.reload()
	require.Len(t, sess.History, 2)
	assert.Equal(t, constant.TurnRoleUser, sess.History[0].Role)
	assert.Equal(t, constant.TurnModalityVoice, sess.History[0].Modality)
	assert.Equal(t, constant.TurnRoleAssistant, sess.History[1].Role)
	assert.Equal(t, constant.TurnModalityVoice, sess.History[1].Modality)
	assert.Nil(t, sess.ActiveTurnId, "active turn cleared after completion")

	// User and assistant turns both reached the archive publisher
	assert.Equal(t, 2, f.publisher.count())
}

func TestVoiceSttFailureFallsBackToText(t *testing.T) {
	f := newFixture(entity.Preferences{TtsEnabled: true})
	f.sttP.err = errors.New("decoder blew up")
	req := f.newRequest("m1")

	f.voiceCoordinator().Run(req, voiceMsg(f, "m1"), []byte("audio"), f.session, f.emitter, false)

	assert.Equal(t, StateFailed, req.State())

	errs := f.emitter.errorEvents()
	require.Len(t, errs, 1, "exactly one error event per failed turn")
	assert.Equal(t, constant.ErrCodeSttFailed, errs[0].ErrorCode)
	assert.Equal(t, constant.FallbackText, errs[0].Fallback)
	assert.Equal(t, "m1", errs[0].MessageId)
	assert.Contains(t, errs[0].ErrorMessage, "stage "+constant.StageStt, "error message names the failed stage")

	assert.Empty(t, f.emitter.byEvent(constant.EventTranscript))
	assert.Empty(t, f.emitter.byEvent(constant.EventResponse))

	// A failed transcription must not pollute history
	sess := f.reload()
	assert.Empty(t, sess.History)
	assert.Nil(t, sess.ActiveTurnId)
	assert.Equal(t, 0, f.llmP.calls, "generation never ran")
}

func TestVoiceRejectsBelowAcceptThreshold(t *testing.T) {
	f := newFixture(entity.Preferences{})
	f.sttP.transcript.Confidence = 0.2
	req := f.newRequest("m1")

	f.voiceCoordinator().Run(req, voiceMsg(f, "m1"), []byte("audio"), f.session, f.emitter, false)

	errs := f.emitter.errorEvents()
	require.Len(t, errs, 1)
	assert.Equal(t, constant.ErrCodeSttFailed, errs[0].ErrorCode)
	assert.Equal(t, constant.FallbackText, errs[0].Fallback)
	assert.Empty(t, f.emitter.byEvent(constant.EventTranscript))
	assert.Empty(t, f.reload().History)
}

func TestVoiceFlagsLowConfidenceTranscript(t *testing.T) {
	f := newFixture(entity.Preferences{})
	f.sttP.transcript.Confidence = 0.45 // above accept, below warn
	req := f.newRequest("m1")

	f.voiceCoordinator().Run(req, voiceMsg(f, "m1"), []byte("audio"), f.session, f.emitter, false)

	transcripts := f.emitter.byEvent(constant.EventTranscript)
	require.Len(t, transcripts, 1)
	assert.True(t, transcripts[0].(*dto.TranscriptEvent).LowConfidence)
	assert.Len(t, f.emitter.byEvent(constant.EventResponse), 1, "low confidence still completes the turn")
}

func TestVoiceTtsFailureDegradesToTextOnly(t *testing.T) {
	f := newFixture(entity.Preferences{TtsEnabled: true})
	f.ttsP.err = errors.New("voice model offline")
	req := f.newRequest("m1")

	f.voiceCoordinator().Run(req, voiceMsg(f, "m1"), []byte("audio"), f.session, f.emitter, false)

	assert.Equal(t, StateCompleted, req.State(), "TTS failure is non-fatal")

	responses := f.emitter.byEvent(constant.EventResponse)
	require.Len(t, responses, 1)
	assert.Nil(t, responses[0].(*dto.ResponseEvent).Audio)

	errs := f.emitter.errorEvents()
	require.Len(t, errs, 1)
	assert.Equal(t, constant.ErrCodeTtsFailed, errs[0].ErrorCode)

	// Turn history is intact despite the degraded delivery
	assert.Len(t, f.reload().History, 2)
}

func TestVoiceSkipsTtsWhenDisabled(t *testing.T) {
	f := newFixture(entity.Preferences{TtsEnabled: false})
	req := f.newRequest("m1")

	f.voiceCoordinator().Run(req, voiceMsg(f, "m1"), []byte("audio"), f.session, f.emitter, false)

	responses := f.emitter.byEvent(constant.EventResponse)
	require.Len(t, responses, 1)
	assert.Nil(t, responses[0].(*dto.ResponseEvent).Audio)
	assert.Equal(t, 0, f.ttsP.calls)
}

func TestVoiceGenerationRetriesOnce(t *testing.T) {
	f := newFixture(entity.Preferences{})
	f.llmP.failures = 1
	f.llmP.err = errors.New("transient upstream error")
	req := f.newRequest("m1")

	f.voiceCoordinator().Run(req, voiceMsg(f, "m1"), []byte("audio"), f.session, f.emitter, false)

	assert.Equal(t, StateCompleted, req.State())
	assert.Equal(t, 2, f.llmP.calls, "one failure, one retry")
	assert.Len(t, f.emitter.byEvent(constant.EventResponse), 1)
	assert.Empty(t, f.emitter.errorEvents())
}

func TestVoiceGenerationFailsAfterRetry(t *testing.T) {
	f := newFixture(entity.Preferences{})
	f.llmP.failures = 2
	f.llmP.err = errors.New("upstream down")
	req := f.newRequest("m1")

	f.voiceCoordinator().Run(req, voiceMsg(f, "m1"), []byte("audio"), f.session, f.emitter, false)

	assert.Equal(t, StateFailed, req.State())
	assert.Equal(t, 2, f.llmP.calls)

	errs := f.emitter.errorEvents()
	require.Len(t, errs, 1)
	assert.Equal(t, constant.ErrCodeGenerationFailed, errs[0].ErrorCode)
	assert.Empty(t, errs[0].Fallback, "generation failures carry no modality fallback")
	assert.Contains(t, errs[0].ErrorMessage, "stage "+constant.StageGenerate, "error message names the failed stage")
	assert.Empty(t, f.emitter.byEvent(constant.EventResponse))

	// The user turn stays in history even though generation failed
	sess := f.reload()
	require.Len(t, sess.History, 1)
	assert.Equal(t, constant.TurnRoleUser, sess.History[0].Role)
}

func TestVoiceStreamingEmitsOrderedChunks(t *testing.T) {
	f := newFixture(entity.Preferences{})
	req := f.newRequest("m1")

	f.voiceCoordinator().Run(req, voiceMsg(f, "m1"), []byte("audio"), f.session, f.emitter, true)

	chunks := f.emitter.byEvent(constant.EventResponseChunk)
	require.Len(t, chunks, 3)
	finals := 0
	full := ""
	for i, data := range chunks {
		chunk := data.(*dto.ResponseChunkEvent)
		assert.Equal(t, i, chunk.ChunkIndex)
		full += chunk.Chunk
		if chunk.IsFinal {
			finals++
		}
	}
	assert.Equal(t, 1, finals, "exactly one final chunk")
	assert.Equal(t, "hi, how can I help?", full)
	assert.True(t, chunks[len(chunks)-1].(*dto.ResponseChunkEvent).IsFinal)

	// The consolidated response still follows the chunk stream
	responses := f.emitter.byEvent(constant.EventResponse)
	require.Len(t, responses, 1)
	assert.Equal(t, "hi, how can I help?", responses[0].(*dto.ResponseEvent).Text)
}

func TestVoiceCancelledTurnStaysSilent(t *testing.T) {
	f := newFixture(entity.Preferences{})
	req := f.newRequest("m1")
	req.Cancel()

	f.voiceCoordinator().Run(req, voiceMsg(f, "m1"), []byte("audio"), f.session, f.emitter, false)

	assert.Empty(t, f.emitter.all(), "cancelled turns emit nothing")
	assert.Empty(t, f.reload().History)
	assert.Equal(t, StateCancelled, req.State())
}
