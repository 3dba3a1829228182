package streamer

import (
	"testing"

	"ai-voicechat-be/internal/dto"

	"github.com/stretchr/testify/assert"
)

type captureEmitter struct {
	chunks []dto.ResponseChunkEvent
}

func (c *captureEmitter) Emit(event string, data interface{}) {
	if chunk, ok := data.(*dto.ResponseChunkEvent); ok {
		c.chunks = append(c.chunks, *chunk)
	}
}

func never() bool { return false }

func TestChunkIndicesStrictlyIncreasing(t *testing.T) {
	em := &captureEmitter{}
	s := New(em, "msg-1", never)

	assert.True(t, s.Send("a"))
	assert.True(t, s.Send("b"))
	assert.True(t, s.Final("c"))

	assert.Len(t, em.chunks, 3)
	for i, chunk := range em.chunks {
		assert.Equal(t, i, chunk.ChunkIndex)
		assert.Equal(t, "msg-1", chunk.MessageId)
	}
	assert.False(t, em.chunks[0].IsFinal)
	assert.False(t, em.chunks[1].IsFinal)
	assert.True(t, em.chunks[2].IsFinal)
}

func TestExactlyOneFinalChunk(t *testing.T) {
	em := &captureEmitter{}
	s := New(em, "msg-1", never)

	assert.True(t, s.Final("done"))
	assert.False(t, s.Final("again"), "second final must be rejected")
	assert.False(t, s.Send("late"), "sends after final must be rejected")

	finals := 0
	for _, chunk := range em.chunks {
		if chunk.IsFinal {
			finals++
		}
	}
	assert.Equal(t, 1, finals)
	assert.Len(t, em.chunks, 1)
	assert.True(t, s.Finished())
}

func TestCancelledStreamGoesQuiet(t *testing.T) {
	em := &captureEmitter{}
	cancelled := false
	s := New(em, "msg-1", func() bool { return cancelled })

	assert.True(t, s.Send("before"))

	cancelled = true
	assert.False(t, s.Send("after"))
	assert.False(t, s.Final("final"))

	// Nothing after the cancellation point, no final chunk at all
	assert.Len(t, em.chunks, 1)
	assert.False(t, s.Finished())
	assert.Equal(t, 1, s.ChunksSent())
}

func TestSingleChunkStream(t *testing.T) {
	em := &captureEmitter{}
	s := New(em, "msg-1", never)

	assert.True(t, s.Final("whole response"))
	assert.Len(t, em.chunks, 1)
	assert.Equal(t, 0, em.chunks[0].ChunkIndex)
	assert.True(t, em.chunks[0].IsFinal)
}
