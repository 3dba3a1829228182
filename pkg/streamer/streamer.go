package streamer

import (
	"sync"

	"ai-voicechat-be/internal/constant"
	"ai-voicechat-be/internal/dto"
)

// Emitter delivers one server event to the client. Implemented by the
// gateway connection (marshals the envelope onto the write pump).
type Emitter interface {
	Emit(event string, data interface{})
}

// Streamer emits ordered response chunks for one turn. chunk_index is
// strictly increasing from 0 and exactly one chunk carries is_final=true.
// Once the bound turn is cancelled nothing further is emitted, including the
// final chunk: a cancelled stream just goes quiet.
type Streamer struct {
	emitter   Emitter
	messageId string
	cancelled func() bool

	mu        sync.Mutex
	nextIndex int
	finalSent bool
}

func New(emitter Emitter, messageId string, cancelled func() bool) *Streamer {
	return &Streamer{
		emitter:   emitter,
		messageId: messageId,
		cancelled: cancelled,
	}
}

// Send emits one non-final chunk. Returns false without emitting when the
// turn is cancelled or the stream already finished.
func (s *Streamer) Send(chunk string) bool {
	return s.send(chunk, false)
}

// Final emits the terminating chunk. Returns false when the turn is
// cancelled or a final chunk was already sent.
func (s *Streamer) Final(chunk string) bool {
	return s.send(chunk, true)
}

func (s *Streamer) send(chunk string, final bool) bool {
	if s.cancelled() {
		return false
	}

	s.mu.Lock()
	if s.finalSent {
		s.mu.Unlock()
		return false
	}
	index := s.nextIndex
	s.nextIndex++
	if final {
		s.finalSent = true
	}
	s.mu.Unlock()

	s.emitter.Emit(constant.EventResponseChunk, &dto.ResponseChunkEvent{
		MessageId:  s.messageId,
		Chunk:      chunk,
		ChunkIndex: index,
		IsFinal:    final,
	})
	return true
}

// ChunksSent reports how many chunks were emitted so far.
func (s *Streamer) ChunksSent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextIndex
}

// Finished reports whether the final chunk has been emitted.
func (s *Streamer) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalSent
}
