package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"ai-voicechat-be/internal/constant"
	"ai-voicechat-be/internal/dto"
	"ai-voicechat-be/internal/entity"
	"ai-voicechat-be/internal/repository/memory"
	"ai-voicechat-be/pkg/pipeline"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Debug(module, message string, details map[string]interface{}) {}
func (nopLogger) Info(module, message string, details map[string]interface{})  {}
func (nopLogger) Warn(module, message string, details map[string]interface{})  {}
func (nopLogger) Error(module, message string, details map[string]interface{}) {}
func (nopLogger) Sync() error                                                  { return nil }

// routerFixture exercises Dispatch without a live socket: frames queued by
// Emit are read straight off the connection's send channel.
type routerFixture struct {
	router   *Router
	conn     *Connection
	state    *clientState
	sessions *memory.SessionRepository
	registry *pipeline.Registry
}

func newRouterFixture(t *testing.T) *routerFixture {
	sessions := memory.NewSessionRepository(time.Hour)
	session := &entity.Session{
		Id:             uuid.New(),
		PrincipalId:    uuid.New(),
		CreatedAt:      time.Now(),
		LastActivityAt: time.Now(),
		History:        []*entity.Turn{},
		TTLSeconds:     3600,
	}
	require.NoError(t, sessions.Create(nil, session))

	registry := pipeline.NewRegistry()
	return &routerFixture{
		router:   NewRouter(registry, sessions, nil, nil, nopLogger{}),
		conn:     newConnection(nil, nopLogger{}),
		state:    &clientState{session: session, principalId: session.PrincipalId},
		sessions: sessions,
		registry: registry,
	}
}

func (f *routerFixture) nextFrame(t *testing.T) *dto.Envelope {
	select {
	case raw := <-f.conn.send:
		var env dto.Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		return &env
	case <-time.After(time.Second):
		t.Fatal("expected a frame, got none")
		return nil
	}
}

func (f *routerFixture) nextError(t *testing.T) *dto.ErrorEvent {
	env := f.nextFrame(t)
	require.Equal(t, constant.EventError, env.Event)
	var ev dto.ErrorEvent
	require.NoError(t, json.Unmarshal(env.Data, &ev))
	return &ev
}

func (f *routerFixture) noFrame(t *testing.T) {
	select {
	case raw := <-f.conn.send:
		t.Fatalf("unexpected frame: %s", string(raw))
	case <-time.After(50 * time.Millisecond):
	}
}

func testContext() context.Context {
	return context.Background()
}

func frame(t *testing.T, event string, data interface{}) []byte {
	payload, err := json.Marshal(data)
	require.NoError(t, err)
	raw, err := json.Marshal(dto.Envelope{Event: event, Data: payload})
	require.NoError(t, err)
	return raw
}

func TestDispatchMalformedJson(t *testing.T) {
	f := newRouterFixture(t)

	f.router.Dispatch(f.conn, f.state, []byte("{not json"))

	ev := f.nextError(t)
	assert.Equal(t, constant.ErrCodeProtocol, ev.ErrorCode)
}

func TestDispatchUnknownEvent(t *testing.T) {
	f := newRouterFixture(t)

	f.router.Dispatch(f.conn, f.state, frame(t, "warp_drive", map[string]string{}))

	ev := f.nextError(t)
	assert.Equal(t, constant.ErrCodeProtocol, ev.ErrorCode)
	assert.Contains(t, ev.ErrorMessage, "warp_drive")
}

func TestDispatchMissingEventName(t *testing.T) {
	f := newRouterFixture(t)

	f.router.Dispatch(f.conn, f.state, []byte(`{"data":{}}`))

	ev := f.nextError(t)
	assert.Equal(t, constant.ErrCodeProtocol, ev.ErrorCode)
}

func TestDispatchSecondConnectRejected(t *testing.T) {
	f := newRouterFixture(t)

	f.router.Dispatch(f.conn, f.state, frame(t, constant.EventConnect, dto.ConnectRequest{Token: "x"}))

	ev := f.nextError(t)
	assert.Equal(t, constant.ErrCodeProtocol, ev.ErrorCode)
}

func TestVoiceMessageSessionMismatch(t *testing.T) {
	f := newRouterFixture(t)

	msg := dto.VoiceMessageRequest{
		SessionId:  uuid.New(), // not this connection's session
		MessageId:  "m1",
		Audio:      "aGVsbG8=",
		Format:     "wav",
		SampleRate: 16000,
	}
	f.router.Dispatch(f.conn, f.state, frame(t, constant.EventVoiceMessage, msg))

	ev := f.nextError(t)
	assert.Equal(t, constant.ErrCodeProtocol, ev.ErrorCode)
	assert.Nil(t, f.registry.Active(f.state.session.Id), "no turn started")
}

func TestVoiceMessageInvalidBase64(t *testing.T) {
	f := newRouterFixture(t)

	msg := dto.VoiceMessageRequest{
		SessionId:  f.state.session.Id,
		MessageId:  "m1",
		Audio:      "!!! not base64 !!!",
		Format:     "wav",
		SampleRate: 16000,
	}
	f.router.Dispatch(f.conn, f.state, frame(t, constant.EventVoiceMessage, msg))

	ev := f.nextError(t)
	assert.Equal(t, constant.ErrCodeProtocol, ev.ErrorCode)
	assert.Equal(t, "m1", ev.MessageId)
}

func TestVoiceMessageMissingFields(t *testing.T) {
	f := newRouterFixture(t)

	// sample_rate missing entirely
	f.router.Dispatch(f.conn, f.state, frame(t, constant.EventVoiceMessage, map[string]interface{}{
		"session_id": f.state.session.Id,
		"message_id": "m1",
		"audio":      "aGVsbG8=",
		"format":     "wav",
	}))

	ev := f.nextError(t)
	assert.Equal(t, constant.ErrCodeProtocol, ev.ErrorCode)
}

func TestTextMessageExpiredSession(t *testing.T) {
	f := newRouterFixture(t)
	require.NoError(t, f.sessions.Delete(nil, f.state.session.Id))

	msg := dto.TextMessageRequest{
		SessionId: f.state.session.Id,
		MessageId: "m1",
		Text:      "hello",
	}
	f.router.Dispatch(f.conn, f.state, frame(t, constant.EventTextMessage, msg))

	ev := f.nextError(t)
	assert.Equal(t, constant.ErrCodeSessionExpired, ev.ErrorCode)
	assert.Equal(t, "m1", ev.MessageId)
}

func TestCancelWithNothingRunningIsSilent(t *testing.T) {
	f := newRouterFixture(t)

	msg := dto.CancelRequest{SessionId: f.state.session.Id, MessageId: "m1"}
	f.router.Dispatch(f.conn, f.state, frame(t, constant.EventCancel, msg))

	f.noFrame(t)
}

func TestCancelStopsActiveTurnSilently(t *testing.T) {
	f := newRouterFixture(t)

	req := f.registry.Begin(testContext(), f.state.session.Id, "m1")

	msg := dto.CancelRequest{SessionId: f.state.session.Id, MessageId: "m1"}
	f.router.Dispatch(f.conn, f.state, frame(t, constant.EventCancel, msg))

	assert.Equal(t, pipeline.StateCancelled, req.State())
	f.noFrame(t)
}

func TestAbortCancelsOnDisconnect(t *testing.T) {
	f := newRouterFixture(t)

	req := f.registry.Begin(testContext(), f.state.session.Id, "m1")
	f.router.Abort(f.state.session.Id)

	assert.Equal(t, pipeline.StateCancelled, req.State())
}
