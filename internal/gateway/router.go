package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"ai-voicechat-be/internal/constant"
	"ai-voicechat-be/internal/dto"
	"ai-voicechat-be/internal/entity"
	"ai-voicechat-be/internal/pkg/logger"
	"ai-voicechat-be/internal/repository/contract"
	"ai-voicechat-be/pkg/pipeline"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Router turns authenticated frames into pipeline work. Malformed frames get
// a protocol error back but never kill the connection; a frame for the wrong
// session is treated the same way.
type Router struct {
	registry *pipeline.Registry
	sessions contract.ISessionRepository
	voice    *pipeline.VoiceCoordinator
	text     *pipeline.TextCoordinator
	validate *validator.Validate
	logger   logger.ILogger
}

func NewRouter(
	registry *pipeline.Registry,
	sessions contract.ISessionRepository,
	voice *pipeline.VoiceCoordinator,
	text *pipeline.TextCoordinator,
	log logger.ILogger,
) *Router {
	return &Router{
		registry: registry,
		sessions: sessions,
		voice:    voice,
		text:     text,
		validate: validator.New(),
		logger:   log,
	}
}

func (r *Router) Dispatch(conn *Connection, state *clientState, raw []byte) {
	var env dto.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		r.protocolError(conn, "", "malformed frame, expected {\"event\", \"data\"}")
		return
	}
	if env.Event == "" {
		r.protocolError(conn, "", "frame is missing its event name")
		return
	}

	switch env.Event {
	case constant.EventVoiceMessage:
		r.handleVoice(conn, state, env.Data)
	case constant.EventTextMessage:
		r.handleText(conn, state, env.Data)
	case constant.EventCancel:
		r.handleCancel(conn, state, env.Data)
	case constant.EventConnect:
		r.protocolError(conn, "", "connection is already established")
	default:
		r.protocolError(conn, "", "unknown event: "+env.Event)
	}
}

func (r *Router) handleVoice(conn *Connection, state *clientState, data json.RawMessage) {
	var msg dto.VoiceMessageRequest
	if !r.decode(conn, data, &msg) {
		return
	}
	if msg.SessionId != state.session.Id {
		r.protocolError(conn, msg.MessageId, "session_id does not match this connection")
		return
	}

	audio, err := base64.StdEncoding.DecodeString(msg.Audio)
	if err != nil {
		r.protocolError(conn, msg.MessageId, "audio payload is not valid base64")
		return
	}
	if len(audio) == 0 {
		r.protocolError(conn, msg.MessageId, "audio payload is empty")
		return
	}

	session, ok := r.acceptMessage(conn, msg.SessionId, msg.MessageId)
	if !ok {
		return
	}

	req := r.begin(conn, session, msg.MessageId)
	go func() {
		defer r.registry.Finish(req)
		r.voice.Run(req, &msg, audio, session, conn, state.streaming)
	}()
}

func (r *Router) handleText(conn *Connection, state *clientState, data json.RawMessage) {
	var msg dto.TextMessageRequest
	if !r.decode(conn, data, &msg) {
		return
	}
	if msg.SessionId != state.session.Id {
		r.protocolError(conn, msg.MessageId, "session_id does not match this connection")
		return
	}

	session, ok := r.acceptMessage(conn, msg.SessionId, msg.MessageId)
	if !ok {
		return
	}

	req := r.begin(conn, session, msg.MessageId)
	go func() {
		defer r.registry.Finish(req)
		r.text.Run(req, &msg, session, conn, state.streaming)
	}()
}

// handleCancel stops the in-flight turn. Cancellation is silent either way:
// no confirmation when a turn was cancelled, no error when nothing was
// running.
func (r *Router) handleCancel(conn *Connection, state *clientState, data json.RawMessage) {
	var msg dto.CancelRequest
	if !r.decode(conn, data, &msg) {
		return
	}
	if msg.SessionId != state.session.Id {
		r.protocolError(conn, msg.MessageId, "session_id does not match this connection")
		return
	}

	if r.registry.CancelActive(msg.SessionId) {
		r.logger.Info("Gateway", "Turn cancelled by client", map[string]interface{}{
			"session_id": msg.SessionId,
			"message_id": msg.MessageId,
		})
	}
}

// Abort cancels the session's in-flight turn when its connection goes away.
func (r *Router) Abort(sessionId uuid.UUID) {
	if r.registry.CancelActive(sessionId) {
		r.logger.Info("Gateway", "Turn abandoned on disconnect", map[string]interface{}{
			"session_id": sessionId,
		})
	}
}

// acceptMessage re-reads the session and extends its TTL; every accepted
// message counts as activity. A missing session means the TTL ran out while
// the socket stayed open.
func (r *Router) acceptMessage(conn *Connection, sessionId uuid.UUID, messageId string) (*entity.Session, bool) {
	session, err := r.sessions.GetAndTouch(context.Background(), sessionId)
	if err != nil {
		if errors.Is(err, contract.ErrSessionNotFound) {
			conn.Emit(constant.EventError, &dto.ErrorEvent{
				MessageId:    messageId,
				ErrorCode:    constant.ErrCodeSessionExpired,
				ErrorMessage: "session expired, reconnect to start a new one",
				Timestamp:    time.Now(),
			})
		} else {
			r.logger.Error("Gateway", "Failed to load session for message", map[string]interface{}{
				"session_id": sessionId,
				"error":      err.Error(),
			})
			r.protocolError(conn, messageId, "failed to load session")
		}
		return nil, false
	}
	return session, true
}

// begin installs the new authoritative request, cancelling any turn already
// running (barge-in), and records it as the session's active turn.
func (r *Router) begin(conn *Connection, session *entity.Session, messageId string) *pipeline.Request {
	req := r.registry.Begin(context.Background(), session.Id, messageId)
	if err := r.sessions.SetActiveTurn(context.Background(), session.Id, &req.TurnId); err != nil {
		r.logger.Warn("Gateway", "Failed to record active turn", map[string]interface{}{
			"session_id": session.Id,
			"error":      err.Error(),
		})
	}
	return req
}

func (r *Router) decode(conn *Connection, data json.RawMessage, out interface{}) bool {
	if err := json.Unmarshal(data, out); err != nil {
		r.protocolError(conn, "", "malformed message payload")
		return false
	}
	if err := r.validate.Struct(out); err != nil {
		r.protocolError(conn, "", "invalid message payload: "+err.Error())
		return false
	}
	return true
}

func (r *Router) protocolError(conn *Connection, messageId, detail string) {
	conn.Emit(constant.EventError, &dto.ErrorEvent{
		MessageId:    messageId,
		ErrorCode:    constant.ErrCodeProtocol,
		ErrorMessage: detail,
		Timestamp:    time.Now(),
	})
}
