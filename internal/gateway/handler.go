package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"ai-voicechat-be/internal/constant"
	"ai-voicechat-be/internal/dto"
	"ai-voicechat-be/internal/entity"
	"ai-voicechat-be/internal/pkg/logger"
	"ai-voicechat-be/internal/pkg/serverutils"
	"ai-voicechat-be/internal/repository/contract"
	"ai-voicechat-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// handshakeWait bounds how long a fresh socket may sit silent before sending
// its connect frame.
const handshakeWait = 10 * time.Second

// clientState is what the dispatch loop knows about an authenticated peer.
type clientState struct {
	session     *entity.Session
	principalId uuid.UUID
	streaming   bool
}

type Handler struct {
	sessions          service.ISessionService
	router            *Router
	logger            logger.ILogger
	jwtSecret         string
	latencyEstimateMs int
}

func NewHandler(
	sessions service.ISessionService,
	router *Router,
	log logger.ILogger,
	jwtSecret string,
	latencyEstimateMs int,
) *Handler {
	return &Handler{
		sessions:          sessions,
		router:            router,
		logger:            log,
		jwtSecret:         jwtSecret,
		latencyEstimateMs: latencyEstimateMs,
	}
}

// ServeWs upgrades the request and runs the connection to completion.
// Authentication happens in-band on the first frame, not at upgrade time.
func (h *Handler) ServeWs(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return websocket.New(func(ws *websocket.Conn) {
		h.serve(ws)
	})(c)
}

func (h *Handler) serve(ws *websocket.Conn) {
	conn := newConnection(ws, h.logger)
	go conn.writePump()
	defer conn.Close()

	ws.SetReadLimit(maxMessageSize)
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	state, ok := h.handshake(conn, ws)
	if !ok {
		// Give the queued error frame a chance to flush before the socket dies
		time.Sleep(100 * time.Millisecond)
		return
	}

	h.logger.Info("Gateway", "Connection established", map[string]interface{}{
		"session_id":   state.session.Id,
		"principal_id": state.principalId,
		"streaming":    state.streaming,
	})

	for {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("Gateway", "Connection read error", map[string]interface{}{
					"session_id": state.session.Id,
					"error":      err.Error(),
				})
			}
			break
		}
		h.router.Dispatch(conn, state, raw)
	}

	// The session outlives the socket until its TTL runs out, but the turn in
	// flight does not: nobody is listening for its events anymore.
	h.router.Abort(state.session.Id)
	h.logger.Info("Gateway", "Connection closed", map[string]interface{}{
		"session_id": state.session.Id,
	})
}

// handshake consumes the mandatory first frame. Anything other than a valid,
// authenticated connect ends the connection after a single error event.
func (h *Handler) handshake(conn *Connection, ws *websocket.Conn) (*clientState, bool) {
	ws.SetReadDeadline(time.Now().Add(handshakeWait))
	_, raw, err := ws.ReadMessage()
	if err != nil {
		return nil, false
	}

	var env dto.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.reject(conn, constant.ErrCodeProtocol, "malformed frame, expected {\"event\", \"data\"}")
		return nil, false
	}
	if env.Event != constant.EventConnect {
		h.reject(conn, constant.ErrCodeProtocol, "first frame must be a connect event")
		return nil, false
	}

	var req dto.ConnectRequest
	if err := json.Unmarshal(env.Data, &req); err != nil || req.Token == "" {
		h.reject(conn, constant.ErrCodeProtocol, "connect requires a token")
		return nil, false
	}

	principalId, err := serverutils.VerifyToken(req.Token, h.jwtSecret)
	if err != nil {
		h.reject(conn, constant.ErrCodeAuth, "token verification failed")
		return nil, false
	}

	session, err := h.establishSession(conn, &req, principalId)
	if err != nil {
		h.reject(conn, constant.ErrCodeProtocol, "failed to establish session")
		return nil, false
	}

	conn.Emit(constant.EventConnected, &dto.ConnectedEvent{
		SessionId:          session.Id,
		ServerCapabilities: constant.ServerCapabilities,
		LatencyEstimateMs:  h.latencyEstimateMs,
	})

	return &clientState{
		session:     session,
		principalId: principalId,
		streaming:   hasCapability(req.Capabilities, "streaming"),
	}, true
}

// establishSession resumes the requested session or starts a fresh one. A
// resume miss (expired, unknown, foreign) silently degrades to a fresh
// session; the client learns the outcome from the session_id it gets back.
func (h *Handler) establishSession(conn *Connection, req *dto.ConnectRequest, principalId uuid.UUID) (*entity.Session, error) {
	ctx := context.Background()

	if req.SessionId != nil {
		session, err := h.sessions.Resume(ctx, *req.SessionId, principalId)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, contract.ErrSessionNotFound) {
			return nil, err
		}
		h.logger.Info("Gateway", "Resume target gone, starting fresh session", map[string]interface{}{
			"requested_session_id": *req.SessionId,
			"principal_id":         principalId,
		})
	}

	return h.sessions.Create(ctx, principalId, req.Preferences)
}

func (h *Handler) reject(conn *Connection, code, message string) {
	conn.Emit(constant.EventError, &dto.ErrorEvent{
		ErrorCode:    code,
		ErrorMessage: message,
		Timestamp:    time.Now(),
	})
}

func hasCapability(capabilities []string, want string) bool {
	for _, c := range capabilities {
		if c == want {
			return true
		}
	}
	return false
}
