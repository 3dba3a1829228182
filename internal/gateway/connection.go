package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"ai-voicechat-be/internal/dto"
	"ai-voicechat-be/internal/pkg/logger"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Voice frames carry base64 audio, so the limit is generous.
	maxMessageSize = 1 << 20

	sendBuffer = 256
)

// Connection wraps one websocket peer. All outbound traffic funnels through
// the send channel so pipeline goroutines never write to the socket directly;
// writePump is the single writer.
type Connection struct {
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	closer sync.Once
	logger logger.ILogger
}

func newConnection(conn *websocket.Conn, log logger.ILogger) *Connection {
	return &Connection{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		logger: log,
	}
}

// Emit marshals an envelope frame and queues it for delivery. Frames queued
// after the connection closed are dropped; the peer is gone either way.
func (c *Connection) Emit(event string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		c.logger.Error("Gateway", "Failed to marshal outbound event data", map[string]interface{}{
			"event": event,
			"error": err.Error(),
		})
		return
	}
	frame, err := json.Marshal(dto.Envelope{Event: event, Data: payload})
	if err != nil {
		c.logger.Error("Gateway", "Failed to marshal outbound envelope", map[string]interface{}{
			"event": event,
			"error": err.Error(),
		})
		return
	}

	select {
	case c.send <- frame:
	case <-c.done:
	}
}

// writePump pumps queued frames to the peer and keeps the connection alive
// with pings. One JSON frame per websocket message; envelopes are never
// concatenated.
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-c.done:
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close stops the write pump and closes the socket. Safe to call repeatedly.
func (c *Connection) Close() {
	c.closer.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}
