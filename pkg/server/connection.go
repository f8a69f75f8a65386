package server

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tecu23/chessroom/pkg/messages"
	"github.com/tecu23/chessroom/pkg/room"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 * 1024
)

// Connection is one websocket client
type Connection struct {
	ID room.ConnID
	// Account is the verified account id, empty for anonymous clients
	Account string

	ws   *websocket.Conn // The underlying Websocket connection
	hub  *Hub
	send chan []byte // Buffered channel of outbound messages.

	// rooms maps joined room ids to the identity bound at join time.
	// Only the hub's Run goroutine touches it.
	rooms map[string]string

	logger *zap.Logger
}

// NewConnection wraps an upgraded socket; Attach registers it with the hub
func NewConnection(ws *websocket.Conn, hub *Hub, account string, logger *zap.Logger) *Connection {
	id := room.ConnID(uuid.NewString())
	return &Connection{
		ID:      id,
		Account: account,
		ws:      ws,
		hub:     hub,
		send:    make(chan []byte, 256), // buffered for outgoing messages
		rooms:   make(map[string]string),
		logger:  logger.With(zap.String("connection_id", string(id))),
	}
}

// Attach registers a freshly upgraded socket and starts its pumps
func (h *Hub) Attach(ws *websocket.Conn, account string) *Connection {
	conn := NewConnection(ws, h, account, h.logger)
	h.Register(conn)

	go conn.WritePump()
	go conn.ReadPump()
	return conn
}

// ReadPump handles inbound messages from the client
func (c *Connection) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("read error", zap.Error(err))
			}
			return
		}

		// We only handle text
		if msgType != websocket.TextMessage {
			continue
		}

		var inbound messages.InboundMessage
		err = json.Unmarshal(msg, &inbound)
		if err != nil {
			c.logger.Debug("Failed to parse inbound JSON", zap.Error(err))
		}
		c.hub.Dispatch(InboundHubMessage{Conn: c, Message: inbound, Err: err})
	}
}

// WritePump handles outbound messages to the client
func (c *Connection) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				c.logger.Debug("Send channel closed for connection")
				return
			}

			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("write error", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
