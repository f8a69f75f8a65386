package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tecu23/chessroom/pkg/chess"
	"github.com/tecu23/chessroom/pkg/manager"
	"github.com/tecu23/chessroom/pkg/messages"
	"github.com/tecu23/chessroom/pkg/room"
	"github.com/tecu23/chessroom/pkg/rules"
)

// RoomService is what the hub needs from the room manager
type RoomService interface {
	Join(p manager.JoinParams) (messages.JoinedPayload, error)
	Move(roomID, identity string, mv rules.Move) (int, error)
	Resign(roomID, identity string) error
	Chat(roomID, identity string, conn room.ConnID, text string) (messages.ChatEntry, error)
	Leave(roomID string, conn room.ConnID) error
	DisconnectAll(conn room.ConnID, roomIDs []string)
}

// InboundHubMessage are the messages that the hub receives
type InboundHubMessage struct {
	Conn    *Connection             // who sent it
	Message messages.InboundMessage // decoded envelope
	Err     error                   // set when the frame was not a valid envelope
}

// Hub keeps track of all active connections and which rooms they joined.
// Inbound messages are handled one at a time on the Run goroutine; rooms
// emit back through EmitToRoom and EmitToConnection from any goroutine.
type Hub struct {
	mu          sync.RWMutex
	connections map[room.ConnID]*Connection
	rooms       map[string]map[room.ConnID]struct{}

	register   chan *Connection
	unregister chan *Connection
	inbound    chan InboundHubMessage
	done       chan struct{}
	stopOnce   sync.Once

	service RoomService
	logger  *zap.Logger
}

// NewHub creates a new hub
func NewHub(service RoomService, logger *zap.Logger) *Hub {
	return &Hub{
		connections: make(map[room.ConnID]*Connection),
		rooms:       make(map[string]map[room.ConnID]struct{}),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		inbound:     make(chan InboundHubMessage, 64),
		done:        make(chan struct{}),
		service:     service,
		logger:      logger,
	}
}

// Run is the main execution of the hub
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			return

		case conn := <-h.register:
			h.registerConnection(conn)

		case conn := <-h.unregister:
			h.unregisterConnection(conn)

		case msg := <-h.inbound:
			h.safeHandle(msg)
		}
	}
}

// Register adds a connection
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.done:
	}
}

// Unregister removes a connection and detaches it from its rooms
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Dispatch queues an inbound message for the Run loop
func (h *Hub) Dispatch(msg InboundHubMessage) {
	select {
	case h.inbound <- msg:
	case <-h.done:
	}
}

// Shutdown stops the Run loop and closes every outbound queue
func (h *Hub) Shutdown() {
	h.stopOnce.Do(func() {
		close(h.done)

		h.mu.Lock()
		defer h.mu.Unlock()
		for _, conn := range h.connections {
			close(conn.send)
		}
		h.connections = make(map[room.ConnID]*Connection)
		h.rooms = make(map[string]map[room.ConnID]struct{})
		h.logger.Info("hub stopped")
	})
}

// ConnectionCount is the number of registered connections
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

func (h *Hub) registerConnection(conn *Connection) {
	h.mu.Lock()
	h.connections[conn.ID] = conn
	total := len(h.connections)
	h.mu.Unlock()

	h.logger.Debug("connection registered",
		zap.String("connection_id", string(conn.ID)),
		zap.Int("connections", total))

	h.EmitToConnection(conn.ID, messages.EventConnected, messages.ConnectedPayload{
		ConnectionID: string(conn.ID),
	})
}

func (h *Hub) unregisterConnection(conn *Connection) {
	h.mu.Lock()
	if _, ok := h.connections[conn.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.connections, conn.ID)
	for roomID := range conn.rooms {
		h.unsubscribeLocked(roomID, conn.ID)
	}
	close(conn.send)
	total := len(h.connections)
	h.mu.Unlock()

	roomIDs := make([]string, 0, len(conn.rooms))
	for roomID := range conn.rooms {
		roomIDs = append(roomIDs, roomID)
	}
	h.service.DisconnectAll(conn.ID, roomIDs)

	h.logger.Debug("connection unregistered",
		zap.String("connection_id", string(conn.ID)),
		zap.Int("rooms", len(roomIDs)),
		zap.Int("connections", total))
}

// subscribe reports false when the connection is no longer registered
func (h *Hub) subscribe(roomID string, id room.ConnID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.connections[id]; !ok {
		return false
	}
	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[room.ConnID]struct{})
		h.rooms[roomID] = members
	}
	members[id] = struct{}{}
	return true
}

func (h *Hub) unsubscribe(roomID string, id room.ConnID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(roomID, id)
}

func (h *Hub) unsubscribeLocked(roomID string, id room.ConnID) {
	members, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(members, id)
	if len(members) == 0 {
		delete(h.rooms, roomID)
	}
}

// EmitToRoom implements room.Broadcaster
func (h *Hub) EmitToRoom(roomID string, event string, payload any, except ...room.ConnID) {
	data, err := encode(event, payload)
	if err != nil {
		h.logger.Error("Error marshaling JSON", zap.String("event", event), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

next:
	for id := range h.rooms[roomID] {
		for _, skip := range except {
			if id == skip {
				continue next
			}
		}
		if conn, ok := h.connections[id]; ok {
			h.enqueue(conn, data)
		}
	}
}

// EmitToConnection implements room.Broadcaster
func (h *Hub) EmitToConnection(id room.ConnID, event string, payload any) {
	data, err := encode(event, payload)
	if err != nil {
		h.logger.Error("Error marshaling JSON", zap.String("event", event), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if conn, ok := h.connections[id]; ok {
		h.enqueue(conn, data)
	}
}

// enqueue never blocks; callers hold h.mu so the queue cannot be closed underneath
func (h *Hub) enqueue(conn *Connection, data []byte) {
	select {
	case conn.send <- data:
	default:
		h.logger.Warn("dropping message for slow connection",
			zap.String("connection_id", string(conn.ID)))
	}
}

func encode(event string, payload any) ([]byte, error) {
	return json.Marshal(messages.OutboundMessage{Event: event, Payload: payload})
}

func (h *Hub) safeHandle(msg InboundHubMessage) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("panic while handling message",
				zap.Any("panic", r),
				zap.String("type", msg.Message.Type),
				zap.Stack("stack"))
			h.sendError(msg.Conn, "internal error")
		}
	}()

	h.handleInbound(msg)
}

// handleInbound is where you decode or route the message from a client.
func (h *Hub) handleInbound(msg InboundHubMessage) {
	conn := msg.Conn
	if msg.Err != nil {
		h.sendError(conn, "Invalid message envelope")
		return
	}

	switch msg.Message.Type {
	case messages.TypeJoin:
		var payload messages.JoinPayload
		if err := json.Unmarshal(msg.Message.Payload, &payload); err != nil {
			h.sendError(conn, "Invalid JOIN payload")
			return
		}
		h.handleJoin(conn, payload)

	case messages.TypeMove:
		var payload messages.MovePayload
		if err := json.Unmarshal(msg.Message.Payload, &payload); err != nil {
			h.sendError(conn, "Invalid MOVE payload")
			return
		}

		mv, err := payload.ToMove()
		if err != nil {
			h.reject(conn, msg.Message.Type, payload.RoomID, room.ErrInvalidMove)
			return
		}

		ply, err := h.service.Move(payload.RoomID, conn.rooms[payload.RoomID], mv)
		if err != nil {
			h.reject(conn, msg.Message.Type, payload.RoomID, err)
			return
		}
		h.EmitToConnection(conn.ID, messages.EventMoveAccepted, messages.MoveAcceptedPayload{
			RoomID: payload.RoomID,
			Move:   mv.UCI(),
			Ply:    ply,
		})

	case messages.TypeResign:
		var payload messages.RoomPayload
		if err := json.Unmarshal(msg.Message.Payload, &payload); err != nil {
			h.sendError(conn, "Invalid RESIGN payload")
			return
		}
		if err := h.service.Resign(payload.RoomID, conn.rooms[payload.RoomID]); err != nil {
			h.reject(conn, msg.Message.Type, payload.RoomID, err)
		}

	case messages.TypeChat:
		var payload messages.SendChatPayload
		if err := json.Unmarshal(msg.Message.Payload, &payload); err != nil {
			h.sendError(conn, "Invalid CHAT payload")
			return
		}
		if _, err := h.service.Chat(payload.RoomID, conn.rooms[payload.RoomID], conn.ID, payload.Text); err != nil {
			h.reject(conn, msg.Message.Type, payload.RoomID, err)
		}

	case messages.TypeLeave:
		var payload messages.RoomPayload
		if err := json.Unmarshal(msg.Message.Payload, &payload); err != nil {
			h.sendError(conn, "Invalid LEAVE payload")
			return
		}
		if _, ok := conn.rooms[payload.RoomID]; !ok {
			h.reject(conn, msg.Message.Type, payload.RoomID, room.ErrNotInRoom)
			return
		}
		delete(conn.rooms, payload.RoomID)
		h.unsubscribe(payload.RoomID, conn.ID)
		if err := h.service.Leave(payload.RoomID, conn.ID); err != nil {
			h.reject(conn, msg.Message.Type, payload.RoomID, err)
		}

	default:
		h.sendError(conn, "Unknown message type")
	}
}

func (h *Hub) handleJoin(conn *Connection, payload messages.JoinPayload) {
	identity, bound := conn.rooms[payload.RoomID]
	if !bound {
		identity = conn.identityFor(payload.ClientID)
	}

	params := manager.JoinParams{
		RoomID:   payload.RoomID,
		Identity: identity,
		Conn:     conn.ID,
		Color:    chess.ParseColor(payload.Color),
		Private:  payload.Private,
	}
	if tc := payload.TimeControl; tc != nil {
		params.Initial = seconds(tc.Initial)
		params.Increment = seconds(tc.Increment)
	}

	// Subscribe first so nothing the room emits after the join is missed.
	// A JOIN still queued when its socket was unregistered must not seat anyone.
	if !h.subscribe(payload.RoomID, conn.ID) {
		h.logger.Debug("dropping join from closed connection",
			zap.String("connection_id", string(conn.ID)),
			zap.String("room_id", payload.RoomID))
		return
	}

	joined, err := h.service.Join(params)
	if err != nil {
		if !bound {
			h.unsubscribe(payload.RoomID, conn.ID)
		}
		h.reject(conn, messages.TypeJoin, payload.RoomID, err)
		return
	}

	conn.rooms[payload.RoomID] = identity
	h.EmitToConnection(conn.ID, messages.EventJoined, joined)
}

func (c *Connection) identityFor(clientID string) string {
	if c.Account != "" {
		return c.Account
	}
	if clientID != "" {
		return clientID
	}
	return "guest-" + uuid.NewString()
}

func (h *Hub) reject(conn *Connection, action, roomID string, err error) {
	reason := room.Reason(err)
	if reason == room.ReasonServerError {
		h.logger.Error("action failed",
			zap.String("action", action),
			zap.String("room_id", roomID),
			zap.Error(err))
	} else {
		h.logger.Debug("action rejected",
			zap.String("action", action),
			zap.String("room_id", roomID),
			zap.String("reason", reason))
	}

	h.EmitToConnection(conn.ID, messages.EventRejected, messages.RejectedPayload{
		RoomID: roomID,
		Action: action,
		Reason: reason,
	})
}

func (h *Hub) sendError(conn *Connection, msg string) {
	h.EmitToConnection(conn.ID, messages.EventError, messages.ErrorPayload{Message: msg})
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
