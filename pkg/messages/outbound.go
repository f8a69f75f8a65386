package messages

import "github.com/tecu23/chessroom/pkg/chess"

// Outbound events
const (
	EventConnected    = "CONNECTED"
	EventJoined       = "JOINED"
	EventMoveAccepted = "MOVE_ACCEPTED"
	EventRejected     = "REJECTED"
	EventState        = "STATE"
	EventTimeSync     = "TIME_SYNC"
	EventGameOver     = "GAME_OVER"
	EventPlayerUpdate = "PLAYER_UPDATE"
	EventChat         = "CHAT"
	EventError        = "ERROR"
)

// OutboundMessage is how we wrap responses before sending
// them to the client
type OutboundMessage struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

type ConnectedPayload struct {
	ConnectionID string `json:"connection_id"`
}

// TimeControl is the room's time control in milliseconds
type TimeControl struct {
	InitialMs   int64 `json:"initial_ms"`
	IncrementMs int64 `json:"increment_ms"`
}

// PlayerInfo describes one seated player
type PlayerInfo struct {
	Identity  string      `json:"identity"`
	Color     chess.Color `json:"color"`
	Connected bool        `json:"connected"`
}

// ResultPayload is the outcome of a finished game
type ResultPayload struct {
	Winner string `json:"winner"`
	Cause  string `json:"cause"`
}

// StatePayload is the full room snapshot
type StatePayload struct {
	RoomID      string         `json:"room_id"`
	Status      string         `json:"status"`
	FEN         string         `json:"fen"`
	Moves       []string       `json:"moves"`
	SAN         []string       `json:"san"`
	Ply         int            `json:"ply"`
	Turn        chess.Color    `json:"turn"`
	LastMove    string         `json:"last_move,omitempty"`
	Clock       chess.Times    `json:"clock"`
	TimeControl TimeControl    `json:"time_control"`
	Players     []PlayerInfo   `json:"players"`
	Spectators  int            `json:"spectators"`
	Result      *ResultPayload `json:"result,omitempty"`
}

// ChatEntry is one line of room chat
type ChatEntry struct {
	Identity string `json:"identity"`
	Role     string `json:"role"`
	Text     string `json:"text"`
	SentAt   int64  `json:"sent_at"`
}

// JoinedPayload answers a successful JOIN
type JoinedPayload struct {
	RoomID   string       `json:"room_id"`
	Role     string       `json:"role"`
	Color    chess.Color  `json:"color,omitempty"`
	Identity string       `json:"identity"`
	State    StatePayload `json:"state"`
	Chat     []ChatEntry  `json:"chat"`
}

type MoveAcceptedPayload struct {
	RoomID string `json:"room_id"`
	Move   string `json:"move"`
	Ply    int    `json:"ply"`
}

// RejectedPayload reports a refused action with a machine-readable reason
type RejectedPayload struct {
	RoomID string `json:"room_id,omitempty"`
	Action string `json:"action"`
	Reason string `json:"reason"`
}

type TimeSyncPayload struct {
	RoomID string      `json:"room_id"`
	Clock  chess.Times `json:"clock"`
}

type GameOverPayload struct {
	RoomID string       `json:"room_id"`
	Winner string       `json:"winner"`
	Cause  string       `json:"cause"`
	State  StatePayload `json:"state"`
}

type PlayerUpdatePayload struct {
	RoomID     string       `json:"room_id"`
	Players    []PlayerInfo `json:"players"`
	Spectators int          `json:"spectators"`
}

type ChatPayload struct {
	RoomID string    `json:"room_id"`
	Entry  ChatEntry `json:"entry"`
}

// RoomSummary is a lobby listing entry
type RoomSummary struct {
	ID          string      `json:"id"`
	Status      string      `json:"status"`
	Players     int         `json:"players"`
	Spectators  int         `json:"spectators"`
	TimeControl TimeControl `json:"time_control"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
