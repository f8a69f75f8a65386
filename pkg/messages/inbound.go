package messages

import (
	"encoding/json"

	"github.com/tecu23/chessroom/pkg/rules"
)

// Inbound message types
const (
	TypeJoin   = "JOIN"
	TypeMove   = "MOVE"
	TypeResign = "RESIGN"
	TypeChat   = "CHAT"
	TypeLeave  = "LEAVE"
)

// InboundMessage is the generic wrapper for messages coming from the client.
// The "type" field tells us the action; "payload" is the data we parse further.
type InboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// TimeControlRequest is the time control a room creator asks for, in seconds
type TimeControlRequest struct {
	Initial   int `json:"initial"`
	Increment int `json:"increment"`
}

// JoinPayload asks to enter a room, creating it when it does not exist
type JoinPayload struct {
	RoomID      string              `json:"room_id"`
	ClientID    string              `json:"client_id"`
	Color       string              `json:"color"`
	TimeControl *TimeControlRequest `json:"time_control,omitempty"`
	Private     bool                `json:"private"`
}

// MovePayload carries a move either as squares or as a UCI string
type MovePayload struct {
	RoomID string      `json:"room_id"`
	Move   *rules.Move `json:"move,omitempty"`
	UCI    string      `json:"uci,omitempty"`
}

// ToMove resolves the move from whichever field the client filled
func (p MovePayload) ToMove() (rules.Move, error) {
	if p.Move != nil {
		return *p.Move, nil
	}
	return rules.ParseMove(p.UCI)
}

// RoomPayload addresses a room without further data (RESIGN, LEAVE)
type RoomPayload struct {
	RoomID string `json:"room_id"`
}

// SendChatPayload is a chat line from the client
type SendChatPayload struct {
	RoomID string `json:"room_id"`
	Text   string `json:"text"`
}
