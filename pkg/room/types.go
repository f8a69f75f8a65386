package room

import (
	"time"

	"github.com/tecu23/chessroom/pkg/chess"
)

// Status is the room lifecycle state. It only ever moves forward.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

// Role of a connection inside a room
type Role string

const (
	RolePlayer    Role = "player"
	RoleSpectator Role = "spectator"
)

// Winner of a finished game
type Winner string

const (
	WinnerWhite Winner = "white"
	WinnerBlack Winner = "black"
	WinnerDraw  Winner = "draw"
)

// WinnerFor converts a side into the corresponding winner
func WinnerFor(c chess.Color) Winner {
	if c == chess.Black {
		return WinnerBlack
	}
	return WinnerWhite
}

// Cause is why a game ended
type Cause string

const (
	CauseCheckmate            Cause = "checkmate"
	CauseStalemate            Cause = "stalemate"
	CauseInsufficientMaterial Cause = "insufficient_material"
	CauseRepetition           Cause = "threefold_repetition"
	CauseFiftyMoveRule        Cause = "fifty_move_rule"
	CauseTimeout              Cause = "timeout"
	CauseResignation          Cause = "resignation"
	CauseAbandonment          Cause = "abandonment"
)

// Result is set exactly once, when the room leaves the playing state
type Result struct {
	Winner Winner
	Cause  Cause
	At     time.Time
}

// ConnID identifies one transport connection
type ConnID string

// Slot is a seat at the board. The color is fixed when the slot is created;
// Conn is empty while the player is disconnected.
type Slot struct {
	Identity string
	Color    chess.Color
	Conn     ConnID
}

// Connected reports whether a live connection is bound to the slot
func (s *Slot) Connected() bool {
	return s.Conn != ""
}

// Config is fixed at room creation
type Config struct {
	TimeControl chess.TimeControl
	// Preference is the color the first joiner asked for; NoColor means random
	Preference chess.Color
	Private    bool
}

// Options are the server-wide tunables every session shares
type Options struct {
	ChatCap      int
	ChatMaxLen   int
	ChatInterval time.Duration
	// TickInterval is the clock task period. Zero disables the task and
	// leaves ticking to the caller.
	TickInterval time.Duration
	// SyncEvery sends TIME_SYNC on every n-th tick
	SyncEvery int
}

// DefaultOptions mirrors the server defaults
func DefaultOptions() Options {
	return Options{
		ChatCap:      50,
		ChatMaxLen:   1000,
		ChatInterval: 600 * time.Millisecond,
		TickInterval: time.Second,
		SyncEvery:    1,
	}
}

// Broadcaster is the transport a session emits through. Implementations
// must not block and must not call back into the session.
type Broadcaster interface {
	EmitToRoom(roomID string, event string, payload any, except ...ConnID)
	EmitToConnection(conn ConnID, event string, payload any)
}

// GameRecord is published when a game finishes
type GameRecord struct {
	RoomID      string
	White       string
	Black       string
	Winner      Winner
	Cause       Cause
	Moves       []string
	SAN         []string
	FEN         string
	TimeControl chess.TimeControl
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Rated reports whether the result should count towards player statistics
func (r GameRecord) Rated() bool {
	return r.Cause != CauseAbandonment && r.White != "" && r.Black != "" && r.White != r.Black
}
