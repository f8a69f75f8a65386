package room

import "errors"

// Rejections. The error text doubles as the machine-readable reason sent to
// the client.
var (
	ErrInvalidRoomID = errors.New("invalid-room-id")
	ErrRoomNotFound  = errors.New("room-not-found")
	ErrNotPlaying    = errors.New("not-playing")
	ErrNotPlayer     = errors.New("not-player")
	ErrNotYourTurn   = errors.New("not-your-turn")
	ErrInvalidMove   = errors.New("invalid-move")
	ErrTimeExpired   = errors.New("time-expired")
	ErrNotInRoom     = errors.New("not-in-room")
	ErrEmptyMessage  = errors.New("empty-message")
	ErrRateLimited   = errors.New("rate-limited")

	// ErrRoomClosed is returned by a session the collector already reclaimed.
	// Callers holding a stale pointer should look the room up again.
	ErrRoomClosed = errors.New("room-closed")
)

// ReasonServerError is reported for anything that is not a known rejection
const ReasonServerError = "server-error"

var reasons = []error{
	ErrInvalidRoomID,
	ErrRoomNotFound,
	ErrNotPlaying,
	ErrNotPlayer,
	ErrNotYourTurn,
	ErrInvalidMove,
	ErrTimeExpired,
	ErrNotInRoom,
	ErrEmptyMessage,
	ErrRateLimited,
}

// Reason maps err to the reason string reported to clients
func Reason(err error) string {
	for _, known := range reasons {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	if errors.Is(err, ErrRoomClosed) {
		return ErrRoomNotFound.Error()
	}
	return ReasonServerError
}
