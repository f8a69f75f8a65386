// Package stats records finished games against per-identity win/loss/draw
// counters and Elo ratings. Recording is fire-and-forget: failures are
// logged and dropped, never retried, and never reach the room.
package stats

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tecu23/chessroom/pkg/events"
	"github.com/tecu23/chessroom/pkg/room"
)

// PlayerStats is one identity's record
type PlayerStats struct {
	Identity  string    `json:"identity"`
	Rating    int       `json:"rating"`
	Wins      int       `json:"wins"`
	Losses    int       `json:"losses"`
	Draws     int       `json:"draws"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Sink persists game results. For a draw winner and loser are simply the
// two participants.
type Sink interface {
	RecordResult(ctx context.Context, winner, loser string, draw bool) error
}

// Reader looks up a player's record
type Reader interface {
	Lookup(ctx context.Context, identity string) (PlayerStats, error)
}

// NopSink discards results. It is used when no database is configured.
type NopSink struct{}

func (NopSink) RecordResult(context.Context, string, string, bool) error { return nil }

func (NopSink) Lookup(_ context.Context, identity string) (PlayerStats, error) {
	return PlayerStats{Identity: identity, Rating: DefaultRating}, nil
}

// Recorder feeds finished games from the event publisher into a Sink
type Recorder struct {
	sink    Sink
	logger  *zap.Logger
	timeout time.Duration
}

// NewRecorder creates a recorder with a bounded per-write timeout
func NewRecorder(sink Sink, logger *zap.Logger, timeout time.Duration) *Recorder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Recorder{sink: sink, logger: logger, timeout: timeout}
}

// Subscribe attaches the recorder to game-finished events
func (r *Recorder) Subscribe(p *events.Publisher) {
	p.Subscribe(events.EventGameFinished, r.HandleEvent)
}

// HandleEvent records one finished game
func (r *Recorder) HandleEvent(e events.Event) {
	rec, ok := e.Payload.(room.GameRecord)
	if !ok {
		r.logger.Error("Invalid game finished payload type", zap.String("room_id", e.RoomID))
		return
	}
	if !rec.Rated() {
		r.logger.Debug("result not rated",
			zap.String("room_id", rec.RoomID),
			zap.String("cause", string(rec.Cause)))
		return
	}

	winner, loser, draw := rec.White, rec.Black, false
	switch rec.Winner {
	case room.WinnerBlack:
		winner, loser = rec.Black, rec.White
	case room.WinnerDraw:
		draw = true
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.sink.RecordResult(ctx, winner, loser, draw); err != nil {
		r.logger.Warn("stats write dropped",
			zap.String("room_id", rec.RoomID),
			zap.Error(err))
		return
	}

	r.logger.Debug("stats recorded",
		zap.String("room_id", rec.RoomID),
		zap.String("winner", winner),
		zap.String("loser", loser),
		zap.Bool("draw", draw))
}
