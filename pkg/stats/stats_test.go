package stats

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tecu23/chessroom/pkg/events"
	"github.com/tecu23/chessroom/pkg/room"
)

type call struct {
	winner, loser string
	draw          bool
}

type fakeSink struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (f *fakeSink) RecordResult(_ context.Context, winner, loser string, draw bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{winner, loser, draw})
	return f.err
}

func TestRate(t *testing.T) {
	w, l := Rate(1200, 1200, 1)
	assert.Equal(t, 1216, w)
	assert.Equal(t, 1184, l)

	a, b := Rate(1200, 1200, 0.5)
	assert.Equal(t, 1200, a)
	assert.Equal(t, 1200, b)

	// the favourite gains little
	w, l = Rate(1600, 1200, 1)
	assert.Equal(t, 1603, w)
	assert.Equal(t, 1197, l)
}

func TestRecorderMapsWinners(t *testing.T) {
	sink := &fakeSink{}
	r := NewRecorder(sink, zaptest.NewLogger(t), 0)

	r.HandleEvent(events.Event{Type: events.EventGameFinished, Payload: room.GameRecord{
		RoomID: "r", White: "w", Black: "b", Winner: room.WinnerBlack, Cause: room.CauseCheckmate,
	}})
	r.HandleEvent(events.Event{Type: events.EventGameFinished, Payload: room.GameRecord{
		RoomID: "r", White: "w", Black: "b", Winner: room.WinnerDraw, Cause: room.CauseStalemate,
	}})
	r.HandleEvent(events.Event{Type: events.EventGameFinished, Payload: room.GameRecord{
		RoomID: "r", White: "w", Black: "b", Winner: room.WinnerDraw, Cause: room.CauseAbandonment,
	}})
	r.HandleEvent(events.Event{Type: events.EventGameFinished, Payload: "garbage"})

	require.Len(t, sink.calls, 2)
	assert.Equal(t, call{"b", "w", false}, sink.calls[0])
	assert.Equal(t, call{"w", "b", true}, sink.calls[1])
}

func TestRecorderDropsFailures(t *testing.T) {
	sink := &fakeSink{err: errors.New("db down")}
	p := events.NewPublisher()
	NewRecorder(sink, zaptest.NewLogger(t), 0).Subscribe(p)

	p.Publish(events.Event{Type: events.EventGameFinished, Payload: room.GameRecord{
		RoomID: "r", White: "w", Black: "b", Winner: room.WinnerWhite, Cause: room.CauseResignation,
	}})
	p.Wait()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Len(t, sink.calls, 1)
}

func TestNopSink(t *testing.T) {
	var s NopSink
	require.NoError(t, s.RecordResult(context.Background(), "a", "b", false))

	ps, err := s.Lookup(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, DefaultRating, ps.Rating)
}
