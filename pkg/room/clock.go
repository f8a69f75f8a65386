package room

import (
	"time"

	"github.com/tecu23/chessroom/pkg/messages"
)

// startTickerLocked launches the clock task. The session owns the stop
// channel and stopTickerLocked is the only way to end the task.
func (s *Session) startTickerLocked() {
	if s.stopClock != nil || s.opts.TickInterval <= 0 {
		return
	}

	stop := make(chan struct{})
	s.stopClock = stop
	go s.runClock(stop, s.opts.TickInterval)
}

// stopTickerLocked signals the clock task without waiting for it. A tick
// already blocked on the room lock sees the new status and returns.
func (s *Session) stopTickerLocked() {
	if s.stopClock == nil {
		return
	}
	close(s.stopClock)
	s.stopClock = nil
}

func (s *Session) runClock(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick checks the side to move for flag fall and otherwise pushes a
// TIME_SYNC. It is a no-op unless the game is playing.
func (s *Session) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.status != StatusPlaying {
		return
	}

	now := s.now()
	active := s.oracle.Turn(s.position)
	if s.clock.IsTimeUp(active, now) {
		s.finishLocked(now, CauseTimeout, WinnerFor(active.Opp()))
		return
	}

	s.ticks++
	if s.ticks%s.opts.SyncEvery != 0 {
		return
	}
	s.emitToRoom(messages.EventTimeSync, messages.TimeSyncPayload{
		RoomID: s.id,
		Clock:  s.clock.Snapshot(now),
	})
}
