// Package chess defines the game entities shared by rooms and the wire layer
package chess

import (
	"fmt"
	"time"
)

// TimeControl defines the time settings for a game
type TimeControl struct {
	Initial   time.Duration // Allowance per side
	Increment time.Duration // Added to the mover after every completed move
}

// Clock keeps the countdown for both players.
//
// A Clock is not safe for concurrent use. The room that owns it guards every
// call with its own lock and supplies the current time, so elapsed time is
// always measured against the last move timestamp instead of being
// accumulated tick by tick.
type Clock struct {
	white time.Duration
	black time.Duration

	increment time.Duration

	activeColor Color

	lastMove  time.Time
	isRunning bool
}

// Times is a point-in-time view of both clocks in milliseconds
type Times struct {
	White       int64 `json:"white"`
	Black       int64 `json:"black"`
	ActiveColor Color `json:"active_color"`
}

// NewClock creates a new chess clock with the given time controls
func NewClock(tc TimeControl) *Clock {
	return &Clock{
		white:       tc.Initial,
		black:       tc.Initial,
		increment:   tc.Increment,
		activeColor: White,
	}
}

// Start runs the clock for the given side from now
func (c *Clock) Start(active Color, now time.Time) {
	if c.isRunning {
		return
	}

	c.activeColor = active
	c.lastMove = now
	c.isRunning = true
}

// Stop settles the running side and freezes both clocks
func (c *Clock) Stop(now time.Time) {
	if !c.isRunning {
		return
	}

	c.settle(now)
	c.isRunning = false
}

// Switch charges the mover for the time since the last move, adds the
// increment and hands the clock to the opponent.
func (c *Clock) Switch(now time.Time) {
	if !c.isRunning {
		return
	}

	c.settle(now)
	if c.activeColor == White {
		c.white += c.increment
	} else {
		c.black += c.increment
	}

	c.activeColor = c.activeColor.Opp()
	c.lastMove = now
}

// Flag zeroes the clock of the given side and stops the clock
func (c *Clock) Flag(color Color) {
	if color == White {
		c.white = 0
	} else {
		c.black = 0
	}
	c.isRunning = false
}

// Remaining returns the live remaining time for color, never negative
func (c *Clock) Remaining(color Color, now time.Time) time.Duration {
	var left time.Duration
	if color == White {
		left = c.white
	} else {
		left = c.black
	}

	if c.isRunning && color == c.activeColor {
		left -= c.elapsed(now)
	}

	if left < 0 {
		return 0
	}
	return left
}

// IsTimeUp checks if a player has run out of time
func (c *Clock) IsTimeUp(color Color, now time.Time) bool {
	return c.Remaining(color, now) <= 0
}

// Snapshot returns the current remaining time for both players
func (c *Clock) Snapshot(now time.Time) Times {
	return Times{
		White:       c.Remaining(White, now).Milliseconds(),
		Black:       c.Remaining(Black, now).Milliseconds(),
		ActiveColor: c.activeColor,
	}
}

// ActiveColor is the side whose time is currently being consumed
func (c *Clock) ActiveColor() Color {
	return c.activeColor
}

// IsRunning reports whether one side's time is being consumed
func (c *Clock) IsRunning() bool {
	return c.isRunning
}

// LastMove is the timestamp the running side started thinking at
func (c *Clock) LastMove() time.Time {
	return c.lastMove
}

func (c *Clock) elapsed(now time.Time) time.Duration {
	d := now.Sub(c.lastMove)
	if d < 0 {
		return 0
	}
	return d
}

// settle moves the elapsed time of the active side into its stored balance
func (c *Clock) settle(now time.Time) {
	spent := c.elapsed(now)

	if c.activeColor == White {
		c.white -= spent
		if c.white < 0 {
			c.white = 0
		}
	} else {
		c.black -= spent
		if c.black < 0 {
			c.black = 0
		}
	}

	c.lastMove = now
}

// FormatClockTime formats a duration in milliseconds to a user-friendly string (e.g., "1:30")
func FormatClockTime(timeMs int64) string {
	if timeMs < 0 {
		timeMs = 0
	}

	totalSeconds := timeMs / 1000
	minutes := totalSeconds / 60
	seconds := totalSeconds % 60

	// For times less than 10 seconds, show decimal
	if timeMs < 10000 {
		tenths := (timeMs % 1000) / 100
		return fmt.Sprintf("%d.%d", totalSeconds, tenths)
	}

	return fmt.Sprintf("%d:%02d", minutes, seconds)
}
