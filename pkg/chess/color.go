package chess

import "strings"

// Color is one side of the board
type Color string

// The two sides. NoColor marks an unset preference.
const (
	NoColor Color = ""
	White   Color = "white"
	Black   Color = "black"
)

// Opp returns the opposite color for the given color.
func (c Color) Opp() Color {
	if c == White {
		return Black
	}

	return White
}

// Valid reports whether c names an actual side
func (c Color) Valid() bool {
	return c == White || c == Black
}

// ParseColor accepts the long and short spellings clients send.
// Anything else, including "random", yields NoColor.
func ParseColor(s string) Color {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white", "w":
		return White
	case "black", "b":
		return Black
	default:
		return NoColor
	}
}
