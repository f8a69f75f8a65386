// Package rules wraps the chess rules library behind the small oracle surface
// rooms need: apply a move, classify the resulting position, name the side to move.
package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tecu23/chessroom/pkg/chess"
)

// StartFEN is the standard initial position
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// ErrIllegalMove is returned for malformed or illegal moves
var ErrIllegalMove = errors.New("illegal move")

// Move is a move request in coordinate form
type Move struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

// UCI renders the move in long algebraic form, e.g. "e7e8q"
func (m Move) UCI() string {
	return strings.ToLower(m.From + m.To + m.Promotion)
}

// ParseMove splits a UCI string such as "g1f3" or "a7a8q"
func ParseMove(s string) (Move, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 4 && len(s) != 5 {
		return Move{}, fmt.Errorf("%w: %q", ErrIllegalMove, s)
	}

	mv := Move{From: s[0:2], To: s[2:4]}
	if len(s) == 5 {
		mv.Promotion = s[4:]
	}
	return mv, mv.validate()
}

func (m Move) validate() error {
	if !isSquare(m.From) || !isSquare(m.To) {
		return fmt.Errorf("%w: bad square in %q", ErrIllegalMove, m.UCI())
	}

	switch strings.ToLower(m.Promotion) {
	case "", "q", "r", "b", "n":
		return nil
	default:
		return fmt.Errorf("%w: bad promotion %q", ErrIllegalMove, m.Promotion)
	}
}

func isSquare(s string) bool {
	if len(s) != 2 {
		return false
	}
	s = strings.ToLower(s)
	return s[0] >= 'a' && s[0] <= 'h' && s[1] >= '1' && s[1] <= '8'
}

// Position is an immutable game state: the move list from the standard start
// plus the derived FEN and SAN history.
type Position struct {
	FEN   string   `json:"fen"`
	Moves []string `json:"moves"`
	SAN   []string `json:"san"`
}

// Start returns the initial position
func Start() Position {
	return Position{FEN: StartFEN}
}

// Ply is the number of half-moves played
func (p Position) Ply() int {
	return len(p.Moves)
}

// LastMove returns the most recent move in UCI form, or "" at the start
func (p Position) LastMove() string {
	if len(p.Moves) == 0 {
		return ""
	}
	return p.Moves[len(p.Moves)-1]
}

// Terminal classifies a position
type Terminal int

// Terminal kinds. Ongoing is the zero value.
const (
	Ongoing Terminal = iota
	Checkmate
	Stalemate
	InsufficientMaterial
	Repetition
	FiftyMoveRule
)

func (t Terminal) String() string {
	switch t {
	case Checkmate:
		return "checkmate"
	case Stalemate:
		return "stalemate"
	case InsufficientMaterial:
		return "insufficient_material"
	case Repetition:
		return "threefold_repetition"
	case FiftyMoveRule:
		return "fifty_move_rule"
	default:
		return "ongoing"
	}
}

// IsDraw reports whether the terminal kind ends the game without a winner
func (t Terminal) IsDraw() bool {
	return t != Ongoing && t != Checkmate
}

// Oracle is the legal move generator and terminal-state detector rooms consult
type Oracle interface {
	// ApplyMove returns the position after mv, or an error wrapping
	// ErrIllegalMove. The input position is never modified.
	ApplyMove(pos Position, mv Move) (Position, error)
	// Status classifies pos
	Status(pos Position) Terminal
	// Turn is the side to move in pos
	Turn(pos Position) chess.Color
}
