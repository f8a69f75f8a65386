package rules

import (
	"fmt"
	"strconv"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/tecu23/chessroom/pkg/chess"
)

// ChessOracle implements Oracle on top of corentings/chess. Positions are
// rebuilt by replaying the move list, so the oracle itself holds no state and
// may be shared by every room.
type ChessOracle struct{}

// NewChessOracle creates the library-backed oracle
func NewChessOracle() *ChessOracle {
	return &ChessOracle{}
}

// ApplyMove implements Oracle
func (o *ChessOracle) ApplyMove(pos Position, mv Move) (Position, error) {
	if err := mv.validate(); err != nil {
		return Position{}, err
	}

	game, err := replay(pos.Moves)
	if err != nil {
		return Position{}, err
	}
	if game.Outcome() != nchess.NoOutcome {
		return Position{}, fmt.Errorf("%w: game already decided", ErrIllegalMove)
	}

	uci := mv.UCI()
	if err := game.PushNotationMove(uci, nchess.UCINotation{}, nil); err != nil {
		return Position{}, fmt.Errorf("%w: %s: %v", ErrIllegalMove, uci, err)
	}

	next := Position{
		FEN:   game.FEN(),
		Moves: append(append(make([]string, 0, len(pos.Moves)+1), pos.Moves...), uci),
		SAN:   append(make([]string, 0, len(pos.SAN)+1), pos.SAN...),
	}
	next.SAN = append(next.SAN, lastSAN(game))
	return next, nil
}

// Status implements Oracle
func (o *ChessOracle) Status(pos Position) Terminal {
	game, err := replay(pos.Moves)
	if err != nil {
		return Ongoing
	}

	switch game.Method() {
	case nchess.Checkmate:
		return Checkmate
	case nchess.Stalemate:
		return Stalemate
	case nchess.InsufficientMaterial:
		return InsufficientMaterial
	case nchess.ThreefoldRepetition, nchess.FivefoldRepetition:
		return Repetition
	case nchess.FiftyMoveRule, nchess.SeventyFiveMoveRule:
		return FiftyMoveRule
	}

	if repetitions(game) >= 3 {
		return Repetition
	}
	if halfmoveClock(game.FEN()) >= 100 {
		return FiftyMoveRule
	}
	return Ongoing
}

// Turn implements Oracle
func (o *ChessOracle) Turn(pos Position) chess.Color {
	fields := strings.Fields(pos.FEN)
	if len(fields) > 1 && fields[1] == "b" {
		return chess.Black
	}
	return chess.White
}

func replay(moves []string) (*nchess.Game, error) {
	game := nchess.NewGame()
	for _, mv := range moves {
		if err := game.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("apply move %s: %w", mv, err)
		}
	}
	return game, nil
}

func lastSAN(game *nchess.Game) string {
	moves := game.Moves()
	positions := game.Positions()
	i := len(moves) - 1
	if i < 0 || i >= len(positions) {
		return ""
	}
	return nchess.AlgebraicNotation{}.Encode(positions[i], moves[i])
}

// repetitions counts how often the current placement, side to move, castling
// rights and en passant square have occurred.
func repetitions(game *nchess.Game) int {
	current := positionKey(game.FEN())
	count := 0
	for _, pos := range game.Positions() {
		if positionKey(pos.String()) == current {
			count++
		}
	}
	return count
}

func positionKey(fen string) string {
	fields := strings.Fields(fen)
	if len(fields) > 4 {
		fields = fields[:4]
	}
	return strings.Join(fields, " ")
}

func halfmoveClock(fen string) int {
	fields := strings.Fields(fen)
	if len(fields) < 5 {
		return 0
	}
	n, err := strconv.Atoi(fields[4])
	if err != nil {
		return 0
	}
	return n
}
