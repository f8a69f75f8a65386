package archive

import (
	"fmt"
	"strings"

	"github.com/tecu23/chessroom/pkg/room"
)

func resultToPGN(w room.Winner) string {
	switch w {
	case room.WinnerWhite:
		return "1-0"
	case room.WinnerBlack:
		return "0-1"
	case room.WinnerDraw:
		return "1/2-1/2"
	default:
		return "*"
	}
}

// BuildPGN renders a finished game as PGN with SAN movetext
func BuildPGN(rec room.GameRecord) string {
	var b strings.Builder
	date := rec.FinishedAt

	pgnResult := resultToPGN(rec.Winner)

	fmt.Fprintf(&b, "[Event \"Casual game\"]\n")
	fmt.Fprintf(&b, "[Site \"%s\"]\n", sanitizePGN(rec.RoomID))
	fmt.Fprintf(&b, "[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day())
	fmt.Fprintf(&b, "[White \"%s\"]\n", sanitizePGN(rec.White))
	fmt.Fprintf(&b, "[Black \"%s\"]\n", sanitizePGN(rec.Black))
	fmt.Fprintf(&b, "[TimeControl \"%d+%d\"]\n",
		int64(rec.TimeControl.Initial.Seconds()), int64(rec.TimeControl.Increment.Seconds()))
	fmt.Fprintf(&b, "[Termination \"%s\"]\n", sanitizePGN(string(rec.Cause)))
	fmt.Fprintf(&b, "[Result \"%s\"]\n\n", pgnResult)

	moves := rec.SAN
	if len(moves) < len(rec.Moves) {
		moves = rec.Moves
	}
	for i := 0; i < len(moves); i += 2 {
		fmt.Fprintf(&b, "%d. %s ", i/2+1, moves[i])
		if i+1 < len(moves) {
			b.WriteString(moves[i+1])
			b.WriteByte(' ')
		}
	}
	b.WriteString(pgnResult)
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
