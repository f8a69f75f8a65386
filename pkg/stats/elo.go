package stats

import "math"

// DefaultRating is the rating every new identity starts with
const DefaultRating = 1200

// KFactor is the maximum rating change per game
const KFactor = 32

// expectedScore of a player rated a against a player rated b
func expectedScore(a, b int) float64 {
	return 1 / (1 + math.Pow(10, float64(b-a)/400))
}

// Rate returns the new ratings for a and b. score is a's result:
// 1 for a win, 0.5 for a draw, 0 for a loss.
func Rate(a, b int, score float64) (int, int) {
	ea := expectedScore(a, b)
	delta := KFactor * (score - ea)

	return a + int(math.Round(delta)), b - int(math.Round(delta))
}
