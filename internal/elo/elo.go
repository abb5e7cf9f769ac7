package elo

import "math"

const (
	// KFactor is the fixed sensitivity used for every match.
	KFactor = 32.0

	// BaselineRating is assigned to new entities and is the recalculation reset point.
	BaselineRating = 1500.0
)

// ExpectedScore returns the logistic win expectation of a player rated self against one rated opponent.
func ExpectedScore(self, opponent float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (opponent-self)/400.0))
}

// ComputeDelta returns the rating change for one side of a match.
// Each side is computed independently, so the two deltas of a match may differ by one point.
func ComputeDelta(self, opponent float64, won bool, k float64) float64 {
	actual := 0.0
	if won {
		actual = 1.0
	}
	return Round(k * (actual - ExpectedScore(self, opponent)))
}

// Outcome returns both deltas for a match between A and B using KFactor.
func Outcome(ratingA, ratingB float64, aWon bool) (deltaA, deltaB float64) {
	deltaA = ComputeDelta(ratingA, ratingB, aWon, KFactor)
	deltaB = ComputeDelta(ratingB, ratingA, !aWon, KFactor)
	return deltaA, deltaB
}

// Round rounds half toward positive infinity (-2.5 -> -2, 2.5 -> 3).
// Historical ledger deltas were produced with this rule; changing it changes replays.
func Round(x float64) float64 {
	return math.Floor(x + 0.5)
}
