package ratings

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/rallylog/backend/internal/elo"
	"github.com/rallylog/backend/internal/models"
	"github.com/rallylog/backend/internal/store"
)

// defaultWinBy is stored with every recorded match; rally games are won by two
const defaultWinBy = 2

// RecordMatchInput describes a finished match. Ratings are never taken from
// the caller: both are read from the store inside the transaction.
type RecordMatchInput struct {
	PlayerA  models.PlayerRef
	PlayerB  models.PlayerRef
	ScoreA   int
	ScoreB   int
	PlayTo   int
	LoggedBy int64
}

// MatchResult is what the caller sees after a match is recorded
type MatchResult struct {
	MatchID    int64         `json:"match_id"`
	DeltaA     float64       `json:"delta_a"`
	DeltaB     float64       `json:"delta_b"`
	NewRatingA float64       `json:"new_rating_a"`
	NewRatingB float64       `json:"new_rating_b"`
	Match      *models.Match `json:"match"`
}

func validateScores(scoreA, scoreB int) error {
	if scoreA < 0 || scoreB < 0 {
		return fmt.Errorf("%w: scores must be non-negative (got %d-%d)", ErrInvalidOutcome, scoreA, scoreB)
	}
	if scoreA == scoreB {
		return fmt.Errorf("%w: tied score %d-%d", ErrInvalidOutcome, scoreA, scoreB)
	}
	return nil
}

func (in RecordMatchInput) validate() error {
	if err := validateScores(in.ScoreA, in.ScoreB); err != nil {
		return err
	}
	if in.PlayTo < 0 {
		return fmt.Errorf("%w: play_to must be non-negative", ErrInvalidOutcome)
	}
	for _, ref := range []models.PlayerRef{in.PlayerA, in.PlayerB} {
		if !ref.Kind.Valid() {
			return fmt.Errorf("%w: unknown player kind %q", ErrInvalidOutcome, ref.Kind)
		}
		if ref.ID <= 0 {
			return fmt.Errorf("%w: invalid player id %d", ErrInvalidOutcome, ref.ID)
		}
	}
	if in.PlayerA == in.PlayerB {
		return fmt.Errorf("%w: %s cannot play against itself", ErrInvalidOutcome, in.PlayerA)
	}
	return nil
}

// RecordMatch inserts one ledger entry and applies its deltas to both players
// in a single transaction. Both rating rows stay locked until commit, so
// concurrent recordings involving the same player serialize.
func (s *Service) RecordMatch(ctx context.Context, in RecordMatchInput) (*MatchResult, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var res *MatchResult
	err := s.store.Transact(ctx, func(tx store.Tx) error {
		ratingA, ratingB, err := lockRatings(ctx, tx, in.PlayerA, in.PlayerB)
		if err != nil {
			return err
		}

		aWon := in.ScoreA > in.ScoreB
		deltaA, deltaB := elo.Outcome(ratingA, ratingB, aWon)

		m := &models.Match{
			PlayerAType:  in.PlayerA.Kind,
			PlayerAID:    in.PlayerA.ID,
			PlayerBType:  in.PlayerB.Kind,
			PlayerBID:    in.PlayerB.ID,
			ScoreA:       in.ScoreA,
			ScoreB:       in.ScoreB,
			PlayTo:       in.PlayTo,
			WinBy:        defaultWinBy,
			RatingDeltaA: sql.NullFloat64{Float64: deltaA, Valid: true},
			RatingDeltaB: sql.NullFloat64{Float64: deltaB, Valid: true},
			PlayedAt:     s.Now().UTC(),
		}
		if in.LoggedBy > 0 {
			m.LoggedByUserID = sql.NullInt64{Int64: in.LoggedBy, Valid: true}
		}
		m.SetWinner()

		if err := tx.InsertMatch(ctx, m); err != nil {
			return fmt.Errorf("failed to insert match: %w", err)
		}
		if err := tx.SetRating(ctx, in.PlayerA, ratingA+deltaA); err != nil {
			return fmt.Errorf("failed to update rating of %s: %w", in.PlayerA, err)
		}
		if err := tx.SetRating(ctx, in.PlayerB, ratingB+deltaB); err != nil {
			return fmt.Errorf("failed to update rating of %s: %w", in.PlayerB, err)
		}

		res = &MatchResult{
			MatchID:    m.ID,
			DeltaA:     deltaA,
			DeltaB:     deltaB,
			NewRatingA: ratingA + deltaA,
			NewRatingB: ratingB + deltaB,
			Match:      m,
		}
		return nil
	})
	if err != nil {
		log.Printf("[RATINGS] Record match %s vs %s (%d-%d) failed: %v", in.PlayerA, in.PlayerB, in.ScoreA, in.ScoreB, err)
		return nil, classify(err)
	}

	log.Printf("[RATINGS] Recorded match %d: %s %+.0f -> %.0f, %s %+.0f -> %.0f",
		res.MatchID, in.PlayerA, res.DeltaA, res.NewRatingA, in.PlayerB, res.DeltaB, res.NewRatingB)
	return res, nil
}
