package ratings

import (
	"context"
	"fmt"
	"log"

	"github.com/rallylog/backend/internal/models"
	"github.com/rallylog/backend/internal/store"
)

const maxListLimit = 500

// GetMatch returns one ledger entry
func (s *Service) GetMatch(ctx context.Context, id int64) (*models.Match, error) {
	var m *models.Match
	err := s.store.Transact(ctx, func(tx store.Tx) error {
		var err error
		m, err = tx.GetMatch(ctx, id)
		return err
	})
	if err != nil {
		return nil, classify(err)
	}
	return m, nil
}

// ListMatches scans the ledger. Limits above maxListLimit are clamped.
func (s *Service) ListMatches(ctx context.Context, f models.MatchFilter) ([]models.Match, error) {
	if f.Limit < 0 || f.Offset < 0 {
		return nil, fmt.Errorf("%w: limit and offset must be non-negative", ErrInvalidOutcome)
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Player != nil && !f.Player.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown player kind %q", ErrInvalidOutcome, f.Player.Kind)
	}

	var out []models.Match
	err := s.store.Transact(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListMatches(ctx, f)
		return err
	})
	if err != nil {
		return nil, classify(err)
	}
	if out == nil {
		out = []models.Match{}
	}
	return out, nil
}

// UpdateMatchScores corrects the score of an entry and re-derives its winner.
// Stored deltas and ratings are not touched; they stay stale until the next
// RecalculateAll.
func (s *Service) UpdateMatchScores(ctx context.Context, id int64, scoreA, scoreB int) (*models.Match, error) {
	if err := validateScores(scoreA, scoreB); err != nil {
		return nil, err
	}

	var m *models.Match
	err := s.store.Transact(ctx, func(tx store.Tx) error {
		var err error
		m, err = tx.GetMatch(ctx, id)
		if err != nil {
			return err
		}
		m.ScoreA, m.ScoreB = scoreA, scoreB
		m.SetWinner()
		return tx.UpdateMatchScores(ctx, m)
	})
	if err != nil {
		return nil, classify(err)
	}

	log.Printf("[RATINGS] Match %d score changed to %d-%d (ratings stale until recalculation)", id, scoreA, scoreB)
	return m, nil
}

// DeleteMatch removes an entry from the ledger. Ratings keep the entry's
// effect until the next RecalculateAll.
func (s *Service) DeleteMatch(ctx context.Context, id int64) error {
	err := s.store.Transact(ctx, func(tx store.Tx) error {
		return tx.DeleteMatch(ctx, id)
	})
	if err != nil {
		return classify(err)
	}

	log.Printf("[RATINGS] Match %d deleted (ratings stale until recalculation)", id)
	return nil
}
