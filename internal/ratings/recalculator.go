package ratings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/rallylog/backend/internal/elo"
	"github.com/rallylog/backend/internal/models"
	"github.com/rallylog/backend/internal/store"
)

const recalcProgressEvery = 500

// Anomaly is a ledger entry the replay could not apply
type Anomaly struct {
	MatchID int64  `json:"match_id"`
	Reason  string `json:"reason"`
}

// RecalcResult summarizes one full replay of the ledger
type RecalcResult struct {
	RunID            string        `json:"run_id"`
	EntitiesReset    int64         `json:"entities_reset"`
	EntriesProcessed int           `json:"entries_processed"`
	EntriesSkipped   int           `json:"entries_skipped"`
	Backfilled       int           `json:"backfilled"`
	Anomalies        []Anomaly     `json:"anomalies"`
	StartedAt        time.Time     `json:"started_at"`
	Duration         time.Duration `json:"duration"`
}

// RecalculateAll resets every rating to the baseline and replays the whole
// ledger oldest first (played_at, then id), overwriting each entry's stored
// deltas and the running ratings of both sides as it goes.
//
// Entries that can no longer be applied (missing or identical players, tied
// scores) are skipped and reported, and their stored deltas are cleared. A
// persistence failure aborts the pass; the next call starts again from the
// reset.
func (s *Service) RecalculateAll(ctx context.Context) (*RecalcResult, error) {
	if s.locker != nil {
		unlock, ok, err := s.locker.TryLock(ctx, recalcLockKey, s.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire recalculation lock: %w", err)
		}
		if !ok {
			return nil, ErrRecalcInProgress
		}
		defer unlock()
	}

	res := &RecalcResult{
		RunID:     uuid.NewString(),
		Anomalies: []Anomaly{},
		StartedAt: time.Now(),
	}
	log.Printf("[RECALC] Run %s started", res.RunID)

	err := s.store.Transact(ctx, func(tx store.Tx) error {
		n, err := tx.ResetRatings(ctx, elo.BaselineRating)
		res.EntitiesReset = n
		return err
	})
	if err != nil {
		return nil, classify(fmt.Errorf("failed to reset ratings: %w", err))
	}

	var entries []models.Match
	err = s.store.Transact(ctx, func(tx store.Tx) error {
		var err error
		entries, err = tx.ListMatches(ctx, models.MatchFilter{})
		return err
	})
	if err != nil {
		return nil, classify(fmt.Errorf("failed to load ledger: %w", err))
	}

	for i := range entries {
		if err := ctx.Err(); err != nil {
			log.Printf("[RECALC] Run %s cancelled after %d/%d entries", res.RunID, i, len(entries))
			return res, err
		}

		m := &entries[i]
		backfill := !m.RatingDeltaA.Valid || !m.RatingDeltaB.Valid

		err := s.replayEntry(ctx, m)
		switch {
		case err == nil:
			res.EntriesProcessed++
			if backfill {
				res.Backfilled++
			}
		case errors.Is(err, ErrInconsistentState):
			if verr := s.voidEntry(ctx, m); verr != nil {
				log.Printf("[RECALC] Run %s aborted clearing match %d: %v", res.RunID, m.ID, verr)
				return res, classify(fmt.Errorf("failed to clear deltas of match %d: %w", m.ID, verr))
			}
			res.EntriesSkipped++
			res.Anomalies = append(res.Anomalies, Anomaly{MatchID: m.ID, Reason: err.Error()})
			log.Printf("[RECALC] Run %s skipped match %d: %v", res.RunID, m.ID, err)
		default:
			log.Printf("[RECALC] Run %s aborted at match %d: %v", res.RunID, m.ID, err)
			return res, classify(fmt.Errorf("failed to replay match %d: %w", m.ID, err))
		}

		if (i+1)%recalcProgressEvery == 0 {
			log.Printf("[RECALC] Run %s progress: %d/%d entries", res.RunID, i+1, len(entries))
		}
	}

	res.Duration = time.Since(res.StartedAt)
	log.Printf("[RECALC] Run %s complete: processed=%d skipped=%d backfilled=%d reset=%d in %s",
		res.RunID, res.EntriesProcessed, res.EntriesSkipped, res.Backfilled, res.EntitiesReset, res.Duration)
	return res, nil
}

// entryDefect reports why m cannot be rated regardless of what the store holds.
// The stored winner column is ignored so that score edits take effect.
func entryDefect(m *models.Match) error {
	if a := m.PlayerA(); a == m.PlayerB() {
		return fmt.Errorf("%w: %s is on both sides", ErrInconsistentState, a)
	}
	if m.ScoreA == m.ScoreB {
		return fmt.Errorf("%w: tied score %d-%d", ErrInconsistentState, m.ScoreA, m.ScoreB)
	}
	return nil
}

// voidEntry clears the deltas of a skipped entry so it stops counting toward
// either side's rating
func (s *Service) voidEntry(ctx context.Context, m *models.Match) error {
	if !m.RatingDeltaA.Valid && !m.RatingDeltaB.Valid {
		return nil
	}
	m.RatingDeltaA, m.RatingDeltaB = sql.NullFloat64{}, sql.NullFloat64{}
	return s.store.Transact(ctx, func(tx store.Tx) error {
		return tx.UpdateMatchRatings(ctx, m)
	})
}

// replayEntry applies one ledger entry on top of the ratings accumulated so far
func (s *Service) replayEntry(ctx context.Context, m *models.Match) error {
	if err := entryDefect(m); err != nil {
		return err
	}
	a, b := m.PlayerA(), m.PlayerB()

	return s.store.Transact(ctx, func(tx store.Tx) error {
		ratingA, ratingB, err := lockRatings(ctx, tx, a, b)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("%w: %v", ErrInconsistentState, err)
			}
			return err
		}

		deltaA, deltaB := elo.Outcome(ratingA, ratingB, m.AWon())
		m.SetWinner()
		m.RatingDeltaA = sql.NullFloat64{Float64: deltaA, Valid: true}
		m.RatingDeltaB = sql.NullFloat64{Float64: deltaB, Valid: true}

		if err := tx.UpdateMatchRatings(ctx, m); err != nil {
			return err
		}
		if err := tx.SetRating(ctx, a, ratingA+deltaA); err != nil {
			return err
		}
		return tx.SetRating(ctx, b, ratingB+deltaB)
	})
}
