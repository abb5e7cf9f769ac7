package ratings

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/rallylog/backend/internal/elo"
	"github.com/rallylog/backend/internal/models"
	"github.com/rallylog/backend/internal/store"
)

// ratings are sums of whole-point deltas; anything beyond this is real drift
const driftTolerance = 0.001

// HistoryPoint is one entry of a player's rating history
type HistoryPoint struct {
	MatchID       int64            `json:"match_id"`
	PlayedAt      time.Time        `json:"played_at"`
	Opponent      models.PlayerRef `json:"opponent"`
	Score         int              `json:"score"`
	OpponentScore int              `json:"opponent_score"`
	Won           bool             `json:"won"`
	Delta         float64          `json:"delta"`
	DeltaMissing  bool             `json:"delta_missing,omitempty"`
	Rating        float64          `json:"rating"`
}

// History is a player's ledger entries oldest first with the running rating
// 1500 + Σ deltas after each one.
type History struct {
	Player         models.PlayerRef `json:"player"`
	StoredRating   float64          `json:"stored_rating"`
	ComputedRating float64          `json:"computed_rating"`
	Drift          float64          `json:"drift"`
	Points         []HistoryPoint   `json:"points"`
}

// History builds the rating history of ref from its stored deltas. Entries
// without a delta count as zero.
func (s *Service) History(ctx context.Context, ref models.PlayerRef) (*History, error) {
	if !ref.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown player kind %q", ErrInvalidOutcome, ref.Kind)
	}

	var (
		stored  float64
		entries []models.Match
	)
	err := s.store.Transact(ctx, func(tx store.Tx) error {
		var err error
		if stored, err = tx.GetRating(ctx, ref, false); err != nil {
			return err
		}
		entries, err = tx.ListMatches(ctx, models.MatchFilter{Player: &ref})
		return err
	})
	if err != nil {
		return nil, classify(err)
	}

	h := &History{
		Player:       ref,
		StoredRating: stored,
		Points:       make([]HistoryPoint, 0, len(entries)),
	}
	running := elo.BaselineRating
	for i := range entries {
		m := &entries[i]
		delta, _ := m.DeltaFor(ref)

		p := HistoryPoint{
			MatchID:      m.ID,
			PlayedAt:     m.PlayedAt,
			DeltaMissing: !delta.Valid,
		}
		if m.PlayerA() == ref {
			p.Opponent, p.Score, p.OpponentScore = m.PlayerB(), m.ScoreA, m.ScoreB
		} else {
			p.Opponent, p.Score, p.OpponentScore = m.PlayerA(), m.ScoreB, m.ScoreA
		}
		p.Won = p.Score > p.OpponentScore
		// a side without a delta adds nothing
		p.Delta = delta.Float64
		running += p.Delta
		p.Rating = running
		h.Points = append(h.Points, p)
	}
	h.ComputedRating = running
	h.Drift = stored - running
	return h, nil
}

// EntityDrift is an entity whose stored rating disagrees with its deltas
type EntityDrift struct {
	Player         models.PlayerRef `json:"player"`
	StoredRating   float64          `json:"stored_rating"`
	ComputedRating float64          `json:"computed_rating"`
	Drift          float64          `json:"drift"`
}

// DriftReport compares every stored rating against 1500 + Σ its stored deltas
type DriftReport struct {
	EntitiesChecked int           `json:"entities_checked"`
	EntriesChecked  int           `json:"entries_checked"`
	MissingDeltas   int           `json:"missing_deltas"`
	OrphanedEntries []int64       `json:"orphaned_entries"`
	// self-matches and tied scores; they carry no deltas after a recalculation
	Unrated         []int64       `json:"unrated_entries"`
	Drifted         []EntityDrift `json:"drifted"`
}

// Consistent reports whether a recalculation would change nothing visible
func (r *DriftReport) Consistent() bool {
	return r.MissingDeltas == 0 && len(r.Drifted) == 0 && len(r.OrphanedEntries) == 0
}

// CheckDrift reads every rating and the whole ledger in one unit of work and
// reports where they disagree. It never writes.
func (s *Service) CheckDrift(ctx context.Context) (*DriftReport, error) {
	var (
		entities []models.RatedEntity
		entries  []models.Match
	)
	err := s.store.Transact(ctx, func(tx store.Tx) error {
		var err error
		if entities, err = tx.ListRatings(ctx); err != nil {
			return err
		}
		entries, err = tx.ListMatches(ctx, models.MatchFilter{})
		return err
	})
	if err != nil {
		return nil, classify(err)
	}

	computed := make(map[models.PlayerRef]float64, len(entities))
	for _, e := range entities {
		computed[e.Ref()] = elo.BaselineRating
	}

	report := &DriftReport{
		EntitiesChecked: len(entities),
		EntriesChecked:  len(entries),
		OrphanedEntries: []int64{},
		Unrated:         []int64{},
		Drifted:         []EntityDrift{},
	}
	for i := range entries {
		m := &entries[i]
		a, b := m.PlayerA(), m.PlayerB()
		_, okA := computed[a]
		_, okB := computed[b]
		switch {
		case !okA || !okB:
			report.OrphanedEntries = append(report.OrphanedEntries, m.ID)
		case entryDefect(m) != nil:
			report.Unrated = append(report.Unrated, m.ID)
		case !m.RatingDeltaA.Valid || !m.RatingDeltaB.Valid:
			report.MissingDeltas++
		}
		if okA && m.RatingDeltaA.Valid {
			computed[a] += m.RatingDeltaA.Float64
		}
		if okB && m.RatingDeltaB.Valid {
			computed[b] += m.RatingDeltaB.Float64
		}
	}

	for _, e := range entities {
		c := computed[e.Ref()]
		if math.Abs(e.Rating-c) > driftTolerance {
			report.Drifted = append(report.Drifted, EntityDrift{
				Player:         e.Ref(),
				StoredRating:   e.Rating,
				ComputedRating: c,
				Drift:          e.Rating - c,
			})
		}
	}

	if !report.Consistent() {
		log.Printf("[RATINGS] Drift check: %d drifted, %d missing deltas, %d orphaned entries",
			len(report.Drifted), report.MissingDeltas, len(report.OrphanedEntries))
	}
	return report, nil
}
