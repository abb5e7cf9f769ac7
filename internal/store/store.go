// Package store persists rated entities and the match ledger.
//
// All reads and writes go through a Tx obtained from Store.Transact, so the
// ledger insert and both rating updates of a recorded match commit together.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/rallylog/backend/internal/models"
)

var (
	// ErrNotFound is returned when a player reference or ledger entry does not resolve.
	ErrNotFound = errors.New("not found")

	// ErrUnknownKind is returned for player kinds other than user/opponent.
	ErrUnknownKind = errors.New("unknown player kind")
)

// Store opens units of work. fn's writes are committed if it returns nil and
// rolled back otherwise.
type Store interface {
	Transact(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of operations available inside one unit of work.
type Tx interface {
	// GetRating reads the stored rating of ref. With forUpdate the row stays
	// locked until the unit of work ends.
	GetRating(ctx context.Context, ref models.PlayerRef, forUpdate bool) (float64, error)
	SetRating(ctx context.Context, ref models.PlayerRef, rating float64) error
	ResetRatings(ctx context.Context, baseline float64) (int64, error)
	ListRatings(ctx context.Context) ([]models.RatedEntity, error)

	InsertMatch(ctx context.Context, m *models.Match) error
	GetMatch(ctx context.Context, id int64) (*models.Match, error)
	// ListMatches returns entries ordered by played_at then id.
	ListMatches(ctx context.Context, f models.MatchFilter) ([]models.Match, error)
	// UpdateMatchRatings stores the winner and both rating deltas of m.
	UpdateMatchRatings(ctx context.Context, m *models.Match) error
	// UpdateMatchScores stores the scores and winner of m.
	UpdateMatchScores(ctx context.Context, m *models.Match) error
	DeleteMatch(ctx context.Context, id int64) error

	// MergeEntity points every ledger and ownership reference of deleteID at
	// keepID, then removes deleteID. Ratings are not touched.
	MergeEntity(ctx context.Context, kind models.PlayerKind, keepID, deleteID int64) (models.MergeCounts, error)
}

func notFound(what string) error {
	return fmt.Errorf("%s: %w", what, ErrNotFound)
}

func ratingTable(kind models.PlayerKind) (string, error) {
	switch kind {
	case models.KindUser:
		return "users", nil
	case models.KindOpponent:
		return "opponents", nil
	}
	return "", fmt.Errorf("%q: %w", kind, ErrUnknownKind)
}
