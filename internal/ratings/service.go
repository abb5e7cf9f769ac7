// Package ratings owns every write to stored ratings: recording matches,
// replaying the ledger, merging entities and editing ledger entries.
package ratings

import (
	"context"
	"time"

	"github.com/rallylog/backend/internal/config"
	"github.com/rallylog/backend/internal/models"
	"github.com/rallylog/backend/internal/store"
)

const recalcLockKey = "lock:ratings:recalculate"

// Locker hands out a cluster-wide exclusive lock. ok is false when another
// holder owns the key.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), ok bool, err error)
}

type Service struct {
	store   store.Store
	locker  Locker
	lockTTL time.Duration

	// Now stamps played_at on recorded matches
	Now func() time.Time
}

// NewService builds the rating service. locker may be nil when only one
// process can run recalculations (tests, the offline CLI).
func NewService(st store.Store, locker Locker, cfg *config.Config) *Service {
	ttl := 10 * time.Minute
	if cfg != nil && cfg.RecalcLockTTL > 0 {
		ttl = cfg.RecalcLockTTL
	}
	return &Service{
		store:   st,
		locker:  locker,
		lockTTL: ttl,
		Now:     time.Now,
	}
}

// lockRatings reads both ratings with row locks, always locking in PlayerRef order
func lockRatings(ctx context.Context, tx store.Tx, a, b models.PlayerRef) (ratingA, ratingB float64, err error) {
	first, second := a, b
	if b.Less(a) {
		first, second = b, a
	}

	r1, err := tx.GetRating(ctx, first, true)
	if err != nil {
		return 0, 0, err
	}
	r2, err := tx.GetRating(ctx, second, true)
	if err != nil {
		return 0, 0, err
	}

	if first == a {
		return r1, r2, nil
	}
	return r2, r1, nil
}
