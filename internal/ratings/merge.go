package ratings

import (
	"context"
	"fmt"
	"log"

	"github.com/rallylog/backend/internal/models"
	"github.com/rallylog/backend/internal/store"
)

// MergeResult reports what a merge moved onto the surviving entity
type MergeResult struct {
	Kind     models.PlayerKind `json:"kind"`
	KeepID   int64             `json:"keep_id"`
	DeleteID int64             `json:"delete_id"`
	models.MergeCounts
}

// MergeEntities folds deleteID into keepID: every ledger reference and every
// ownership column pointing at deleteID is moved to keepID and deleteID is
// removed. Stored ratings are left alone; run RecalculateAll afterwards to
// bring the survivor's rating in line with its combined history.
func (s *Service) MergeEntities(ctx context.Context, kind models.PlayerKind, keepID, deleteID int64) (*MergeResult, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidMerge, kind)
	}
	if keepID <= 0 || deleteID <= 0 {
		return nil, fmt.Errorf("%w: ids must be positive", ErrInvalidMerge)
	}
	if keepID == deleteID {
		return nil, fmt.Errorf("%w: cannot merge %s into itself", ErrInvalidMerge, models.PlayerRef{Kind: kind, ID: keepID})
	}

	keep := models.PlayerRef{Kind: kind, ID: keepID}
	drop := models.PlayerRef{Kind: kind, ID: deleteID}

	res := &MergeResult{Kind: kind, KeepID: keepID, DeleteID: deleteID}
	err := s.store.Transact(ctx, func(tx store.Tx) error {
		// both rows stay locked so no match can be recorded against either mid-merge
		if _, _, err := lockRatings(ctx, tx, keep, drop); err != nil {
			return err
		}

		counts, err := tx.MergeEntity(ctx, kind, keepID, deleteID)
		if err != nil {
			return fmt.Errorf("failed to merge %s into %s: %w", drop, keep, err)
		}
		res.MergeCounts = counts
		return nil
	})
	if err != nil {
		log.Printf("[MERGE] Merge %s into %s failed: %v", drop, keep, err)
		return nil, classify(err)
	}

	log.Printf("[MERGE] Merged %s into %s: %d ledger entries rewritten, %d ownership rows moved",
		drop, keep, res.MatchesRewritten, res.OwnershipMoved)
	return res, nil
}
