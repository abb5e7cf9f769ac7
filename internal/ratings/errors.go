package ratings

import (
	"context"
	"errors"
	"fmt"

	"github.com/rallylog/backend/internal/store"
)

var (
	// ErrNotFound means a player reference or ledger entry does not resolve.
	ErrNotFound = store.ErrNotFound

	ErrInvalidOutcome    = errors.New("invalid match outcome")
	ErrInvalidMerge      = errors.New("invalid merge request")
	ErrPersistence       = errors.New("persistence failure")
	ErrInconsistentState = errors.New("inconsistent ledger state")
	ErrRecalcInProgress  = errors.New("rating recalculation already in progress")
)

// classify keeps caller-facing kinds intact and folds everything else into ErrPersistence
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvalidOutcome),
		errors.Is(err, ErrInvalidMerge),
		errors.Is(err, ErrInconsistentState),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}
