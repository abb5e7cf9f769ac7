package ratings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rallylog/backend/internal/models"
)

func TestUpdateMatchScoresLeavesRatingsStale(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	a := st.AddUser("a@example.com", 1500)
	b := st.AddUser("b@example.com", 1500)

	rec, err := svc.RecordMatch(ctx, RecordMatchInput{PlayerA: user(a), PlayerB: user(b), ScoreA: 11, ScoreB: 7, PlayTo: 11})
	if err != nil {
		t.Fatalf("RecordMatch failed: %v", err)
	}

	m, err := svc.UpdateMatchScores(ctx, rec.MatchID, 7, 11)
	if err != nil {
		t.Fatalf("UpdateMatchScores failed: %v", err)
	}
	if m.WinnerID.Int64 != b {
		t.Errorf("winner should be re-derived as %d, got %d", b, m.WinnerID.Int64)
	}

	stored, _ := st.Match(rec.MatchID)
	if stored.ScoreA != 7 || stored.ScoreB != 11 || stored.WinnerID.Int64 != b {
		t.Errorf("edit not persisted: %+v", stored)
	}
	if stored.RatingDeltaA.Float64 != 16 {
		t.Errorf("score edit must not touch deltas, got %v", stored.RatingDeltaA.Float64)
	}
	expectRating(t, st, user(a), 1516)

	// the replay picks up the corrected winner
	if _, err := svc.RecalculateAll(ctx); err != nil {
		t.Fatalf("RecalculateAll failed: %v", err)
	}
	expectRating(t, st, user(a), 1484)
	expectRating(t, st, user(b), 1516)
}

func TestUpdateMatchScoresErrors(t *testing.T) {
	svc, st := newTestService(t)
	a := st.AddUser("a@example.com", 1500)
	b := st.AddUser("b@example.com", 1500)
	id := st.AddMatch(ledgerEntry(user(a), user(b), 11, 7, t0))

	if _, err := svc.UpdateMatchScores(context.Background(), id, 9, 9); !errors.Is(err, ErrInvalidOutcome) {
		t.Errorf("expected ErrInvalidOutcome for a tie, got %v", err)
	}
	if _, err := svc.UpdateMatchScores(context.Background(), id, -2, 11); !errors.Is(err, ErrInvalidOutcome) {
		t.Errorf("expected ErrInvalidOutcome for a negative score, got %v", err)
	}
	if _, err := svc.UpdateMatchScores(context.Background(), 404, 11, 2); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if m, _ := st.Match(id); m.ScoreA != 11 || m.ScoreB != 7 {
		t.Errorf("rejected edits changed the entry: %+v", m)
	}
}

func TestDeleteMatch(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	a := st.AddUser("a@example.com", 1500)
	b := st.AddUser("b@example.com", 1500)

	rec, err := svc.RecordMatch(ctx, RecordMatchInput{PlayerA: user(a), PlayerB: user(b), ScoreA: 11, ScoreB: 7, PlayTo: 11})
	if err != nil {
		t.Fatalf("RecordMatch failed: %v", err)
	}
	if err := svc.DeleteMatch(ctx, rec.MatchID); err != nil {
		t.Fatalf("DeleteMatch failed: %v", err)
	}
	if st.MatchCount() != 0 {
		t.Errorf("entry should be gone")
	}
	expectRating(t, st, user(a), 1516)

	if err := svc.DeleteMatch(ctx, rec.MatchID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
	if _, err := svc.GetMatch(ctx, rec.MatchID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound from GetMatch, got %v", err)
	}
}

func TestListMatches(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	a := st.AddUser("a@example.com", 1500)
	b := st.AddUser("b@example.com", 1500)
	c := st.AddOpponent("c", a, 1500)

	ab1 := st.AddMatch(ledgerEntry(user(a), user(b), 11, 1, t0.Add(2*time.Hour)))
	ac := st.AddMatch(ledgerEntry(opponent(c), user(a), 11, 2, t0.Add(1*time.Hour)))
	ab2 := st.AddMatch(ledgerEntry(user(b), user(a), 11, 3, t0.Add(3*time.Hour)))

	all, err := svc.ListMatches(ctx, models.MatchFilter{})
	if err != nil {
		t.Fatalf("ListMatches failed: %v", err)
	}
	if len(all) != 3 || all[0].ID != ac || all[1].ID != ab1 || all[2].ID != ab2 {
		t.Errorf("expected oldest first [%d %d %d], got %+v", ac, ab1, ab2, all)
	}

	ref := user(b)
	newest, err := svc.ListMatches(ctx, models.MatchFilter{Player: &ref, NewestFirst: true, Limit: 1})
	if err != nil {
		t.Fatalf("ListMatches failed: %v", err)
	}
	if len(newest) != 1 || newest[0].ID != ab2 {
		t.Errorf("expected only %d, got %+v", ab2, newest)
	}

	paged, err := svc.ListMatches(ctx, models.MatchFilter{Offset: 5})
	if err != nil {
		t.Fatalf("ListMatches failed: %v", err)
	}
	if paged == nil || len(paged) != 0 {
		t.Errorf("expected an empty page, got %+v", paged)
	}

	if _, err := svc.ListMatches(ctx, models.MatchFilter{Limit: -1}); !errors.Is(err, ErrInvalidOutcome) {
		t.Errorf("expected ErrInvalidOutcome for a negative limit, got %v", err)
	}

	got, err := svc.GetMatch(ctx, ac)
	if err != nil {
		t.Fatalf("GetMatch failed: %v", err)
	}
	if got.PlayerA() != opponent(c) {
		t.Errorf("unexpected entry %+v", got)
	}
}
