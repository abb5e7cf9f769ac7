package ratings

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rallylog/backend/internal/models"
)

func TestRecordMatchEqualRatings(t *testing.T) {
	svc, st := newTestService(t)
	a := st.AddUser("a@example.com", 1500)
	b := st.AddUser("b@example.com", 1500)

	res, err := svc.RecordMatch(context.Background(), RecordMatchInput{
		PlayerA: user(a), PlayerB: user(b), ScoreA: 11, ScoreB: 5, PlayTo: 11, LoggedBy: a,
	})
	if err != nil {
		t.Fatalf("RecordMatch failed: %v", err)
	}

	if res.DeltaA != 16 || res.DeltaB != -16 {
		t.Errorf("expected deltas +16/-16, got %v/%v", res.DeltaA, res.DeltaB)
	}
	if res.NewRatingA != 1516 || res.NewRatingB != 1484 {
		t.Errorf("expected new ratings 1516/1484, got %v/%v", res.NewRatingA, res.NewRatingB)
	}
	expectRating(t, st, user(a), 1516)
	expectRating(t, st, user(b), 1484)

	m, ok := st.Match(res.MatchID)
	if !ok {
		t.Fatalf("match %d was not stored", res.MatchID)
	}
	if !m.RatingDeltaA.Valid || m.RatingDeltaA.Float64 != 16 || !m.RatingDeltaB.Valid || m.RatingDeltaB.Float64 != -16 {
		t.Errorf("stored deltas do not match result: %+v / %+v", m.RatingDeltaA, m.RatingDeltaB)
	}
	if w, _ := m.Winner(); w != user(a) || m.WinnerID.Int64 != a || m.WinnerType.String != "user" {
		t.Errorf("expected winner %s, got %s:%d", user(a), m.WinnerType.String, m.WinnerID.Int64)
	}
	if !m.LoggedByUserID.Valid || m.LoggedByUserID.Int64 != a {
		t.Errorf("expected logged_by %d, got %+v", a, m.LoggedByUserID)
	}
	if m.WinBy != defaultWinBy || m.PlayTo != 11 {
		t.Errorf("unexpected play_to/win_by %d/%d", m.PlayTo, m.WinBy)
	}
}

func TestRecordMatchUpset(t *testing.T) {
	svc, st := newTestService(t)
	a := st.AddUser("a@example.com", 1600)
	b := st.AddOpponent("guest", a, 1400)

	res, err := svc.RecordMatch(context.Background(), RecordMatchInput{
		PlayerA: user(a), PlayerB: opponent(b), ScoreA: 8, ScoreB: 11, PlayTo: 11, LoggedBy: a,
	})
	if err != nil {
		t.Fatalf("RecordMatch failed: %v", err)
	}

	if res.DeltaA != -24 || res.DeltaB != 24 {
		t.Errorf("expected deltas -24/+24, got %v/%v", res.DeltaA, res.DeltaB)
	}
	expectRating(t, st, user(a), 1576)
	expectRating(t, st, opponent(b), 1424)

	m, _ := st.Match(res.MatchID)
	if w, _ := m.Winner(); w != opponent(b) || m.WinnerType.String != "opponent" {
		t.Errorf("expected winner %s, got %s:%d", opponent(b), m.WinnerType.String, m.WinnerID.Int64)
	}
}

func TestRecordMatchNewRatingIsOldPlusDelta(t *testing.T) {
	svc, st := newTestService(t)
	a := st.AddUser("a@example.com", 1500)
	b := st.AddUser("b@example.com", 1500)
	ctx := context.Background()

	scores := [][2]int{{11, 3}, {11, 9}, {4, 11}, {11, 13}, {15, 13}, {11, 0}}
	for _, sc := range scores {
		oldA := mustRating(t, st, user(a))
		oldB := mustRating(t, st, user(b))

		res, err := svc.RecordMatch(ctx, RecordMatchInput{PlayerA: user(a), PlayerB: user(b), ScoreA: sc[0], ScoreB: sc[1], PlayTo: 11})
		if err != nil {
			t.Fatalf("RecordMatch %v failed: %v", sc, err)
		}
		if res.NewRatingA != oldA+res.DeltaA || res.NewRatingB != oldB+res.DeltaB {
			t.Errorf("%v: new ratings %v/%v are not old %v/%v plus deltas %v/%v",
				sc, res.NewRatingA, res.NewRatingB, oldA, oldB, res.DeltaA, res.DeltaB)
		}
		expectRating(t, st, user(a), res.NewRatingA)
		expectRating(t, st, user(b), res.NewRatingB)
	}
	if st.MatchCount() != len(scores) {
		t.Errorf("expected %d ledger entries, got %d", len(scores), st.MatchCount())
	}
}

func TestRecordMatchRejectsTie(t *testing.T) {
	svc, st := newTestService(t)
	a := st.AddUser("a@example.com", 1500)
	b := st.AddUser("b@example.com", 1520)

	_, err := svc.RecordMatch(context.Background(), RecordMatchInput{
		PlayerA: user(a), PlayerB: user(b), ScoreA: 11, ScoreB: 11, PlayTo: 11,
	})
	if !errors.Is(err, ErrInvalidOutcome) {
		t.Fatalf("expected ErrInvalidOutcome, got %v", err)
	}
	if st.MatchCount() != 0 {
		t.Errorf("tie must not create a ledger entry")
	}
	expectRating(t, st, user(a), 1500)
	expectRating(t, st, user(b), 1520)
}

func TestRecordMatchValidation(t *testing.T) {
	svc, st := newTestService(t)
	a := st.AddUser("a@example.com", 1500)
	b := st.AddUser("b@example.com", 1500)

	tests := []struct {
		name string
		in   RecordMatchInput
	}{
		{"negative score", RecordMatchInput{PlayerA: user(a), PlayerB: user(b), ScoreA: -1, ScoreB: 11}},
		{"negative play_to", RecordMatchInput{PlayerA: user(a), PlayerB: user(b), ScoreA: 11, ScoreB: 2, PlayTo: -11}},
		{"unknown kind", RecordMatchInput{PlayerA: models.PlayerRef{Kind: "team", ID: 1}, PlayerB: user(b), ScoreA: 11, ScoreB: 2}},
		{"zero id", RecordMatchInput{PlayerA: user(0), PlayerB: user(b), ScoreA: 11, ScoreB: 2}},
		{"self match", RecordMatchInput{PlayerA: user(a), PlayerB: user(a), ScoreA: 11, ScoreB: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.RecordMatch(context.Background(), tt.in); !errors.Is(err, ErrInvalidOutcome) {
				t.Errorf("expected ErrInvalidOutcome, got %v", err)
			}
		})
	}
	if st.MatchCount() != 0 {
		t.Errorf("rejected input created %d ledger entries", st.MatchCount())
	}
}

func TestRecordMatchUnknownPlayer(t *testing.T) {
	svc, st := newTestService(t)
	a := st.AddUser("a@example.com", 1500)

	_, err := svc.RecordMatch(context.Background(), RecordMatchInput{
		PlayerA: user(a), PlayerB: opponent(42), ScoreA: 11, ScoreB: 7, PlayTo: 11,
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if errors.Is(err, ErrPersistence) {
		t.Errorf("not found must not be reported as a persistence failure")
	}
	if st.MatchCount() != 0 {
		t.Errorf("unresolved player must not create a ledger entry")
	}
	expectRating(t, st, user(a), 1500)
}

func TestRecordMatchRollsBackOnPersistenceFailure(t *testing.T) {
	for _, op := range []string{"InsertMatch", "SetRating"} {
		t.Run(op, func(t *testing.T) {
			svc, st := newTestService(t)
			a := st.AddUser("a@example.com", 1500)
			b := st.AddUser("b@example.com", 1500)

			cause := errors.New("disk full")
			st.FailOn(op, cause)

			_, err := svc.RecordMatch(context.Background(), RecordMatchInput{
				PlayerA: user(a), PlayerB: user(b), ScoreA: 11, ScoreB: 4, PlayTo: 11,
			})
			if !errors.Is(err, ErrPersistence) || !errors.Is(err, cause) {
				t.Fatalf("expected persistence failure wrapping %v, got %v", cause, err)
			}
			if st.MatchCount() != 0 {
				t.Errorf("failed unit of work left a ledger entry behind")
			}
			expectRating(t, st, user(a), 1500)
			expectRating(t, st, user(b), 1500)

			st.FailOn(op, nil)
			res, err := svc.RecordMatch(context.Background(), RecordMatchInput{
				PlayerA: user(a), PlayerB: user(b), ScoreA: 11, ScoreB: 4, PlayTo: 11,
			})
			if err != nil {
				t.Fatalf("retry failed: %v", err)
			}
			if res.MatchID != 1 {
				t.Errorf("expected the retry to get id 1, got %d", res.MatchID)
			}
		})
	}
}

func TestRecordMatchConcurrentSamePlayer(t *testing.T) {
	svc, st := newTestService(t)
	hub := st.AddUser("hub@example.com", 1500)
	const n = 20
	others := make([]int64, n)
	for i := range others {
		others[i] = st.AddOpponent("guest", hub, 1500)
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, o := range others {
		wg.Add(1)
		go func(o int64) {
			defer wg.Done()
			_, err := svc.RecordMatch(context.Background(), RecordMatchInput{
				PlayerA: user(hub), PlayerB: opponent(o), ScoreA: 11, ScoreB: 6, PlayTo: 11, LoggedBy: hub,
			})
			errs <- err
		}(o)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent RecordMatch failed: %v", err)
		}
	}

	// no lost updates: the hub's rating is exactly the sum of its deltas
	report, err := svc.CheckDrift(context.Background())
	if err != nil {
		t.Fatalf("CheckDrift failed: %v", err)
	}
	if !report.Consistent() {
		t.Errorf("expected a consistent ledger after concurrent recording, got %+v", report)
	}
	if st.MatchCount() != n {
		t.Errorf("expected %d entries, got %d", n, st.MatchCount())
	}
}
