package ratings

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rallylog/backend/internal/models"
	"github.com/rallylog/backend/internal/store"
)

var t0 = time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)

// newTestService returns a service over an empty memory store whose clock
// advances one minute per recorded match
func newTestService(t *testing.T) (*Service, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	st.SetClock(func() time.Time { return t0 })

	svc := NewService(st, nil, nil)
	var mu sync.Mutex
	next := t0
	svc.Now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		next = next.Add(time.Minute)
		return next
	}
	return svc, st
}

func user(id int64) models.PlayerRef     { return models.PlayerRef{Kind: models.KindUser, ID: id} }
func opponent(id int64) models.PlayerRef { return models.PlayerRef{Kind: models.KindOpponent, ID: id} }

func mustRating(t *testing.T, st *store.MemoryStore, ref models.PlayerRef) float64 {
	t.Helper()
	r, ok := st.Rating(ref)
	if !ok {
		t.Fatalf("%s does not exist", ref)
	}
	return r
}

func expectRating(t *testing.T, st *store.MemoryStore, ref models.PlayerRef, want float64) {
	t.Helper()
	if got := mustRating(t, st, ref); got != want {
		t.Errorf("rating of %s: expected %v, got %v", ref, want, got)
	}
}

// ledgerEntry builds an entry between a and b with no deltas computed yet
func ledgerEntry(a, b models.PlayerRef, scoreA, scoreB int, playedAt time.Time) models.Match {
	m := models.Match{
		PlayerAType: a.Kind,
		PlayerAID:   a.ID,
		PlayerBType: b.Kind,
		PlayerBID:   b.ID,
		ScoreA:      scoreA,
		ScoreB:      scoreB,
		PlayTo:      11,
		WinBy:       2,
		PlayedAt:    playedAt,
	}
	m.SetWinner()
	return m
}

type fakeLocker struct {
	mu       sync.Mutex
	held     bool
	err      error
	acquired int
	released int
}

func (l *fakeLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held {
		return nil, false, nil
	}
	l.held = true
	l.acquired++
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.held = false
		l.released++
	}, true, nil
}

func TestNewServiceLockTTL(t *testing.T) {
	svc := NewService(store.NewMemoryStore(), nil, nil)
	if svc.lockTTL != 10*time.Minute {
		t.Errorf("expected default lock ttl 10m, got %v", svc.lockTTL)
	}
}

func TestLockRatingsKeepsSides(t *testing.T) {
	_, st := newTestService(t)
	u := st.AddUser("u@example.com", 1610)
	o := st.AddOpponent("guest", u, 1390)

	err := st.Transact(context.Background(), func(tx store.Tx) error {
		// opponent sorts before user, so the second side is locked first here
		ra, rb, err := lockRatings(context.Background(), tx, user(u), opponent(o))
		if err != nil {
			return err
		}
		if ra != 1610 || rb != 1390 {
			t.Errorf("expected (1610, 1390), got (%v, %v)", ra, rb)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transact failed: %v", err)
	}
}

func TestClassify(t *testing.T) {
	if classify(nil) != nil {
		t.Errorf("nil should stay nil")
	}
	if err := classify(context.Canceled); !errors.Is(err, context.Canceled) || errors.Is(err, ErrPersistence) {
		t.Errorf("context errors should pass through, got %v", err)
	}
	if err := classify(ErrInvalidMerge); errors.Is(err, ErrPersistence) {
		t.Errorf("known kinds should not be wrapped, got %v", err)
	}

	raw := errors.New("connection reset")
	err := classify(raw)
	if !errors.Is(err, ErrPersistence) || !errors.Is(err, raw) {
		t.Errorf("expected persistence failure wrapping the cause, got %v", err)
	}
}
