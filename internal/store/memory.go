package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rallylog/backend/internal/models"
)

// MemoryStore keeps everything in process memory. A unit of work holds the
// store mutex for its whole duration, so transactions are fully serialized,
// and a failed unit of work restores the snapshot taken when it began.
type MemoryStore struct {
	mu     sync.Mutex
	state  memState
	now    func() time.Time
	faults map[string]error
}

type memState struct {
	users     map[int64]models.User
	opponents map[int64]models.Opponent
	matches   map[int64]models.Match
	invites   map[int64]models.InviteToken

	nextUserID, nextOpponentID, nextMatchID, nextInviteID int64
}

// NewMemoryStore returns an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: memState{
			users:     make(map[int64]models.User),
			opponents: make(map[int64]models.Opponent),
			matches:   make(map[int64]models.Match),
			invites:   make(map[int64]models.InviteToken),
		},
		now:    time.Now,
		faults: make(map[string]error),
	}
}

func (st memState) clone() memState {
	c := st
	c.users = make(map[int64]models.User, len(st.users))
	for k, v := range st.users {
		c.users[k] = v
	}
	c.opponents = make(map[int64]models.Opponent, len(st.opponents))
	for k, v := range st.opponents {
		c.opponents[k] = v
	}
	c.matches = make(map[int64]models.Match, len(st.matches))
	for k, v := range st.matches {
		c.matches[k] = v
	}
	c.invites = make(map[int64]models.InviteToken, len(st.invites))
	for k, v := range st.invites {
		c.invites[k] = v
	}
	return c
}

// Transact runs fn against the store, restoring the previous state if fn fails
func (s *MemoryStore) Transact(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(&memTx{s: s}); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

// FailOn makes the named Tx operation (e.g. "SetRating") return err until cleared with a nil err
func (s *MemoryStore) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

// SetClock replaces the time source used for created_at/updated_at
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// AddUser inserts a user and returns its id
func (s *MemoryStore) AddUser(email string, rating float64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.nextUserID++
	id := s.state.nextUserID
	now := s.now()
	s.state.users[id] = models.User{ID: id, Email: email, Role: "user", Rating: rating, CreatedAt: now, UpdatedAt: now}
	return id
}

// AddOpponent inserts a guest opponent created by createdBy (0 for none)
func (s *MemoryStore) AddOpponent(name string, createdBy int64, rating float64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.nextOpponentID++
	id := s.state.nextOpponentID
	now := s.now()
	s.state.opponents[id] = models.Opponent{
		ID:              id,
		Name:            name,
		Rating:          rating,
		CreatedByUserID: nullID(createdBy),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return id
}

// LinkOpponent records that opponent id is claimed by userID
func (s *MemoryStore) LinkOpponent(id, userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.state.opponents[id]; ok {
		o.UserID = nullID(userID)
		s.state.opponents[id] = o
	}
}

// AddMatch appends a ledger entry as-is (no rating side effects) and returns its id
func (s *MemoryStore) AddMatch(m models.Match) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.nextMatchID++
	m.ID = s.state.nextMatchID
	if m.CreatedAt.IsZero() {
		m.CreatedAt = m.PlayedAt
		m.UpdatedAt = m.PlayedAt
	}
	s.state.matches[m.ID] = m
	return m.ID
}

// AddInvite inserts an invite token row and returns its id
func (s *MemoryStore) AddInvite(inv models.InviteToken) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.nextInviteID++
	inv.ID = s.state.nextInviteID
	s.state.invites[inv.ID] = inv
	return inv.ID
}

// Rating returns the stored rating of ref
func (s *MemoryStore) Rating(ref models.PlayerRef) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch ref.Kind {
	case models.KindUser:
		u, ok := s.state.users[ref.ID]
		return u.Rating, ok
	case models.KindOpponent:
		o, ok := s.state.opponents[ref.ID]
		return o.Rating, ok
	}
	return 0, false
}

// Match returns a copy of the ledger entry
func (s *MemoryStore) Match(id int64) (models.Match, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.state.matches[id]
	return m, ok
}

// Opponent returns a copy of the opponent row
func (s *MemoryStore) Opponent(id int64) (models.Opponent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.state.opponents[id]
	return o, ok
}

// Invite returns a copy of the invite token row
func (s *MemoryStore) Invite(id int64) (models.InviteToken, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.state.invites[id]
	return inv, ok
}

// MatchCount returns the number of ledger entries
func (s *MemoryStore) MatchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.matches)
}

func nullID(id int64) sql.NullInt64 {
	if id == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: id, Valid: true}
}

// memTx runs with MemoryStore.mu held
type memTx struct {
	s *MemoryStore
}

func (t *memTx) fault(op string) error {
	return t.s.faults[op]
}

func (t *memTx) GetRating(ctx context.Context, ref models.PlayerRef, forUpdate bool) (float64, error) {
	if err := t.fault("GetRating"); err != nil {
		return 0, err
	}
	switch ref.Kind {
	case models.KindUser:
		if u, ok := t.s.state.users[ref.ID]; ok {
			return u.Rating, nil
		}
	case models.KindOpponent:
		if o, ok := t.s.state.opponents[ref.ID]; ok {
			return o.Rating, nil
		}
	default:
		_, err := ratingTable(ref.Kind)
		return 0, err
	}
	return 0, notFound(ref.String())
}

func (t *memTx) SetRating(ctx context.Context, ref models.PlayerRef, rating float64) error {
	if err := t.fault("SetRating"); err != nil {
		return err
	}
	now := t.s.now()
	switch ref.Kind {
	case models.KindUser:
		u, ok := t.s.state.users[ref.ID]
		if !ok {
			return notFound(ref.String())
		}
		u.Rating, u.UpdatedAt = rating, now
		t.s.state.users[ref.ID] = u
		return nil
	case models.KindOpponent:
		o, ok := t.s.state.opponents[ref.ID]
		if !ok {
			return notFound(ref.String())
		}
		o.Rating, o.UpdatedAt = rating, now
		t.s.state.opponents[ref.ID] = o
		return nil
	}
	_, err := ratingTable(ref.Kind)
	return err
}

func (t *memTx) ResetRatings(ctx context.Context, baseline float64) (int64, error) {
	if err := t.fault("ResetRatings"); err != nil {
		return 0, err
	}
	var n int64
	for id, u := range t.s.state.users {
		u.Rating = baseline
		t.s.state.users[id] = u
		n++
	}
	for id, o := range t.s.state.opponents {
		o.Rating = baseline
		t.s.state.opponents[id] = o
		n++
	}
	return n, nil
}

func (t *memTx) ListRatings(ctx context.Context) ([]models.RatedEntity, error) {
	if err := t.fault("ListRatings"); err != nil {
		return nil, err
	}
	out := make([]models.RatedEntity, 0, len(t.s.state.users)+len(t.s.state.opponents))
	for id, o := range t.s.state.opponents {
		out = append(out, models.RatedEntity{Kind: models.KindOpponent, ID: id, Rating: o.Rating})
	}
	for id, u := range t.s.state.users {
		out = append(out, models.RatedEntity{Kind: models.KindUser, ID: id, Rating: u.Rating})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref().Less(out[j].Ref()) })
	return out, nil
}

func (t *memTx) InsertMatch(ctx context.Context, m *models.Match) error {
	if err := t.fault("InsertMatch"); err != nil {
		return err
	}
	t.s.state.nextMatchID++
	now := t.s.now()
	m.ID = t.s.state.nextMatchID
	m.CreatedAt, m.UpdatedAt = now, now
	t.s.state.matches[m.ID] = *m
	return nil
}

func (t *memTx) GetMatch(ctx context.Context, id int64) (*models.Match, error) {
	if err := t.fault("GetMatch"); err != nil {
		return nil, err
	}
	m, ok := t.s.state.matches[id]
	if !ok {
		return nil, notFound(fmt.Sprintf("match %d", id))
	}
	return &m, nil
}

func (t *memTx) ListMatches(ctx context.Context, f models.MatchFilter) ([]models.Match, error) {
	if err := t.fault("ListMatches"); err != nil {
		return nil, err
	}
	out := make([]models.Match, 0, len(t.s.state.matches))
	for _, m := range t.s.state.matches {
		if f.Player != nil && !m.Involves(*f.Player) {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if f.NewestFirst {
			a, b = b, a
		}
		if !a.PlayedAt.Equal(b.PlayedAt) {
			return a.PlayedAt.Before(b.PlayedAt)
		}
		return a.ID < b.ID
	})

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []models.Match{}, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (t *memTx) UpdateMatchRatings(ctx context.Context, m *models.Match) error {
	if err := t.fault("UpdateMatchRatings"); err != nil {
		return err
	}
	cur, ok := t.s.state.matches[m.ID]
	if !ok {
		return notFound(fmt.Sprintf("match %d", m.ID))
	}
	cur.WinnerType, cur.WinnerID = m.WinnerType, m.WinnerID
	cur.RatingDeltaA, cur.RatingDeltaB = m.RatingDeltaA, m.RatingDeltaB
	cur.UpdatedAt = t.s.now()
	t.s.state.matches[m.ID] = cur
	return nil
}

func (t *memTx) UpdateMatchScores(ctx context.Context, m *models.Match) error {
	if err := t.fault("UpdateMatchScores"); err != nil {
		return err
	}
	cur, ok := t.s.state.matches[m.ID]
	if !ok {
		return notFound(fmt.Sprintf("match %d", m.ID))
	}
	cur.ScoreA, cur.ScoreB = m.ScoreA, m.ScoreB
	cur.WinnerType, cur.WinnerID = m.WinnerType, m.WinnerID
	cur.UpdatedAt = t.s.now()
	t.s.state.matches[m.ID] = cur
	return nil
}

func (t *memTx) DeleteMatch(ctx context.Context, id int64) error {
	if err := t.fault("DeleteMatch"); err != nil {
		return err
	}
	if _, ok := t.s.state.matches[id]; !ok {
		return notFound(fmt.Sprintf("match %d", id))
	}
	delete(t.s.state.matches, id)
	return nil
}

func (t *memTx) MergeEntity(ctx context.Context, kind models.PlayerKind, keepID, deleteID int64) (models.MergeCounts, error) {
	var counts models.MergeCounts
	if err := t.fault("MergeEntity"); err != nil {
		return counts, err
	}
	if _, err := ratingTable(kind); err != nil {
		return counts, err
	}

	st := &t.s.state
	for id, m := range st.matches {
		changed := false
		if m.PlayerAType == kind && m.PlayerAID == deleteID {
			m.PlayerAID, changed = keepID, true
		}
		if m.PlayerBType == kind && m.PlayerBID == deleteID {
			m.PlayerBID, changed = keepID, true
		}
		if m.WinnerType.Valid && m.WinnerType.String == string(kind) && m.WinnerID.Valid && m.WinnerID.Int64 == deleteID {
			m.WinnerID.Int64, changed = keepID, true
		}
		if changed {
			st.matches[id] = m
			counts.MatchesRewritten++
		}
	}

	move := func(col *sql.NullInt64) {
		if col.Valid && col.Int64 == deleteID {
			col.Int64 = keepID
			counts.OwnershipMoved++
		}
	}

	switch kind {
	case models.KindUser:
		for id, o := range st.opponents {
			move(&o.CreatedByUserID)
			move(&o.UserID)
			st.opponents[id] = o
		}
		for id, m := range st.matches {
			move(&m.LoggedByUserID)
			st.matches[id] = m
		}
		for id, inv := range st.invites {
			if inv.CreatedByUserID == deleteID {
				inv.CreatedByUserID = keepID
				counts.OwnershipMoved++
			}
			move(&inv.RedeemedByUserID)
			st.invites[id] = inv
		}
		if _, ok := st.users[deleteID]; !ok {
			return counts, notFound(models.PlayerRef{Kind: kind, ID: deleteID}.String())
		}
		delete(st.users, deleteID)
	case models.KindOpponent:
		for id, inv := range st.invites {
			move(&inv.OpponentID)
			st.invites[id] = inv
		}
		if _, ok := st.opponents[deleteID]; !ok {
			return counts, notFound(models.PlayerRef{Kind: kind, ID: deleteID}.String())
		}
		delete(st.opponents, deleteID)
	}
	return counts, nil
}
