package models

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PlayerKind tells which rated-entity table a player reference points into
type PlayerKind string

const (
	KindUser     PlayerKind = "user"
	KindOpponent PlayerKind = "opponent"
)

// Valid reports whether k names a known rated-entity table
func (k PlayerKind) Valid() bool {
	return k == KindUser || k == KindOpponent
}

// PlayerRef identifies one side of a match
type PlayerRef struct {
	Kind PlayerKind `json:"kind"`
	ID   int64      `json:"id"`
}

func (r PlayerRef) String() string {
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

// Less orders refs by kind then id. Row locks are always taken in this order.
func (r PlayerRef) Less(o PlayerRef) bool {
	if r.Kind != o.Kind {
		return r.Kind < o.Kind
	}
	return r.ID < o.ID
}

// User is a registered account that can play and log matches
type User struct {
	ID        int64          `db:"id" json:"id"`
	Email     string         `db:"email" json:"email"`
	Name      sql.NullString `db:"name" json:"name,omitempty"`
	Role      string         `db:"role" json:"role"`
	Rating    float64        `db:"rating" json:"rating"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}

// Opponent is a guest profile created by a user, optionally linked to an account
type Opponent struct {
	ID              int64          `db:"id" json:"id"`
	Name            string         `db:"name" json:"name"`
	Email           sql.NullString `db:"email" json:"email,omitempty"`
	Rating          float64        `db:"rating" json:"rating"`
	CreatedByUserID sql.NullInt64  `db:"created_by_user_id" json:"created_by_user_id,omitempty"`
	UserID          sql.NullInt64  `db:"user_id" json:"user_id,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// RatedEntity is the shared rating view over users and opponents
type RatedEntity struct {
	Kind   PlayerKind `db:"kind" json:"kind"`
	ID     int64      `db:"id" json:"id"`
	Rating float64    `db:"rating" json:"rating"`
}

// Ref returns the player reference of the entity
func (e RatedEntity) Ref() PlayerRef {
	return PlayerRef{Kind: e.Kind, ID: e.ID}
}

// Match is one ledger entry. Rating deltas are NULL until computed.
type Match struct {
	ID             int64           `db:"id" json:"id"`
	PlayerAType    PlayerKind      `db:"player_a_type" json:"player_a_type"`
	PlayerAID      int64           `db:"player_a_id" json:"player_a_id"`
	PlayerBType    PlayerKind      `db:"player_b_type" json:"player_b_type"`
	PlayerBID      int64           `db:"player_b_id" json:"player_b_id"`
	ScoreA         int             `db:"score_a" json:"score_a"`
	ScoreB         int             `db:"score_b" json:"score_b"`
	PlayTo         int             `db:"play_to" json:"play_to"`
	WinBy          int             `db:"win_by" json:"win_by"`
	WinnerType     sql.NullString  `db:"winner_type" json:"winner_type,omitempty"`
	WinnerID       sql.NullInt64   `db:"winner_id" json:"winner_id,omitempty"`
	RatingDeltaA   sql.NullFloat64 `db:"rating_delta_a" json:"rating_delta_a,omitempty"`
	RatingDeltaB   sql.NullFloat64 `db:"rating_delta_b" json:"rating_delta_b,omitempty"`
	LoggedByUserID sql.NullInt64   `db:"logged_by_user_id" json:"logged_by_user_id,omitempty"`
	PlayedAt       time.Time       `db:"played_at" json:"played_at"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// PlayerA returns the reference of side A
func (m *Match) PlayerA() PlayerRef {
	return PlayerRef{Kind: m.PlayerAType, ID: m.PlayerAID}
}

// PlayerB returns the reference of side B
func (m *Match) PlayerB() PlayerRef {
	return PlayerRef{Kind: m.PlayerBType, ID: m.PlayerBID}
}

// AWon reports whether side A has the higher stored score
func (m *Match) AWon() bool {
	return m.ScoreA > m.ScoreB
}

// Winner returns the side with the higher stored score. Tied scores have no winner.
func (m *Match) Winner() (PlayerRef, bool) {
	switch {
	case m.ScoreA > m.ScoreB:
		return m.PlayerA(), true
	case m.ScoreB > m.ScoreA:
		return m.PlayerB(), true
	}
	return PlayerRef{}, false
}

// SetWinner stores the winner columns from the current scores
func (m *Match) SetWinner() {
	w, ok := m.Winner()
	if !ok {
		m.WinnerType = sql.NullString{}
		m.WinnerID = sql.NullInt64{}
		return
	}
	m.WinnerType = sql.NullString{String: string(w.Kind), Valid: true}
	m.WinnerID = sql.NullInt64{Int64: w.ID, Valid: true}
}

// Involves reports whether ref plays on either side of the match
func (m *Match) Involves(ref PlayerRef) bool {
	return m.PlayerA() == ref || m.PlayerB() == ref
}

// DeltaFor returns what the match contributes to ref's rating. A ref on both
// sides (a merged head-to-head) gets both deltas; the result is invalid if any
// of ref's sides has no delta. ok is false when ref does not play in the match.
func (m *Match) DeltaFor(ref PlayerRef) (delta sql.NullFloat64, ok bool) {
	delta.Valid = true
	for _, side := range []struct {
		player PlayerRef
		delta  sql.NullFloat64
	}{{m.PlayerA(), m.RatingDeltaA}, {m.PlayerB(), m.RatingDeltaB}} {
		if side.player != ref {
			continue
		}
		ok = true
		delta.Float64 += side.delta.Float64
		delta.Valid = delta.Valid && side.delta.Valid
	}
	if !ok {
		return sql.NullFloat64{}, false
	}
	return delta, true
}

// MatchFilter narrows a ledger scan. The zero value scans everything oldest first.
type MatchFilter struct {
	Player      *PlayerRef
	NewestFirst bool
	Limit       int
	Offset      int
}

// InviteToken is kept only so merges can reassign its ownership columns
type InviteToken struct {
	ID               int64         `db:"id" json:"id"`
	Token            string        `db:"token" json:"token"`
	OpponentID       sql.NullInt64 `db:"opponent_id" json:"opponent_id,omitempty"`
	CreatedByUserID  int64         `db:"created_by_user_id" json:"created_by_user_id"`
	RedeemedByUserID sql.NullInt64 `db:"redeemed_by_user_id" json:"redeemed_by_user_id,omitempty"`
	ExpiresAt        time.Time     `db:"expires_at" json:"expires_at"`
	RedeemedAt       sql.NullTime  `db:"redeemed_at" json:"redeemed_at,omitempty"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
}

// MergeCounts reports the rows rewritten by an entity merge
type MergeCounts struct {
	MatchesRewritten int64 `json:"matches_rewritten"`
	OwnershipMoved   int64 `json:"ownership_moved"`
}

// AdminAccount represents an operator allowed to run ledger maintenance
type AdminAccount struct {
	Username     string         `db:"username" json:"username"`
	Phone        string         `db:"phone" json:"phone"`
	PasswordHash string         `db:"password_hash" json:"-"`
	Roles        pq.StringArray `db:"roles" json:"roles"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// AdminAudit is one row of the admin action log
type AdminAudit struct {
	ID            int64           `db:"id" json:"id"`
	AdminUsername string          `db:"admin_username" json:"admin_username"`
	IP            string          `db:"ip" json:"ip"`
	Route         string          `db:"route" json:"route"`
	Action        string          `db:"action" json:"action"`
	Details       json.RawMessage `db:"details" json:"details"`
	Success       bool            `db:"success" json:"success"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}
