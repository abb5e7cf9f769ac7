package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rallylog/backend/internal/models"
)

const matchColumns = `id, player_a_type, player_a_id, player_b_type, player_b_id, score_a, score_b,
	play_to, win_by, winner_type, winner_id, rating_delta_a, rating_delta_b, logged_by_user_id,
	played_at, created_at, updated_at`

// PostgresStore is the sqlx-backed Store
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an open connection pool
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Transact runs fn inside a database transaction
func (s *PostgresStore) Transact(ctx context.Context, fn func(tx Tx) error) error {
	if s.db == nil {
		return fmt.Errorf("db is nil")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tx: %w", err)
	}
	return nil
}

type pgTx struct {
	tx *sqlx.Tx
}

func (t *pgTx) GetRating(ctx context.Context, ref models.PlayerRef, forUpdate bool) (float64, error) {
	table, err := ratingTable(ref.Kind)
	if err != nil {
		return 0, err
	}

	query := `SELECT rating FROM ` + table + ` WHERE id=$1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var rating float64
	if err := t.tx.GetContext(ctx, &rating, query, ref.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, notFound(ref.String())
		}
		return 0, err
	}
	return rating, nil
}

func (t *pgTx) SetRating(ctx context.Context, ref models.PlayerRef, rating float64) error {
	table, err := ratingTable(ref.Kind)
	if err != nil {
		return err
	}

	res, err := t.tx.ExecContext(ctx, `UPDATE `+table+` SET rating=$1, updated_at=NOW() WHERE id=$2`, rating, ref.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(ref.String())
	}
	return nil
}

func (t *pgTx) ResetRatings(ctx context.Context, baseline float64) (int64, error) {
	var total int64
	for _, table := range []string{"users", "opponents"} {
		res, err := t.tx.ExecContext(ctx, `UPDATE `+table+` SET rating=$1, updated_at=NOW()`, baseline)
		if err != nil {
			return 0, fmt.Errorf("failed to reset %s ratings: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func (t *pgTx) ListRatings(ctx context.Context) ([]models.RatedEntity, error) {
	var out []models.RatedEntity
	err := t.tx.SelectContext(ctx, &out, `
		SELECT 'user' AS kind, id, rating FROM users
		UNION ALL
		SELECT 'opponent' AS kind, id, rating FROM opponents
		ORDER BY kind, id
	`)
	return out, err
}

func (t *pgTx) InsertMatch(ctx context.Context, m *models.Match) error {
	row := t.tx.QueryRowxContext(ctx, `
		INSERT INTO matches (
			player_a_type, player_a_id, player_b_type, player_b_id,
			score_a, score_b, play_to, win_by,
			winner_type, winner_id, rating_delta_a, rating_delta_b,
			logged_by_user_id, played_at, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,NOW(),NOW())
		RETURNING id, created_at, updated_at
	`, m.PlayerAType, m.PlayerAID, m.PlayerBType, m.PlayerBID,
		m.ScoreA, m.ScoreB, m.PlayTo, m.WinBy,
		m.WinnerType, m.WinnerID, m.RatingDeltaA, m.RatingDeltaB,
		m.LoggedByUserID, m.PlayedAt)

	return row.Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
}

func (t *pgTx) GetMatch(ctx context.Context, id int64) (*models.Match, error) {
	var m models.Match
	if err := t.tx.GetContext(ctx, &m, `SELECT `+matchColumns+` FROM matches WHERE id=$1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound(fmt.Sprintf("match %d", id))
		}
		return nil, err
	}
	return &m, nil
}

func (t *pgTx) ListMatches(ctx context.Context, f models.MatchFilter) ([]models.Match, error) {
	var (
		where []string
		args  []interface{}
	)

	if f.Player != nil {
		args = append(args, string(f.Player.Kind), f.Player.ID)
		where = append(where, `((player_a_type=$1 AND player_a_id=$2) OR (player_b_type=$1 AND player_b_id=$2))`)
	}

	query := `SELECT ` + matchColumns + ` FROM matches`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	if f.NewestFirst {
		query += ` ORDER BY played_at DESC, id DESC`
	} else {
		query += ` ORDER BY played_at ASC, id ASC`
	}
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	var out []models.Match
	if err := t.tx.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *pgTx) UpdateMatchRatings(ctx context.Context, m *models.Match) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE matches
		SET winner_type=$1, winner_id=$2, rating_delta_a=$3, rating_delta_b=$4, updated_at=NOW()
		WHERE id=$5
	`, m.WinnerType, m.WinnerID, m.RatingDeltaA, m.RatingDeltaB, m.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(fmt.Sprintf("match %d", m.ID))
	}
	return nil
}

func (t *pgTx) UpdateMatchScores(ctx context.Context, m *models.Match) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE matches
		SET score_a=$1, score_b=$2, winner_type=$3, winner_id=$4, updated_at=NOW()
		WHERE id=$5
	`, m.ScoreA, m.ScoreB, m.WinnerType, m.WinnerID, m.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(fmt.Sprintf("match %d", m.ID))
	}
	return nil
}

func (t *pgTx) DeleteMatch(ctx context.Context, id int64) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM matches WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(fmt.Sprintf("match %d", id))
	}
	return nil
}

// ownership columns that point at a user or an opponent, per merged kind
var ownershipColumns = map[models.PlayerKind][]struct{ table, column string }{
	models.KindUser: {
		{"opponents", "created_by_user_id"},
		{"opponents", "user_id"},
		{"matches", "logged_by_user_id"},
		{"invite_tokens", "created_by_user_id"},
		{"invite_tokens", "redeemed_by_user_id"},
	},
	models.KindOpponent: {
		{"invite_tokens", "opponent_id"},
	},
}

func (t *pgTx) MergeEntity(ctx context.Context, kind models.PlayerKind, keepID, deleteID int64) (models.MergeCounts, error) {
	var counts models.MergeCounts

	table, err := ratingTable(kind)
	if err != nil {
		return counts, err
	}

	res, err := t.tx.ExecContext(ctx, `
		UPDATE matches SET
			player_a_id = CASE WHEN player_a_type=$3 AND player_a_id=$2 THEN $1 ELSE player_a_id END,
			player_b_id = CASE WHEN player_b_type=$3 AND player_b_id=$2 THEN $1 ELSE player_b_id END,
			winner_id = CASE WHEN winner_type=$3 AND winner_id=$2 THEN $1 ELSE winner_id END,
			updated_at = NOW()
		WHERE (player_a_type=$3 AND player_a_id=$2)
			OR (player_b_type=$3 AND player_b_id=$2)
			OR (winner_type=$3 AND winner_id=$2)
	`, keepID, deleteID, string(kind))
	if err != nil {
		return counts, fmt.Errorf("failed to rewrite ledger entries: %w", err)
	}
	counts.MatchesRewritten, _ = res.RowsAffected()

	for _, oc := range ownershipColumns[kind] {
		res, err := t.tx.ExecContext(ctx,
			fmt.Sprintf(`UPDATE %s SET %s=$1 WHERE %s=$2`, oc.table, oc.column, oc.column),
			keepID, deleteID)
		if err != nil {
			return counts, fmt.Errorf("failed to reassign %s.%s: %w", oc.table, oc.column, err)
		}
		n, _ := res.RowsAffected()
		counts.OwnershipMoved += n
	}

	res, err = t.tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE id=$1`, deleteID)
	if err != nil {
		return counts, fmt.Errorf("failed to delete %s %d: %w", kind, deleteID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return counts, notFound(models.PlayerRef{Kind: kind, ID: deleteID}.String())
	}

	log.Printf("[STORE] Merged %s %d into %d: matches=%d ownership=%d", kind, deleteID, keepID, counts.MatchesRewritten, counts.OwnershipMoved)
	return counts, nil
}
