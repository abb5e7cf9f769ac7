package admin

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rallylog/backend/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials covers both an unknown username and a wrong password
var ErrInvalidCredentials = errors.New("invalid credentials")

// Repository reads and writes admin accounts and the admin audit log
type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// HashPassword returns the bcrypt hash stored for an admin password
func HashPassword(plain string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// VerifyPassword checks if the provided password matches the stored hash
func VerifyPassword(hashed, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)) == nil
}

// GetAdminAccount retrieves an admin account by username
func (r *Repository) GetAdminAccount(ctx context.Context, username string) (*models.AdminAccount, error) {
	var acc models.AdminAccount
	err := r.db.GetContext(ctx, &acc, `
		SELECT username, phone, password_hash, roles, created_at, updated_at
		FROM admin_accounts WHERE username=$1
	`, username)
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// CreateAdminAccount creates or updates an admin account (used for seeding)
func (r *Repository) CreateAdminAccount(ctx context.Context, username, phone, password string, roles []string) error {
	hashed, err := HashPassword(password)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO admin_accounts (username, phone, password_hash, roles, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (username) DO UPDATE SET
			phone = EXCLUDED.phone,
			password_hash = EXCLUDED.password_hash,
			roles = EXCLUDED.roles,
			updated_at = NOW()
	`, username, phone, hashed, pq.Array(roles))
	return err
}

// ValidateAdminCredentials validates a username + password combination
func (r *Repository) ValidateAdminCredentials(ctx context.Context, username, password string) (*models.AdminAccount, error) {
	acc, err := r.GetAdminAccount(ctx, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Printf("[ADMIN] No admin account found for username: %s", username)
			return nil, ErrInvalidCredentials
		}
		log.Printf("[ADMIN] Database error: %v", err)
		return nil, fmt.Errorf("database error: %w", err)
	}

	if !VerifyPassword(acc.PasswordHash, password) {
		log.Printf("[ADMIN] Password verification failed for username: %s", username)
		return nil, ErrInvalidCredentials
	}
	return acc, nil
}

// LogAdminAction records an admin action in the audit log
func (r *Repository) LogAdminAction(ctx context.Context, username, ip, route, action string, details map[string]interface{}, success bool) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO admin_audit (admin_username, ip, route, action, details, success, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, username, ip, route, action, MarshalDetails(details), success)

	if err != nil {
		log.Printf("[ADMIN] Failed to log admin action %s: %v", action, err)
	}
	return err
}

// MarshalDetails encodes audit details, falling back to an empty object
func MarshalDetails(details map[string]interface{}) []byte {
	if details == nil {
		return []byte("{}")
	}
	b, err := json.Marshal(details)
	if err != nil {
		log.Printf("[ADMIN] Failed to marshal admin audit details: %v", err)
		return []byte("{}")
	}
	return b
}

// GetAdminAuditLogs returns recent audit entries, newest first, optionally for
// one admin, together with the total number of matching rows
func (r *Repository) GetAdminAuditLogs(ctx context.Context, username string, limit, offset int) ([]models.AdminAudit, int, error) {
	type auditRow struct {
		models.AdminAudit
		TotalCount int `db:"total_count"`
	}

	var rows []auditRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, admin_username, ip, route, action, details, success, created_at,
			COUNT(*) OVER() AS total_count
		FROM admin_audit
		WHERE ($1 = '' OR admin_username = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, username, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	logs := make([]models.AdminAudit, 0, len(rows))
	total := 0
	for _, row := range rows {
		logs = append(logs, row.AdminAudit)
		total = row.TotalCount
	}
	return logs, total, nil
}
