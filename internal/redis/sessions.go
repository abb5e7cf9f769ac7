package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNoSession is returned for unknown or expired session tokens
var ErrNoSession = errors.New("session not found")

// AdminSession is the payload stored under admin_session:<token>
type AdminSession struct {
	Username  string `json:"username"`
	ExpiresAt int64  `json:"expires_at"`
}

// Sessions stores admin sessions keyed by an opaque random token
type Sessions struct {
	rdb *redis.Client
}

func NewSessions(rdb *redis.Client) *Sessions {
	return &Sessions{rdb: rdb}
}

func sessionKey(token string) string {
	return fmt.Sprintf("admin_session:%s", token)
}

// NewSessionToken returns 32 random bytes, hex encoded
func NewSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Create stores a new session for username and returns its token
func (s *Sessions) Create(ctx context.Context, username string, ttl time.Duration) (string, error) {
	token, err := NewSessionToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}

	data, _ := json.Marshal(AdminSession{
		Username:  username,
		ExpiresAt: time.Now().Add(ttl).Unix(),
	})
	if err := s.rdb.Set(ctx, sessionKey(token), data, ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}
	return token, nil
}

// Get resolves a session token
func (s *Sessions) Get(ctx context.Context, token string) (*AdminSession, error) {
	raw, err := s.rdb.Get(ctx, sessionKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoSession
		}
		return nil, err
	}

	var sess AdminSession
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("invalid session payload: %w", err)
	}
	return &sess, nil
}

// Delete ends a session. Deleting an unknown token is not an error.
func (s *Sessions) Delete(ctx context.Context, token string) error {
	return s.rdb.Del(ctx, sessionKey(token)).Err()
}
