package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rallylog/backend/internal/middleware"
	"github.com/rallylog/backend/internal/models"
	"github.com/rallylog/backend/internal/ratings"
	"github.com/rallylog/backend/internal/redis"
)

// AdminStore is what the admin handlers need from the admin repository
type AdminStore interface {
	ValidateAdminCredentials(ctx context.Context, username, password string) (*models.AdminAccount, error)
	LogAdminAction(ctx context.Context, username, ip, route, action string, details map[string]interface{}, success bool) error
	GetAdminAuditLogs(ctx context.Context, username string, limit, offset int) ([]models.AdminAudit, int, error)
}

// SessionStore keeps admin sessions
type SessionStore interface {
	Create(ctx context.Context, username string, ttl time.Duration) (string, error)
	Get(ctx context.Context, token string) (*redis.AdminSession, error)
	Delete(ctx context.Context, token string) error
}

// respondError maps rating-engine errors onto HTTP statuses
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ratings.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ratings.ErrInvalidOutcome), errors.Is(err, ratings.ErrInvalidMerge):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ratings.ErrRecalcInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		log.Printf("[API] %s %s failed (request %s): %v", c.Request.Method, c.FullPath(), c.GetString(middleware.RequestIDKey), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// parseID reads a positive integer path parameter
func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return id, true
}

// parsePlayerRef reads a player reference from the :kind and :id path parameters
func parsePlayerRef(c *gin.Context) (models.PlayerRef, bool) {
	kind := models.PlayerKind(c.Param("kind"))
	if !kind.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid player kind"})
		return models.PlayerRef{}, false
	}
	id, ok := parseID(c, "id")
	if !ok {
		return models.PlayerRef{}, false
	}
	return models.PlayerRef{Kind: kind, ID: id}, true
}

// pagination reads limit/offset query params with a default and an upper bound
func pagination(c *gin.Context, defaultLimit, maxLimit int) (limit, offset int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if err != nil || limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset, err = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}
