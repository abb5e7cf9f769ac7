package handlers

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rallylog/backend/internal/admin"
	"github.com/rallylog/backend/internal/config"
	"github.com/rallylog/backend/internal/redis"
)

const (
	adminCookieName = "admin_session"
	adminCookiePath = "/api/v1/admin"

	adminUsernameKey = "admin_username"
)

// AdminLogin validates username/password and opens a session cookie
func AdminLogin(admins AdminStore, sessions SessionStore, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Username string `json:"username" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}

		ctx := c.Request.Context()
		username := strings.TrimSpace(req.Username)
		details := map[string]interface{}{"username": username}

		if _, err := admins.ValidateAdminCredentials(ctx, username, req.Password); err != nil {
			log.Printf("[ADMIN] Login failed for username %s: %v", username, err)
			admins.LogAdminAction(ctx, username, c.ClientIP(), c.FullPath(), "login", details, false)
			if errors.Is(err, admin.ErrInvalidCredentials) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
			return
		}

		token, err := sessions.Create(ctx, username, cfg.AdminSessionTTL)
		if err != nil {
			log.Printf("[ADMIN] Failed to create session for %s: %v", username, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
			return
		}

		// Set HTTP-only cookie
		secure := cfg.Environment == "production"
		c.SetSameSite(http.SameSiteStrictMode)
		c.SetCookie(adminCookieName, token, int(cfg.AdminSessionTTL.Seconds()), adminCookiePath, "", secure, true)

		admins.LogAdminAction(ctx, username, c.ClientIP(), c.FullPath(), "login", details, true)
		c.JSON(http.StatusOK, gin.H{"ok": true, "username": username})
	}
}

// AdminLogout clears the admin session
func AdminLogout(admins AdminStore, sessions SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		token, err := c.Cookie(adminCookieName)
		if err == nil && token != "" {
			if sess, err := sessions.Get(ctx, token); err == nil {
				admins.LogAdminAction(ctx, sess.Username, c.ClientIP(), c.FullPath(), "logout", nil, true)
			}
			if err := sessions.Delete(ctx, token); err != nil {
				log.Printf("[ADMIN] Failed to delete session: %v", err)
			}
		}

		c.SetSameSite(http.SameSiteStrictMode)
		c.SetCookie(adminCookieName, "", -1, adminCookiePath, "", false, true)
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

// AdminMe returns the current admin session info
func AdminMe() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"username": c.GetString(adminUsernameKey)})
	}
}

// AdminSessionMiddleware validates the admin session cookie
func AdminSessionMiddleware(sessions SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(adminCookieName)
		if err != nil || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}

		sess, err := sessions.Get(c.Request.Context(), token)
		if err != nil {
			if !errors.Is(err, redis.ErrNoSession) {
				log.Printf("[ADMIN] Session lookup failed: %v", err)
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired session"})
			return
		}

		c.Set(adminUsernameKey, sess.Username)
		c.Next()
	}
}
