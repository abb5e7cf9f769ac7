package api

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/rallylog/backend/internal/api/handlers"
	"github.com/rallylog/backend/internal/config"
	"github.com/rallylog/backend/internal/middleware"
	"github.com/rallylog/backend/internal/ratings"
)

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, svc *ratings.Service, admins handlers.AdminStore, sessions handlers.SessionStore, health handlers.HealthChecks, cfg *config.Config) {
	router.Use(middleware.RequestID())
	router.Use(middleware.CORSMiddleware(cfg))

	if cfg.Environment != "production" {
		router.Use(func(c *gin.Context) {
			c.Header("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
			c.Header("Pragma", "no-cache")
			c.Header("Expires", "0")
			c.Next()
		})
		log.Println("[DEV MODE] No-cache headers enabled for all routes")
	}

	// API v1 group
	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", handlers.HealthCheck(health))

		// Ledger endpoints used by the host application
		matches := v1.Group("/matches")
		{
			matches.POST("", middleware.RequireUser(cfg.JWTSecret), handlers.RecordMatch(svc))
			matches.GET("/:id", handlers.GetMatch(svc))
		}
		v1.GET("/players/:kind/:id/history", handlers.PlayerHistory(svc))

		// Admin endpoints
		adminGroup := v1.Group("/admin")
		{
			adminGroup.POST("/login", handlers.AdminLogin(admins, sessions, cfg))
			adminGroup.POST("/logout", handlers.AdminLogout(admins, sessions))

			authed := adminGroup.Group("")
			authed.Use(handlers.AdminSessionMiddleware(sessions))
			{
				authed.GET("/me", handlers.AdminMe())
				authed.GET("/audit", handlers.GetAdminAuditLogs(admins))

				authed.POST("/ratings/recalculate", handlers.RecalculateRatings(svc, admins, cfg.RecalcLockTTL))
				authed.GET("/ratings/drift", handlers.RatingDrift(svc))
				authed.POST("/merge", handlers.MergeEntities(svc, admins))

				authed.GET("/matches", handlers.ListAdminMatches(svc))
				authed.PATCH("/matches/:id", handlers.UpdateMatchScores(svc, admins))
				authed.DELETE("/matches/:id", handlers.DeleteMatch(svc, admins))
			}
		}
	}
}
