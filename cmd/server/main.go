package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rallylog/backend/internal/admin"
	"github.com/rallylog/backend/internal/api"
	"github.com/rallylog/backend/internal/api/handlers"
	"github.com/rallylog/backend/internal/config"
	"github.com/rallylog/backend/internal/database"
	"github.com/rallylog/backend/internal/migrations"
	"github.com/rallylog/backend/internal/ratings"
	"github.com/rallylog/backend/internal/redis"
	"github.com/rallylog/backend/internal/store"
)

func main() {
	// Initialize configuration (.env is loaded by config.Load)
	cfg := config.Load()

	// Initialize database
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Run migrations on start if requested
	if cfg.MigrateOnStart {
		log.Println("[MIGRATE] Running DB migrations on startup...")
		if err := migrations.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
	}

	// Initialize Redis
	rdb, err := redis.Connect(context.Background(), cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer rdb.Close()

	svc := ratings.NewService(store.NewPostgresStore(db), redis.NewLocker(rdb), cfg)

	// Set up Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	health := handlers.HealthChecks{
		"postgres": db.PingContext,
		"redis":    redis.Ping(rdb),
	}
	api.SetupRoutes(router, svc, admin.NewRepository(db), redis.NewSessions(rdb), health, cfg)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Starting RallyLog ratings server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server...")

	// in-flight requests, a recalculation included, get this long to finish
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}
