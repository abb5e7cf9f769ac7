package main

import (
	"context"
	"log"
	"os"
	"strings"

	"github.com/rallylog/backend/internal/admin"
	"github.com/rallylog/backend/internal/config"
	"github.com/rallylog/backend/internal/database"
)

func main() {
	// Initialize configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Seed admin account
	username := os.Getenv("ADMIN_USERNAME")
	if username == "" {
		username = "admin"
		log.Printf("Using default admin username: %s", username)
	}

	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		password = "change-me-in-production"
		log.Printf("WARNING: Using default admin password. Set ADMIN_PASSWORD env var in production!")
	}

	phone := os.Getenv("ADMIN_PHONE")

	roles := []string{"super_admin"}
	if r := os.Getenv("ADMIN_ROLES"); r != "" {
		roles = strings.Split(r, ",")
	}

	repo := admin.NewRepository(db)
	if err := repo.CreateAdminAccount(context.Background(), username, phone, password, roles); err != nil {
		log.Fatalf("Failed to create admin account: %v", err)
	}

	log.Printf("✓ Admin account created/updated successfully")
	log.Printf("  Username: %s", username)
	log.Printf("  Roles: %v", roles)
	log.Println("\nYou can now login at POST /api/v1/admin/login")
}
