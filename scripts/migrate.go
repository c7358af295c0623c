package main

import (
	"context"
	"errors"
	"os"

	"moto-isla-raffle/internal/config"
	"moto-isla-raffle/internal/repositories"
	"moto-isla-raffle/internal/services"
	"moto-isla-raffle/pkg/database"
	"moto-isla-raffle/pkg/logger"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Warnf(".env file not found: %v", err)
	}

	cfg, err := config.NewConfigFromEnv()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	logger.Init(cfg.LogLevel, cfg.Env)

	db, err := database.NewPostgresDB(cfg)
	if err != nil {
		log.Fatalf("Database connection error: %v", err)
	}

	if err := repositories.AutoMigrate(db); err != nil {
		log.Fatalf("Migration error: %v", err)
	}
	log.Info("Database migrations completed")

	ctx := context.Background()
	repo := repositories.NewRepository(db)

	settingsSvc := services.NewSettingsService(repo, services.SettingsDefaults{
		ReservationTimeoutMinutes: cfg.DefaultReservationTimeout,
		MaxTicketsPerOrder:        cfg.DefaultMaxTicketsPerOrder,
	}, nil)
	if err := settingsSvc.SeedDefaults(ctx); err != nil {
		log.Fatalf("Failed to seed settings: %v", err)
	}
	log.Info("Default settings seeded (existing values kept)")

	if err := createDefaultAdmin(ctx, services.NewAuthService(repo, cfg, nil)); err != nil {
		log.Fatalf("Failed to create default admin: %v", err)
	}
}

// createDefaultAdmin reads ADMIN_EMAIL and ADMIN_PASSWORD. Both must be set;
// there is no built-in password.
func createDefaultAdmin(ctx context.Context, authSvc *services.AuthService) error {
	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")
	if email == "" || password == "" {
		log.Info("ADMIN_EMAIL/ADMIN_PASSWORD not set, skipping admin creation")
		return nil
	}

	user, err := authSvc.CreateAdmin(ctx, email, password)
	if errors.Is(err, services.ErrEmailTaken) {
		log.WithField("email", email).Info("Admin user already exists")
		return nil
	}
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{"email": user.Email, "role": user.Role}).Info("Admin user created")
	return nil
}
