package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"moto-isla-raffle/internal/config"
	"moto-isla-raffle/internal/handlers"
	"moto-isla-raffle/internal/jobs"
	"moto-isla-raffle/internal/notifications"
	"moto-isla-raffle/internal/repositories"
	"moto-isla-raffle/internal/repositories/memrepo"
	"moto-isla-raffle/internal/services"
	"moto-isla-raffle/pkg/database"
	"moto-isla-raffle/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Warnf(".env file not found: %v", err)
	}

	// Load configuration
	cfg, err := config.NewConfigFromEnv()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	logger.Init(cfg.LogLevel, cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := openRepository(cfg)
	if err != nil {
		log.Fatalf("Database error: %v", err)
	}

	// Initialize services
	settingsSvc := services.NewSettingsService(repo, services.SettingsDefaults{
		ReservationTimeoutMinutes: cfg.DefaultReservationTimeout,
		MaxTicketsPerOrder:        cfg.DefaultMaxTicketsPerOrder,
	}, nil)
	if err := settingsSvc.SeedDefaults(ctx); err != nil {
		log.Fatalf("Failed to seed settings: %v", err)
	}

	notifier, shutdownNotifier := setupNotifier(cfg)
	defer shutdownNotifier()

	authSvc := services.NewAuthService(repo, cfg, nil)
	raffleSvc := services.NewRaffleService(repo, nil)
	reservationSvc := services.NewReservationService(repo, settingsSvc, notifier, nil)
	sweeper := services.NewSweeper(repo, settingsSvc, nil)

	if cfg.AuditSchedule != "" {
		auditor := jobs.NewAuditor(repo.TicketRepo, repo.OrderRepo, nil)
		scheduler := jobs.NewScheduler(auditor)
		if err := scheduler.Start(ctx, cfg.AuditSchedule); err != nil {
			log.Fatalf("Audit schedule error: %v", err)
		}
		defer scheduler.Stop()
	}

	handler := handlers.NewHandler(authSvc, raffleSvc, reservationSvc, settingsSvc, sweeper, cfg)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Moto Isla Raffle API",
		ErrorHandler: handlers.ErrorHandler,
		BodyLimit:    int(cfg.MaxUploadSize) + 1<<20,
	})

	// Global middlewares
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: "GET,POST,PATCH,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	if err := os.MkdirAll(cfg.UploadDir, 0755); err != nil {
		log.Fatalf("Failed to create upload directory: %v", err)
	}
	app.Static("/uploads", cfg.UploadDir)

	api := app.Group("/api/v1")
	handler.RegisterRoutes(api)

	// Start server
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		log.WithFields(log.Fields{"addr": addr, "store": cfg.StoreDriver}).Info("Server starting")
		if err := app.Listen(addr); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Errorf("Server shutdown error: %v", err)
	}
	log.Info("Server stopped gracefully")
}

func openRepository(cfg *config.Config) (*repositories.Repository, error) {
	if cfg.StoreDriver == "memory" {
		log.Warn("Using the in-memory store; data is lost on restart")
		return memrepo.New().Repository(), nil
	}

	db, err := database.NewPostgresDB(cfg)
	if err != nil {
		return nil, err
	}
	if err := repositories.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}
	return repositories.NewRepository(db), nil
}

// setupNotifier picks Telegram when a token is configured, logging
// otherwise. With REDIS_ADDR set, delivery goes through an asynq queue and
// a worker in this process.
func setupNotifier(cfg *config.Config) (notifications.Notifier, func()) {
	var delivery notifications.Notifier = notifications.LogNotifier{}
	if cfg.TelegramToken != "" {
		tg, err := notifications.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramAdminChatID)
		if err != nil {
			log.WithError(err).Error("Telegram unavailable, falling back to log notifications")
		} else {
			delivery = tg
		}
	}

	if cfg.RedisAddr == "" {
		return delivery, func() {}
	}

	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	client := asynq.NewClient(redisOpt)
	srv, mux := notifications.NewWorker(redisOpt, delivery)
	if err := srv.Start(mux); err != nil {
		log.WithError(err).Error("Notification worker failed to start, delivering inline")
		client.Close()
		return delivery, func() {}
	}

	log.WithField("redis", cfg.RedisAddr).Info("Notifications queued through asynq")
	return notifications.NewQueueNotifier(client), func() {
		srv.Shutdown()
		client.Close()
	}
}
