package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// postgres or memory. memory keeps everything in process and is meant
	// for local runs only.
	StoreDriver string `envconfig:"STORE_DRIVER" default:"postgres"`

	DBHost         string `envconfig:"DB_HOST" default:"localhost"`
	DBPort         string `envconfig:"DB_PORT" default:"5432"`
	DBUser         string `envconfig:"DB_USER" default:"postgres"`
	DBPass         string `envconfig:"DB_PASSWORD" default:"postgres"`
	DBName         string `envconfig:"DB_NAME" default:"raffledb"`
	DBSSLMode      string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxOpenConns int    `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	DBMaxIdleConns int    `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`

	JWTSecret string        `envconfig:"JWT_SECRET"`
	JWTTTL    time.Duration `envconfig:"JWT_TTL" default:"24h"`

	Port          string `envconfig:"PORT" default:"3000"`
	Env           string `envconfig:"ENV" default:"development"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`
	UploadDir     string `envconfig:"UPLOAD_DIR" default:"./uploads/raffles"`
	MaxUploadSize int64  `envconfig:"MAX_UPLOAD_SIZE" default:"10485760"`
	PublicBaseURL string `envconfig:"PUBLIC_BASE_URL" default:"http://localhost:3000"`
	CORSOrigins   string `envconfig:"CORS_ORIGINS" default:"*"`

	OrderRateLimit  int           `envconfig:"ORDER_RATE_LIMIT" default:"10"`
	OrderRateWindow time.Duration `envconfig:"ORDER_RATE_WINDOW" default:"1m"`

	// Admin notifications. Empty token = log only.
	TelegramToken       string `envconfig:"TELEGRAM_TOKEN"`
	TelegramAdminChatID int64  `envconfig:"TELEGRAM_ADMIN_CHAT_ID"`
	// Non-empty = deliver notifications through the asynq queue.
	RedisAddr string `envconfig:"REDIS_ADDR"`

	// Cron spec for the read-only reservation audit. Empty disables it.
	AuditSchedule string `envconfig:"AUDIT_SCHEDULE"`

	// Seeds for the settings table, used only when a key is missing.
	DefaultReservationTimeout int `envconfig:"DEFAULT_RESERVATION_TIMEOUT" default:"15"`
	DefaultMaxTicketsPerOrder int `envconfig:"DEFAULT_MAX_TICKETS_PER_ORDER" default:"100"`
}

func NewConfigFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.StoreDriver != "postgres" && c.StoreDriver != "memory" {
		return fmt.Errorf("STORE_DRIVER must be postgres or memory, got %q", c.StoreDriver)
	}
	if c.StoreDriver == "memory" && c.IsProduction() {
		return errors.New("STORE_DRIVER=memory is not allowed in production")
	}
	if c.DefaultReservationTimeout <= 0 {
		return errors.New("DEFAULT_RESERVATION_TIMEOUT must be > 0")
	}
	if c.DefaultMaxTicketsPerOrder <= 0 {
		return errors.New("DEFAULT_MAX_TICKETS_PER_ORDER must be > 0")
	}
	if c.DBMaxIdleConns > c.DBMaxOpenConns {
		return errors.New("DB_MAX_IDLE_CONNS must not exceed DB_MAX_OPEN_CONNS")
	}
	if c.TelegramToken != "" && c.TelegramAdminChatID == 0 {
		return errors.New("TELEGRAM_ADMIN_CHAT_ID is required when TELEGRAM_TOKEN is set")
	}
	return nil
}

func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPass, c.DBName, c.DBSSLMode,
	)
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}
