package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := NewConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, 24*time.Hour, cfg.JWTTTL)
	assert.Equal(t, 15, cfg.DefaultReservationTimeout)
	assert.Equal(t, 100, cfg.DefaultMaxTicketsPerOrder)
	assert.Equal(t, 10, cfg.OrderRateLimit)
	assert.Equal(t, time.Minute, cfg.OrderRateWindow)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, "host=localhost port=5432 user=postgres password=postgres dbname=raffledb sslmode=disable", cfg.DatabaseDSN())
}

func TestNewConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("ENV", "Production")
	t.Setenv("DEFAULT_RESERVATION_TIMEOUT", "30")
	t.Setenv("ORDER_RATE_WINDOW", "30s")
	t.Setenv("TELEGRAM_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_ADMIN_CHAT_ID", "-100200300")

	cfg, err := NewConfigFromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 30, cfg.DefaultReservationTimeout)
	assert.Equal(t, 30*time.Second, cfg.OrderRateWindow)
	assert.Equal(t, int64(-100200300), cfg.TelegramAdminChatID)
}

func TestNewConfigFromEnvBadValue(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DEFAULT_RESERVATION_TIMEOUT", "fifteen")

	_, err := NewConfigFromEnv()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			StoreDriver:               "postgres",
			JWTSecret:                 "s3cret",
			DefaultReservationTimeout: 15,
			DefaultMaxTicketsPerOrder: 100,
			DBMaxOpenConns:            25,
			DBMaxIdleConns:            5,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"memory store locally", func(c *Config) { c.StoreDriver = "memory" }, ""},
		{"missing secret", func(c *Config) { c.JWTSecret = "" }, "JWT_SECRET is required"},
		{"unknown store", func(c *Config) { c.StoreDriver = "sqlite" }, "STORE_DRIVER"},
		{"memory store in production", func(c *Config) { c.StoreDriver = "memory"; c.Env = "production" }, "not allowed in production"},
		{"zero timeout", func(c *Config) { c.DefaultReservationTimeout = 0 }, "DEFAULT_RESERVATION_TIMEOUT"},
		{"zero max tickets", func(c *Config) { c.DefaultMaxTicketsPerOrder = 0 }, "DEFAULT_MAX_TICKETS_PER_ORDER"},
		{"idle above open", func(c *Config) { c.DBMaxIdleConns = 30 }, "DB_MAX_IDLE_CONNS"},
		{"telegram without chat", func(c *Config) { c.TelegramToken = "123:abc" }, "TELEGRAM_ADMIN_CHAT_ID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
