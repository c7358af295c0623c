package services

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"moto-isla-raffle/internal/models"
	"moto-isla-raffle/internal/repositories"

	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

const (
	SettingReservationTimeout = "reservation_timeout_minutes"
	SettingAutoCleanup        = "auto_cleanup_enabled"
	SettingMaxTicketsPerOrder = "max_tickets_per_order"
	SettingBankInfo           = "bank_info"
	SettingSiteMaintenance    = "site_maintenance"
)

const (
	fallbackReservationTimeout = 15
	maxReservationTimeout      = 1440
)

// Settings is a snapshot of the settings table taken at one instant.
type Settings struct {
	ReservationTimeoutMinutes int             `json:"reservation_timeout_minutes"`
	AutoCleanupEnabled        bool            `json:"auto_cleanup_enabled"`
	MaxTicketsPerOrder        int             `json:"max_tickets_per_order"`
	BankInfo                  json.RawMessage `json:"bank_info"`
	SiteMaintenance           bool            `json:"site_maintenance"`
}

// PublicSettings is the subset customers may read.
type PublicSettings struct {
	ReservationTimeoutMinutes int             `json:"reservation_timeout_minutes"`
	MaxTicketsPerOrder        int             `json:"max_tickets_per_order"`
	BankInfo                  json.RawMessage `json:"bank_info"`
	SiteMaintenance           bool            `json:"site_maintenance"`
}

// SettingsProvider hands out a fresh Settings snapshot per operation.
type SettingsProvider interface {
	GetSettings(ctx context.Context) (*Settings, error)
}

// StaticSettings always returns the same snapshot.
type StaticSettings Settings

func (s StaticSettings) GetSettings(context.Context) (*Settings, error) {
	snapshot := Settings(s)
	return &snapshot, nil
}

type SettingsDefaults struct {
	ReservationTimeoutMinutes int
	MaxTicketsPerOrder        int
}

type SettingsService struct {
	repo     *repositories.Repository
	defaults SettingsDefaults
	clock    Clock
}

func NewSettingsService(repo *repositories.Repository, defaults SettingsDefaults, clock Clock) *SettingsService {
	if defaults.ReservationTimeoutMinutes <= 0 {
		defaults.ReservationTimeoutMinutes = fallbackReservationTimeout
	}
	if defaults.MaxTicketsPerOrder <= 0 {
		defaults.MaxTicketsPerOrder = 100
	}
	if clock == nil {
		clock = SystemClock
	}
	return &SettingsService{repo: repo, defaults: defaults, clock: clock}
}

func (s *SettingsService) defaultSettings() *Settings {
	return &Settings{
		ReservationTimeoutMinutes: s.defaults.ReservationTimeoutMinutes,
		AutoCleanupEnabled:        true,
		MaxTicketsPerOrder:        s.defaults.MaxTicketsPerOrder,
		BankInfo:                  json.RawMessage(`{}`),
	}
}

// GetSettings reads every row and falls back to the defaults for keys that
// are missing or hold a value of the wrong shape.
func (s *SettingsService) GetSettings(ctx context.Context) (*Settings, error) {
	rows, err := s.repo.SettingRepo.ListSettings(ctx)
	if err != nil {
		return nil, internal("failed to load settings", err)
	}

	settings := s.defaultSettings()
	for _, row := range rows {
		switch row.Key {
		case SettingReservationTimeout:
			if v, ok := parseInt(row.Value); ok && v > 0 {
				settings.ReservationTimeoutMinutes = v
			} else {
				log.WithField("value", string(row.Value)).Warn("unparseable reservation timeout, using default")
			}
		case SettingAutoCleanup:
			if v, ok := parseBool(row.Value); ok {
				settings.AutoCleanupEnabled = v
			}
		case SettingMaxTicketsPerOrder:
			if v, ok := parseInt(row.Value); ok && v > 0 {
				settings.MaxTicketsPerOrder = v
			}
		case SettingBankInfo:
			if json.Valid(row.Value) {
				settings.BankInfo = json.RawMessage(row.Value)
			}
		case SettingSiteMaintenance:
			if v, ok := parseBool(row.Value); ok {
				settings.SiteMaintenance = v
			}
		}
	}

	return settings, nil
}

func (s *SettingsService) GetPublicSettings(ctx context.Context) (*PublicSettings, error) {
	settings, err := s.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	return &PublicSettings{
		ReservationTimeoutMinutes: settings.ReservationTimeoutMinutes,
		MaxTicketsPerOrder:        settings.MaxTicketsPerOrder,
		BankInfo:                  settings.BankInfo,
		SiteMaintenance:           settings.SiteMaintenance,
	}, nil
}

func (s *SettingsService) ListSettings(ctx context.Context) ([]models.Setting, error) {
	rows, err := s.repo.SettingRepo.ListSettings(ctx)
	if err != nil {
		return nil, internal("failed to load settings", err)
	}
	return rows, nil
}

// UpdateSetting validates value against the key's type and stores it in
// canonical JSON form.
func (s *SettingsService) UpdateSetting(ctx context.Context, key string, value json.RawMessage) (*models.Setting, error) {
	key = strings.TrimSpace(key)
	canonical, err := canonicalSettingValue(key, value)
	if err != nil {
		return nil, err
	}

	setting := &models.Setting{
		Key:       key,
		Value:     datatypes.JSON(canonical),
		UpdatedAt: s.clock.Now(),
	}
	if err := s.repo.SettingRepo.UpsertSetting(ctx, setting); err != nil {
		return nil, internal("failed to save setting", err)
	}

	log.WithFields(log.Fields{"key": key, "value": string(canonical)}).Info("setting updated")
	return setting, nil
}

// SeedDefaults inserts the default value of every known key that has no row.
func (s *SettingsService) SeedDefaults(ctx context.Context) error {
	defaults := map[string]string{
		SettingReservationTimeout: strconv.Itoa(s.defaults.ReservationTimeoutMinutes),
		SettingAutoCleanup:        "true",
		SettingMaxTicketsPerOrder: strconv.Itoa(s.defaults.MaxTicketsPerOrder),
		SettingBankInfo:           "{}",
		SettingSiteMaintenance:    "false",
	}

	now := s.clock.Now()
	for key, value := range defaults {
		err := s.repo.SettingRepo.CreateSettingIfMissing(ctx, &models.Setting{
			Key:       key,
			Value:     datatypes.JSON(value),
			UpdatedAt: now,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func canonicalSettingValue(key string, value json.RawMessage) ([]byte, error) {
	if len(value) == 0 {
		return nil, invalidArgument("value is required")
	}

	switch key {
	case SettingReservationTimeout:
		v, ok := parseInt(value)
		if !ok || v < 1 || v > maxReservationTimeout {
			return nil, invalidArgument("%s must be an integer between 1 and %d", key, maxReservationTimeout)
		}
		return json.Marshal(v)
	case SettingMaxTicketsPerOrder:
		v, ok := parseInt(value)
		if !ok || v < 1 {
			return nil, invalidArgument("%s must be an integer >= 1", key)
		}
		return json.Marshal(v)
	case SettingAutoCleanup, SettingSiteMaintenance:
		v, ok := parseBool(value)
		if !ok {
			return nil, invalidArgument("%s must be a boolean", key)
		}
		return json.Marshal(v)
	case SettingBankInfo:
		var obj map[string]interface{}
		if err := json.Unmarshal(value, &obj); err != nil || obj == nil {
			return nil, invalidArgument("%s must be a JSON object", key)
		}
		return json.Marshal(obj)
	default:
		return nil, invalidArgument("unknown setting %q", key)
	}
}

// parseInt accepts a JSON number or a quoted integer, since older rows were
// written as strings.
func parseInt(raw []byte) (int, bool) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		n = json.Number(strings.TrimSpace(s))
	}
	v, err := strconv.Atoi(n.String())
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseBool(raw []byte) (bool, bool) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false, false
	}
	v, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false, false
	}
	return v, true
}
