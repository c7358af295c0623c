package services

import (
	"context"
	"errors"
	"testing"

	"moto-isla-raffle/internal/models"
	"moto-isla-raffle/internal/repositories/memrepo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestGetSettingsDefaults(t *testing.T) {
	store := memrepo.New()
	svc := NewSettingsService(store.Repository(), SettingsDefaults{}, newFakeClock())

	settings, err := svc.GetSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 15, settings.ReservationTimeoutMinutes)
	assert.True(t, settings.AutoCleanupEnabled)
	assert.Equal(t, 100, settings.MaxTicketsPerOrder)
	assert.False(t, settings.SiteMaintenance)
	assert.JSONEq(t, `{}`, string(settings.BankInfo))
}

func TestGetSettingsLenientParsing(t *testing.T) {
	store := memrepo.New()
	svc := NewSettingsService(store.Repository(), SettingsDefaults{ReservationTimeoutMinutes: 15}, newFakeClock())

	rows := map[string]string{
		SettingReservationTimeout: `"20"`,
		SettingAutoCleanup:        `"false"`,
		SettingMaxTicketsPerOrder: `"abc"`,
		SettingBankInfo:           `{"bank":"Banesco","account":"0134"}`,
		SettingSiteMaintenance:    `true`,
	}
	for k, v := range rows {
		require.NoError(t, store.UpsertSetting(context.Background(), &models.Setting{Key: k, Value: datatypes.JSON(v)}))
	}

	settings, err := svc.GetSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20, settings.ReservationTimeoutMinutes)
	assert.False(t, settings.AutoCleanupEnabled)
	assert.Equal(t, 100, settings.MaxTicketsPerOrder)
	assert.True(t, settings.SiteMaintenance)
	assert.JSONEq(t, `{"bank":"Banesco","account":"0134"}`, string(settings.BankInfo))
}

func TestGetSettingsUnparseableTimeoutFallsBack(t *testing.T) {
	store := memrepo.New()
	svc := NewSettingsService(store.Repository(), SettingsDefaults{ReservationTimeoutMinutes: 15}, newFakeClock())
	require.NoError(t, store.UpsertSetting(context.Background(), &models.Setting{
		Key:   SettingReservationTimeout,
		Value: datatypes.JSON(`"soon"`),
	}))

	settings, err := svc.GetSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 15, settings.ReservationTimeoutMinutes)
}

func TestGetSettingsStoreError(t *testing.T) {
	store := memrepo.New()
	store.FailOn("ListSettings", errors.New("db down"))
	svc := NewSettingsService(store.Repository(), SettingsDefaults{}, newFakeClock())

	_, err := svc.GetSettings(context.Background())
	requireCode(t, err, ErrInternal)
}

func TestUpdateSetting(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		stored  string
		wantErr bool
	}{
		{"timeout", SettingReservationTimeout, `30`, `30`, false},
		{"timeout as string", SettingReservationTimeout, `"45"`, `45`, false},
		{"timeout zero", SettingReservationTimeout, `0`, "", true},
		{"timeout too long", SettingReservationTimeout, `1441`, "", true},
		{"timeout fraction", SettingReservationTimeout, `1.5`, "", true},
		{"cleanup", SettingAutoCleanup, `false`, `false`, false},
		{"cleanup bad", SettingAutoCleanup, `"maybe"`, "", true},
		{"maintenance string", SettingSiteMaintenance, `"true"`, `true`, false},
		{"max tickets", SettingMaxTicketsPerOrder, `5`, `5`, false},
		{"max tickets zero", SettingMaxTicketsPerOrder, `0`, "", true},
		{"bank info", SettingBankInfo, `{"bank":"Mercantil"}`, `{"bank":"Mercantil"}`, false},
		{"bank info not object", SettingBankInfo, `"Mercantil"`, "", true},
		{"empty value", SettingAutoCleanup, ``, "", true},
		{"unknown key", "theme", `"dark"`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memrepo.New()
			svc := NewSettingsService(store.Repository(), SettingsDefaults{}, newFakeClock())

			setting, err := svc.UpdateSetting(context.Background(), tt.key, []byte(tt.value))
			if tt.wantErr {
				requireCode(t, err, ErrInvalidArgument)
				assert.Zero(t, store.SettingCount())
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tt.stored, string(setting.Value))
			assert.JSONEq(t, tt.stored, settingValue(t, store, tt.key))
		})
	}
}

func TestSeedDefaultsKeepsExistingValues(t *testing.T) {
	store := memrepo.New()
	svc := NewSettingsService(store.Repository(), SettingsDefaults{ReservationTimeoutMinutes: 15}, newFakeClock())
	require.NoError(t, store.UpsertSetting(context.Background(), &models.Setting{
		Key:   SettingAutoCleanup,
		Value: datatypes.JSON(`false`),
	}))

	require.NoError(t, svc.SeedDefaults(context.Background()))

	assert.Equal(t, 5, store.SettingCount())
	assert.JSONEq(t, `false`, settingValue(t, store, SettingAutoCleanup))
	assert.JSONEq(t, `15`, settingValue(t, store, SettingReservationTimeout))
}

func TestPublicSettings(t *testing.T) {
	store := memrepo.New()
	svc := NewSettingsService(store.Repository(), SettingsDefaults{ReservationTimeoutMinutes: 10}, newFakeClock())

	public, err := svc.GetPublicSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, public.ReservationTimeoutMinutes)
	assert.Equal(t, 100, public.MaxTicketsPerOrder)
}
