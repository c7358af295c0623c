package repositories

import (
	"context"
	"fmt"

	"moto-isla-raffle/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type settingRepo struct {
	db *gorm.DB
}

func NewSettingRepository(db *gorm.DB) SettingRepository {
	return &settingRepo{db: db}
}

func (r *settingRepo) GetSetting(ctx context.Context, key string) (*models.Setting, error) {
	var setting models.Setting
	if err := r.db.WithContext(ctx).Where("key = ?", key).First(&setting).Error; err != nil {
		return nil, fmt.Errorf("setting %q: %w", key, translateError(err))
	}
	return &setting, nil
}

func (r *settingRepo) ListSettings(ctx context.Context) ([]models.Setting, error) {
	var settings []models.Setting
	if err := r.db.WithContext(ctx).Order("key ASC").Find(&settings).Error; err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	return settings, nil
}

func (r *settingRepo) UpsertSetting(ctx context.Context, setting *models.Setting) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(setting).Error
	if err != nil {
		return fmt.Errorf("failed to save setting %q: %w", setting.Key, err)
	}
	return nil
}

func (r *settingRepo) CreateSettingIfMissing(ctx context.Context, setting *models.Setting) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(setting).Error
	if err != nil {
		return fmt.Errorf("failed to seed setting %q: %w", setting.Key, err)
	}
	return nil
}
