package repositories

import (
	"context"
	"errors"
	"fmt"

	"moto-isla-raffle/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type raffleRepo struct {
	db *gorm.DB
}

func NewRaffleRepository(db *gorm.DB) RaffleRepository {
	return &raffleRepo{db: db}
}

// CreateRaffle creates a new raffle row. Tickets are created separately.
func (r *raffleRepo) CreateRaffle(ctx context.Context, raffle *models.Raffle) error {
	if raffle == nil {
		return errors.New("raffle cannot be nil")
	}
	if err := r.db.WithContext(ctx).Create(raffle).Error; err != nil {
		return fmt.Errorf("failed to create raffle: %w", translateError(err))
	}
	return nil
}

// GetRaffleByID retrieves a raffle by its ID
func (r *raffleRepo) GetRaffleByID(ctx context.Context, id uuid.UUID) (*models.Raffle, error) {
	var raffle models.Raffle
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&raffle).Error; err != nil {
		return nil, fmt.Errorf("raffle %s: %w", id, translateError(err))
	}
	return &raffle, nil
}

// GetRaffleForUpdate is GetRaffleByID with a row lock, for use inside a
// transaction that resizes or closes the raffle.
func (r *raffleRepo) GetRaffleForUpdate(ctx context.Context, id uuid.UUID) (*models.Raffle, error) {
	var raffle models.Raffle
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&raffle).Error; err != nil {
		return nil, fmt.Errorf("raffle %s: %w", id, translateError(err))
	}
	return &raffle, nil
}

// ListRaffles retrieves a paginated list of raffles, optionally by status
func (r *raffleRepo) ListRaffles(ctx context.Context, status string, offset, limit int) ([]models.Raffle, int64, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var raffles []models.Raffle
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Raffle{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count raffles: %w", err)
	}

	if err := query.
		Offset(offset).
		Limit(limit).
		Order("created_at DESC").
		Find(&raffles).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list raffles: %w", err)
	}

	return raffles, total, nil
}

// UpdateRaffle saves every column of raffle
func (r *raffleRepo) UpdateRaffle(ctx context.Context, raffle *models.Raffle) error {
	if raffle == nil {
		return errors.New("raffle cannot be nil")
	}
	if err := r.db.WithContext(ctx).Save(raffle).Error; err != nil {
		return fmt.Errorf("failed to update raffle: %w", translateError(err))
	}
	return nil
}
