package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"moto-isla-raffle/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type orderRepo struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepo{db: db}
}

func (r *orderRepo) CreateOrder(ctx context.Context, order *models.Order) error {
	if order == nil {
		return errors.New("order cannot be nil")
	}
	if err := r.db.WithContext(ctx).Omit("Raffle").Create(order).Error; err != nil {
		return fmt.Errorf("failed to create order: %w", translateError(err))
	}
	return nil
}

func (r *orderRepo) GetOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, fmt.Errorf("order %s: %w", id, translateError(err))
	}
	return &order, nil
}

func (r *orderRepo) ListOrders(ctx context.Context, filters OrderFilters, offset, limit int) ([]models.Order, int64, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var orders []models.Order
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Order{})
	if filters.RaffleID != nil {
		query = query.Where("raffle_id = ?", *filters.RaffleID)
	}
	if filters.Status != "" {
		query = query.Where("status = ?", filters.Status)
	}
	if filters.Phone != "" {
		query = query.Where("customer_phone = ?", filters.Phone)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	if err := query.
		Offset(offset).
		Limit(limit).
		Order("created_at DESC").
		Find(&orders).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}

	return orders, total, nil
}

// ListPaidOrdersByRaffle returns every paid order of the raffle except
// excludeID.
func (r *orderRepo) ListPaidOrdersByRaffle(ctx context.Context, raffleID uuid.UUID, excludeID *uuid.UUID) ([]models.Order, error) {
	var orders []models.Order

	query := r.db.WithContext(ctx).
		Where("raffle_id = ? AND status = ?", raffleID, models.OrderStatusPaid)
	if excludeID != nil {
		query = query.Where("id <> ?", *excludeID)
	}

	if err := query.Order("paid_at ASC").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to list paid orders: %w", err)
	}
	return orders, nil
}

// UpdateOrderStatus moves the order to `to` only if its current status is in
// from. paidAt is written when non-nil.
func (r *orderRepo) UpdateOrderStatus(ctx context.Context, id uuid.UUID, from []string, to string, paidAt *time.Time) (int64, error) {
	updates := map[string]interface{}{"status": to}
	if paidAt != nil {
		updates["paid_at"] = *paidAt
	}

	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to update order status: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *orderRepo) CountOverduePending(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("status = ? AND payment_deadline < ?", models.OrderStatusPending, now).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count overdue orders: %w", err)
	}
	return count, nil
}

func (r *orderRepo) ExpirePendingOrders(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("status = ? AND payment_deadline < ?", models.OrderStatusPending, now).
		Update("status", models.OrderStatusExpired)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to expire orders: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *orderRepo) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Order{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete order: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *orderRepo) CountOrdersByStatus(ctx context.Context, raffleID uuid.UUID) (map[string]int64, error) {
	var rows []statusCount
	if err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Select("status, count(*) AS count").
		Where("raffle_id = ?", raffleID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (r *orderRepo) SumPaidRevenue(ctx context.Context, raffleID uuid.UUID) (float64, error) {
	var total float64
	if err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Select("COALESCE(SUM(total_amount), 0)").
		Where("raffle_id = ? AND status = ?", raffleID, models.OrderStatusPaid).
		Scan(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to sum revenue: %w", err)
	}
	return total, nil
}
