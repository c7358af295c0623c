package repositories

import (
	"context"
	"fmt"
	"time"

	"moto-isla-raffle/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const ticketBatchSize = 500

type ticketRepo struct {
	db *gorm.DB
}

func NewTicketRepository(db *gorm.DB) TicketRepository {
	return &ticketRepo{db: db}
}

// CreateTicketRange inserts free tickets numbered [from, to).
func (r *ticketRepo) CreateTicketRange(ctx context.Context, raffleID uuid.UUID, from, to int) error {
	if from >= to {
		return nil
	}

	tickets := make([]models.Ticket, 0, to-from)
	for n := from; n < to; n++ {
		tickets = append(tickets, models.Ticket{
			RaffleID: raffleID,
			Number:   n,
			Status:   models.TicketStatusFree,
		})
	}

	if err := r.db.WithContext(ctx).CreateInBatches(tickets, ticketBatchSize).Error; err != nil {
		return fmt.Errorf("failed to create tickets: %w", translateError(err))
	}
	return nil
}

// DeleteFreeTicketsFrom removes tickets numbered >= from, but only those
// still free.
func (r *ticketRepo) DeleteFreeTicketsFrom(ctx context.Context, raffleID uuid.UUID, from int) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("raffle_id = ? AND number >= ? AND status = ?", raffleID, from, models.TicketStatusFree).
		Delete(&models.Ticket{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete tickets: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *ticketRepo) ListTickets(ctx context.Context, raffleID uuid.UUID, status string) ([]models.Ticket, error) {
	var tickets []models.Ticket

	query := r.db.WithContext(ctx).Where("raffle_id = ?", raffleID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Order("number ASC").Find(&tickets).Error; err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	return tickets, nil
}

func (r *ticketRepo) GetTickets(ctx context.Context, raffleID uuid.UUID, numbers []int) ([]models.Ticket, error) {
	var tickets []models.Ticket
	if err := r.db.WithContext(ctx).
		Where("raffle_id = ? AND number IN ?", raffleID, numbers).
		Order("number ASC").
		Find(&tickets).Error; err != nil {
		return nil, fmt.Errorf("failed to get tickets: %w", err)
	}
	return tickets, nil
}

// LockTickets reads the rows with FOR UPDATE. Rows are locked in number order
// so two transactions touching overlapping sets cannot deadlock.
func (r *ticketRepo) LockTickets(ctx context.Context, raffleID uuid.UUID, numbers []int) ([]models.Ticket, error) {
	var tickets []models.Ticket
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("raffle_id = ? AND number IN ?", raffleID, numbers).
		Order("number ASC").
		Find(&tickets).Error; err != nil {
		return nil, fmt.Errorf("failed to lock tickets: %w", err)
	}
	return tickets, nil
}

// ReserveFreeTickets flips rows that are free as of now to reserved for
// orderID. A reservation whose expiry has passed counts as free, matching
// Ticket.EffectiveStatus. Any other row is left alone and not counted.
func (r *ticketRepo) ReserveFreeTickets(ctx context.Context, raffleID uuid.UUID, numbers []int, orderID uuid.UUID, now, expiresAt time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Ticket{}).
		Where("raffle_id = ? AND number IN ?", raffleID, numbers).
		Where("status = ? OR (status = ? AND expires_at < ?)",
			models.TicketStatusFree, models.TicketStatusReserved, now).
		Updates(map[string]interface{}{
			"status":     models.TicketStatusReserved,
			"order_id":   orderID,
			"expires_at": expiresAt,
			"paid_at":    nil,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to reserve tickets: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// ReleaseOrderTickets frees the rows held by orderID whose status is one of
// statuses.
func (r *ticketRepo) ReleaseOrderTickets(ctx context.Context, raffleID, orderID uuid.UUID, statuses []string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Ticket{}).
		Where("raffle_id = ? AND order_id = ? AND status IN ?", raffleID, orderID, statuses).
		Updates(map[string]interface{}{
			"status":     models.TicketStatusFree,
			"order_id":   nil,
			"expires_at": nil,
			"paid_at":    nil,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to release tickets: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// MarkTicketsPaid sets rows to paid for orderID whatever their current
// status, except rows already paid by a different order.
func (r *ticketRepo) MarkTicketsPaid(ctx context.Context, raffleID uuid.UUID, numbers []int, orderID uuid.UUID, paidAt time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Ticket{}).
		Where("raffle_id = ? AND number IN ?", raffleID, numbers).
		Where("status <> ? OR order_id = ?", models.TicketStatusPaid, orderID).
		Updates(map[string]interface{}{
			"status":     models.TicketStatusPaid,
			"order_id":   orderID,
			"expires_at": nil,
			"paid_at":    paidAt,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to mark tickets paid: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// SetTicketsStatus is the unconditional admin override.
func (r *ticketRepo) SetTicketsStatus(ctx context.Context, raffleID uuid.UUID, numbers []int, status string, now time.Time) (int64, error) {
	updates := map[string]interface{}{
		"status":     status,
		"expires_at": nil,
	}
	switch status {
	case models.TicketStatusFree:
		updates["order_id"] = nil
		updates["paid_at"] = nil
	case models.TicketStatusPaid:
		updates["paid_at"] = now
	}

	result := r.db.WithContext(ctx).
		Model(&models.Ticket{}).
		Where("raffle_id = ? AND number IN ?", raffleID, numbers).
		Updates(updates)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to update tickets: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *ticketRepo) CountStaleReservations(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Ticket{}).
		Where("status = ? AND expires_at < ?", models.TicketStatusReserved, now).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count stale reservations: %w", err)
	}
	return count, nil
}

func (r *ticketRepo) ReleaseExpiredReservations(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Ticket{}).
		Where("status = ? AND expires_at < ?", models.TicketStatusReserved, now).
		Updates(map[string]interface{}{
			"status":     models.TicketStatusFree,
			"order_id":   nil,
			"expires_at": nil,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to release expired reservations: %w", result.Error)
	}
	return result.RowsAffected, nil
}

type statusCount struct {
	Status string
	Count  int64
}

func (r *ticketRepo) CountTicketsByStatus(ctx context.Context, raffleID uuid.UUID) (map[string]int64, error) {
	var rows []statusCount
	if err := r.db.WithContext(ctx).
		Model(&models.Ticket{}).
		Select("status, count(*) AS count").
		Where("raffle_id = ?", raffleID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count tickets: %w", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
