package services

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
	"time"

	"moto-isla-raffle/internal/models"
	"moto-isla-raffle/internal/repositories"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const maxTicketsPerRaffle = 100000

type RaffleService struct {
	repo  *repositories.Repository
	clock Clock
}

func NewRaffleService(repo *repositories.Repository, clock Clock) *RaffleService {
	if clock == nil {
		clock = SystemClock
	}
	return &RaffleService{repo: repo, clock: clock}
}

type CreateRaffleRequest struct {
	Title             string     `json:"title" validate:"required,min=3,max=200"`
	Description       string     `json:"description"`
	TicketPrice       float64    `json:"ticket_price" validate:"required,gt=0"`
	TotalTickets      int        `json:"total_tickets" validate:"required,min=1,max=100000"`
	MaxTicketsPerUser int        `json:"max_tickets_per_user" validate:"min=0"`
	StartDate         *time.Time `json:"start_date"`
	EndDate           *time.Time `json:"end_date"`
	DrawDate          *time.Time `json:"draw_date"`
	ImagePath         string     `json:"-"`
}

type RaffleList struct {
	Raffles    []models.Raffle `json:"raffles"`
	TotalCount int64           `json:"total_count"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
	TotalPages int             `json:"total_pages"`
}

// TicketView is a ticket as customers see it: a reservation past its expiry
// shows as free.
type TicketView struct {
	Number    int        `json:"number"`
	Status    string     `json:"status"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type RaffleStats struct {
	RaffleID       uuid.UUID        `json:"raffle_id"`
	Title          string           `json:"title"`
	TotalTickets   int              `json:"total_tickets"`
	Tickets        map[string]int64 `json:"tickets"`
	Orders         map[string]int64 `json:"orders"`
	Revenue        float64          `json:"revenue"`
	SoldPercentage float64          `json:"sold_percentage"`
}

// CreateRaffle inserts the raffle and its full ticket range in one
// transaction.
func (s *RaffleService) CreateRaffle(ctx context.Context, req CreateRaffleRequest) (*models.Raffle, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, invalidArgument("title is required")
	}
	if req.TicketPrice <= 0 {
		return nil, invalidArgument("ticket price must be positive")
	}
	if req.TotalTickets < 1 || req.TotalTickets > maxTicketsPerRaffle {
		return nil, invalidArgument("total tickets must be between 1 and %d", maxTicketsPerRaffle)
	}
	if req.MaxTicketsPerUser < 0 {
		return nil, invalidArgument("max tickets per user cannot be negative")
	}
	if req.StartDate != nil && req.EndDate != nil && req.EndDate.Before(*req.StartDate) {
		return nil, invalidArgument("end date must be after start date")
	}

	now := s.clock.Now()
	raffle := &models.Raffle{
		ID:                uuid.New(),
		Title:             title,
		Description:       req.Description,
		ImagePath:         req.ImagePath,
		TicketPrice:       req.TicketPrice,
		TotalTickets:      req.TotalTickets,
		MaxTicketsPerUser: req.MaxTicketsPerUser,
		Status:            models.RaffleStatusActive,
		StartDate:         req.StartDate,
		EndDate:           req.EndDate,
		DrawDate:          req.DrawDate,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err := s.repo.Transaction(ctx, func(tx *repositories.Repository) error {
		if err := tx.RaffleRepo.CreateRaffle(ctx, raffle); err != nil {
			return err
		}
		return tx.TicketRepo.CreateTicketRange(ctx, raffle.ID, 0, raffle.TotalTickets)
	})
	if err != nil {
		return nil, internal("failed to create raffle", err)
	}

	log.WithFields(log.Fields{
		"raffle_id": raffle.ID,
		"tickets":   raffle.TotalTickets,
	}).Info("raffle created")
	return raffle, nil
}

// ResizeRaffle grows the ticket range or trims it from the top. Trimming
// fails with Conflict unless every removed ticket is free.
func (s *RaffleService) ResizeRaffle(ctx context.Context, raffleID string, newTotal int) (*models.Raffle, error) {
	id, err := uuid.Parse(raffleID)
	if err != nil {
		return nil, invalidArgument("invalid raffle id")
	}
	if newTotal < 1 || newTotal > maxTicketsPerRaffle {
		return nil, invalidArgument("total tickets must be between 1 and %d", maxTicketsPerRaffle)
	}

	var raffle *models.Raffle
	err = s.repo.Transaction(ctx, func(tx *repositories.Repository) error {
		raffle, err = lockRaffle(ctx, tx, id)
		if err != nil {
			return err
		}
		if raffle.Status != models.RaffleStatusActive {
			return conflict("only active raffles can be resized", nil, nil)
		}

		switch {
		case newTotal > raffle.TotalTickets:
			if err := tx.TicketRepo.CreateTicketRange(ctx, id, raffle.TotalTickets, newTotal); err != nil {
				return internal("failed to add tickets", err)
			}
		case newTotal < raffle.TotalTickets:
			deleted, err := tx.TicketRepo.DeleteFreeTicketsFrom(ctx, id, newTotal)
			if err != nil {
				return internal("failed to remove tickets", err)
			}
			if deleted != int64(raffle.TotalTickets-newTotal) {
				return conflict("tickets above the new total are reserved or paid", nil, nil)
			}
		default:
			return nil
		}

		raffle.TotalTickets = newTotal
		raffle.UpdatedAt = s.clock.Now()
		if err := tx.RaffleRepo.UpdateRaffle(ctx, raffle); err != nil {
			return internal("failed to update raffle", err)
		}
		return nil
	})
	if err != nil {
		return nil, asReservationError(err, "failed to resize raffle")
	}

	log.WithFields(log.Fields{"raffle_id": id, "total_tickets": newTotal}).Info("raffle resized")
	return raffle, nil
}

// UpdateRaffleStatus closes an active raffle. Completing it records a
// winning number, which must be a paid ticket; with winner nil one is drawn
// uniformly among the paid tickets.
func (s *RaffleService) UpdateRaffleStatus(ctx context.Context, raffleID, status string, winner *int) (*models.Raffle, error) {
	id, err := uuid.Parse(raffleID)
	if err != nil {
		return nil, invalidArgument("invalid raffle id")
	}
	if status != models.RaffleStatusCompleted && status != models.RaffleStatusCancelled {
		return nil, invalidArgument("status must be %q or %q", models.RaffleStatusCompleted, models.RaffleStatusCancelled)
	}

	var raffle *models.Raffle
	err = s.repo.Transaction(ctx, func(tx *repositories.Repository) error {
		raffle, err = lockRaffle(ctx, tx, id)
		if err != nil {
			return err
		}
		if raffle.Status != models.RaffleStatusActive {
			return conflict("raffle is already "+raffle.Status, nil, nil)
		}

		now := s.clock.Now()
		if status == models.RaffleStatusCompleted {
			number, err := s.pickWinner(ctx, tx, id, winner)
			if err != nil {
				return err
			}
			raffle.WinnerNumber = &number
			raffle.DrawDate = &now
		}

		raffle.Status = status
		raffle.UpdatedAt = now
		if err := tx.RaffleRepo.UpdateRaffle(ctx, raffle); err != nil {
			return internal("failed to update raffle", err)
		}
		return nil
	})
	if err != nil {
		return nil, asReservationError(err, "failed to update raffle")
	}

	fields := log.Fields{"raffle_id": id, "status": status}
	if raffle.WinnerNumber != nil {
		fields["winner"] = *raffle.WinnerNumber
	}
	log.WithFields(fields).Info("raffle closed")
	return raffle, nil
}

func (s *RaffleService) pickWinner(ctx context.Context, tx *repositories.Repository, raffleID uuid.UUID, winner *int) (int, error) {
	paid, err := tx.TicketRepo.ListTickets(ctx, raffleID, models.TicketStatusPaid)
	if err != nil {
		return 0, internal("failed to list paid tickets", err)
	}
	if len(paid) == 0 {
		return 0, conflict("no paid tickets to draw from", nil, nil)
	}

	if winner != nil {
		for _, t := range paid {
			if t.Number == *winner {
				return t.Number, nil
			}
		}
		return 0, invalidArgument("ticket %d is not a paid ticket", *winner)
	}

	idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(paid))))
	if err != nil {
		return 0, internal("failed to draw winner", err)
	}
	return paid[idx.Int64()].Number, nil
}

func (s *RaffleService) SetRaffleImage(ctx context.Context, raffleID, path string) (*models.Raffle, error) {
	raffle, err := s.GetRaffle(ctx, raffleID)
	if err != nil {
		return nil, err
	}
	raffle.ImagePath = path
	raffle.UpdatedAt = s.clock.Now()
	if err := s.repo.RaffleRepo.UpdateRaffle(ctx, raffle); err != nil {
		return nil, internal("failed to update raffle", err)
	}
	return raffle, nil
}

func (s *RaffleService) GetRaffle(ctx context.Context, raffleID string) (*models.Raffle, error) {
	id, err := uuid.Parse(raffleID)
	if err != nil {
		return nil, invalidArgument("invalid raffle id")
	}
	raffle, err := s.repo.RaffleRepo.GetRaffleByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, notFound("raffle not found", err)
		}
		return nil, internal("failed to get raffle", err)
	}
	return raffle, nil
}

func (s *RaffleService) ListRaffles(ctx context.Context, status string, page, pageSize int) (*RaffleList, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	raffles, total, err := s.repo.RaffleRepo.ListRaffles(ctx, status, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, internal("failed to list raffles", err)
	}

	return &RaffleList{
		Raffles:    raffles,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: int((total + int64(pageSize) - 1) / int64(pageSize)),
	}, nil
}

// ListTickets returns the grid with effective statuses. Filtering happens
// after the effective status is computed so an overdue reservation is
// listed under free. Nothing is written.
func (s *RaffleService) ListTickets(ctx context.Context, raffleID, status string) ([]TicketView, error) {
	raffle, err := s.GetRaffle(ctx, raffleID)
	if err != nil {
		return nil, err
	}

	tickets, err := s.repo.TicketRepo.ListTickets(ctx, raffle.ID, "")
	if err != nil {
		return nil, internal("failed to list tickets", err)
	}

	now := s.clock.Now()
	views := make([]TicketView, 0, len(tickets))
	for i := range tickets {
		effective := tickets[i].EffectiveStatus(now)
		if status != "" && effective != status {
			continue
		}
		view := TicketView{Number: tickets[i].Number, Status: effective}
		if effective == models.TicketStatusReserved {
			view.ExpiresAt = tickets[i].ExpiresAt
		}
		views = append(views, view)
	}
	return views, nil
}

// SetTicketsStatus is the admin bulk edit. It bypasses order bookkeeping
// entirely; payment confirmation re-validates against it.
func (s *RaffleService) SetTicketsStatus(ctx context.Context, raffleID string, numbers []int, status string) (int64, error) {
	switch status {
	case models.TicketStatusFree, models.TicketStatusReserved, models.TicketStatusPaid:
	default:
		return 0, invalidArgument("invalid ticket status %q", status)
	}

	raffle, err := s.GetRaffle(ctx, raffleID)
	if err != nil {
		return 0, err
	}

	normalized, err := normalizeTicketNumbers(numbers)
	if err != nil {
		return 0, err
	}
	for _, n := range normalized {
		if n >= raffle.TotalTickets {
			return 0, invalidArgument("ticket %d is out of range (0-%d)", n, raffle.TotalTickets-1)
		}
	}

	updated, err := s.repo.TicketRepo.SetTicketsStatus(ctx, raffle.ID, normalized, status, s.clock.Now())
	if err != nil {
		return 0, internal("failed to update tickets", err)
	}

	log.WithFields(log.Fields{
		"raffle_id": raffle.ID,
		"tickets":   normalized,
		"status":    status,
	}).Warn("tickets updated by admin")
	return updated, nil
}

func (s *RaffleService) Stats(ctx context.Context, raffleID string) (*RaffleStats, error) {
	raffle, err := s.GetRaffle(ctx, raffleID)
	if err != nil {
		return nil, err
	}

	tickets, err := s.repo.TicketRepo.CountTicketsByStatus(ctx, raffle.ID)
	if err != nil {
		return nil, internal("failed to count tickets", err)
	}
	orders, err := s.repo.OrderRepo.CountOrdersByStatus(ctx, raffle.ID)
	if err != nil {
		return nil, internal("failed to count orders", err)
	}
	revenue, err := s.repo.OrderRepo.SumPaidRevenue(ctx, raffle.ID)
	if err != nil {
		return nil, internal("failed to sum revenue", err)
	}

	stats := &RaffleStats{
		RaffleID:     raffle.ID,
		Title:        raffle.Title,
		TotalTickets: raffle.TotalTickets,
		Tickets:      tickets,
		Orders:       orders,
		Revenue:      revenue,
	}
	if raffle.TotalTickets > 0 {
		stats.SoldPercentage = float64(tickets[models.TicketStatusPaid]) * 100 / float64(raffle.TotalTickets)
	}
	return stats, nil
}

func lockRaffle(ctx context.Context, tx *repositories.Repository, id uuid.UUID) (*models.Raffle, error) {
	raffle, err := tx.RaffleRepo.GetRaffleForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, notFound("raffle not found", err)
		}
		return nil, internal("failed to get raffle", err)
	}
	return raffle, nil
}
