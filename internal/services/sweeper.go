package services

import (
	"context"

	"moto-isla-raffle/internal/repositories"

	log "github.com/sirupsen/logrus"
)

type SweepResult struct {
	Skipped         bool  `json:"skipped"`
	ReleasedTickets int64 `json:"released_tickets"`
	ExpiredOrders   int64 `json:"expired_orders"`
}

// Sweeper releases reservations past their deadline. It only runs when an
// admin asks for it; nothing in the process schedules it.
type Sweeper struct {
	repo     *repositories.Repository
	settings SettingsProvider
	clock    Clock
}

func NewSweeper(repo *repositories.Repository, settings SettingsProvider, clock Clock) *Sweeper {
	if clock == nil {
		clock = SystemClock
	}
	return &Sweeper{repo: repo, settings: settings, clock: clock}
}

// SweepExpired frees reserved tickets whose expiry has passed and marks
// overdue pending orders expired. With auto_cleanup_enabled off it reports
// Skipped and touches nothing.
func (s *Sweeper) SweepExpired(ctx context.Context) (*SweepResult, error) {
	settings, err := s.settings.GetSettings(ctx)
	if err != nil {
		return nil, internal("failed to load settings", err)
	}
	if !settings.AutoCleanupEnabled {
		log.Info("sweep skipped: auto cleanup disabled")
		return &SweepResult{Skipped: true}, nil
	}

	now := s.clock.Now()
	result := &SweepResult{}
	err = s.repo.Transaction(ctx, func(tx *repositories.Repository) error {
		released, err := tx.TicketRepo.ReleaseExpiredReservations(ctx, now)
		if err != nil {
			return err
		}
		expired, err := tx.OrderRepo.ExpirePendingOrders(ctx, now)
		if err != nil {
			return err
		}
		result.ReleasedTickets = released
		result.ExpiredOrders = expired
		return nil
	})
	if err != nil {
		return nil, internal("failed to sweep expired reservations", err)
	}

	log.WithFields(log.Fields{
		"released_tickets": result.ReleasedTickets,
		"expired_orders":   result.ExpiredOrders,
	}).Info("sweep completed")

	return result, nil
}
