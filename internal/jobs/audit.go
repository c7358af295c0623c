// Package jobs holds the scheduled background work. Nothing here releases
// tickets or changes orders: expired reservations are only freed by an
// admin sweep or by a customer reading their own order.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// StaleCounter and OverdueCounter are the only store capabilities the audit
// gets, so it cannot write.
type StaleCounter interface {
	CountStaleReservations(ctx context.Context, now time.Time) (int64, error)
}

type OverdueCounter interface {
	CountOverduePending(ctx context.Context, now time.Time) (int64, error)
}

type AuditReport struct {
	StaleReservations int64     `json:"stale_reservations"`
	OverdueOrders     int64     `json:"overdue_orders"`
	CheckedAt         time.Time `json:"checked_at"`
}

type Auditor struct {
	tickets StaleCounter
	orders  OverdueCounter
	now     func() time.Time
}

func NewAuditor(tickets StaleCounter, orders OverdueCounter, now func() time.Time) *Auditor {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Auditor{tickets: tickets, orders: orders, now: now}
}

func (a *Auditor) Run(ctx context.Context) (*AuditReport, error) {
	now := a.now()

	stale, err := a.tickets.CountStaleReservations(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("count stale reservations: %w", err)
	}
	overdue, err := a.orders.CountOverduePending(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("count overdue orders: %w", err)
	}

	report := &AuditReport{StaleReservations: stale, OverdueOrders: overdue, CheckedAt: now}
	entry := log.WithFields(log.Fields{
		"stale_reservations": stale,
		"overdue_orders":     overdue,
	})
	if stale > 0 || overdue > 0 {
		entry.Warn("[CRON] expired reservations waiting for a manual sweep")
	} else {
		entry.Debug("[CRON] no expired reservations")
	}
	return report, nil
}

type Scheduler struct {
	cron    *cron.Cron
	auditor *Auditor
}

func NewScheduler(auditor *Auditor) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		auditor: auditor,
	}
}

// Start registers the audit under spec (standard five-field cron syntax)
// and starts the scheduler.
func (s *Scheduler) Start(ctx context.Context, spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		if _, err := s.auditor.Run(ctx); err != nil {
			log.WithError(err).Error("[CRON] reservation audit failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid audit schedule %q: %w", spec, err)
	}

	s.cron.Start()
	log.WithField("schedule", spec).Info("reservation audit scheduled")
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("scheduler stopped")
}
