package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"moto-isla-raffle/internal/models"
	"moto-isla-raffle/internal/notifications"
	"moto-isla-raffle/internal/repositories"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// ReservationService owns the order lifecycle and every ticket transition
// that follows from it.
type ReservationService struct {
	repo     *repositories.Repository
	settings SettingsProvider
	notifier notifications.Notifier
	clock    Clock
}

func NewReservationService(
	repo *repositories.Repository,
	settings SettingsProvider,
	notifier notifications.Notifier,
	clock Clock,
) *ReservationService {
	if notifier == nil {
		notifier = notifications.LogNotifier{}
	}
	if clock == nil {
		clock = SystemClock
	}
	return &ReservationService{
		repo:     repo,
		settings: settings,
		notifier: notifier,
		clock:    clock,
	}
}

type CreateOrderRequest struct {
	RaffleID      string `json:"raffle_id" validate:"required,uuid"`
	TicketNumbers []int  `json:"ticket_numbers" validate:"required,min=1,dive,min=0"`
	CustomerName  string `json:"customer_name" validate:"required,max=120"`
	CustomerPhone string `json:"customer_phone" validate:"required,min=7,max=20"`
	CustomerEmail string `json:"customer_email" validate:"omitempty,email"`
}

type CreateOrderResult struct {
	Order   *models.Order   `json:"order"`
	Tickets []models.Ticket `json:"tickets"`
}

type OrderStatusResult struct {
	Order            *models.Order `json:"order"`
	Valid            bool          `json:"valid"`
	Expired          bool          `json:"expired"`
	Paid             bool          `json:"paid"`
	RemainingSeconds int64         `json:"remaining_seconds"`
}

type CancelOrderResult struct {
	Order           *models.Order `json:"order"`
	TicketsReleased int64         `json:"tickets_released"`
}

type DeleteOrderResult struct {
	DeletedOrder    *models.Order `json:"deleted_order"`
	TicketsReleased int64         `json:"tickets_released"`
}

// OrderView is an order together with its status as of the read.
type OrderView struct {
	models.Order
	EffectiveStatus  string `json:"effective_status"`
	RemainingSeconds int64  `json:"remaining_seconds"`
}

// OrderSummary is what a public phone lookup reveals. It carries no
// customer name, phone or email.
type OrderSummary struct {
	ID               uuid.UUID `json:"id"`
	RaffleID         uuid.UUID `json:"raffle_id"`
	TicketNumbers    []int     `json:"ticket_numbers"`
	TotalAmount      float64   `json:"total_amount"`
	EffectiveStatus  string    `json:"effective_status"`
	RemainingSeconds int64     `json:"remaining_seconds"`
	PaymentDeadline  time.Time `json:"payment_deadline"`
	CreatedAt        time.Time `json:"created_at"`
}

type OrderListFilters struct {
	RaffleID string
	Status   string
	Phone    string
	Page     int
	PageSize int
}

type OrderList struct {
	Orders     []OrderView `json:"orders"`
	TotalCount int64       `json:"total_count"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	TotalPages int         `json:"total_pages"`
}

// CreateOrder reserves the requested tickets for a new pending order. The
// order insert and the conditional free->reserved update share a
// transaction: if any ticket is no longer free the whole order is rolled
// back and a Conflict naming the unavailable tickets is returned.
func (s *ReservationService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	raffleID, err := uuid.Parse(req.RaffleID)
	if err != nil {
		return nil, invalidArgument("invalid raffle id")
	}

	name := strings.TrimSpace(req.CustomerName)
	phone := normalizePhone(req.CustomerPhone)
	if name == "" || phone == "" {
		return nil, invalidArgument("customer name and phone are required")
	}

	numbers, err := normalizeTicketNumbers(req.TicketNumbers)
	if err != nil {
		return nil, err
	}

	settings, err := s.settings.GetSettings(ctx)
	if err != nil {
		return nil, internal("failed to load settings", err)
	}
	if settings.SiteMaintenance {
		return nil, forbidden("the site is under maintenance, orders are paused")
	}

	raffle, err := s.repo.RaffleRepo.GetRaffleByID(ctx, raffleID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, notFound("raffle not found", err)
		}
		return nil, internal("failed to get raffle", err)
	}
	if raffle.Status != models.RaffleStatusActive {
		return nil, forbidden("raffle is not accepting orders")
	}

	if err := checkOrderSize(numbers, raffle, settings); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	deadline := now.Add(time.Duration(settings.ReservationTimeoutMinutes) * time.Minute)

	order := &models.Order{
		ID:              uuid.New(),
		RaffleID:        raffle.ID,
		TicketNumbers:   numbers,
		TotalAmount:     float64(len(numbers)) * raffle.TicketPrice,
		Status:          models.OrderStatusPending,
		PaymentDeadline: deadline,
		CustomerName:    name,
		CustomerPhone:   phone,
		CustomerEmail:   strings.TrimSpace(strings.ToLower(req.CustomerEmail)),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	var tickets []models.Ticket
	err = s.repo.Transaction(ctx, func(tx *repositories.Repository) error {
		if err := tx.OrderRepo.CreateOrder(ctx, order); err != nil {
			return internal("failed to create order", err)
		}

		reserved, err := tx.TicketRepo.ReserveFreeTickets(ctx, raffle.ID, numbers, order.ID, now, deadline)
		if err != nil {
			return internal("failed to reserve tickets", err)
		}
		if reserved != int64(len(numbers)) {
			return s.reservationConflict(ctx, tx, raffle.ID, numbers, order.ID)
		}

		tickets, err = tx.TicketRepo.GetTickets(ctx, raffle.ID, numbers)
		if err != nil {
			return internal("failed to read reserved tickets", err)
		}
		return nil
	})
	if err != nil {
		return nil, asReservationError(err, "failed to create order")
	}

	log.WithFields(log.Fields{
		"order_id":  order.ID,
		"raffle_id": raffle.ID,
		"tickets":   numbers,
		"deadline":  deadline,
	}).Info("order created")

	s.notify(ctx, notifications.EventOrderCreated, order, raffle.Title)

	return &CreateOrderResult{Order: order, Tickets: tickets}, nil
}

// reservationConflict builds the Conflict for a partial reservation. It
// runs inside the transaction that is about to roll back.
func (s *ReservationService) reservationConflict(
	ctx context.Context,
	tx *repositories.Repository,
	raffleID uuid.UUID,
	numbers []int,
	orderID uuid.UUID,
) error {
	current, err := tx.TicketRepo.GetTickets(ctx, raffleID, numbers)
	if err != nil {
		return internal("failed to read tickets", err)
	}

	byNumber := make(map[int]models.Ticket, len(current))
	for _, t := range current {
		byNumber[t.Number] = t
	}

	taken := []int{}
	holders := []uuid.UUID{}
	seen := make(map[uuid.UUID]struct{})
	for _, n := range numbers {
		t, ok := byNumber[n]
		if ok && t.OrderID != nil && *t.OrderID == orderID {
			continue
		}
		taken = append(taken, n)
		if ok && t.OrderID != nil {
			if _, dup := seen[*t.OrderID]; !dup {
				seen[*t.OrderID] = struct{}{}
				holders = append(holders, *t.OrderID)
			}
		}
	}

	return conflict("some tickets are no longer available", taken, holders)
}

// GetOrderStatus reports the order as of now. A pending order found past
// its deadline is cancelled and its reserved tickets released on the spot;
// this read, a sweep or an admin action are the only paths that free an
// expired reservation.
func (s *ReservationService) GetOrderStatus(ctx context.Context, orderID string) (*OrderStatusResult, error) {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	switch order.EffectiveStatus(now) {
	case models.OrderStatusPaid:
		return &OrderStatusResult{Order: order, Valid: true, Paid: true}, nil
	case models.OrderStatusCancelled:
		return nil, gone("order was cancelled")
	case models.OrderStatusExpired:
		if order.Status == models.OrderStatusPending {
			if err := s.expireOrder(ctx, order); err != nil {
				return nil, err
			}
		}
		return nil, gone("reservation expired")
	default:
		return &OrderStatusResult{
			Order:            order,
			Valid:            true,
			RemainingSeconds: order.RemainingSeconds(now),
		}, nil
	}
}

func (s *ReservationService) expireOrder(ctx context.Context, order *models.Order) error {
	var released int64
	err := s.repo.Transaction(ctx, func(tx *repositories.Repository) error {
		updated, err := tx.OrderRepo.UpdateOrderStatus(ctx, order.ID,
			[]string{models.OrderStatusPending}, models.OrderStatusCancelled, nil)
		if err != nil {
			return err
		}
		if updated == 0 {
			// Someone else moved it first.
			return nil
		}
		released, err = tx.TicketRepo.ReleaseOrderTickets(ctx, order.RaffleID, order.ID,
			[]string{models.TicketStatusReserved})
		return err
	})
	if err != nil {
		return internal("failed to expire order", err)
	}

	log.WithFields(log.Fields{
		"order_id":         order.ID,
		"tickets_released": released,
	}).Info("expired order cancelled on read")
	return nil
}

// CancelOrder cancels a customer's order and frees its reserved tickets.
// Cancelling an already cancelled or expired order succeeds without
// changes. Paid orders can only be cancelled through AdminCancelOrder.
func (s *ReservationService) CancelOrder(ctx context.Context, orderID string) (*CancelOrderResult, error) {
	return s.cancel(ctx, orderID, false)
}

// AdminCancelOrder also cancels paid orders, returning their tickets to
// the pool.
func (s *ReservationService) AdminCancelOrder(ctx context.Context, orderID string) (*CancelOrderResult, error) {
	return s.cancel(ctx, orderID, true)
}

func (s *ReservationService) cancel(ctx context.Context, orderID string, admin bool) (*CancelOrderResult, error) {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == models.OrderStatusCancelled || order.Status == models.OrderStatusExpired {
		return &CancelOrderResult{Order: order}, nil
	}

	from := []string{models.OrderStatusPending}
	releasable := []string{models.TicketStatusReserved}
	if admin {
		from = append(from, models.OrderStatusPaid)
		releasable = append(releasable, models.TicketStatusPaid)
	} else if order.Status == models.OrderStatusPaid {
		return nil, conflict("paid orders can only be cancelled by an administrator", nil, nil)
	}

	var released int64
	err = s.repo.Transaction(ctx, func(tx *repositories.Repository) error {
		updated, err := tx.OrderRepo.UpdateOrderStatus(ctx, order.ID, from, models.OrderStatusCancelled, nil)
		if err != nil {
			return internal("failed to cancel order", err)
		}
		if updated == 0 {
			current, err := tx.OrderRepo.GetOrderByID(ctx, order.ID)
			if err != nil {
				return internal("failed to re-read order", err)
			}
			if current.Status == models.OrderStatusCancelled || current.Status == models.OrderStatusExpired {
				return nil
			}
			return conflict("order status changed concurrently", nil, []uuid.UUID{order.ID})
		}

		released, err = tx.TicketRepo.ReleaseOrderTickets(ctx, order.RaffleID, order.ID, releasable)
		if err != nil {
			return internal("failed to release tickets", err)
		}
		return nil
	})
	if err != nil {
		return nil, asReservationError(err, "failed to cancel order")
	}

	order.Status = models.OrderStatusCancelled
	log.WithFields(log.Fields{
		"order_id":         order.ID,
		"tickets_released": released,
		"admin":            admin,
	}).Info("order cancelled")

	if admin {
		s.notify(ctx, notifications.EventOrderCancelled, order, "")
	}

	return &CancelOrderResult{Order: order, TicketsReleased: released}, nil
}

// ConfirmPayment marks the order paid and its tickets paid. Conflict
// validation runs once as a fast path, then again inside the transaction
// with the ticket rows locked; the paid write itself only touches rows not
// already paid by another order, so a racing confirmation cannot double
// sell a ticket.
func (s *ReservationService) ConfirmPayment(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == models.OrderStatusPaid {
		return order, nil
	}

	numbers := []int(order.TicketNumbers)

	check, err := ValidateTicketAvailability(ctx, s.repo.OrderRepo, numbers, order.RaffleID, &order.ID)
	if err != nil {
		return nil, internal("failed to validate tickets", err)
	}
	if !check.IsValid {
		return nil, conflict(check.Message, check.ConflictingTickets, check.ConflictingOrders)
	}

	now := s.clock.Now()
	err = s.repo.Transaction(ctx, func(tx *repositories.Repository) error {
		locked, err := tx.TicketRepo.LockTickets(ctx, order.RaffleID, numbers)
		if err != nil {
			return internal("failed to lock tickets", err)
		}
		if len(locked) != len(numbers) {
			return conflict("some tickets no longer exist", missingNumbers(numbers, locked), nil)
		}

		// An order that lapsed or was cancelled gave up its reservations.
		// Tickets another order has reserved since then are not taken back.
		if order.EffectiveStatus(now) != models.OrderStatusPending {
			if held, holders := heldByOthers(locked, order.ID, now); len(held) > 0 {
				return conflict("some tickets are reserved by another order", held, holders)
			}
		}

		check, err := ValidateTicketAvailability(ctx, tx.OrderRepo, numbers, order.RaffleID, &order.ID)
		if err != nil {
			return internal("failed to validate tickets", err)
		}
		if !check.IsValid {
			return conflict(check.Message, check.ConflictingTickets, check.ConflictingOrders)
		}

		updated, err := tx.OrderRepo.UpdateOrderStatus(ctx, order.ID,
			[]string{models.OrderStatusPending, models.OrderStatusExpired, models.OrderStatusCancelled},
			models.OrderStatusPaid, &now)
		if err != nil {
			return internal("failed to update order", err)
		}
		if updated == 0 {
			return conflict("order status changed concurrently", nil, []uuid.UUID{order.ID})
		}

		marked, err := tx.TicketRepo.MarkTicketsPaid(ctx, order.RaffleID, numbers, order.ID, now)
		if err != nil {
			return internal("failed to mark tickets paid", err)
		}
		if marked != int64(len(numbers)) {
			return conflict("some tickets are already paid", paidElsewhere(locked, order.ID), nil)
		}
		return nil
	})
	if err != nil {
		return nil, asReservationError(err, "failed to confirm payment")
	}

	order.Status = models.OrderStatusPaid
	order.PaidAt = &now

	log.WithFields(log.Fields{
		"order_id":  order.ID,
		"raffle_id": order.RaffleID,
		"tickets":   numbers,
	}).Info("payment confirmed")

	s.notify(ctx, notifications.EventPaymentConfirmed, order, "")

	return order, nil
}

// DeleteOrder frees the order's tickets, whatever their status, and removes
// the order row. Not reversible.
func (s *ReservationService) DeleteOrder(ctx context.Context, orderID string) (*DeleteOrderResult, error) {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	var released int64
	err = s.repo.Transaction(ctx, func(tx *repositories.Repository) error {
		released, err = tx.TicketRepo.ReleaseOrderTickets(ctx, order.RaffleID, order.ID,
			[]string{models.TicketStatusReserved, models.TicketStatusPaid})
		if err != nil {
			return internal("failed to release tickets", err)
		}
		if err := tx.OrderRepo.DeleteOrder(ctx, order.ID); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return notFound("order not found", err)
			}
			return internal("failed to delete order", err)
		}
		return nil
	})
	if err != nil {
		return nil, asReservationError(err, "failed to delete order")
	}

	log.WithFields(log.Fields{
		"order_id":         order.ID,
		"status":           order.Status,
		"tickets_released": released,
	}).Warn("order deleted")

	return &DeleteOrderResult{DeletedOrder: order, TicketsReleased: released}, nil
}

// AdminUpdateOrderStatus is the admin PATCH: paid confirms, cancelled
// cancels. Nothing else is settable by hand.
func (s *ReservationService) AdminUpdateOrderStatus(ctx context.Context, orderID, status string) (*models.Order, error) {
	switch status {
	case models.OrderStatusPaid:
		return s.ConfirmPayment(ctx, orderID)
	case models.OrderStatusCancelled:
		res, err := s.AdminCancelOrder(ctx, orderID)
		if err != nil {
			return nil, err
		}
		return res.Order, nil
	default:
		return nil, invalidArgument("status must be %q or %q", models.OrderStatusPaid, models.OrderStatusCancelled)
	}
}

func (s *ReservationService) GetOrder(ctx context.Context, orderID string) (*OrderView, error) {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	view := s.view(*order)
	return &view, nil
}

func (s *ReservationService) ListOrders(ctx context.Context, filters OrderListFilters) (*OrderList, error) {
	page, pageSize := filters.Page, filters.PageSize
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	repoFilters := repositories.OrderFilters{
		Status: filters.Status,
		Phone:  normalizePhone(filters.Phone),
	}
	if filters.RaffleID != "" {
		id, err := uuid.Parse(filters.RaffleID)
		if err != nil {
			return nil, invalidArgument("invalid raffle id")
		}
		repoFilters.RaffleID = &id
	}

	orders, total, err := s.repo.OrderRepo.ListOrders(ctx, repoFilters, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, internal("failed to list orders", err)
	}

	views := make([]OrderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, s.view(o))
	}

	return &OrderList{
		Orders:     views,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: int((total + int64(pageSize) - 1) / int64(pageSize)),
	}, nil
}

// LookupOrdersByPhone lets a customer find their own orders. Anyone can
// call it, so only summaries come back.
func (s *ReservationService) LookupOrdersByPhone(ctx context.Context, phone string) ([]OrderSummary, error) {
	phone = normalizePhone(phone)
	if len(phone) < 7 {
		return nil, invalidArgument("a valid phone number is required")
	}

	list, err := s.ListOrders(ctx, OrderListFilters{Phone: phone, PageSize: 50})
	if err != nil {
		return nil, err
	}

	out := make([]OrderSummary, 0, len(list.Orders))
	for _, v := range list.Orders {
		out = append(out, OrderSummary{
			ID:               v.ID,
			RaffleID:         v.RaffleID,
			TicketNumbers:    append([]int(nil), v.TicketNumbers...),
			TotalAmount:      v.TotalAmount,
			EffectiveStatus:  v.EffectiveStatus,
			RemainingSeconds: v.RemainingSeconds,
			PaymentDeadline:  v.PaymentDeadline,
			CreatedAt:        v.CreatedAt,
		})
	}
	return out, nil
}

func (s *ReservationService) view(o models.Order) OrderView {
	now := s.clock.Now()
	return OrderView{
		Order:            o,
		EffectiveStatus:  o.EffectiveStatus(now),
		RemainingSeconds: o.RemainingSeconds(now),
	}
}

func (s *ReservationService) getOrder(ctx context.Context, orderID string) (*models.Order, error) {
	id, err := uuid.Parse(orderID)
	if err != nil {
		return nil, invalidArgument("invalid order id")
	}

	order, err := s.repo.OrderRepo.GetOrderByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, notFound("order not found", err)
		}
		return nil, internal("failed to get order", err)
	}
	return order, nil
}

// notify never fails the caller; delivery problems are only logged.
func (s *ReservationService) notify(ctx context.Context, kind notifications.EventType, order *models.Order, raffleTitle string) {
	event := notifications.Event{
		Type:          kind,
		OrderID:       order.ID.String(),
		RaffleID:      order.RaffleID.String(),
		RaffleTitle:   raffleTitle,
		CustomerName:  order.CustomerName,
		CustomerPhone: order.CustomerPhone,
		TicketNumbers: []int(order.TicketNumbers),
		TotalAmount:   order.TotalAmount,
		OccurredAt:    s.clock.Now(),
	}
	if err := s.notifier.Notify(ctx, event); err != nil {
		log.WithError(err).WithField("order_id", order.ID).Warn("failed to notify admin")
	}
}

func normalizeTicketNumbers(numbers []int) ([]int, error) {
	if len(numbers) == 0 {
		return nil, invalidArgument("at least one ticket is required")
	}

	seen := make(map[int]struct{}, len(numbers))
	out := make([]int, 0, len(numbers))
	for _, n := range numbers {
		if n < 0 {
			return nil, invalidArgument("invalid ticket number %d", n)
		}
		if _, dup := seen[n]; dup {
			return nil, invalidArgument("ticket %d is repeated", n)
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Ints(out)
	return out, nil
}

func checkOrderSize(numbers []int, raffle *models.Raffle, settings *Settings) error {
	for _, n := range numbers {
		if n >= raffle.TotalTickets {
			return invalidArgument("ticket %d is out of range (0-%d)", n, raffle.TotalTickets-1)
		}
	}
	if settings.MaxTicketsPerOrder > 0 && len(numbers) > settings.MaxTicketsPerOrder {
		return invalidArgument("at most %d tickets per order", settings.MaxTicketsPerOrder)
	}
	if raffle.MaxTicketsPerUser > 0 && len(numbers) > raffle.MaxTicketsPerUser {
		return invalidArgument("at most %d tickets per order for this raffle", raffle.MaxTicketsPerUser)
	}
	return nil
}

func normalizePhone(phone string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(phone) {
		if r >= '0' && r <= '9' || (r == '+' && i == 0) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func missingNumbers(numbers []int, found []models.Ticket) []int {
	present := make(map[int]struct{}, len(found))
	for _, t := range found {
		present[t.Number] = struct{}{}
	}
	missing := []int{}
	for _, n := range numbers {
		if _, ok := present[n]; !ok {
			missing = append(missing, n)
		}
	}
	return missing
}

// heldByOthers lists the tickets under a live reservation that does not
// belong to orderID, with the orders holding them.
func heldByOthers(tickets []models.Ticket, orderID uuid.UUID, now time.Time) ([]int, []uuid.UUID) {
	numbers := []int{}
	holders := []uuid.UUID{}
	seen := make(map[uuid.UUID]struct{})
	for i := range tickets {
		t := &tickets[i]
		if t.EffectiveStatus(now) != models.TicketStatusReserved {
			continue
		}
		if t.OrderID != nil && *t.OrderID == orderID {
			continue
		}
		numbers = append(numbers, t.Number)
		if t.OrderID == nil {
			continue
		}
		if _, dup := seen[*t.OrderID]; !dup {
			seen[*t.OrderID] = struct{}{}
			holders = append(holders, *t.OrderID)
		}
	}
	return numbers, holders
}

func paidElsewhere(tickets []models.Ticket, orderID uuid.UUID) []int {
	out := []int{}
	for _, t := range tickets {
		if t.Status == models.TicketStatusPaid && (t.OrderID == nil || *t.OrderID != orderID) {
			out = append(out, t.Number)
		}
	}
	return out
}

// asReservationError passes typed errors through and wraps anything else
// as Internal.
func asReservationError(err error, message string) error {
	var rerr *ReservationError
	if errors.As(err, &rerr) {
		return rerr
	}
	return internal(message, err)
}
