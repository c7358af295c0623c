package notifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

type EventType string

const (
	EventOrderCreated     EventType = "order_created"
	EventPaymentConfirmed EventType = "payment_confirmed"
	EventOrderCancelled   EventType = "order_cancelled"
)

// Event describes something the shop admin should hear about.
type Event struct {
	Type          EventType `json:"type"`
	OrderID       string    `json:"order_id"`
	RaffleID      string    `json:"raffle_id"`
	RaffleTitle   string    `json:"raffle_title"`
	CustomerName  string    `json:"customer_name"`
	CustomerPhone string    `json:"customer_phone"`
	TicketNumbers []int     `json:"ticket_numbers"`
	TotalAmount   float64   `json:"total_amount"`
	OccurredAt    time.Time `json:"occurred_at"`
}

type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

func (e Event) Text() string {
	var title string
	switch e.Type {
	case EventOrderCreated:
		title = "Nuevo pedido"
	case EventPaymentConfirmed:
		title = "Pago confirmado"
	case EventOrderCancelled:
		title = "Pedido cancelado"
	default:
		title = string(e.Type)
	}

	numbers := make([]string, len(e.TicketNumbers))
	for i, n := range e.TicketNumbers {
		numbers[i] = fmt.Sprintf("%d", n)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", title)
	if e.RaffleTitle != "" {
		fmt.Fprintf(&b, "Rifa: %s\n", e.RaffleTitle)
	}
	fmt.Fprintf(&b, "Pedido: %s\n", e.OrderID)
	fmt.Fprintf(&b, "Cliente: %s (%s)\n", e.CustomerName, e.CustomerPhone)
	fmt.Fprintf(&b, "Boletos: %s\n", strings.Join(numbers, ", "))
	fmt.Fprintf(&b, "Total: %.2f", e.TotalAmount)
	return b.String()
}

// LogNotifier only writes the event to the log. Used when no delivery
// channel is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, event Event) error {
	log.WithFields(log.Fields{
		"type":     event.Type,
		"order_id": event.OrderID,
		"tickets":  event.TicketNumbers,
	}).Info("admin notification")
	return nil
}
