package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"moto-isla-raffle/internal/repositories"

	"github.com/google/uuid"
)

// AvailabilityResult reports whether a set of tickets is still free of
// paid claims by other orders.
type AvailabilityResult struct {
	IsValid            bool        `json:"is_valid"`
	ConflictingTickets []int       `json:"conflicting_tickets"`
	ConflictingOrders  []uuid.UUID `json:"conflicting_orders"`
	Message            string      `json:"message"`
}

// ValidateTicketAvailability intersects numbers with the tickets of every
// paid order of the raffle except excludeOrderID. It only reads.
func ValidateTicketAvailability(
	ctx context.Context,
	orders repositories.OrderRepository,
	numbers []int,
	raffleID uuid.UUID,
	excludeOrderID *uuid.UUID,
) (*AvailabilityResult, error) {
	paid, err := orders.ListPaidOrdersByRaffle(ctx, raffleID, excludeOrderID)
	if err != nil {
		return nil, err
	}

	wanted := make(map[int]struct{}, len(numbers))
	for _, n := range numbers {
		wanted[n] = struct{}{}
	}

	seenTickets := make(map[int]struct{})
	seenOrders := make(map[uuid.UUID]struct{})
	result := &AvailabilityResult{
		ConflictingTickets: []int{},
		ConflictingOrders:  []uuid.UUID{},
	}

	for _, order := range paid {
		for _, n := range order.TicketNumbers {
			if _, ok := wanted[n]; !ok {
				continue
			}
			if _, dup := seenTickets[n]; !dup {
				seenTickets[n] = struct{}{}
				result.ConflictingTickets = append(result.ConflictingTickets, n)
			}
			if _, dup := seenOrders[order.ID]; !dup {
				seenOrders[order.ID] = struct{}{}
				result.ConflictingOrders = append(result.ConflictingOrders, order.ID)
			}
		}
	}

	sort.Ints(result.ConflictingTickets)
	result.IsValid = len(result.ConflictingTickets) == 0
	if result.IsValid {
		result.Message = "All tickets are available"
	} else {
		result.Message = fmt.Sprintf("Tickets %s are already paid in another order", joinInts(result.ConflictingTickets))
	}
	return result, nil
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(parts, ", ")
}
