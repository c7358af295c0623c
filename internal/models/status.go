package models

import "time"

// EffectiveStatus is the order status as seen at now. A pending order whose
// payment deadline has passed reads as expired even before anything has
// written that transition to storage.
func (o *Order) EffectiveStatus(now time.Time) string {
	if o.Status == OrderStatusPending && now.After(o.PaymentDeadline) {
		return OrderStatusExpired
	}
	return o.Status
}

// RemainingSeconds is the time left to pay, floored at zero.
func (o *Order) RemainingSeconds(now time.Time) int64 {
	if o.Status != OrderStatusPending {
		return 0
	}
	remaining := o.PaymentDeadline.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int64(remaining / time.Second)
}

// EffectiveStatus reports a reserved ticket past its expiry as free. The
// grid shows it free and a new order may reserve it. Otherwise storage keeps
// it reserved until a sweep or a status read of its order releases it.
func (t *Ticket) EffectiveStatus(now time.Time) string {
	if t.Status == TicketStatusReserved && t.ExpiresAt != nil && now.After(*t.ExpiresAt) {
		return TicketStatusFree
	}
	return t.Status
}
