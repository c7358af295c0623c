package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

type ReservationErrorType string

const (
	ErrInvalidArgument ReservationErrorType = "INVALID_ARGUMENT"
	ErrNotFound        ReservationErrorType = "NOT_FOUND"
	ErrGone            ReservationErrorType = "GONE"
	ErrConflict        ReservationErrorType = "CONFLICT"
	ErrForbidden       ReservationErrorType = "FORBIDDEN"
	ErrInternal        ReservationErrorType = "INTERNAL"
)

// ReservationError is the error type returned by every service in this
// package. Conflict errors carry the offending tickets and orders.
type ReservationError struct {
	Message            string               `json:"message"`
	Code               ReservationErrorType `json:"code"`
	Details            error                `json:"-"`
	ConflictingTickets []int                `json:"conflicting_tickets,omitempty"`
	ConflictingOrders  []uuid.UUID          `json:"conflicting_orders,omitempty"`
}

func (e *ReservationError) Error() string {
	if e.Details != nil {
		return fmt.Sprintf("%s [%s]: %v", e.Message, e.Code, e.Details)
	}
	return fmt.Sprintf("%s [%s]", e.Message, e.Code)
}

func (e *ReservationError) Unwrap() error {
	return e.Details
}

func NewReservationError(message string, code ReservationErrorType, details error) *ReservationError {
	return &ReservationError{
		Message: message,
		Code:    code,
		Details: details,
	}
}

func invalidArgument(format string, args ...interface{}) *ReservationError {
	return NewReservationError(fmt.Sprintf(format, args...), ErrInvalidArgument, nil)
}

func notFound(message string, err error) *ReservationError {
	return NewReservationError(message, ErrNotFound, err)
}

func gone(message string) *ReservationError {
	return NewReservationError(message, ErrGone, nil)
}

func forbidden(message string) *ReservationError {
	return NewReservationError(message, ErrForbidden, nil)
}

func internal(message string, err error) *ReservationError {
	return NewReservationError(message, ErrInternal, err)
}

func conflict(message string, tickets []int, orders []uuid.UUID) *ReservationError {
	e := NewReservationError(message, ErrConflict, nil)
	e.ConflictingTickets = tickets
	e.ConflictingOrders = orders
	return e
}

// GetReservationErrorCode returns the code of the first ReservationError in
// err's chain, or "" when there is none.
func GetReservationErrorCode(err error) ReservationErrorType {
	var rerr *ReservationError
	if errors.As(err, &rerr) {
		return rerr.Code
	}
	return ""
}
