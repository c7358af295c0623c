package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetReservationErrorCode(t *testing.T) {
	cause := errors.New("connection refused")

	tests := []struct {
		name string
		err  error
		want ReservationErrorType
	}{
		{"typed", notFound("order not found", nil), ErrNotFound},
		{"wrapped", fmt.Errorf("create order: %w", gone("reservation expired")), ErrGone},
		{"internal keeps cause", internal("failed to reserve tickets", cause), ErrInternal},
		{"plain error", cause, ""},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetReservationErrorCode(tt.err))
		})
	}
}

func TestAsReservationErrorWrapsUntypedErrors(t *testing.T) {
	cause := errors.New("disk full")

	err := asReservationError(cause, "failed to cancel order")
	assert.Equal(t, ErrInternal, GetReservationErrorCode(err))
	assert.ErrorIs(t, err, cause)

	typed := conflict("some tickets are no longer available", []int{4}, nil)
	assert.Same(t, typed, asReservationError(typed, "ignored"))
}
