package memrepo

import (
	"context"
	"errors"
	"testing"
	"time"

	"moto-isla-raffle/internal/models"
	"moto-isla-raffle/internal/repositories"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestTransactionRollsBack(t *testing.T) {
	store := New()
	repo := store.Repository()
	ctx := context.Background()
	raffleID := uuid.New()
	require.NoError(t, repo.TicketRepo.CreateTicketRange(ctx, raffleID, 0, 3))

	err := repo.Transaction(ctx, func(tx *repositories.Repository) error {
		now := time.Now()
		n, err := tx.TicketRepo.ReserveFreeTickets(ctx, raffleID, []int{0, 1}, uuid.New(), now, now.Add(time.Minute))
		require.NoError(t, err)
		require.Equal(t, int64(2), n)
		return errors.New("abort")
	})
	require.Error(t, err)

	for n := 0; n < 3; n++ {
		ticket, ok := store.Ticket(raffleID, n)
		require.True(t, ok)
		assert.Equal(t, models.TicketStatusFree, ticket.Status)
	}
}

func TestReserveFreeTicketsIsConditional(t *testing.T) {
	store := New()
	ctx := context.Background()
	raffleID := uuid.New()
	require.NoError(t, store.CreateTicketRange(ctx, raffleID, 0, 5))

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	first, second := uuid.New(), uuid.New()
	n, err := store.ReserveFreeTickets(ctx, raffleID, []int{1, 2}, first, now, now.Add(15*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = store.ReserveFreeTickets(ctx, raffleID, []int{2, 3}, second, now, now.Add(15*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ticket, _ := store.Ticket(raffleID, 2)
	assert.Equal(t, first, *ticket.OrderID)
}

func TestReserveFreeTicketsTakesLapsedReservation(t *testing.T) {
	store := New()
	ctx := context.Background()
	raffleID := uuid.New()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateTicketRange(ctx, raffleID, 0, 2))

	stale, fresh := uuid.New(), uuid.New()
	_, err := store.ReserveFreeTickets(ctx, raffleID, []int{0, 1}, stale, now.Add(-time.Hour), now.Add(-time.Minute))
	require.NoError(t, err)

	n, err := store.ReserveFreeTickets(ctx, raffleID, []int{0}, fresh, now, now.Add(15*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ticket, _ := store.Ticket(raffleID, 0)
	assert.Equal(t, models.TicketStatusReserved, ticket.Status)
	assert.Equal(t, fresh, *ticket.OrderID)
	assert.Equal(t, now.Add(15*time.Minute), *ticket.ExpiresAt)

	// The lapsed order releasing its tickets no longer reaches #0.
	released, err := store.ReleaseOrderTickets(ctx, raffleID, stale, []string{models.TicketStatusReserved})
	require.NoError(t, err)
	assert.Equal(t, int64(1), released)
	ticket, _ = store.Ticket(raffleID, 0)
	assert.Equal(t, fresh, *ticket.OrderID)
}

func TestRollbackKeepsWritesMadeOutsideTheTransaction(t *testing.T) {
	store := New()
	repo := store.Repository()
	ctx := context.Background()
	raffleID := uuid.New()
	require.NoError(t, repo.TicketRepo.CreateTicketRange(ctx, raffleID, 0, 3))

	written := make(chan error, 1)
	err := repo.Transaction(ctx, func(tx *repositories.Repository) error {
		go func() {
			written <- store.UpsertSetting(ctx, &models.Setting{
				Key:   "auto_cleanup_enabled",
				Value: datatypes.JSON("false"),
			})
		}()
		// Leave the writer time to land inside the transaction if it could.
		time.Sleep(20 * time.Millisecond)

		now := time.Now()
		_, err := tx.TicketRepo.ReserveFreeTickets(ctx, raffleID, []int{0}, uuid.New(), now, now.Add(time.Minute))
		require.NoError(t, err)
		return errors.New("abort")
	})
	require.Error(t, err)
	require.NoError(t, <-written)

	value, ok := store.SettingValue("auto_cleanup_enabled")
	require.True(t, ok)
	assert.JSONEq(t, "false", string(value))
	ticket, _ := store.Ticket(raffleID, 0)
	assert.Equal(t, models.TicketStatusFree, ticket.Status)
}

func TestNestedTransactionJoinsOuter(t *testing.T) {
	store := New()
	repo := store.Repository()
	ctx := context.Background()
	raffleID := uuid.New()

	err := repo.Transaction(ctx, func(tx *repositories.Repository) error {
		return tx.Transaction(ctx, func(inner *repositories.Repository) error {
			return inner.TicketRepo.CreateTicketRange(ctx, raffleID, 0, 2)
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 2, store.TicketCount(raffleID))
}

func TestReleaseExpiredReservations(t *testing.T) {
	store := New()
	ctx := context.Background()
	raffleID := uuid.New()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateTicketRange(ctx, raffleID, 0, 4))

	_, err := store.ReserveFreeTickets(ctx, raffleID, []int{0}, uuid.New(), now.Add(-time.Hour), now.Add(-time.Minute))
	require.NoError(t, err)
	_, err = store.ReserveFreeTickets(ctx, raffleID, []int{1}, uuid.New(), now, now.Add(time.Minute))
	require.NoError(t, err)

	stale, err := store.CountStaleReservations(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stale)

	released, err := store.ReleaseExpiredReservations(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), released)

	t0, _ := store.Ticket(raffleID, 0)
	t1, _ := store.Ticket(raffleID, 1)
	assert.Equal(t, models.TicketStatusFree, t0.Status)
	assert.Nil(t, t0.OrderID)
	assert.Equal(t, models.TicketStatusReserved, t1.Status)
}

func TestFailOn(t *testing.T) {
	store := New()
	boom := errors.New("boom")
	store.FailOn("ListSettings", boom)

	_, err := store.ListSettings(context.Background())
	assert.ErrorIs(t, err, boom)

	store.FailOn("ListSettings", nil)
	_, err = store.ListSettings(context.Background())
	assert.NoError(t, err)
}

func TestDeleteOrderMissing(t *testing.T) {
	err := New().DeleteOrder(context.Background(), uuid.New())
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}
