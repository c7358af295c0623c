package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"moto-isla-raffle/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func TestReserveFreeTicketsOnlyTouchesFreeRows(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTicketRepository(db)

	mock.ExpectExec(`UPDATE "tickets" SET .* WHERE \(raffle_id = \$\d+ AND number IN \(\$\d+,\$\d+,\$\d+\)\) AND \(status = \$\d+ OR \(status = \$\d+ AND expires_at < \$\d+\)\)`).
		WillReturnResult(sqlmock.NewResult(0, 2))

	now := time.Now()
	n, err := repo.ReserveFreeTickets(context.Background(), uuid.New(), []int{1, 2, 3}, uuid.New(), now, now.Add(15*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "a short count tells the caller some tickets were taken")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkTicketsPaidSkipsTicketsPaidByOtherOrders(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTicketRepository(db)

	mock.ExpectExec(`UPDATE "tickets" SET .* WHERE \(raffle_id = \$\d+ AND number IN \(\$\d+\)\) AND \(status <> \$\d+ OR order_id = \$\d+\)`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := repo.MarkTicketsPaid(context.Background(), uuid.New(), []int{9}, uuid.New(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockTicketsSelectsForUpdateInNumberOrder(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTicketRepository(db)
	raffleID := uuid.New()

	rows := sqlmock.NewRows([]string{"raffle_id", "number", "status"}).
		AddRow(raffleID.String(), 3, models.TicketStatusReserved).
		AddRow(raffleID.String(), 8, models.TicketStatusFree)
	mock.ExpectQuery(`SELECT \* FROM "tickets" WHERE raffle_id = \$1 AND number IN \(\$2,\$3\) ORDER BY number ASC FOR UPDATE`).
		WillReturnRows(rows)

	tickets, err := repo.LockTickets(context.Background(), raffleID, []int{8, 3})
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	assert.Equal(t, 3, tickets[0].Number)
	assert.Equal(t, models.TicketStatusReserved, tickets[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountTicketsByStatus(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTicketRepository(db)

	mock.ExpectQuery(`SELECT status, count\(\*\) AS count FROM "tickets" WHERE raffle_id = \$1 GROUP BY "status"`).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow(models.TicketStatusFree, 8).
			AddRow(models.TicketStatusPaid, 2))

	counts, err := repo.CountTicketsByStatus(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{models.TicketStatusFree: 8, models.TicketStatusPaid: 2}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrderByIDNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOrderRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "orders" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetOrderByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOrderStatusIsConditional(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOrderRepository(db)

	mock.ExpectExec(`UPDATE "orders" SET .*"status"=\$\d+.* WHERE id = \$\d+ AND status IN \(\$\d+,\$\d+\)`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	n, err := repo.UpdateOrderStatus(context.Background(), uuid.New(),
		[]string{models.OrderStatusPending, models.OrderStatusExpired}, models.OrderStatusCancelled, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteOrderMissingRow(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOrderRepository(db)

	mock.ExpectExec(`DELETE FROM "orders" WHERE id = \$1`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.DeleteOrder(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSumPaidRevenue(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOrderRepository(db)

	mock.ExpectQuery(`SELECT COALESCE\(SUM\(total_amount\), 0\) FROM "orders" WHERE raffle_id = \$1 AND status = \$2`).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(42.5))

	total, err := repo.SumPaidRevenue(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 42.5, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSetting(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSettingRepository(db)

	mock.ExpectExec(`INSERT INTO "settings" .* ON CONFLICT \("key"\) DO UPDATE SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpsertSetting(context.Background(), &models.Setting{
		Key:   "reservation_timeout_minutes",
		Value: datatypes.JSON(`30`),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSettingIfMissingDoesNothingOnConflict(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSettingRepository(db)

	mock.ExpectExec(`INSERT INTO "settings" .* ON CONFLICT DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.CreateSettingIfMissing(context.Background(), &models.Setting{
		Key:   "auto_cleanup_enabled",
		Value: datatypes.JSON(`true`),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRepository(db)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "orders" SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	err := repo.Transaction(context.Background(), func(tx *Repository) error {
		if _, err := tx.OrderRepo.UpdateOrderStatus(context.Background(), uuid.New(),
			[]string{models.OrderStatusPending}, models.OrderStatusPaid, nil); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTranslateError(t *testing.T) {
	assert.ErrorIs(t, translateError(gorm.ErrRecordNotFound), ErrNotFound)
	assert.ErrorIs(t, translateError(&pgconn.PgError{Code: "23505"}), ErrDuplicate)

	other := &pgconn.PgError{Code: "40001"}
	assert.Equal(t, error(other), translateError(other))
	assert.NoError(t, translateError(nil))
}
