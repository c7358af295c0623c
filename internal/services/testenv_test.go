package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"moto-isla-raffle/internal/models"
	"moto-isla-raffle/internal/repositories"
	"moto-isla-raffle/internal/repositories/memrepo"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	store        *memrepo.Store
	repo         *repositories.Repository
	clock        *fakeClock
	settings     *SettingsService
	reservations *ReservationService
	raffles      *RaffleService
	sweeper      *Sweeper
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memrepo.New()
	repo := store.Repository()
	clock := newFakeClock()
	settings := NewSettingsService(repo, SettingsDefaults{ReservationTimeoutMinutes: 15, MaxTicketsPerOrder: 100}, clock)
	require.NoError(t, settings.SeedDefaults(context.Background()))

	return &testEnv{
		store:        store,
		repo:         repo,
		clock:        clock,
		settings:     settings,
		reservations: NewReservationService(repo, settings, nil, clock),
		raffles:      NewRaffleService(repo, clock),
		sweeper:      NewSweeper(repo, settings, clock),
	}
}

func (e *testEnv) createRaffle(t *testing.T, total int, price float64) *models.Raffle {
	t.Helper()
	raffle, err := e.raffles.CreateRaffle(context.Background(), CreateRaffleRequest{
		Title:        "Honda XR 150",
		TicketPrice:  price,
		TotalTickets: total,
	})
	require.NoError(t, err)
	return raffle
}

func (e *testEnv) createOrder(t *testing.T, raffle *models.Raffle, numbers ...int) *models.Order {
	t.Helper()
	res, err := e.reservations.CreateOrder(context.Background(), CreateOrderRequest{
		RaffleID:      raffle.ID.String(),
		TicketNumbers: numbers,
		CustomerName:  "Ana Pérez",
		CustomerPhone: "+58 412-123-4567",
	})
	require.NoError(t, err)
	return res.Order
}

func (e *testEnv) setSetting(t *testing.T, key, value string) {
	t.Helper()
	_, err := e.settings.UpdateSetting(context.Background(), key, []byte(value))
	require.NoError(t, err)
}

func (e *testEnv) ticket(t *testing.T, raffleID uuid.UUID, number int) models.Ticket {
	t.Helper()
	ticket, ok := e.store.Ticket(raffleID, number)
	require.True(t, ok, "ticket %d missing", number)
	return ticket
}

func (e *testEnv) order(t *testing.T, id uuid.UUID) models.Order {
	t.Helper()
	o, ok := e.store.Order(id)
	require.True(t, ok, "order %s missing", id)
	return o
}

func requireCode(t *testing.T, err error, code ReservationErrorType) *ReservationError {
	t.Helper()
	require.Error(t, err)
	var rerr *ReservationError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, code, rerr.Code, rerr.Error())
	return rerr
}

func settingValue(t *testing.T, store *memrepo.Store, key string) string {
	t.Helper()
	v, ok := store.SettingValue(key)
	require.True(t, ok, "setting %s missing", key)
	return string(v)
}
