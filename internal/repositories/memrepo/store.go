package memrepo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"moto-isla-raffle/internal/models"
	"moto-isla-raffle/internal/repositories"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Store implements every repository interface in memory with the same
// conditional-update semantics as the SQL implementations. It backs local
// runs without Postgres and the service tests.
//
// Transactions are serialized on txMu and roll back by restoring a
// snapshot. Calls made outside a transaction take txMu as well, so nothing
// can commit while a transaction is open and a rollback never discards
// another caller's write.
type Store struct {
	*state
	inTx bool
}

type state struct {
	mu   sync.Mutex
	txMu sync.Mutex

	raffles  map[uuid.UUID]models.Raffle
	tickets  map[uuid.UUID]map[int]models.Ticket
	orders   map[uuid.UUID]models.Order
	settings map[string]models.Setting
	users    map[uuid.UUID]models.User

	// failures makes the named method return the given error.
	failures map[string]error
}

func New() *Store {
	return &Store{state: &state{
		raffles:  map[uuid.UUID]models.Raffle{},
		tickets:  map[uuid.UUID]map[int]models.Ticket{},
		orders:   map[uuid.UUID]models.Order{},
		settings: map[string]models.Setting{},
		users:    map[uuid.UUID]models.User{},
		failures: map[string]error{},
	}}
}

func (m *Store) Repository() *repositories.Repository {
	return repositories.NewRepositoryWith(m, m, m, m, m, m.transaction)
}

func (m *Store) transaction(_ context.Context, fn func(tx *repositories.Repository) error) error {
	defer m.exclusive()()
	if m.inTx {
		return fn(m.Repository())
	}

	m.txMu.Lock()
	defer m.txMu.Unlock()

	tx := &Store{state: m.state, inTx: true}
	snap := m.takeSnapshot()
	if err := fn(tx.Repository()); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

// exclusive holds txMu for a call made outside a transaction. Inside one
// the transaction already holds it.
func (m *Store) exclusive() func() {
	if m.inTx {
		return func() {}
	}
	m.txMu.Lock()
	return m.txMu.Unlock
}

type snapshot struct {
	raffles  map[uuid.UUID]models.Raffle
	tickets  map[uuid.UUID]map[int]models.Ticket
	orders   map[uuid.UUID]models.Order
	settings map[string]models.Setting
}

func (m *Store) takeSnapshot() snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := snapshot{
		raffles:  make(map[uuid.UUID]models.Raffle, len(m.raffles)),
		tickets:  make(map[uuid.UUID]map[int]models.Ticket, len(m.tickets)),
		orders:   make(map[uuid.UUID]models.Order, len(m.orders)),
		settings: make(map[string]models.Setting, len(m.settings)),
	}
	for k, v := range m.raffles {
		snap.raffles[k] = v
	}
	for k, grid := range m.tickets {
		cp := make(map[int]models.Ticket, len(grid))
		for n, t := range grid {
			cp[n] = t
		}
		snap.tickets[k] = cp
	}
	for k, v := range m.orders {
		v.TicketNumbers = append([]int(nil), v.TicketNumbers...)
		snap.orders[k] = v
	}
	for k, v := range m.settings {
		snap.settings[k] = v
	}
	return snap
}

func (m *Store) restore(snap snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.raffles = snap.raffles
	m.tickets = snap.tickets
	m.orders = snap.orders
	m.settings = snap.settings
}

// FailOn makes every later call of the named method return err. A nil err
// clears it.
func (m *Store) FailOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, method)
		return
	}
	m.failures[method] = err
}

func (m *Store) fail(method string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures[method]
}

// Ticket returns a copy of the stored row.
func (m *Store) Ticket(raffleID uuid.UUID, number int) (models.Ticket, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[raffleID][number]
	return t, ok
}

func (m *Store) TicketCount(raffleID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tickets[raffleID])
}

// Order returns a copy of the stored row.
func (m *Store) Order(id uuid.UUID) (models.Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	o.TicketNumbers = append([]int(nil), o.TicketNumbers...)
	return o, ok
}

func (m *Store) OrderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

func (m *Store) RaffleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.raffles)
}

func (m *Store) SettingValue(key string) (datatypes.JSON, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settings[key]
	return s.Value, ok
}

func (m *Store) SettingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.settings)
}

func timePtr(t time.Time) *time.Time { return &t }

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// --- raffles

func (m *Store) CreateRaffle(_ context.Context, raffle *models.Raffle) error {
	defer m.exclusive()()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.raffles[raffle.ID]; ok {
		return repositories.ErrDuplicate
	}
	m.raffles[raffle.ID] = *raffle
	return nil
}

func (m *Store) GetRaffleByID(_ context.Context, id uuid.UUID) (*models.Raffle, error) {
	defer m.exclusive()()
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.raffles[id]
	if !ok {
		return nil, fmt.Errorf("raffle %s: %w", id, repositories.ErrNotFound)
	}
	return &r, nil
}

func (m *Store) GetRaffleForUpdate(ctx context.Context, id uuid.UUID) (*models.Raffle, error) {
	return m.GetRaffleByID(ctx, id)
}

func (m *Store) ListRaffles(_ context.Context, status string, offset, limit int) ([]models.Raffle, int64, error) {
	defer m.exclusive()()
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Raffle
	for _, r := range m.raffles {
		if status == "" || r.Status == status {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := int64(len(out))
	if offset >= len(out) {
		return []models.Raffle{}, total, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], total, nil
}

func (m *Store) UpdateRaffle(_ context.Context, raffle *models.Raffle) error {
	defer m.exclusive()()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.raffles[raffle.ID] = *raffle
	return nil
}

// --- tickets

func (m *Store) CreateTicketRange(_ context.Context, raffleID uuid.UUID, from, to int) error {
	defer m.exclusive()()
	m.mu.Lock()
	defer m.mu.Unlock()
	grid, ok := m.tickets[raffleID]
	if !ok {
		grid = map[int]models.Ticket{}
		m.tickets[raffleID] = grid
	}
	for n := from; n < to; n++ {
		if _, exists := grid[n]; exists {
			return repositories.ErrDuplicate
		}
		grid[n] = models.Ticket{RaffleID: raffleID, Number: n, Status: models.TicketStatusFree}
	}
	return nil
}

func (m *Store) DeleteFreeTicketsFrom(_ context.Context, raffleID uuid.UUID, from int) (int64, error) {
	defer m.exclusive()()
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for num, t := range m.tickets[raffleID] {
		if num >= from && t.Status == models.TicketStatusFree {
			delete(m.tickets[raffleID], num)
			n++
		}
	}
	return n, nil
}

func (m *Store) sortedTickets(raffleID uuid.UUID, keep func(models.Ticket) bool) []models.Ticket {
	out := []models.Ticket{}
	for _, t := range m.tickets[raffleID] {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

func (m *Store) ListTickets(_ context.Context, raffleID uuid.UUID, status string) ([]models.Ticket, error) {
	defer m.exclusive()()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedTickets(raffleID, func(t models.Ticket) bool {
		return status == "" || t.Status == status
	}), nil
}

func (m *Store) GetTickets(_ context.Context, raffleID uuid.UUID, numbers []int) ([]models.Ticket, error) {
	defer m.exclusive()()
	m.mu.Lock()
	defer m.mu.Unlock()
	wanted := map[int]bool{}
	for _, n := range numbers {
		wanted[n] = true
	}
	return m.sortedTickets(raffleID, func(t models.Ticket) bool { return wanted[t.Number] }), nil
}

func (m *Store) LockTickets(ctx context.Context, raffleID uuid.UUID, numbers []int) ([]models.Ticket, error) {
	if err := m.fail("LockTickets"); err != nil {
		return nil, err
	}
	return m.GetTickets(ctx, raffleID, numbers)
}

func (m *Store) update(raffleID uuid.UUID, numbers []int, match func(models.Ticket) bool, apply func(*models.Ticket)) int64 {
	var n int64
	grid := m.tickets[raffleID]
	for _, num := range numbers {
		t, ok := grid[num]
		if !ok || !match(t) {
			continue
		}
		apply(&t)
		grid[num] = t
		n++
	}
	return n
}

func (m *Store) ReserveFreeTickets(_ context.Context, raffleID uuid.UUID, numbers []int, orderID uuid.UUID, now, expiresAt time.Time) (int64, error) {
	defer m.exclusive()()
	if err := m.fail("ReserveFreeTickets"); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.update(raffleID, numbers,
		func(t models.Ticket) bool { return t.EffectiveStatus(now) == models.TicketStatusFree },
		func(t *models.Ticket) {
			id := orderID
			t.Status = models.TicketStatusReserved
			t.OrderID = &id
			t.ExpiresAt = timePtr(expiresAt)
			t.PaidAt = nil
		}), nil
}

func (m *Store) ReleaseOrderTickets(_ context.Context, raffleID, orderID uuid.UUID, statuses []string) (int64, error) {
	defer m.exclusive()()
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for num, t := range m.tickets[raffleID] {
		if t.OrderID == nil || *t.OrderID != orderID || !contains(statuses, t.Status) {
			continue
		}
		t.Status = models.TicketStatusFree
		t.OrderID = nil
		t.ExpiresAt = nil
		t.PaidAt = nil
		m.tickets[raffleID][num] = t
		n++
	}
	return n, nil
}

func (m *Store) MarkTicketsPaid(_ context.Context, raffleID uuid.UUID, numbers []int, orderID uuid.UUID, paidAt time.Time) (int64, error) {
	defer m.exclusive()()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.update(raffleID, numbers,
		func(t models.Ticket) bool {
			return t.Status != models.TicketStatusPaid || (t.OrderID != nil && *t.OrderID == orderID)
		},
		func(t *models.Ticket) {
			id := orderID
			t.Status = models.TicketStatusPaid
			t.OrderID = &id
			t.ExpiresAt = nil
			t.PaidAt = timePtr(paidAt)
		}), nil
}

func (m *Store) SetTicketsStatus(_ context.Context, raffleID uuid.UUID, numbers []int, status string, now time.Time) (int64, error) {
	defer m.exclusive()()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.update(raffleID, numbers,
		func(models.Ticket) bool { return true },
		func(t *models.Ticket) {
			t.Status = status
			t.ExpiresAt = nil
			switch status {
			case models.TicketStatusFree:
				t.OrderID = nil
				t.PaidAt = nil
			case models.TicketStatusPaid:
				t.PaidAt = timePtr(now)
			}
		}), nil
}

func staleReservation(t models.Ticket, now time.Time) bool {
	return t.Status == models.TicketStatusReserved && t.ExpiresAt != nil && t.ExpiresAt.Before(now)
}

func (m *Store) CountStaleReservations(_ context.Context, now time.Time) (int64, error) {
	defer m.exclusive()()
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, grid := range m.tickets {
		for _, t := range grid {
			if staleReservation(t, now) {
				n++
			}
		}
	}
	return n, nil
}

func (m *Store) ReleaseExpiredReservations(_ context.Context, now time.Time) (int64, error) {
	defer m.exclusive()()
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for raffleID, grid := range m.tickets {
		for num, t := range grid {
			if !staleReservation(t, now) {
				continue
			}
			t.Status = models.TicketStatusFree
			t.OrderID = nil
			t.ExpiresAt = nil
			m.tickets[raffleID][num] = t
			n++
		}
	}
	return n, nil
}

func (m *Store) CountTicketsByStatus(_ context.Context, raffleID uuid.UUID) (map[string]int64, error) {
	defer m.exclusive()()
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[string]int64{}
	for _, t := range m.tickets[raffleID] {
		counts[t.Status]++
	}
	return counts, nil
}

// --- orders

func (m *Store) CreateOrder(_ context.Context, order *models.Order) error {
	defer m.exclusive()()
	if err := m.fail("CreateOrder"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[order.ID]; ok {
		return repositories.ErrDuplicate
	}
	cp := *order
	cp.TicketNumbers = append([]int(nil), order.TicketNumbers...)
	m.orders[order.ID] = cp
	return nil
}

func (m *Store) GetOrderByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	defer m.exclusive()()
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, repositories.ErrNotFound)
	}
	o.TicketNumbers = append([]int(nil), o.TicketNumbers...)
	return &o, nil
}

func (m *Store) ListOrders(_ context.Context, filters repositories.OrderFilters, offset, limit int) ([]models.Order, int64, error) {
	defer m.exclusive()()
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Order
	for _, o := range m.orders {
		if filters.RaffleID != nil && o.RaffleID != *filters.RaffleID {
			continue
		}
		if filters.Status != "" && o.Status != filters.Status {
			continue
		}
		if filters.Phone != "" && o.CustomerPhone != filters.Phone {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := int64(len(out))
	if offset >= len(out) {
		return []models.Order{}, total, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], total, nil
}

func (m *Store) ListPaidOrdersByRaffle(_ context.Context, raffleID uuid.UUID, excludeID *uuid.UUID) ([]models.Order, error) {
	defer m.exclusive()()
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Order
	for _, o := range m.orders {
		if o.RaffleID != raffleID || o.Status != models.OrderStatusPaid {
			continue
		}
		if excludeID != nil && o.ID == *excludeID {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Store) UpdateOrderStatus(_ context.Context, id uuid.UUID, from []string, to string, paidAt *time.Time) (int64, error) {
	defer m.exclusive()()
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || !contains(from, o.Status) {
		return 0, nil
	}
	o.Status = to
	if paidAt != nil {
		o.PaidAt = timePtr(*paidAt)
	}
	m.orders[id] = o
	return 1, nil
}

func overdue(o models.Order, now time.Time) bool {
	return o.Status == models.OrderStatusPending && o.PaymentDeadline.Before(now)
}

func (m *Store) CountOverduePending(_ context.Context, now time.Time) (int64, error) {
	defer m.exclusive()()
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, o := range m.orders {
		if overdue(o, now) {
			n++
		}
	}
	return n, nil
}

func (m *Store) ExpirePendingOrders(_ context.Context, now time.Time) (int64, error) {
	defer m.exclusive()()
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, o := range m.orders {
		if overdue(o, now) {
			o.Status = models.OrderStatusExpired
			m.orders[id] = o
			n++
		}
	}
	return n, nil
}

func (m *Store) DeleteOrder(_ context.Context, id uuid.UUID) error {
	defer m.exclusive()()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[id]; !ok {
		return fmt.Errorf("order %s: %w", id, repositories.ErrNotFound)
	}
	delete(m.orders, id)
	return nil
}

func (m *Store) CountOrdersByStatus(_ context.Context, raffleID uuid.UUID) (map[string]int64, error) {
	defer m.exclusive()()
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[string]int64{}
	for _, o := range m.orders {
		if o.RaffleID == raffleID {
			counts[o.Status]++
		}
	}
	return counts, nil
}

func (m *Store) SumPaidRevenue(_ context.Context, raffleID uuid.UUID) (float64, error) {
	defer m.exclusive()()
	m.mu.Lock()
	defer m.mu.Unlock()
	var total float64
	for _, o := range m.orders {
		if o.RaffleID == raffleID && o.Status == models.OrderStatusPaid {
			total += o.TotalAmount
		}
	}
	return total, nil
}

// --- settings

func (m *Store) GetSetting(_ context.Context, key string) (*models.Setting, error) {
	defer m.exclusive()()
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settings[key]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &s, nil
}

func (m *Store) ListSettings(_ context.Context) ([]models.Setting, error) {
	defer m.exclusive()()
	if err := m.fail("ListSettings"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Setting, 0, len(m.settings))
	for _, s := range m.settings {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *Store) UpsertSetting(_ context.Context, setting *models.Setting) error {
	defer m.exclusive()()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[setting.Key] = *setting
	return nil
}

func (m *Store) CreateSettingIfMissing(_ context.Context, setting *models.Setting) error {
	defer m.exclusive()()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.settings[setting.Key]; !ok {
		m.settings[setting.Key] = *setting
	}
	return nil
}

// --- users

func (m *Store) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	defer m.exclusive()()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (m *Store) GetUserByID(_ context.Context, id string) (*models.User, error) {
	defer m.exclusive()()
	m.mu.Lock()
	defer m.mu.Unlock()
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, repositories.ErrNotFound
	}
	u, ok := m.users[uid]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &u, nil
}

func (m *Store) CreateUser(_ context.Context, user *models.User) error {
	defer m.exclusive()()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return repositories.ErrDuplicate
		}
	}
	m.users[user.ID] = *user
	return nil
}
