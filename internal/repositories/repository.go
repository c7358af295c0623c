package repositories

import (
	"context"
	"errors"
	"time"

	"moto-isla-raffle/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// TxFunc runs fn against a Repository bound to a single transaction. Any
// error returned by fn rolls the transaction back.
type TxFunc func(ctx context.Context, fn func(tx *Repository) error) error

type Repository struct {
	DB          *gorm.DB
	RaffleRepo  RaffleRepository
	TicketRepo  TicketRepository
	OrderRepo   OrderRepository
	SettingRepo SettingRepository
	UserRepo    UserRepository

	tx TxFunc
}

func NewRepository(db *gorm.DB) *Repository {
	repo := &Repository{
		DB:          db,
		RaffleRepo:  NewRaffleRepository(db),
		TicketRepo:  NewTicketRepository(db),
		OrderRepo:   NewOrderRepository(db),
		SettingRepo: NewSettingRepository(db),
		UserRepo:    NewUserRepository(db),
	}
	repo.tx = func(ctx context.Context, fn func(tx *Repository) error) error {
		return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(NewRepository(tx))
		})
	}
	return repo
}

// NewRepositoryWith assembles a Repository from arbitrary implementations,
// e.g. an alternative backend that brings its own transaction semantics.
func NewRepositoryWith(
	raffles RaffleRepository,
	tickets TicketRepository,
	orders OrderRepository,
	settings SettingRepository,
	users UserRepository,
	tx TxFunc,
) *Repository {
	return &Repository{
		RaffleRepo:  raffles,
		TicketRepo:  tickets,
		OrderRepo:   orders,
		SettingRepo: settings,
		UserRepo:    users,
		tx:          tx,
	}
}

func (r *Repository) Transaction(ctx context.Context, fn func(tx *Repository) error) error {
	return r.tx(ctx, fn)
}

func AutoMigrate(db *gorm.DB) error {
	// Enable UUID extension
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		return err
	}

	return db.AutoMigrate(
		&models.User{},
		&models.Raffle{},
		&models.Ticket{},
		&models.Order{},
		&models.Setting{},
	)
}

// Interface definitions
type UserRepository interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
}

type RaffleRepository interface {
	CreateRaffle(ctx context.Context, raffle *models.Raffle) error
	GetRaffleByID(ctx context.Context, id uuid.UUID) (*models.Raffle, error)
	GetRaffleForUpdate(ctx context.Context, id uuid.UUID) (*models.Raffle, error)
	ListRaffles(ctx context.Context, status string, offset, limit int) ([]models.Raffle, int64, error)
	UpdateRaffle(ctx context.Context, raffle *models.Raffle) error
}

// TicketRepository mutations are all conditional on the current row status
// and return the number of rows actually changed, so callers can detect
// that a concurrent writer got there first.
type TicketRepository interface {
	CreateTicketRange(ctx context.Context, raffleID uuid.UUID, from, to int) error
	DeleteFreeTicketsFrom(ctx context.Context, raffleID uuid.UUID, from int) (int64, error)
	ListTickets(ctx context.Context, raffleID uuid.UUID, status string) ([]models.Ticket, error)
	GetTickets(ctx context.Context, raffleID uuid.UUID, numbers []int) ([]models.Ticket, error)
	LockTickets(ctx context.Context, raffleID uuid.UUID, numbers []int) ([]models.Ticket, error)
	ReserveFreeTickets(ctx context.Context, raffleID uuid.UUID, numbers []int, orderID uuid.UUID, now, expiresAt time.Time) (int64, error)
	ReleaseOrderTickets(ctx context.Context, raffleID, orderID uuid.UUID, statuses []string) (int64, error)
	MarkTicketsPaid(ctx context.Context, raffleID uuid.UUID, numbers []int, orderID uuid.UUID, paidAt time.Time) (int64, error)
	SetTicketsStatus(ctx context.Context, raffleID uuid.UUID, numbers []int, status string, now time.Time) (int64, error)
	CountStaleReservations(ctx context.Context, now time.Time) (int64, error)
	ReleaseExpiredReservations(ctx context.Context, now time.Time) (int64, error)
	CountTicketsByStatus(ctx context.Context, raffleID uuid.UUID) (map[string]int64, error)
}

type OrderFilters struct {
	RaffleID *uuid.UUID
	Status   string
	Phone    string
}

type OrderRepository interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, filters OrderFilters, offset, limit int) ([]models.Order, int64, error)
	ListPaidOrdersByRaffle(ctx context.Context, raffleID uuid.UUID, excludeID *uuid.UUID) ([]models.Order, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, from []string, to string, paidAt *time.Time) (int64, error)
	CountOverduePending(ctx context.Context, now time.Time) (int64, error)
	ExpirePendingOrders(ctx context.Context, now time.Time) (int64, error)
	DeleteOrder(ctx context.Context, id uuid.UUID) error
	CountOrdersByStatus(ctx context.Context, raffleID uuid.UUID) (map[string]int64, error)
	SumPaidRevenue(ctx context.Context, raffleID uuid.UUID) (float64, error)
}

type SettingRepository interface {
	GetSetting(ctx context.Context, key string) (*models.Setting, error)
	ListSettings(ctx context.Context) ([]models.Setting, error)
	UpsertSetting(ctx context.Context, setting *models.Setting) error
	CreateSettingIfMissing(ctx context.Context, setting *models.Setting) error
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}
