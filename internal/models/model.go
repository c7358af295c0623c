package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	RaffleStatusActive    = "active"
	RaffleStatusCompleted = "completed"
	RaffleStatusCancelled = "cancelled"
)

const (
	TicketStatusFree     = "free"
	TicketStatusReserved = "reserved"
	TicketStatusPaid     = "paid"
)

const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusCancelled = "cancelled"
	OrderStatusExpired   = "expired"
)

type User struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Email     string    `gorm:"uniqueIndex;not null" json:"email"`
	Password  string    `gorm:"not null" json:"-"`
	Role      string    `gorm:"type:varchar(20);not null;default:'admin'" json:"role"` // admin
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Raffle struct {
	ID           uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Title        string    `gorm:"not null" json:"title"`
	Description  string    `gorm:"type:text" json:"description"`
	ImagePath    string    `json:"image_path"`
	TicketPrice  float64   `gorm:"not null" json:"ticket_price"`
	TotalTickets int       `gorm:"not null" json:"total_tickets"`
	// MaxTicketsPerUser caps a single order; 0 means no cap.
	MaxTicketsPerUser int        `gorm:"default:0" json:"max_tickets_per_user"`
	Status            string     `gorm:"type:varchar(20);not null;default:'active';index" json:"status"` // active|completed|cancelled
	StartDate         *time.Time `json:"start_date"`
	EndDate           *time.Time `json:"end_date"`
	DrawDate          *time.Time `json:"draw_date"`
	WinnerNumber      *int       `json:"winner_number"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Ticket is identified by (raffle_id, number). OrderID points at the order
// currently holding it, if any.
type Ticket struct {
	RaffleID  uuid.UUID  `gorm:"type:uuid;primaryKey" json:"raffle_id"`
	Number    int        `gorm:"primaryKey;autoIncrement:false" json:"number"`
	Status    string     `gorm:"type:varchar(20);not null;default:'free';index" json:"status"` // free|reserved|paid
	OrderID   *uuid.UUID `gorm:"type:uuid;index" json:"order_id,omitempty"`
	ExpiresAt *time.Time `gorm:"index" json:"expires_at,omitempty"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type Order struct {
	ID              uuid.UUID                `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	RaffleID        uuid.UUID                `gorm:"type:uuid;index;not null" json:"raffle_id"`
	TicketNumbers   datatypes.JSONSlice[int] `gorm:"not null" json:"ticket_numbers"`
	TotalAmount     float64                  `gorm:"not null" json:"total_amount"`
	Status          string                   `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"` // pending|paid|cancelled|expired
	PaymentDeadline time.Time                `gorm:"index;not null" json:"payment_deadline"`
	CustomerName    string                   `gorm:"not null" json:"customer_name"`
	CustomerPhone   string                   `gorm:"index;not null" json:"customer_phone"`
	CustomerEmail   string                   `json:"customer_email,omitempty"`
	PaidAt          *time.Time               `json:"paid_at,omitempty"`
	CreatedAt       time.Time                `json:"created_at"`
	UpdatedAt       time.Time                `json:"updated_at"`

	Raffle *Raffle `gorm:"foreignKey:RaffleID" json:"raffle,omitempty"`
}

type Setting struct {
	Key       string         `gorm:"primaryKey;type:varchar(64)" json:"key"`
	Value     datatypes.JSON `gorm:"type:jsonb;not null" json:"value"`
	UpdatedAt time.Time      `json:"updated_at"`
}
