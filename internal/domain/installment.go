package domain

import (
	"time"

	"github.com/google/uuid"
)

// Business logic constants
const (
	InstallmentStatusPending = "pending"
	InstallmentStatusPaid    = "paid"
	InstallmentStatusOverdue = "overdue"
)

// Installment is one scheduled partial payment, owned by exactly one order
type Installment struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	OrderID       uuid.UUID  `json:"order_id" db:"order_id"`
	Number        int        `json:"number" db:"number"`
	Amount        int64      `json:"amount" db:"amount"`
	DueDate       time.Time  `json:"due_date" db:"due_date"`
	Status        string     `json:"status" db:"status"` // pending, paid, overdue
	PaidAt        *time.Time `json:"paid_at,omitempty" db:"paid_at"`
	TransactionID *string    `json:"transaction_id,omitempty" db:"transaction_id"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// IsValidInstallmentStatus reports whether s is a known installment status
func IsValidInstallmentStatus(s string) bool {
	switch s {
	case InstallmentStatusPending, InstallmentStatusPaid, InstallmentStatusOverdue:
		return true
	}
	return false
}

func (i *Installment) IsPending() bool { return i.Status == InstallmentStatusPending }
func (i *Installment) IsPaid() bool    { return i.Status == InstallmentStatusPaid }
func (i *Installment) IsOverdue() bool { return i.Status == InstallmentStatusOverdue }

// TransactionRef returns the recorded transaction id or an empty string
func (i *Installment) TransactionRef() string {
	if i.TransactionID == nil {
		return ""
	}
	return *i.TransactionID
}

func (i *Installment) clone() *Installment {
	c := *i
	if i.PaidAt != nil {
		paidAt := *i.PaidAt
		c.PaidAt = &paidAt
	}
	if i.TransactionID != nil {
		txID := *i.TransactionID
		c.TransactionID = &txID
	}
	return &c
}

func (i *Installment) setPaid(transactionID string, paidAt time.Time) {
	i.Status = InstallmentStatusPaid
	i.PaidAt = &paidAt
	i.TransactionID = &transactionID
	i.UpdatedAt = paidAt
}

func (i *Installment) clearPayment() {
	i.PaidAt = nil
	i.TransactionID = nil
}
