package domain

import (
	"time"

	"github.com/google/uuid"
)

// DTOs for requests and responses

type CreateOrderRequest struct {
	OwnerID           uuid.UUID     `json:"-"`
	Total             int64         `json:"total" validate:"gte=0"`
	InstallmentMonths int           `json:"installment_months" validate:"required,gte=1,lte=120"`
	PaymentReference  string        `json:"payment_reference" validate:"max=255"`
	Guest             *GuestContact `json:"guest,omitempty"`
}

type CreateOrderResponse struct {
	Order   *Order        `json:"order"`
	Summary LedgerSummary `json:"summary"`
}

type InitializePaymentRequest struct {
	Provider      string     `json:"provider" validate:"required"`
	InstallmentID *uuid.UUID `json:"installment_id,omitempty"`
}

type InitializePaymentResponse struct {
	OrderID                uuid.UUID `json:"order_id"`
	InstallmentID          uuid.UUID `json:"installment_id"`
	InstallmentNumber      int       `json:"installment_number"`
	Amount                 int64     `json:"amount"`
	Provider               string    `json:"provider"`
	RedirectURL            string    `json:"redirect_url,omitempty"`
	Token                  string    `json:"token,omitempty"`
	ProviderTransactionRef string    `json:"provider_transaction_ref,omitempty"`
	// Settled is true when the provider completed the payment synchronously
	Settled        bool   `json:"settled"`
	Status         string `json:"status"`
	FailureMessage string `json:"failure_message,omitempty"`
}

// InstallmentView is the public projection of one ledger row
type InstallmentView struct {
	ID            uuid.UUID  `json:"id"`
	Number        int        `json:"number"`
	Status        string     `json:"status"`
	Amount        int64      `json:"amount"`
	DueDate       time.Time  `json:"due_date"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	TransactionID string     `json:"transaction_id,omitempty"`
}

// NewInstallmentView projects an installment
func NewInstallmentView(inst *Installment) *InstallmentView {
	return &InstallmentView{
		ID:            inst.ID,
		Number:        inst.Number,
		Status:        inst.Status,
		Amount:        inst.Amount,
		DueDate:       inst.DueDate,
		PaidAt:        inst.PaidAt,
		TransactionID: inst.TransactionRef(),
	}
}

type PaymentStatusResponse struct {
	OrderID       uuid.UUID        `json:"order_id"`
	OwnerID       uuid.UUID        `json:"owner_id"`
	PaymentStatus string           `json:"payment_status"`
	Total         int64            `json:"total"`
	NextDueDate   *time.Time       `json:"next_due_date"`
	Installment   *InstallmentView `json:"installment,omitempty"`
	Summary       LedgerSummary    `json:"summary"`
}

type SetInstallmentStatusRequest struct {
	Status        string `json:"status" validate:"required,oneof=pending paid overdue"`
	TransactionID string `json:"transaction_id" validate:"max=128"`
	// Confirm must be set for overrides that revert a recorded payment or leave pending
	Confirm bool `json:"confirm"`
}

type SetOrderPaymentStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending verified rejected"`
}

// CallbackResult is what the reconciliation service reports back for one provider notification
type CallbackResult struct {
	Provider      string     `json:"provider"`
	Acknowledged  bool       `json:"acknowledged"`
	Verified      bool       `json:"verified"`
	Success       bool       `json:"success"`
	Applied       bool       `json:"applied"`
	Duplicate     bool       `json:"duplicate"`
	Retryable     bool       `json:"-"`
	OrderID       *uuid.UUID `json:"order_id,omitempty"`
	InstallmentID *uuid.UUID `json:"installment_id,omitempty"`
	Message       string     `json:"message,omitempty"`
}

// SweepReport summarises one overdue sweep run
type SweepReport struct {
	StartedAt          time.Time     `json:"started_at"`
	Duration           time.Duration `json:"duration"`
	OrdersScanned      int           `json:"orders_scanned"`
	InstallmentsMarked int           `json:"installments_marked"`
	Failures           int           `json:"failures"`
	Skipped            bool          `json:"skipped"`
}

// DueInstallment is a pending installment joined with its order owner, used for reminders
type DueInstallment struct {
	OrderID       uuid.UUID `db:"order_id"`
	OwnerID       uuid.UUID `db:"owner_id"`
	InstallmentID uuid.UUID `db:"installment_id"`
	Number        int       `db:"number"`
	Amount        int64     `db:"amount"`
	DueDate       time.Time `db:"due_date"`
}

// ReminderReport summarises one reminder run
type ReminderReport struct {
	StartedAt time.Time `json:"started_at"`
	Due       int       `json:"due"`
	Sent      int       `json:"sent"`
	Failures  int       `json:"failures"`
}
