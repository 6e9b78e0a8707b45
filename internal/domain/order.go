package domain

import (
	"time"

	"github.com/google/uuid"

	customError "github.com/segyhp/installment-engine/pkg/errors"
	"github.com/segyhp/installment-engine/pkg/utils"
)

// Order-level payment status: whether staff accepted the initial payment proof
const (
	OrderPaymentStatusPending  = "pending"
	OrderPaymentStatusVerified = "verified"
	OrderPaymentStatusRejected = "rejected"
)

// Order is the aggregate root owning the installment ledger
type Order struct {
	ID                uuid.UUID      `json:"id" db:"id"`
	OwnerID           uuid.UUID      `json:"owner_id" db:"owner_id"`
	Total             int64          `json:"total" db:"total"`
	InstallmentMonths int            `json:"installment_months" db:"installment_months"`
	MonthlyPayment    int64          `json:"monthly_payment" db:"monthly_payment"`
	PaymentStatus     string         `json:"payment_status" db:"payment_status"`
	PaymentReference  *string        `json:"payment_reference,omitempty" db:"payment_reference"`
	NextDueDate       *time.Time     `json:"next_due_date" db:"next_due_date"`
	Installments      []*Installment `json:"installments" db:"-"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at" db:"updated_at"`
}

// LedgerSummary aggregates installment counts and amounts
type LedgerSummary struct {
	Installments      int   `json:"installments"`
	Pending           int   `json:"pending"`
	Paid              int   `json:"paid"`
	Overdue           int   `json:"overdue"`
	PaidAmount        int64 `json:"paid_amount"`
	OutstandingAmount int64 `json:"outstanding_amount"`
}

// NewOrder creates an order and materialises its ledger from the schedule builder.
// This is the only place a ledger is created.
func NewOrder(ownerID uuid.UUID, total int64, months int, paymentReference string, createdAt time.Time) (*Order, error) {
	entries, err := BuildSchedule(total, months, createdAt)
	if err != nil {
		return nil, err
	}

	order := &Order{
		ID:                uuid.New(),
		OwnerID:           ownerID,
		Total:             total,
		InstallmentMonths: months,
		MonthlyPayment:    utils.CalculateMonthlyPayment(total, months),
		PaymentStatus:     OrderPaymentStatusPending,
		CreatedAt:         createdAt,
		UpdatedAt:         createdAt,
	}
	if paymentReference != "" {
		order.PaymentReference = &paymentReference
	}
	order.Installments = newInstallments(order.ID, entries, createdAt)
	order.recomputeNextDueDate()

	return order, nil
}

// Installment looks up an installment of this order by id
func (o *Order) Installment(id uuid.UUID) (*Installment, error) {
	for _, inst := range o.Installments {
		if inst.ID == id {
			return inst, nil
		}
	}
	return nil, customError.WrapInstallmentNotFound(id.String())
}

// FirstPending returns the first pending installment in ledger order, or nil
func (o *Order) FirstPending() *Installment {
	for _, inst := range o.Installments {
		if inst.IsPending() {
			return inst
		}
	}
	return nil
}

// ResolveTargetInstallment picks the installment a payment is meant for.
// With an explicit id the installment must exist; without one the first pending
// installment is chosen.
func (o *Order) ResolveTargetInstallment(explicitID *uuid.UUID) (*Installment, error) {
	if explicitID != nil {
		return o.Installment(*explicitID)
	}

	if inst := o.FirstPending(); inst != nil {
		return inst, nil
	}
	return nil, customError.WrapNoPendingInstallment(o.ID.String())
}

// HasTransaction reports whether a provider reference is already recorded on the ledger
func (o *Order) HasTransaction(ref string) bool {
	if ref == "" {
		return false
	}
	for _, inst := range o.Installments {
		if inst.TransactionRef() == ref {
			return true
		}
	}
	return false
}

// MarkPaid moves a pending or overdue installment to paid.
// A second call on a paid installment is rejected and leaves paid_at and transaction_id untouched.
func (o *Order) MarkPaid(id uuid.UUID, transactionID string, paidAt time.Time) error {
	inst, err := o.Installment(id)
	if err != nil {
		return err
	}

	if inst.IsPaid() {
		return customError.WrapAlreadyPaid(id.String())
	}
	if transactionID == "" {
		return customError.NewBusinessError(
			customError.ErrCodeInvalidStatusTransition,
			"transaction id is required to mark an installment paid",
			customError.ErrInvalidStatusTransition,
		)
	}

	inst.setPaid(transactionID, paidAt)
	o.UpdatedAt = paidAt
	o.recomputeNextDueDate()
	return nil
}

// MarkOverdue moves a pending installment whose due date has passed to overdue.
// It is a no-op for installments that are already overdue, paid or not yet due.
func (o *Order) MarkOverdue(id uuid.UUID, now time.Time) (bool, error) {
	inst, err := o.Installment(id)
	if err != nil {
		return false, err
	}

	if !inst.IsPending() || !utils.IsDateOverdue(inst.DueDate, now) {
		return false, nil
	}

	inst.Status = InstallmentStatusOverdue
	inst.UpdatedAt = now
	o.UpdatedAt = now
	o.recomputeNextDueDate()
	return true, nil
}

// SweepOverdue calls MarkOverdue on every installment and returns how many changed
func (o *Order) SweepOverdue(now time.Time) int {
	marked := 0
	for _, inst := range o.Installments {
		changed, err := o.MarkOverdue(inst.ID, now)
		if err == nil && changed {
			marked++
		}
	}
	return marked
}

// OverrideInstallmentStatus is the staff escape hatch.
// Moving to paid follows MarkPaid rules. Moving back to pending, or from paid to
// overdue, reverts a recorded payment and requires confirm. It returns the previous status.
func (o *Order) OverrideInstallmentStatus(id uuid.UUID, status, transactionID string, now time.Time, confirm bool) (string, error) {
	inst, err := o.Installment(id)
	if err != nil {
		return "", err
	}

	previous := inst.Status
	if !IsValidInstallmentStatus(status) {
		return previous, customError.WrapInvalidStatusTransition(previous, status)
	}

	if status == InstallmentStatusPaid {
		return previous, o.MarkPaid(id, transactionID, now)
	}
	if previous == status {
		return previous, nil
	}

	switch status {
	case InstallmentStatusOverdue:
		if previous == InstallmentStatusPaid {
			if !confirm {
				return previous, customError.WrapOverrideConfirmationRequired(previous, status)
			}
			inst.clearPayment()
		}
	case InstallmentStatusPending:
		if !confirm {
			return previous, customError.WrapOverrideConfirmationRequired(previous, status)
		}
		inst.clearPayment()
	}

	inst.Status = status
	inst.UpdatedAt = now
	o.UpdatedAt = now
	o.recomputeNextDueDate()
	return previous, nil
}

// SetPaymentStatus sets the order-level payment verification flag
func (o *Order) SetPaymentStatus(status string, now time.Time) error {
	switch status {
	case OrderPaymentStatusPending, OrderPaymentStatusVerified, OrderPaymentStatusRejected:
	default:
		return customError.NewBusinessError(
			customError.ErrCodeInvalidStatusTransition,
			"unknown order payment status "+status,
			customError.ErrInvalidStatusTransition,
		)
	}

	o.PaymentStatus = status
	o.UpdatedAt = now
	o.recomputeNextDueDate()
	return nil
}

// Summary returns counts per status and paid/outstanding amounts
func (o *Order) Summary() LedgerSummary {
	summary := LedgerSummary{Installments: len(o.Installments)}
	for _, inst := range o.Installments {
		switch inst.Status {
		case InstallmentStatusPending:
			summary.Pending++
			summary.OutstandingAmount += inst.Amount
		case InstallmentStatusOverdue:
			summary.Overdue++
			summary.OutstandingAmount += inst.Amount
		case InstallmentStatusPaid:
			summary.Paid++
			summary.PaidAmount += inst.Amount
		}
	}
	return summary
}

// ScheduledTotal sums installment amounts; equals Total for every well-formed ledger
func (o *Order) ScheduledTotal() int64 {
	var sum int64
	for _, inst := range o.Installments {
		sum += inst.Amount
	}
	return sum
}

// Clone returns a deep copy of the aggregate
func (o *Order) Clone() *Order {
	c := *o
	if o.PaymentReference != nil {
		ref := *o.PaymentReference
		c.PaymentReference = &ref
	}
	if o.NextDueDate != nil {
		next := *o.NextDueDate
		c.NextDueDate = &next
	}
	c.Installments = make([]*Installment, 0, len(o.Installments))
	for _, inst := range o.Installments {
		c.Installments = append(c.Installments, inst.clone())
	}
	return &c
}

// recomputeNextDueDate is the single place next_due_date is derived.
// Every status-mutating operation ends by calling it.
func (o *Order) recomputeNextDueDate() {
	if inst := o.FirstPending(); inst != nil {
		due := inst.DueDate
		o.NextDueDate = &due
		return
	}
	o.NextDueDate = nil
}
