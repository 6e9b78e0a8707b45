package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/segyhp/installment-engine/internal/domain"
	customError "github.com/segyhp/installment-engine/pkg/errors"
)

const (
	selectOrderQuery = `
		SELECT id, owner_id, total, installment_months, monthly_payment, payment_status,
		       payment_reference, next_due_date, created_at, updated_at
		FROM orders
		WHERE id = $1
	`

	selectInstallmentsQuery = `
		SELECT id, order_id, number, amount, due_date, status, paid_at, transaction_id, created_at, updated_at
		FROM installments
		WHERE order_id = $1
		ORDER BY number
	`
)

type orderRepository struct {
	db *sqlx.DB
}

func NewOrderRepository(db *sqlx.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	orderQuery := `
		INSERT INTO orders (id, owner_id, total, installment_months, monthly_payment, payment_status,
		                    payment_reference, next_due_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	installmentQuery := `
		INSERT INTO installments (id, order_id, number, amount, due_date, status, paid_at, transaction_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, orderQuery,
		order.ID,
		order.OwnerID,
		order.Total,
		order.InstallmentMonths,
		order.MonthlyPayment,
		order.PaymentStatus,
		order.PaymentReference,
		order.NextDueDate,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		return err
	}

	for _, inst := range order.Installments {
		_, err = tx.ExecContext(ctx, installmentQuery,
			inst.ID,
			inst.OrderID,
			inst.Number,
			inst.Amount,
			inst.DueDate,
			inst.Status,
			inst.PaidAt,
			inst.TransactionID,
			inst.CreatedAt,
			inst.UpdatedAt,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *orderRepository) GetByID(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	var order domain.Order
	err := r.db.GetContext(ctx, &order, selectOrderQuery, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, customError.WrapOrderNotFound(orderID.String())
	}
	if err != nil {
		return nil, err
	}

	var installments []*domain.Installment
	if err := r.db.SelectContext(ctx, &installments, selectInstallmentsQuery, orderID); err != nil {
		return nil, err
	}
	order.Installments = installments

	return &order, nil
}

func (r *orderRepository) FindOrderIDByInstallment(ctx context.Context, installmentID uuid.UUID) (uuid.UUID, error) {
	var orderID uuid.UUID
	err := r.db.GetContext(ctx, &orderID, `SELECT order_id FROM installments WHERE id = $1`, installmentID)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, customError.WrapInstallmentNotFound(installmentID.String())
	}
	return orderID, err
}

// Update locks the order row for the duration of the transaction, so concurrent
// callbacks, overrides and sweeps on the same order are serialised.
func (r *orderRepository) Update(ctx context.Context, orderID uuid.UUID, fn UpdateFunc) (*domain.Order, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var order domain.Order
	err = tx.GetContext(ctx, &order, selectOrderQuery+" FOR UPDATE", orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, customError.WrapOrderNotFound(orderID.String())
	}
	if err != nil {
		return nil, err
	}

	var installments []*domain.Installment
	if err := tx.SelectContext(ctx, &installments, selectInstallmentsQuery, orderID); err != nil {
		return nil, err
	}
	order.Installments = installments

	before := order.Clone()
	if err := fn(&order); err != nil {
		return nil, err
	}

	for i, inst := range order.Installments {
		prev := before.Installments[i]
		if !installmentChanged(prev, inst) {
			continue
		}
		if err := r.saveInstallment(ctx, tx, prev, inst); err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = $2, next_due_date = $3, updated_at = $4
		WHERE id = $1
	`, order.ID, order.PaymentStatus, order.NextDueDate, order.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &order, nil
}

// saveInstallment writes one changed row. A transition into paid re-asserts at
// write time that the row is not already paid.
func (r *orderRepository) saveInstallment(ctx context.Context, tx *sqlx.Tx, prev, inst *domain.Installment) error {
	if inst.IsPaid() && !prev.IsPaid() {
		res, err := tx.ExecContext(ctx, `
			UPDATE installments
			SET status = $2, paid_at = $3, transaction_id = $4, updated_at = $5
			WHERE id = $1 AND status <> 'paid'
		`, inst.ID, inst.Status, inst.PaidAt, inst.TransactionID, inst.UpdatedAt)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return customError.WrapAlreadyPaid(inst.ID.String())
		}
		return nil
	}

	_, err := tx.ExecContext(ctx, `
		UPDATE installments
		SET status = $2, paid_at = $3, transaction_id = $4, updated_at = $5
		WHERE id = $1
	`, inst.ID, inst.Status, inst.PaidAt, inst.TransactionID, inst.UpdatedAt)
	return err
}

func (r *orderRepository) ListOrderIDsWithPendingDueBefore(ctx context.Context, t time.Time) ([]uuid.UUID, error) {
	query := `
		SELECT DISTINCT order_id
		FROM installments
		WHERE status = 'pending' AND due_date < $1
	`

	var ids []uuid.UUID
	if err := r.db.SelectContext(ctx, &ids, query, t); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *orderRepository) ListPendingDueBetween(ctx context.Context, from, to time.Time) ([]*domain.DueInstallment, error) {
	query := `
		SELECT i.order_id, o.owner_id, i.id AS installment_id, i.number, i.amount, i.due_date
		FROM installments i
		JOIN orders o ON o.id = i.order_id
		WHERE i.status = 'pending' AND i.due_date >= $1 AND i.due_date < $2
		ORDER BY i.due_date, i.order_id
	`

	var due []*domain.DueInstallment
	if err := r.db.SelectContext(ctx, &due, query, from, to); err != nil {
		return nil, err
	}
	return due, nil
}

func installmentChanged(a, b *domain.Installment) bool {
	if a.Status != b.Status || a.TransactionRef() != b.TransactionRef() {
		return true
	}
	if (a.PaidAt == nil) != (b.PaidAt == nil) {
		return true
	}
	return a.PaidAt != nil && !a.PaidAt.Equal(*b.PaidAt)
}
