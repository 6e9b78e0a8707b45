package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/segyhp/installment-engine/internal/domain"
)

// UpdateFunc mutates a freshly loaded order. Returning an error discards every change.
type UpdateFunc func(order *domain.Order) error

// OrderRepository defines the interface for order and ledger data operations
type OrderRepository interface {
	// Create stores an order together with its full installment ledger atomically
	Create(ctx context.Context, order *domain.Order) error

	// GetByID retrieves an order with its ledger
	GetByID(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)

	// FindOrderIDByInstallment resolves the order owning an installment
	FindOrderIDByInstallment(ctx context.Context, installmentID uuid.UUID) (uuid.UUID, error)

	// Update loads the order, applies fn and saves the result as one transaction per order
	Update(ctx context.Context, orderID uuid.UUID, fn UpdateFunc) (*domain.Order, error)

	// ListOrderIDsWithPendingDueBefore lists orders holding a pending installment due before t
	ListOrderIDsWithPendingDueBefore(ctx context.Context, t time.Time) ([]uuid.UUID, error)

	// ListPendingDueBetween lists pending installments due in [from, to)
	ListPendingDueBetween(ctx context.Context, from, to time.Time) ([]*domain.DueInstallment, error)
}

// UserRepository defines the user read model the engine relies on
type UserRepository interface {
	// GetByID retrieves a user by id
	GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)

	// EnsureGuest returns the synthetic guest user for an e-mail, creating it if needed
	EnsureGuest(ctx context.Context, contact domain.GuestContact) (*domain.User, error)
}

// WebhookLogRepository stores raw provider callbacks for audit
type WebhookLogRepository interface {
	// Create appends one audit entry
	Create(ctx context.Context, log *domain.WebhookLog) error

	// ListByOrderRef returns the audit entries for an order reference, newest first
	ListByOrderRef(ctx context.Context, orderRef string) ([]*domain.WebhookLog, error)
}
