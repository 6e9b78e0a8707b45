package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/segyhp/installment-engine/internal/domain"
	customError "github.com/segyhp/installment-engine/pkg/errors"
)

// MemoryOrderRepository keeps orders in process memory. Updates are serialised by
// a mutex and applied to a deep copy that only replaces the stored order when fn succeeds.
type MemoryOrderRepository struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*domain.Order
}

func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{orders: make(map[uuid.UUID]*domain.Order)}
}

func (r *MemoryOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.orders[order.ID] = order.Clone()
	return nil
}

func (r *MemoryOrderRepository) GetByID(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[orderID]
	if !ok {
		return nil, customError.WrapOrderNotFound(orderID.String())
	}
	return order.Clone(), nil
}

func (r *MemoryOrderRepository) FindOrderIDByInstallment(ctx context.Context, installmentID uuid.UUID) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, order := range r.orders {
		for _, inst := range order.Installments {
			if inst.ID == installmentID {
				return order.ID, nil
			}
		}
	}
	return uuid.Nil, customError.WrapInstallmentNotFound(installmentID.String())
}

func (r *MemoryOrderRepository) Update(ctx context.Context, orderID uuid.UUID, fn UpdateFunc) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stored, ok := r.orders[orderID]
	if !ok {
		return nil, customError.WrapOrderNotFound(orderID.String())
	}

	working := stored.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}

	r.orders[orderID] = working
	return working.Clone(), nil
}

func (r *MemoryOrderRepository) ListOrderIDsWithPendingDueBefore(ctx context.Context, t time.Time) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []uuid.UUID
	for id, order := range r.orders {
		for _, inst := range order.Installments {
			if inst.IsPending() && inst.DueDate.Before(t) {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

func (r *MemoryOrderRepository) ListPendingDueBetween(ctx context.Context, from, to time.Time) ([]*domain.DueInstallment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []*domain.DueInstallment
	for _, order := range r.orders {
		for _, inst := range order.Installments {
			if !inst.IsPending() || inst.DueDate.Before(from) || !inst.DueDate.Before(to) {
				continue
			}
			due = append(due, &domain.DueInstallment{
				OrderID:       order.ID,
				OwnerID:       order.OwnerID,
				InstallmentID: inst.ID,
				Number:        inst.Number,
				Amount:        inst.Amount,
				DueDate:       inst.DueDate,
			})
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].DueDate.Equal(due[j].DueDate) {
			return due[i].DueDate.Before(due[j].DueDate)
		}
		return due[i].OrderID.String() < due[j].OrderID.String()
	})
	return due, nil
}

// MemoryUserRepository is an in-process user read model
type MemoryUserRepository struct {
	mu    sync.Mutex
	users map[uuid.UUID]*domain.User
}

func NewMemoryUserRepository(users ...*domain.User) *MemoryUserRepository {
	r := &MemoryUserRepository{users: make(map[uuid.UUID]*domain.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *MemoryUserRepository) GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return nil, customError.WrapUserNotFound(userID.String())
	}
	u := *user
	return &u, nil
}

func (r *MemoryUserRepository) EnsureGuest(ctx context.Context, contact domain.GuestContact) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, user := range r.users {
		if user.Role == domain.RoleGuest && strings.EqualFold(user.Email, contact.Email) {
			if contact.Phone != "" {
				user.Phone = contact.Phone
			}
			if contact.Name != "" {
				user.Name = contact.Name
			}
			u := *user
			return &u, nil
		}
	}

	user := &domain.User{
		ID:        uuid.New(),
		Name:      contact.Name,
		Email:     contact.Email,
		Phone:     contact.Phone,
		Role:      domain.RoleGuest,
		CreatedAt: time.Now().UTC(),
	}
	r.users[user.ID] = user
	u := *user
	return &u, nil
}

// MemoryWebhookLogRepository is an in-process audit log
type MemoryWebhookLogRepository struct {
	mu   sync.Mutex
	logs []*domain.WebhookLog
}

func NewMemoryWebhookLogRepository() *MemoryWebhookLogRepository {
	return &MemoryWebhookLogRepository{}
}

func (r *MemoryWebhookLogRepository) Create(ctx context.Context, log *domain.WebhookLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := *log
	r.logs = append(r.logs, &entry)
	return nil
}

func (r *MemoryWebhookLogRepository) ListByOrderRef(ctx context.Context, orderRef string) ([]*domain.WebhookLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.WebhookLog
	for i := len(r.logs) - 1; i >= 0; i-- {
		if r.logs[i].OrderRef == orderRef {
			entry := *r.logs[i]
			out = append(out, &entry)
		}
	}
	return out, nil
}

// All returns every stored entry in arrival order
func (r *MemoryWebhookLogRepository) All() []*domain.WebhookLog {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*domain.WebhookLog, 0, len(r.logs))
	for _, l := range r.logs {
		entry := *l
		out = append(out, &entry)
	}
	return out
}
