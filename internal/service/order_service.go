package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/segyhp/installment-engine/internal/cache"
	"github.com/segyhp/installment-engine/internal/domain"
	"github.com/segyhp/installment-engine/internal/repository"
	customError "github.com/segyhp/installment-engine/pkg/errors"
)

type OrderService struct {
	base
	orders repository.OrderRepository
	users  repository.UserRepository
	cache  cache.StatusCache
}

func NewOrderService(
	orders repository.OrderRepository,
	users repository.UserRepository,
	statusCache cache.StatusCache,
	logger *zap.Logger,
	opts ...Option,
) *OrderService {
	if statusCache == nil {
		statusCache = cache.NopStatusCache{}
	}
	return &OrderService{
		base:   newBase(logger, opts),
		orders: orders,
		users:  users,
		cache:  statusCache,
	}
}

// CreateOrderWithSchedule is the only entry point that builds a ledger.
// Without an owner the guest contact is resolved to a synthetic guest user.
func (s *OrderService) CreateOrderWithSchedule(ctx context.Context, req *domain.CreateOrderRequest) (*domain.CreateOrderResponse, error) {
	ownerID := req.OwnerID
	if ownerID == uuid.Nil {
		if req.Guest == nil {
			return nil, customError.WrapUnauthorized("an authenticated caller or guest contact is required")
		}
		guest, err := s.users.EnsureGuest(ctx, *req.Guest)
		if err != nil {
			return nil, storeError(err)
		}
		ownerID = guest.ID
	}

	order, err := domain.NewOrder(ownerID, req.Total, req.InstallmentMonths, req.PaymentReference, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.orders.Create(ctx, order); err != nil {
		return nil, storeError(err)
	}

	s.logger.Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.String("owner_id", ownerID.String()),
		zap.Int64("total", order.Total),
		zap.Int("months", order.InstallmentMonths),
	)

	return &domain.CreateOrderResponse{Order: order, Summary: order.Summary()}, nil
}

// GetPaymentStatus reports the order status and one installment: the requested
// one, or the next installment due when none is given.
func (s *OrderService) GetPaymentStatus(ctx context.Context, caller domain.Caller, orderID uuid.UUID, installmentID *uuid.UUID) (*domain.PaymentStatusResponse, error) {
	if caller.IsAnonymous() {
		return nil, customError.WrapUnauthorized("authentication required")
	}

	field := cache.OrderField
	if installmentID != nil {
		field = installmentID.String()
	}

	if cached, ok := s.cache.Get(ctx, orderID, field); ok {
		if err := authorizeOwner(caller, cached.OwnerID); err != nil {
			return nil, err
		}
		return cached, nil
	}

	// taken before the load so a payment committed meanwhile voids this fill
	gen, cacheErr := s.cache.Generation(ctx, orderID)

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, storeError(err)
	}
	if err := authorizeOwner(caller, order.OwnerID); err != nil {
		return nil, err
	}

	status := &domain.PaymentStatusResponse{
		OrderID:       order.ID,
		OwnerID:       order.OwnerID,
		PaymentStatus: order.PaymentStatus,
		Total:         order.Total,
		NextDueDate:   order.NextDueDate,
		Summary:       order.Summary(),
	}

	if installmentID != nil {
		inst, err := order.Installment(*installmentID)
		if err != nil {
			return nil, err
		}
		status.Installment = domain.NewInstallmentView(inst)
	} else if inst := order.FirstPending(); inst != nil {
		status.Installment = domain.NewInstallmentView(inst)
	}

	if cacheErr == nil {
		cacheErr = s.cache.Set(ctx, orderID, field, gen, status)
	}
	if cacheErr != nil {
		s.logger.Debug("payment status not cached", zap.String("order_id", orderID.String()), zap.Error(cacheErr))
	}

	return status, nil
}

func authorizeOwner(caller domain.Caller, ownerID uuid.UUID) error {
	if caller.IsStaff() || caller.UserID == ownerID {
		return nil
	}
	return customError.WrapForbidden("order belongs to another user")
}
