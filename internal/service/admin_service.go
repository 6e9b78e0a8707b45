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

// AdminService is the staff escape hatch. It bypasses payment providers but
// every change still goes through the ledger rules.
type AdminService struct {
	base
	orders   repository.OrderRepository
	webhooks repository.WebhookLogRepository
	cache    cache.StatusCache
	sweeper  *OverdueSweeper
}

func NewAdminService(
	orders repository.OrderRepository,
	webhooks repository.WebhookLogRepository,
	statusCache cache.StatusCache,
	sweeper *OverdueSweeper,
	logger *zap.Logger,
	opts ...Option,
) *AdminService {
	if statusCache == nil {
		statusCache = cache.NopStatusCache{}
	}
	return &AdminService{
		base:     newBase(logger, opts),
		orders:   orders,
		webhooks: webhooks,
		cache:    statusCache,
		sweeper:  sweeper,
	}
}

func (s *AdminService) SetInstallmentStatus(ctx context.Context, caller domain.Caller, installmentID uuid.UUID, req *domain.SetInstallmentStatusRequest) (*domain.Order, error) {
	if !caller.IsStaff() {
		return nil, customError.WrapForbidden("staff role required")
	}

	orderID, err := s.orders.FindOrderIDByInstallment(ctx, installmentID)
	if err != nil {
		return nil, storeError(err)
	}

	txID := req.TransactionID
	if req.Status == domain.InstallmentStatusPaid && txID == "" {
		txID = "MANUAL-" + uuid.NewString()
	}

	var previous string
	order, err := s.orders.Update(ctx, orderID, func(o *domain.Order) error {
		prev, err := o.OverrideInstallmentStatus(installmentID, req.Status, txID, s.now(), req.Confirm)
		previous = prev
		return err
	})
	if err != nil {
		return nil, storeError(err)
	}

	fields := []zap.Field{
		zap.String("staff_id", caller.UserID.String()),
		zap.String("order_id", orderID.String()),
		zap.String("installment_id", installmentID.String()),
		zap.String("from", previous),
		zap.String("to", req.Status),
	}
	if previous == domain.InstallmentStatusPaid && req.Status != domain.InstallmentStatusPaid {
		s.logger.Warn("recorded payment reverted by staff override", fields...)
	} else {
		s.logger.Info("installment status overridden", fields...)
	}

	s.invalidate(ctx, orderID)
	return order, nil
}

func (s *AdminService) SetOrderPaymentStatus(ctx context.Context, caller domain.Caller, orderID uuid.UUID, status string) (*domain.Order, error) {
	if !caller.IsStaff() {
		return nil, customError.WrapForbidden("staff role required")
	}

	var previous string
	order, err := s.orders.Update(ctx, orderID, func(o *domain.Order) error {
		previous = o.PaymentStatus
		return o.SetPaymentStatus(status, s.now())
	})
	if err != nil {
		return nil, storeError(err)
	}

	s.logger.Info("order payment status set",
		zap.String("staff_id", caller.UserID.String()),
		zap.String("order_id", orderID.String()),
		zap.String("from", previous),
		zap.String("to", status),
	)

	s.invalidate(ctx, orderID)
	return order, nil
}

// RunSweep lets staff trigger the overdue sweep outside its schedule
func (s *AdminService) RunSweep(ctx context.Context, caller domain.Caller) (*domain.SweepReport, error) {
	if !caller.IsStaff() {
		return nil, customError.WrapForbidden("staff role required")
	}
	return s.sweeper.Run(ctx)
}

// ListWebhookLogs returns the provider callbacks recorded for an order, newest first.
// Entries are keyed by the reference the provider sent, so callbacks for an order
// that no longer resolves are still listed.
func (s *AdminService) ListWebhookLogs(ctx context.Context, caller domain.Caller, orderID uuid.UUID) ([]*domain.WebhookLog, error) {
	if !caller.IsStaff() {
		return nil, customError.WrapForbidden("staff role required")
	}

	logs, err := s.webhooks.ListByOrderRef(ctx, orderID.String())
	if err != nil {
		return nil, storeError(err)
	}
	return logs, nil
}

func (s *AdminService) invalidate(ctx context.Context, orderID uuid.UUID) {
	if err := s.cache.Invalidate(ctx, orderID); err != nil {
		s.logger.Warn("failed to invalidate payment status cache", zap.String("order_id", orderID.String()), zap.Error(err))
	}
}
