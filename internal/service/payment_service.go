package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/segyhp/installment-engine/internal/cache"
	"github.com/segyhp/installment-engine/internal/domain"
	"github.com/segyhp/installment-engine/internal/gateway"
	"github.com/segyhp/installment-engine/internal/notification"
	"github.com/segyhp/installment-engine/internal/repository"
	customError "github.com/segyhp/installment-engine/pkg/errors"
	"github.com/segyhp/installment-engine/pkg/utils"
)

// PaymentService reconciles provider payments with installment ledgers
type PaymentService struct {
	base
	orders   repository.OrderRepository
	users    repository.UserRepository
	webhooks repository.WebhookLogRepository
	gateways *gateway.Registry
	notifier notification.Notifier
	cache    cache.StatusCache
}

func NewPaymentService(
	orders repository.OrderRepository,
	users repository.UserRepository,
	webhooks repository.WebhookLogRepository,
	gateways *gateway.Registry,
	notifier notification.Notifier,
	statusCache cache.StatusCache,
	logger *zap.Logger,
	opts ...Option,
) *PaymentService {
	if statusCache == nil {
		statusCache = cache.NopStatusCache{}
	}
	return &PaymentService{
		base:     newBase(logger, opts),
		orders:   orders,
		users:    users,
		webhooks: webhooks,
		gateways: gateways,
		notifier: notifier,
		cache:    statusCache,
	}
}

// InitializePayment starts a provider charge for one installment of the caller's order.
// The ledger is only touched when the provider settles synchronously.
func (s *PaymentService) InitializePayment(ctx context.Context, caller domain.Caller, orderID uuid.UUID, req *domain.InitializePaymentRequest) (*domain.InitializePaymentResponse, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, storeError(err)
	}

	if caller.IsAnonymous() || order.OwnerID != caller.UserID {
		return nil, customError.WrapForbidden("order belongs to another user")
	}

	target, err := order.ResolveTargetInstallment(req.InstallmentID)
	if err != nil {
		return nil, err
	}
	switch {
	case target.IsPaid():
		return nil, customError.WrapAlreadyPaid(target.ID.String())
	case target.IsOverdue():
		return nil, customError.WrapOverdueRequiresManualHandling(target.ID.String())
	}

	adapter, err := s.gateways.Get(req.Provider)
	if err != nil {
		return nil, err
	}

	initiation, err := adapter.Initiate(ctx, gateway.PaymentRequest{
		OrderRef:      order.ID.String(),
		InstallmentID: target.ID,
		Amount:        target.Amount,
		Payer:         s.payer(ctx, order.OwnerID),
		Description:   fmt.Sprintf("Installment %d of %d", target.Number, len(order.Installments)),
	})
	if err != nil {
		s.logger.Warn("payment initiation failed",
			zap.String("provider", req.Provider),
			zap.String("order_id", order.ID.String()),
			zap.String("installment_id", target.ID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	resp := &domain.InitializePaymentResponse{
		OrderID:                order.ID,
		InstallmentID:          target.ID,
		InstallmentNumber:      target.Number,
		Amount:                 target.Amount,
		Provider:               adapter.Name(),
		RedirectURL:            initiation.RedirectURL,
		Token:                  initiation.Token,
		ProviderTransactionRef: initiation.ProviderTransactionRef,
		Status:                 target.Status,
	}

	if initiation.Settled == nil {
		return resp, nil
	}

	resp.Settled = true
	if !initiation.Settled.IsSuccess {
		resp.FailureMessage = initiation.Settled.FailureMessage
		return resp, nil
	}

	result := &domain.CallbackResult{Provider: adapter.Name(), Verified: true, Success: true}
	s.applySettlement(ctx, initiation.Settled, result)
	if result.Retryable {
		return nil, customError.WrapDatabaseError(errors.New(result.Message))
	}
	if result.Applied || result.Duplicate {
		resp.Status = domain.InstallmentStatusPaid
	} else {
		resp.FailureMessage = result.Message
	}
	return resp, nil
}

// HandleProviderCallback never returns an error: every outcome, including
// unverified and malformed input, is reported through the result and audited.
func (s *PaymentService) HandleProviderCallback(ctx context.Context, provider string, raw *gateway.InboundRequest) *domain.CallbackResult {
	result := &domain.CallbackResult{Provider: provider}
	entry := &domain.WebhookLog{
		ID:         uuid.New(),
		Provider:   provider,
		Payload:    raw.Body,
		ReceivedAt: s.now(),
	}
	defer s.audit(ctx, entry)

	adapter, err := s.gateways.Get(provider)
	if err != nil {
		s.logger.Warn("callback for unknown provider", zap.String("provider", provider), zap.ByteString("payload", raw.Body))
		entry.Outcome = domain.WebhookOutcomeRejected
		result.Message = err.Error()
		return result
	}

	n, err := adapter.VerifyInboundNotification(ctx, raw)
	if err != nil {
		s.logger.Warn("malformed provider callback",
			zap.String("provider", provider),
			zap.ByteString("payload", raw.Body),
			zap.Error(err),
		)
		entry.Outcome = domain.WebhookOutcomeMalformed
		result.Message = err.Error()
		return result
	}

	entry.Verified = n.Verified
	entry.Success = n.IsSuccess
	entry.OrderRef = n.OrderRef
	entry.ProviderTransactionRef = n.ProviderTransactionRef
	result.Verified = n.Verified

	if !n.Verified {
		s.logger.Warn("provider callback failed verification",
			zap.String("provider", provider),
			zap.String("order_ref", n.OrderRef),
			zap.ByteString("payload", raw.Body),
		)
		entry.Outcome = domain.WebhookOutcomeRejected
		result.Message = customError.WrapVerificationFailed(provider).Message
		return result
	}

	result.Success = n.IsSuccess
	if !n.IsSuccess {
		s.logger.Info("provider reported unsuccessful payment",
			zap.String("provider", provider),
			zap.String("order_ref", n.OrderRef),
			zap.String("status", n.Status),
			zap.String("failure", n.FailureMessage),
		)
		entry.Outcome = domain.WebhookOutcomeDeclined
		result.Acknowledged = true
		result.Message = n.FailureMessage
		if result.Message == "" {
			result.Message = "payment not completed: " + n.Status
		}
		return result
	}

	entry.Outcome = s.applySettlement(ctx, n, result)
	return result
}

// applySettlement marks the matching installment paid in one atomic order update
// and returns the audit outcome.
func (s *PaymentService) applySettlement(ctx context.Context, n *gateway.Notification, result *domain.CallbackResult) string {
	result.Acknowledged = true
	log := s.logger.With(
		zap.String("provider", result.Provider),
		zap.String("order_ref", n.OrderRef),
		zap.String("transaction_ref", n.ProviderTransactionRef),
	)

	orderID, err := uuid.Parse(n.OrderRef)
	if err != nil {
		log.Warn("settlement references an unknown order")
		result.Message = "order not found"
		return domain.WebhookOutcomeOrphaned
	}
	result.OrderID = &orderID

	var (
		paid    *domain.Installment
		outcome string
	)
	order, err := s.orders.Update(ctx, orderID, func(o *domain.Order) error {
		if o.HasTransaction(n.ProviderTransactionRef) {
			outcome = domain.WebhookOutcomeDuplicate
			return errNoChange
		}

		target, err := o.ResolveTargetInstallment(n.InstallmentID)
		if err != nil {
			return err
		}
		if target.IsPaid() {
			outcome = domain.WebhookOutcomeDuplicate
			return errNoChange
		}
		if n.Amount != target.Amount {
			outcome = domain.WebhookOutcomeUnmatched
			result.Message = fmt.Sprintf("amount %s does not match installment %d amount %s",
				utils.FormatAmount(n.Amount), target.Number, utils.FormatAmount(target.Amount))
			return errNoChange
		}

		if err := o.MarkPaid(target.ID, n.ProviderTransactionRef, s.now()); err != nil {
			return err
		}
		paid = target
		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, errNoChange) && outcome == domain.WebhookOutcomeDuplicate,
		errors.Is(err, customError.ErrAlreadyPaid):
		log.Info("duplicate settlement acknowledged")
		result.Duplicate = true
		result.Message = "payment already recorded"
		return domain.WebhookOutcomeDuplicate
	case errors.Is(err, errNoChange):
		log.Warn("settlement not applied, manual reconciliation required", zap.String("reason", result.Message))
		return outcome
	case customError.Code(err) == customError.ErrCodeOrderNotFound:
		log.Warn("settlement references a missing order")
		result.Message = "order not found"
		return domain.WebhookOutcomeOrphaned
	case errors.Is(err, customError.ErrNotFound), errors.Is(err, customError.ErrNoPendingInstallment):
		log.Warn("settlement matches no payable installment, manual reconciliation required", zap.Error(err))
		result.Message = err.Error()
		return domain.WebhookOutcomeUnmatched
	default:
		log.Error("failed to record settlement", zap.Error(err))
		result.Acknowledged = false
		result.Retryable = true
		result.Message = "failed to record payment"
		return domain.WebhookOutcomeStoreError
	}

	result.Applied = true
	result.InstallmentID = &paid.ID
	result.Message = "payment recorded"

	log.Info("installment paid",
		zap.String("installment_id", paid.ID.String()),
		zap.Int("number", paid.Number),
		zap.Int64("amount", paid.Amount),
	)

	if err := s.cache.Invalidate(ctx, orderID); err != nil {
		log.Warn("failed to invalidate payment status cache", zap.Error(err))
	}
	s.notifyPaid(ctx, order, paid)

	return domain.WebhookOutcomeApplied
}

// notifyPaid is best effort: failures are logged and never change the outcome
func (s *PaymentService) notifyPaid(ctx context.Context, order *domain.Order, paid *domain.Installment) {
	user, err := s.users.GetByID(ctx, order.OwnerID)
	if err != nil {
		s.logger.Warn("payment confirmation skipped, owner lookup failed",
			zap.String("order_id", order.ID.String()), zap.Error(err))
		return
	}

	data := map[string]any{
		"name":               user.Name,
		"order_id":           order.ID.String(),
		"installment_number": paid.Number,
		"installments":       len(order.Installments),
		"amount":             paid.Amount,
		"transaction_id":     paid.TransactionRef(),
		"paid_at":            paid.PaidAt,
		"next_due_date":      order.NextDueDate,
	}
	if err := s.notifier.Send(ctx, user.Email, notification.TemplatePaymentConfirmation, data); err != nil {
		s.logger.Warn("failed to send payment confirmation",
			zap.String("order_id", order.ID.String()), zap.Error(err))
	}
}

func (s *PaymentService) payer(ctx context.Context, ownerID uuid.UUID) gateway.Payer {
	user, err := s.users.GetByID(ctx, ownerID)
	if err != nil {
		s.logger.Warn("payer contact unavailable", zap.String("owner_id", ownerID.String()), zap.Error(err))
		return gateway.Payer{}
	}
	return gateway.Payer{Name: user.Name, Email: user.Email, Phone: user.Phone}
}

func (s *PaymentService) audit(ctx context.Context, entry *domain.WebhookLog) {
	if err := s.webhooks.Create(ctx, entry); err != nil {
		s.logger.Error("failed to store webhook audit entry",
			zap.String("provider", entry.Provider),
			zap.String("outcome", entry.Outcome),
			zap.Error(err),
		)
	}
}
