package service

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/segyhp/installment-engine/internal/domain"
	"github.com/segyhp/installment-engine/internal/notification"
	"github.com/segyhp/installment-engine/internal/repository"
)

// PaymentReminder notifies owners of pending installments falling due within the window
type PaymentReminder struct {
	base
	orders      repository.OrderRepository
	users       repository.UserRepository
	notifier    notification.Notifier
	window      time.Duration
	concurrency int
}

func NewPaymentReminder(
	orders repository.OrderRepository,
	users repository.UserRepository,
	notifier notification.Notifier,
	window time.Duration,
	concurrency int,
	logger *zap.Logger,
	opts ...Option,
) *PaymentReminder {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &PaymentReminder{
		base:        newBase(logger, opts),
		orders:      orders,
		users:       users,
		notifier:    notifier,
		window:      window,
		concurrency: concurrency,
	}
}

func (r *PaymentReminder) Run(ctx context.Context) (*domain.ReminderReport, error) {
	now := r.now()
	report := &domain.ReminderReport{StartedAt: now}

	due, err := r.orders.ListPendingDueBetween(ctx, now, now.Add(r.window))
	if err != nil {
		return nil, storeError(err)
	}
	report.Due = len(due)

	var sent, failures atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(r.concurrency)

	for _, item := range due {
		item := item
		g.Go(func() error {
			if err := r.remind(ctx, item); err != nil {
				failures.Add(1)
				r.logger.Warn("payment reminder failed",
					zap.String("order_id", item.OrderID.String()),
					zap.Int("number", item.Number),
					zap.Error(err),
				)
				return nil
			}
			sent.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	report.Sent = int(sent.Load())
	report.Failures = int(failures.Load())

	r.logger.Info("payment reminders sent",
		zap.Int("due", report.Due),
		zap.Int("sent", report.Sent),
		zap.Int("failures", report.Failures),
	)
	return report, nil
}

func (r *PaymentReminder) remind(ctx context.Context, item *domain.DueInstallment) error {
	user, err := r.users.GetByID(ctx, item.OwnerID)
	if err != nil {
		return err
	}
	return r.notifier.Send(ctx, user.Email, notification.TemplateInstallmentReminder, map[string]any{
		"name":               user.Name,
		"order_id":           item.OrderID.String(),
		"installment_id":     item.InstallmentID.String(),
		"installment_number": item.Number,
		"amount":             item.Amount,
		"due_date":           item.DueDate,
	})
}
