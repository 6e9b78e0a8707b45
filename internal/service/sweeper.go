package service

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/segyhp/installment-engine/internal/cache"
	"github.com/segyhp/installment-engine/internal/domain"
	"github.com/segyhp/installment-engine/internal/repository"
)

const sweepLockKey = "lock:overdue_sweep"

type SweeperConfig struct {
	Concurrency int
	LockTTL     time.Duration
}

// OverdueSweeper moves late pending installments to overdue.
// It keeps no state between runs; the lock only avoids duplicate work.
type OverdueSweeper struct {
	base
	orders repository.OrderRepository
	cache  cache.StatusCache
	locker cache.Locker
	cfg    SweeperConfig
}

func NewOverdueSweeper(
	orders repository.OrderRepository,
	statusCache cache.StatusCache,
	locker cache.Locker,
	cfg SweeperConfig,
	logger *zap.Logger,
	opts ...Option,
) *OverdueSweeper {
	if statusCache == nil {
		statusCache = cache.NopStatusCache{}
	}
	if locker == nil {
		locker = cache.NopLocker{}
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	return &OverdueSweeper{
		base:   newBase(logger, opts),
		orders: orders,
		cache:  statusCache,
		locker: locker,
		cfg:    cfg,
	}
}

func (s *OverdueSweeper) Run(ctx context.Context) (*domain.SweepReport, error) {
	now := s.now()
	report := &domain.SweepReport{StartedAt: now}

	release, ok, err := s.locker.TryLock(ctx, sweepLockKey, s.cfg.LockTTL)
	switch {
	case err != nil:
		s.logger.Warn("sweep lock unavailable, sweeping without it", zap.Error(err))
	case !ok:
		s.logger.Info("another overdue sweep is running, skipping")
		report.Skipped = true
		return report, nil
	}
	defer release()

	ids, err := s.orders.ListOrderIDsWithPendingDueBefore(ctx, now)
	if err != nil {
		return nil, storeError(err)
	}
	report.OrdersScanned = len(ids)

	var marked, failures atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Concurrency)

	for _, id := range ids {
		id := id
		g.Go(func() error {
			n, err := s.sweepOrder(ctx, id, now)
			if err != nil {
				failures.Add(1)
				s.logger.Error("overdue sweep failed for order", zap.String("order_id", id.String()), zap.Error(err))
				return nil
			}
			marked.Add(int64(n))
			return nil
		})
	}
	_ = g.Wait()

	report.InstallmentsMarked = int(marked.Load())
	report.Failures = int(failures.Load())
	report.Duration = s.now().Sub(now)

	s.logger.Info("overdue sweep finished",
		zap.Int("orders_scanned", report.OrdersScanned),
		zap.Int("installments_marked", report.InstallmentsMarked),
		zap.Int("failures", report.Failures),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

// sweepOrder re-checks every installment against the freshly locked order
func (s *OverdueSweeper) sweepOrder(ctx context.Context, orderID uuid.UUID, now time.Time) (int, error) {
	var marked int
	_, err := s.orders.Update(ctx, orderID, func(o *domain.Order) error {
		marked = o.SweepOverdue(now)
		if marked == 0 {
			return errNoChange
		}
		return nil
	})
	if errors.Is(err, errNoChange) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	if err := s.cache.Invalidate(ctx, orderID); err != nil {
		s.logger.Warn("failed to invalidate payment status cache", zap.String("order_id", orderID.String()), zap.Error(err))
	}
	return marked, nil
}
