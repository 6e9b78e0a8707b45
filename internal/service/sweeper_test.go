package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/installment-engine/internal/domain"
	"github.com/segyhp/installment-engine/internal/mocks"
	"github.com/segyhp/installment-engine/internal/notification"
	"github.com/segyhp/installment-engine/internal/repository"
)

// flakyOrders fails updates for one order and delegates everything else
type flakyOrders struct {
	*repository.MemoryOrderRepository
	failFor uuid.UUID
}

func (r *flakyOrders) Update(ctx context.Context, orderID uuid.UUID, fn repository.UpdateFunc) (*domain.Order, error) {
	if orderID == r.failFor {
		return nil, errors.New("deadlock detected")
	}
	return r.MemoryOrderRepository.Update(ctx, orderID, fn)
}

func TestOverdueSweeper_ScenarioC(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.createOrder(t, 1000, 4)

	f.clock.Set(date(2024, 2, 2))
	report, err := f.sweeper.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, report.OrdersScanned)
	assert.Equal(t, 1, report.InstallmentsMarked)
	assert.Zero(t, report.Failures)
	assert.False(t, report.Skipped)

	stored := f.reload(t, order.ID)
	assert.Equal(t, domain.InstallmentStatusOverdue, stored.Installments[0].Status)
	for _, inst := range stored.Installments[1:] {
		assert.Equal(t, domain.InstallmentStatusPending, inst.Status)
	}
	require.NotNil(t, stored.NextDueDate)
	assert.Equal(t, date(2024, 3, 1), *stored.NextDueDate)

	again, err := f.sweeper.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.InstallmentsMarked)
	assert.Equal(t, stored.UpdatedAt, f.reload(t, order.ID).UpdatedAt, "a second sweep changes nothing")
}

func TestOverdueSweeper_NothingDue(t *testing.T) {
	f := newFixture(t)
	f.createOrder(t, 1000, 4)

	f.clock.Set(date(2024, 2, 1))
	report, err := f.sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.OrdersScanned)
	assert.Zero(t, report.InstallmentsMarked)
}

func TestOverdueSweeper_MarksEveryLateInstallment(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, 1000, 4)

	f.clock.Set(date(2024, 6, 1))
	report, err := f.sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, report.InstallmentsMarked)

	stored := f.reload(t, order.ID)
	assert.Equal(t, 4, stored.Summary().Overdue)
	assert.Nil(t, stored.NextDueDate)
}

func TestOverdueSweeper_FailureIsolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	broken := f.createOrder(t, 1000, 4)
	healthy := f.createOrder(t, 600, 3)

	orders := &flakyOrders{MemoryOrderRepository: f.orders, failFor: broken.ID}
	sweeper := NewOverdueSweeper(orders, nil, nil, SweeperConfig{Concurrency: 2}, nil, WithClock(f.clock.Now))

	f.clock.Set(date(2024, 2, 2))
	report, err := sweeper.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, report.OrdersScanned)
	assert.Equal(t, 1, report.Failures)
	assert.Equal(t, 1, report.InstallmentsMarked)
	assert.Equal(t, domain.InstallmentStatusOverdue, f.reload(t, healthy.ID).Installments[0].Status)
	assert.Equal(t, domain.InstallmentStatusPending, f.reload(t, broken.ID).Installments[0].Status)
}

func TestOverdueSweeper_Lock(t *testing.T) {
	ctx := context.Background()

	t.Run("held elsewhere skips the run", func(t *testing.T) {
		locker := &mocks.MockLocker{}
		locker.On("TryLock", mock.Anything, sweepLockKey, 10*time.Minute).Return(false, nil)
		orders := &mocks.MockOrderRepository{}

		report, err := NewOverdueSweeper(orders, nil, locker, SweeperConfig{}, nil).Run(ctx)
		require.NoError(t, err)
		assert.True(t, report.Skipped)
		orders.AssertNotCalled(t, "ListOrderIDsWithPendingDueBefore", mock.Anything, mock.Anything)
	})

	t.Run("lock errors do not block the sweep", func(t *testing.T) {
		locker := &mocks.MockLocker{}
		locker.On("TryLock", mock.Anything, sweepLockKey, time.Minute).Return(false, errors.New("redis: connection refused"))
		orders := &mocks.MockOrderRepository{}
		orders.On("ListOrderIDsWithPendingDueBefore", mock.Anything, mock.Anything).Return([]uuid.UUID{}, nil)

		report, err := NewOverdueSweeper(orders, nil, locker, SweeperConfig{LockTTL: time.Minute}, nil).Run(ctx)
		require.NoError(t, err)
		assert.False(t, report.Skipped)
		orders.AssertExpectations(t)
	})
}

func TestPaymentReminder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.createOrder(t, 1000, 4)

	f.notifier.On("Send", mock.Anything, f.owner.Email, notification.TemplateInstallmentReminder, mock.MatchedBy(func(data map[string]any) bool {
		return data["installment_number"] == 1 &&
			data["amount"] == int64(250) &&
			data["order_id"] == order.ID.String()
	})).Return(nil).Once()

	reminder := NewPaymentReminder(f.orders, f.users, f.notifier, 72*time.Hour, 2, nil, WithClock(f.clock.Now))

	f.clock.Set(date(2024, 1, 30))
	report, err := reminder.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Due)
	assert.Equal(t, 1, report.Sent)
	assert.Zero(t, report.Failures)
	f.notifier.AssertExpectations(t)
}

func TestPaymentReminder_Failures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createOrder(t, 1000, 4)

	orphan, err := domain.NewOrder(uuid.New(), 500, 2, "", day0)
	require.NoError(t, err)
	require.NoError(t, f.orders.Create(ctx, orphan))

	f.notifier.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker unavailable"))

	reminder := NewPaymentReminder(f.orders, f.users, f.notifier, 72*time.Hour, 4, nil, WithClock(f.clock.Now))
	f.clock.Set(date(2024, 1, 30))

	report, err := reminder.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Due)
	assert.Zero(t, report.Sent)
	assert.Equal(t, 2, report.Failures, "unknown owner and failed send are both counted")
	f.notifier.AssertNumberOfCalls(t, "Send", 1)
}
