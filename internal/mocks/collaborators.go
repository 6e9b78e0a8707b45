package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/segyhp/installment-engine/internal/domain"
	"github.com/segyhp/installment-engine/internal/gateway"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Send(ctx context.Context, email, template string, data map[string]any) error {
	args := m.Called(ctx, email, template, data)
	return args.Error(0)
}

type MockStatusCache struct {
	mock.Mock
}

func (m *MockStatusCache) Get(ctx context.Context, orderID uuid.UUID, field string) (*domain.PaymentStatusResponse, bool) {
	args := m.Called(ctx, orderID, field)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).(*domain.PaymentStatusResponse), args.Bool(1)
}

func (m *MockStatusCache) Generation(ctx context.Context, orderID uuid.UUID) (int64, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStatusCache) Set(ctx context.Context, orderID uuid.UUID, field string, gen int64, status *domain.PaymentStatusResponse) error {
	args := m.Called(ctx, orderID, field, gen, status)
	return args.Error(0)
}

func (m *MockStatusCache) Invalidate(ctx context.Context, orderID uuid.UUID) error {
	args := m.Called(ctx, orderID)
	return args.Error(0)
}

type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	args := m.Called(ctx, key, ttl)
	return func() {}, args.Bool(0), args.Error(1)
}

type MockAdapter struct {
	mock.Mock
}

func (m *MockAdapter) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockAdapter) Initiate(ctx context.Context, req gateway.PaymentRequest) (*gateway.Initiation, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Initiation), args.Error(1)
}

func (m *MockAdapter) VerifyInboundNotification(ctx context.Context, req *gateway.InboundRequest) (*gateway.Notification, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Notification), args.Error(1)
}
