package service

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/installment-engine/internal/domain"
	"github.com/segyhp/installment-engine/internal/gateway"
	"github.com/segyhp/installment-engine/internal/mocks"
	"github.com/segyhp/installment-engine/internal/repository"
)

var day0 = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

const webhookSecret = "whsec_test"

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type fixture struct {
	clock    *testClock
	orders   *repository.MemoryOrderRepository
	users    *repository.MemoryUserRepository
	webhooks *repository.MemoryWebhookLogRepository
	notifier *mocks.MockNotifier
	mock     *gateway.MockAdapter
	registry *gateway.Registry

	orderSvc   *OrderService
	paymentSvc *PaymentService
	sweeper    *OverdueSweeper
	adminSvc   *AdminService

	owner  *domain.User
	staff  domain.Caller
	caller domain.Caller
}

// newFixture wires every service over in-memory stores and a mock provider that always succeeds
func newFixture(t *testing.T, mockOpts ...gateway.MockOption) *fixture {
	t.Helper()

	f := &fixture{
		clock:    &testClock{t: day0},
		orders:   repository.NewMemoryOrderRepository(),
		webhooks: repository.NewMemoryWebhookLogRepository(),
		notifier: &mocks.MockNotifier{},
		owner: &domain.User{
			ID:    uuid.New(),
			Name:  "Ayu Lestari",
			Email: "ayu@example.com",
			Phone: "+628123456789",
			Role:  domain.RoleCustomer,
		},
	}
	f.users = repository.NewMemoryUserRepository(f.owner)
	f.caller = domain.Caller{UserID: f.owner.ID, Role: domain.RoleCustomer}
	f.staff = domain.Caller{UserID: uuid.New(), Role: domain.RoleStaff}

	f.mock = gateway.NewMockAdapter(gateway.MockConfig{SuccessProbability: 1, Secret: webhookSecret}, mockOpts...)
	f.registry = gateway.NewRegistry(f.mock)

	clock := WithClock(f.clock.Now)
	f.orderSvc = NewOrderService(f.orders, f.users, nil, nil, clock)
	f.paymentSvc = NewPaymentService(f.orders, f.users, f.webhooks, f.registry, f.notifier, nil, nil, clock)
	f.sweeper = NewOverdueSweeper(f.orders, nil, nil, SweeperConfig{Concurrency: 4}, nil, clock)
	f.adminSvc = NewAdminService(f.orders, f.webhooks, nil, f.sweeper, nil, clock)
	return f
}

func (f *fixture) createOrder(t *testing.T, total int64, months int) *domain.Order {
	t.Helper()
	resp, err := f.orderSvc.CreateOrderWithSchedule(context.Background(), &domain.CreateOrderRequest{
		OwnerID:           f.owner.ID,
		Total:             total,
		InstallmentMonths: months,
	})
	require.NoError(t, err)
	return resp.Order
}

func (f *fixture) reload(t *testing.T, orderID uuid.UUID) *domain.Order {
	t.Helper()
	order, err := f.orders.GetByID(context.Background(), orderID)
	require.NoError(t, err)
	return order
}

// signedWebhook builds a mock provider callback carrying a valid signature
func (f *fixture) signedWebhook(t *testing.T, hook gateway.MockWebhook) *gateway.InboundRequest {
	t.Helper()
	body, err := json.Marshal(hook)
	require.NoError(t, err)

	headers := http.Header{}
	headers.Set(gateway.MockSignatureHeader, f.mock.Sign(body))
	return &gateway.InboundRequest{Headers: headers, Body: body}
}

func successHook(order *domain.Order, txRef string, amount int64) gateway.MockWebhook {
	return gateway.MockWebhook{
		OrderRef:       order.ID.String(),
		TransactionRef: txRef,
		Amount:         amount,
		Status:         gateway.MockStatusSuccess,
	}
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 9, 0, 0, 0, time.UTC)
}
