package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/installment-engine/internal/domain"
	"github.com/segyhp/installment-engine/internal/gateway"
	"github.com/segyhp/installment-engine/internal/mocks"
	"github.com/segyhp/installment-engine/internal/notification"
	"github.com/segyhp/installment-engine/internal/repository"
	customError "github.com/segyhp/installment-engine/pkg/errors"
)

func TestInitializePayment_ScenarioB(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, 1000, 4)

	f.notifier.On("Send", mock.Anything, f.owner.Email, notification.TemplatePaymentConfirmation, mock.Anything).Return(nil).Once()

	f.clock.Set(date(2024, 1, 15))
	resp, err := f.paymentSvc.InitializePayment(context.Background(), f.caller, order.ID, &domain.InitializePaymentRequest{
		Provider: gateway.MockName,
	})
	require.NoError(t, err)

	assert.True(t, resp.Settled)
	assert.Equal(t, domain.InstallmentStatusPaid, resp.Status)
	assert.Equal(t, 1, resp.InstallmentNumber)
	assert.Equal(t, int64(250), resp.Amount)
	assert.True(t, strings.HasPrefix(resp.ProviderTransactionRef, "MOCK-"))

	stored := f.reload(t, order.ID)
	first := stored.Installments[0]
	assert.Equal(t, domain.InstallmentStatusPaid, first.Status)
	assert.Equal(t, resp.ProviderTransactionRef, first.TransactionRef())
	require.NotNil(t, first.PaidAt)
	assert.Equal(t, date(2024, 1, 15), *first.PaidAt)

	require.NotNil(t, stored.NextDueDate)
	assert.Equal(t, date(2024, 3, 1), *stored.NextDueDate)

	f.notifier.AssertExpectations(t)
}

func TestInitializePayment_DeclinedLeavesLedgerUntouched(t *testing.T) {
	f := newFixture(t)
	f.mock = gateway.NewMockAdapter(gateway.MockConfig{SuccessProbability: 0.5}, gateway.WithRandomSource(func() float64 { return 0.99 }))
	f.registry.Register(f.mock)
	order := f.createOrder(t, 1000, 4)

	resp, err := f.paymentSvc.InitializePayment(context.Background(), f.caller, order.ID, &domain.InitializePaymentRequest{
		Provider: gateway.MockName,
	})
	require.NoError(t, err)

	assert.True(t, resp.Settled)
	assert.Equal(t, domain.InstallmentStatusPending, resp.Status)
	assert.NotEmpty(t, resp.FailureMessage)
	assert.Equal(t, 4, f.reload(t, order.ID).Summary().Pending)
	f.notifier.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestInitializePayment_UsesLedgerAmount(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, 100, 3)
	last := order.Installments[2]

	adapter := &mocks.MockAdapter{}
	adapter.On("Name").Return("acme")
	adapter.On("Initiate", mock.Anything, mock.MatchedBy(func(req gateway.PaymentRequest) bool {
		return req.Amount == 34 &&
			req.InstallmentID == last.ID &&
			req.OrderRef == order.ID.String() &&
			req.Payer.Email == f.owner.Email
	})).Return(&gateway.Initiation{RedirectURL: "https://pay.example/abc", ProviderTransactionRef: "acme-1"}, nil)
	f.registry.Register(adapter)

	resp, err := f.paymentSvc.InitializePayment(context.Background(), f.caller, order.ID, &domain.InitializePaymentRequest{
		Provider:      "acme",
		InstallmentID: &last.ID,
	})
	require.NoError(t, err)

	assert.False(t, resp.Settled)
	assert.Equal(t, "https://pay.example/abc", resp.RedirectURL)
	assert.Equal(t, domain.InstallmentStatusPending, resp.Status)
	assert.Equal(t, 3, f.reload(t, order.ID).Summary().Pending, "redirect flows never touch the ledger")
	adapter.AssertExpectations(t)
}

func TestInitializePayment_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.createOrder(t, 300, 3)
	req := &domain.InitializePaymentRequest{Provider: gateway.MockName}

	t.Run("unknown order", func(t *testing.T) {
		_, err := f.paymentSvc.InitializePayment(ctx, f.caller, uuid.New(), req)
		assert.True(t, errors.Is(err, customError.ErrNotFound))
	})

	t.Run("not the owner", func(t *testing.T) {
		_, err := f.paymentSvc.InitializePayment(ctx, domain.Caller{UserID: uuid.New(), Role: domain.RoleCustomer}, order.ID, req)
		assert.True(t, errors.Is(err, customError.ErrForbidden))

		_, err = f.paymentSvc.InitializePayment(ctx, f.staff, order.ID, req)
		assert.True(t, errors.Is(err, customError.ErrForbidden), "staff use the override surface instead")
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := f.paymentSvc.InitializePayment(ctx, f.caller, order.ID, &domain.InitializePaymentRequest{Provider: "paypal"})
		assert.True(t, errors.Is(err, customError.ErrUnknownProvider))
	})

	t.Run("unknown installment", func(t *testing.T) {
		missing := uuid.New()
		_, err := f.paymentSvc.InitializePayment(ctx, f.caller, order.ID, &domain.InitializePaymentRequest{Provider: gateway.MockName, InstallmentID: &missing})
		assert.Equal(t, customError.ErrCodeInstallmentNotFound, customError.Code(err))
	})

	t.Run("already paid", func(t *testing.T) {
		first := order.Installments[0]
		_, err := f.orders.Update(ctx, order.ID, func(o *domain.Order) error {
			return o.MarkPaid(first.ID, "TXN-PAID", day0)
		})
		require.NoError(t, err)

		_, err = f.paymentSvc.InitializePayment(ctx, f.caller, order.ID, &domain.InitializePaymentRequest{Provider: gateway.MockName, InstallmentID: &first.ID})
		assert.True(t, errors.Is(err, customError.ErrAlreadyPaid))
	})

	t.Run("overdue needs manual handling", func(t *testing.T) {
		second := order.Installments[1]
		_, err := f.orders.Update(ctx, order.ID, func(o *domain.Order) error {
			_, err := o.MarkOverdue(second.ID, date(2024, 3, 2))
			return err
		})
		require.NoError(t, err)

		_, err = f.paymentSvc.InitializePayment(ctx, f.caller, order.ID, &domain.InitializePaymentRequest{Provider: gateway.MockName, InstallmentID: &second.ID})
		assert.True(t, errors.Is(err, customError.ErrOverdueRequiresManualHandling))
	})

	t.Run("nothing pending", func(t *testing.T) {
		third := order.Installments[2]
		_, err := f.orders.Update(ctx, order.ID, func(o *domain.Order) error {
			return o.MarkPaid(third.ID, "TXN-LAST", day0)
		})
		require.NoError(t, err)

		_, err = f.paymentSvc.InitializePayment(ctx, f.caller, order.ID, req)
		assert.True(t, errors.Is(err, customError.ErrNoPendingInstallment))
	})
}

func TestInitializePayment_GatewayUnavailable(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, 300, 3)

	adapter := &mocks.MockAdapter{}
	adapter.On("Name").Return("acme")
	adapter.On("Initiate", mock.Anything, mock.Anything).Return(nil, customError.WrapGatewayUnavailable("acme", context.DeadlineExceeded))
	f.registry.Register(adapter)

	_, err := f.paymentSvc.InitializePayment(context.Background(), f.caller, order.ID, &domain.InitializePaymentRequest{Provider: "acme"})
	assert.True(t, errors.Is(err, customError.ErrGatewayUnavailable))
	assert.Equal(t, 3, f.reload(t, order.ID).Summary().Pending)
}

func TestHandleProviderCallback_DuplicateDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.createOrder(t, 1000, 4)

	f.notifier.On("Send", mock.Anything, f.owner.Email, notification.TemplatePaymentConfirmation, mock.Anything).Return(nil)

	raw := f.signedWebhook(t, successHook(order, "TXN1", 250))

	first := f.paymentSvc.HandleProviderCallback(ctx, gateway.MockName, raw)
	assert.True(t, first.Acknowledged)
	assert.True(t, first.Applied)
	assert.False(t, first.Duplicate)
	require.NotNil(t, first.InstallmentID)
	assert.Equal(t, order.Installments[0].ID, *first.InstallmentID)

	second := f.paymentSvc.HandleProviderCallback(ctx, gateway.MockName, raw)
	assert.True(t, second.Acknowledged)
	assert.False(t, second.Applied)
	assert.True(t, second.Duplicate)

	stored := f.reload(t, order.ID)
	assert.Equal(t, domain.InstallmentStatusPaid, stored.Installments[0].Status)
	assert.Equal(t, "TXN1", stored.Installments[0].TransactionRef())
	assert.Equal(t, domain.InstallmentStatusPending, stored.Installments[1].Status, "a replay must not pay the next installment")

	f.notifier.AssertNumberOfCalls(t, "Send", 1)

	logs := f.webhooks.All()
	require.Len(t, logs, 2)
	assert.Equal(t, domain.WebhookOutcomeApplied, logs[0].Outcome)
	assert.Equal(t, domain.WebhookOutcomeDuplicate, logs[1].Outcome)
}

func TestHandleProviderCallback_ConcurrentDuplicates(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, 1000, 4)
	f.notifier.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	raw := f.signedWebhook(t, successHook(order, "TXN-RACE", 250))

	var wg sync.WaitGroup
	results := make([]*domain.CallbackResult, 8)
	for i := range results {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = f.paymentSvc.HandleProviderCallback(context.Background(), gateway.MockName, raw)
		}()
	}
	wg.Wait()

	applied := 0
	for _, r := range results {
		assert.True(t, r.Acknowledged)
		if r.Applied {
			applied++
		}
	}
	assert.Equal(t, 1, applied)
	assert.Equal(t, 1, f.reload(t, order.ID).Summary().Paid)
	f.notifier.AssertNumberOfCalls(t, "Send", 1)
}

func TestHandleProviderCallback_Outcomes(t *testing.T) {
	ctx := context.Background()

	t.Run("unverified signature changes nothing", func(t *testing.T) {
		f := newFixture(t)
		order := f.createOrder(t, 1000, 4)

		raw := f.signedWebhook(t, successHook(order, "TXN1", 250))
		raw.Headers.Set(gateway.MockSignatureHeader, "00ff")

		result := f.paymentSvc.HandleProviderCallback(ctx, gateway.MockName, raw)
		assert.False(t, result.Acknowledged)
		assert.False(t, result.Verified)
		assert.False(t, result.Applied)
		assert.Equal(t, 4, f.reload(t, order.ID).Summary().Pending)

		logs := f.webhooks.All()
		require.Len(t, logs, 1)
		assert.Equal(t, domain.WebhookOutcomeRejected, logs[0].Outcome)
		assert.Equal(t, raw.Body, logs[0].Payload)
	})

	t.Run("malformed payload", func(t *testing.T) {
		f := newFixture(t)
		result := f.paymentSvc.HandleProviderCallback(ctx, gateway.MockName, &gateway.InboundRequest{Body: []byte("not json")})

		assert.False(t, result.Acknowledged)
		assert.Equal(t, domain.WebhookOutcomeMalformed, f.webhooks.All()[0].Outcome)
	})

	t.Run("unknown provider", func(t *testing.T) {
		f := newFixture(t)
		result := f.paymentSvc.HandleProviderCallback(ctx, "paypal", &gateway.InboundRequest{Body: []byte("{}")})

		assert.False(t, result.Acknowledged)
		assert.Equal(t, domain.WebhookOutcomeRejected, f.webhooks.All()[0].Outcome)
	})

	t.Run("declined payment is acknowledged without mutation", func(t *testing.T) {
		f := newFixture(t)
		order := f.createOrder(t, 1000, 4)

		hook := successHook(order, "TXN1", 250)
		hook.Status = gateway.MockStatusFailed
		hook.Message = "insufficient funds"

		result := f.paymentSvc.HandleProviderCallback(ctx, gateway.MockName, f.signedWebhook(t, hook))
		assert.True(t, result.Acknowledged)
		assert.True(t, result.Verified)
		assert.False(t, result.Success)
		assert.Equal(t, "insufficient funds", result.Message)
		assert.Equal(t, 4, f.reload(t, order.ID).Summary().Pending)
		assert.Equal(t, domain.WebhookOutcomeDeclined, f.webhooks.All()[0].Outcome)
	})

	t.Run("missing order is acknowledged", func(t *testing.T) {
		f := newFixture(t)
		ghost := &domain.Order{ID: uuid.New()}

		result := f.paymentSvc.HandleProviderCallback(ctx, gateway.MockName, f.signedWebhook(t, successHook(ghost, "TXN1", 250)))
		assert.True(t, result.Acknowledged)
		assert.False(t, result.Applied)
		assert.Equal(t, domain.WebhookOutcomeOrphaned, f.webhooks.All()[0].Outcome)
	})

	t.Run("order reference that is not an id", func(t *testing.T) {
		f := newFixture(t)
		hook := gateway.MockWebhook{OrderRef: "INV-42", TransactionRef: "TXN1", Amount: 250, Status: gateway.MockStatusSuccess}

		result := f.paymentSvc.HandleProviderCallback(ctx, gateway.MockName, f.signedWebhook(t, hook))
		assert.True(t, result.Acknowledged)
		assert.Equal(t, domain.WebhookOutcomeOrphaned, f.webhooks.All()[0].Outcome)
	})

	t.Run("amount mismatch is not applied", func(t *testing.T) {
		f := newFixture(t)
		order := f.createOrder(t, 1000, 4)

		result := f.paymentSvc.HandleProviderCallback(ctx, gateway.MockName, f.signedWebhook(t, successHook(order, "TXN1", 100)))
		assert.True(t, result.Acknowledged)
		assert.False(t, result.Applied)
		assert.Contains(t, result.Message, "does not match")
		assert.Equal(t, 4, f.reload(t, order.ID).Summary().Pending)
		assert.Equal(t, domain.WebhookOutcomeUnmatched, f.webhooks.All()[0].Outcome)
	})

	t.Run("no pending installment left", func(t *testing.T) {
		f := newFixture(t)
		f.notifier.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
		order := f.createOrder(t, 500, 1)

		first := f.paymentSvc.HandleProviderCallback(ctx, gateway.MockName, f.signedWebhook(t, successHook(order, "TXN1", 500)))
		require.True(t, first.Applied)

		result := f.paymentSvc.HandleProviderCallback(ctx, gateway.MockName, f.signedWebhook(t, successHook(order, "TXN2", 500)))
		assert.True(t, result.Acknowledged)
		assert.False(t, result.Applied)
		assert.False(t, result.Duplicate)
		assert.Equal(t, domain.WebhookOutcomeUnmatched, f.webhooks.All()[1].Outcome)
	})

	t.Run("explicit installment pays a late installment", func(t *testing.T) {
		f := newFixture(t)
		f.notifier.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
		order := f.createOrder(t, 1000, 4)

		f.clock.Set(date(2024, 2, 5))
		_, err := f.sweeper.Run(ctx)
		require.NoError(t, err)

		hook := successHook(order, "TXN-LATE", 250)
		hook.InstallmentID = order.Installments[0].ID.String()

		result := f.paymentSvc.HandleProviderCallback(ctx, gateway.MockName, f.signedWebhook(t, hook))
		require.True(t, result.Applied)
		assert.Equal(t, order.Installments[0].ID, *result.InstallmentID)

		stored := f.reload(t, order.ID)
		assert.Equal(t, domain.InstallmentStatusPaid, stored.Installments[0].Status)
		assert.Equal(t, date(2024, 3, 1), *stored.NextDueDate)
	})
}

func TestHandleProviderCallback_NotificationFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, 1000, 4)
	f.notifier.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp relay down"))

	result := f.paymentSvc.HandleProviderCallback(context.Background(), gateway.MockName, f.signedWebhook(t, successHook(order, "TXN1", 250)))

	assert.True(t, result.Acknowledged)
	assert.True(t, result.Applied)
	assert.Equal(t, 1, f.reload(t, order.ID).Summary().Paid)
	f.notifier.AssertNumberOfCalls(t, "Send", 1)
}

func TestHandleProviderCallback_StoreFailureIsRetryable(t *testing.T) {
	orderID := uuid.New()
	orders := &mocks.MockOrderRepository{}
	orders.On("Update", mock.Anything, orderID, mock.Anything).Return(nil, errors.New("could not serialize access"))

	webhooks := &mocks.MockWebhookLogRepository{}
	webhooks.On("Create", mock.Anything, mock.MatchedBy(func(l *domain.WebhookLog) bool {
		return l.Outcome == domain.WebhookOutcomeStoreError
	})).Return(nil).Once()

	adapter := gateway.NewMockAdapter(gateway.MockConfig{})
	notifier := &mocks.MockNotifier{}
	svc := NewPaymentService(orders, repository.NewMemoryUserRepository(), webhooks, gateway.NewRegistry(adapter), notifier, nil, nil)

	hook := gateway.MockWebhook{OrderRef: orderID.String(), TransactionRef: "TXN1", Amount: 250, Status: gateway.MockStatusSuccess}
	body, err := json.Marshal(hook)
	require.NoError(t, err)

	result := svc.HandleProviderCallback(context.Background(), gateway.MockName, &gateway.InboundRequest{Body: body})

	assert.False(t, result.Acknowledged)
	assert.True(t, result.Retryable)
	assert.False(t, result.Applied)
	notifier.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	webhooks.AssertExpectations(t)
}

func TestHandleProviderCallback_AuditFailureDoesNotChangeOutcome(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, 1000, 4)
	f.notifier.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	webhooks := &mocks.MockWebhookLogRepository{}
	webhooks.On("Create", mock.Anything, mock.Anything).Return(errors.New("disk full"))
	svc := NewPaymentService(f.orders, f.users, webhooks, f.registry, f.notifier, nil, nil)

	result := svc.HandleProviderCallback(context.Background(), gateway.MockName, f.signedWebhook(t, successHook(order, "TXN1", 250)))
	assert.True(t, result.Applied)
	webhooks.AssertExpectations(t)
}
