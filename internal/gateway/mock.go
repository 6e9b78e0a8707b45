package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	customError "github.com/segyhp/installment-engine/pkg/errors"
)

const (
	MockName = "mock"

	MockSignatureHeader = "X-Mock-Signature"

	MockStatusSuccess = "success"
	MockStatusFailed  = "failed"
)

type MockConfig struct {
	SuccessProbability float64
	Delay              time.Duration
	// Secret enables HMAC verification of inbound notifications when set
	Secret          string
	RedirectBaseURL string
}

// MockAdapter simulates a provider that settles synchronously
type MockAdapter struct {
	cfg    MockConfig
	random func() float64
}

type MockOption func(*MockAdapter)

// WithRandomSource replaces the random source deciding success, for deterministic tests
func WithRandomSource(fn func() float64) MockOption {
	return func(m *MockAdapter) {
		m.random = fn
	}
}

func NewMockAdapter(cfg MockConfig, opts ...MockOption) *MockAdapter {
	m := &MockAdapter{cfg: cfg, random: rand.Float64}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MockAdapter) Name() string { return MockName }

func (m *MockAdapter) Initiate(ctx context.Context, req PaymentRequest) (*Initiation, error) {
	if req.Amount <= 0 {
		return nil, customError.WrapInvalidAmount(req.Amount)
	}

	if m.cfg.Delay > 0 {
		timer := time.NewTimer(m.cfg.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, customError.WrapGatewayUnavailable(MockName, ctx.Err())
		case <-timer.C:
		}
	}

	ref := "MOCK-" + uuid.NewString()
	installmentID := req.InstallmentID

	settled := &Notification{
		Verified:               true,
		ProviderTransactionRef: ref,
		Amount:                 req.Amount,
		OrderRef:               req.OrderRef,
		InstallmentID:          &installmentID,
		Status:                 MockStatusSuccess,
		IsSuccess:              true,
	}
	if m.random() >= m.cfg.SuccessProbability {
		settled.IsSuccess = false
		settled.Status = MockStatusFailed
		settled.FailureMessage = "mock payment declined"
	}

	initiation := &Initiation{
		ProviderTransactionRef: ref,
		Settled:                settled,
	}
	if m.cfg.RedirectBaseURL != "" {
		initiation.RedirectURL = strings.TrimRight(m.cfg.RedirectBaseURL, "/") + "/" + ref
	}
	return initiation, nil
}

// MockWebhook is the JSON body of a mock provider callback
type MockWebhook struct {
	OrderRef       string `json:"order_ref"`
	InstallmentID  string `json:"installment_id,omitempty"`
	TransactionRef string `json:"transaction_ref"`
	Amount         int64  `json:"amount"`
	Status         string `json:"status"`
	Message        string `json:"message,omitempty"`
}

func (m *MockAdapter) VerifyInboundNotification(ctx context.Context, req *InboundRequest) (*Notification, error) {
	var hook MockWebhook
	if err := json.Unmarshal(req.Body, &hook); err != nil {
		return nil, customError.WrapMalformedNotification(MockName, err)
	}
	if hook.OrderRef == "" || hook.TransactionRef == "" || hook.Status == "" {
		return nil, customError.WrapMalformedNotification(MockName, errors.New("missing required fields"))
	}

	notification := &Notification{
		Verified:               m.verify(req),
		IsSuccess:              hook.Status == MockStatusSuccess,
		ProviderTransactionRef: hook.TransactionRef,
		Amount:                 hook.Amount,
		OrderRef:               hook.OrderRef,
		Status:                 hook.Status,
	}
	if hook.InstallmentID != "" {
		id, err := uuid.Parse(hook.InstallmentID)
		if err != nil {
			return nil, customError.WrapMalformedNotification(MockName, err)
		}
		notification.InstallmentID = &id
	}
	if !notification.IsSuccess {
		notification.FailureMessage = hook.Message
	}
	return notification, nil
}

// Sign returns the X-Mock-Signature value for body
func (m *MockAdapter) Sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(m.cfg.Secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (m *MockAdapter) verify(req *InboundRequest) bool {
	if m.cfg.Secret == "" {
		return true
	}
	got, err := hex.DecodeString(req.Headers.Get(MockSignatureHeader))
	if err != nil {
		return false
	}
	want, _ := hex.DecodeString(m.Sign(req.Body))
	return hmac.Equal(got, want)
}
