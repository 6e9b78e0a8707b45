package gateway

import (
	"bytes"
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	customError "github.com/segyhp/installment-engine/pkg/errors"
	"github.com/segyhp/installment-engine/pkg/utils"
)

const (
	MidtransName = "midtrans"

	// provider order ids are "<order ref>~<nonce>" because every charge needs a fresh id
	midtransRefSeparator = "~"
)

type MidtransConfig struct {
	ServerKey         string
	BaseURL           string
	Timeout           time.Duration
	FinishRedirectURL string
}

// MidtransAdapter talks to the Midtrans Snap API
type MidtransAdapter struct {
	cfg    MidtransConfig
	client *http.Client
}

func NewMidtransAdapter(cfg MidtransConfig, client *http.Client) *MidtransAdapter {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &MidtransAdapter{cfg: cfg, client: client}
}

func (m *MidtransAdapter) Name() string { return MidtransName }

type snapRequest struct {
	TransactionDetails snapTransactionDetails `json:"transaction_details"`
	ItemDetails        []snapItem             `json:"item_details"`
	CustomerDetails    snapCustomer           `json:"customer_details"`
	CustomField1       string                 `json:"custom_field1"`
	Callbacks          *snapCallbacks         `json:"callbacks,omitempty"`
}

type snapTransactionDetails struct {
	OrderID     string `json:"order_id"`
	GrossAmount int64  `json:"gross_amount"`
}

type snapItem struct {
	ID       string `json:"id"`
	Price    int64  `json:"price"`
	Quantity int    `json:"quantity"`
	Name     string `json:"name"`
}

type snapCustomer struct {
	FirstName string `json:"first_name,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

type snapCallbacks struct {
	Finish string `json:"finish"`
}

type snapResponse struct {
	Token         string   `json:"token"`
	RedirectURL   string   `json:"redirect_url"`
	ErrorMessages []string `json:"error_messages"`
}

func (m *MidtransAdapter) Initiate(ctx context.Context, req PaymentRequest) (*Initiation, error) {
	if req.Amount <= 0 {
		return nil, customError.WrapInvalidAmount(req.Amount)
	}

	providerOrderID := req.OrderRef + midtransRefSeparator + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]

	name := req.Description
	if len(name) > 50 {
		name = name[:50]
	}

	payload := snapRequest{
		TransactionDetails: snapTransactionDetails{OrderID: providerOrderID, GrossAmount: req.Amount},
		ItemDetails: []snapItem{{
			ID:       req.InstallmentID.String(),
			Price:    req.Amount,
			Quantity: 1,
			Name:     name,
		}},
		CustomerDetails: snapCustomer{
			FirstName: req.Payer.Name,
			Email:     req.Payer.Email,
			Phone:     req.Payer.Phone,
		},
		CustomField1: req.InstallmentID.String(),
	}
	if m.cfg.FinishRedirectURL != "" {
		payload.Callbacks = &snapCallbacks{Finish: m.cfg.FinishRedirectURL}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.BaseURL+"/snap/v1/transactions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.SetBasicAuth(m.cfg.ServerKey, "")

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return nil, customError.WrapGatewayUnavailable(MidtransName, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, customError.WrapGatewayUnavailable(MidtransName, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, customError.WrapGatewayUnavailable(MidtransName, fmt.Errorf("status %d", resp.StatusCode))
	}

	var snap snapResponse
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, customError.WrapGatewayUnavailable(MidtransName, fmt.Errorf("decode response: %w", err))
	}

	if resp.StatusCode >= http.StatusBadRequest {
		detail := strings.Join(snap.ErrorMessages, "; ")
		if detail == "" {
			detail = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return nil, customError.WrapGatewayRejected(MidtransName, detail)
	}

	if snap.Token == "" || snap.RedirectURL == "" {
		return nil, customError.WrapGatewayUnavailable(MidtransName, errors.New("empty snap token"))
	}

	return &Initiation{
		RedirectURL:            snap.RedirectURL,
		Token:                  snap.Token,
		ProviderTransactionRef: providerOrderID,
	}, nil
}

type midtransNotification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	StatusMessage     string `json:"status_message"`
	CustomField1      string `json:"custom_field1"`
}

func (m *MidtransAdapter) VerifyInboundNotification(ctx context.Context, req *InboundRequest) (*Notification, error) {
	var n midtransNotification
	if err := json.Unmarshal(req.Body, &n); err != nil {
		return nil, customError.WrapMalformedNotification(MidtransName, err)
	}
	if n.OrderID == "" || n.StatusCode == "" || n.GrossAmount == "" || n.TransactionStatus == "" {
		return nil, customError.WrapMalformedNotification(MidtransName, errors.New("missing required fields"))
	}

	amount, whole, err := utils.ParseWholeAmount(n.GrossAmount)
	if err != nil {
		return nil, customError.WrapMalformedNotification(MidtransName, err)
	}
	if !whole {
		return nil, customError.WrapMalformedNotification(MidtransName, fmt.Errorf("fractional gross_amount %s", n.GrossAmount))
	}

	orderRef, _, _ := strings.Cut(n.OrderID, midtransRefSeparator)

	notification := &Notification{
		Verified:               m.validSignature(n),
		ProviderTransactionRef: n.TransactionID,
		Amount:                 amount,
		OrderRef:               orderRef,
		Status:                 n.TransactionStatus,
	}
	if notification.ProviderTransactionRef == "" {
		notification.ProviderTransactionRef = n.OrderID
	}
	if id, err := uuid.Parse(n.CustomField1); err == nil {
		notification.InstallmentID = &id
	}

	switch n.TransactionStatus {
	case "settlement":
		notification.IsSuccess = true
	case "capture":
		notification.IsSuccess = n.FraudStatus == "" || n.FraudStatus == "accept"
		if !notification.IsSuccess {
			notification.FailureMessage = "capture flagged by fraud screening: " + n.FraudStatus
		}
	case "deny", "cancel", "expire", "failure":
		notification.FailureMessage = n.StatusMessage
		if notification.FailureMessage == "" {
			notification.FailureMessage = "payment " + n.TransactionStatus
		}
	}

	return notification, nil
}

// MidtransSignature computes sha512(order_id + status_code + gross_amount + server_key)
func MidtransSignature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

func (m *MidtransAdapter) validSignature(n midtransNotification) bool {
	expected := MidtransSignature(n.OrderID, n.StatusCode, n.GrossAmount, m.cfg.ServerKey)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(n.SignatureKey))) == 1
}
