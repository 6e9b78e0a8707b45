package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/segyhp/installment-engine/internal/domain"
	"github.com/segyhp/installment-engine/internal/gateway"
	"github.com/segyhp/installment-engine/internal/service"
	"github.com/segyhp/installment-engine/pkg/response"
)

// maxWebhookBody caps inbound provider payloads
const maxWebhookBody = 1 << 20

type PaymentHandler struct {
	service   *service.PaymentService
	validator *validator.Validate
}

func NewPaymentHandler(service *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		service:   service,
		validator: validator.New(),
	}
}

// InitializePayment handles POST /orders/{orderId}/payments
func (h *PaymentHandler) InitializePayment(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(mux.Vars(r)["orderId"])
	if err != nil {
		response.BadRequest(w, "invalid order id", err)
		return
	}

	var req domain.InitializePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body", err)
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		writeValidationError(w, err)
		return
	}

	resp, err := h.service.InitializePayment(r.Context(), CallerFromContext(r.Context()), orderID, &req)
	if err != nil {
		writeError(w, err)
		return
	}

	response.Success(w, resp)
}

// Webhook returns the callback handler for one registered provider.
// Acknowledged callbacks get 200, store failures 503 so the provider retries,
// everything else 400.
func (h *PaymentHandler) Webhook(provider string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			response.BadRequest(w, "unreadable body", err)
			return
		}

		result := h.service.HandleProviderCallback(r.Context(), provider, &gateway.InboundRequest{
			Headers: r.Header,
			Query:   r.URL.Query(),
			Body:    body,
		})

		switch {
		case result.Acknowledged:
			response.Success(w, result)
		case result.Retryable:
			response.JSON(w, http.StatusServiceUnavailable, result)
		default:
			response.JSON(w, http.StatusBadRequest, result)
		}
	}
}
