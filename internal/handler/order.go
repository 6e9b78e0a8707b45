package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/segyhp/installment-engine/internal/domain"
	"github.com/segyhp/installment-engine/internal/service"
	"github.com/segyhp/installment-engine/pkg/response"
)

type OrderHandler struct {
	service   *service.OrderService
	validator *validator.Validate
}

func NewOrderHandler(service *service.OrderService) *OrderHandler {
	return &OrderHandler{
		service:   service,
		validator: validator.New(),
	}
}

// CreateOrder handles POST /orders
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body", err)
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		writeValidationError(w, err)
		return
	}

	caller := CallerFromContext(r.Context())
	req.OwnerID = caller.UserID
	if !caller.IsAnonymous() {
		req.Guest = nil
	}

	resp, err := h.service.CreateOrderWithSchedule(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}

	response.Created(w, resp)
}

// GetPaymentStatus handles GET /orders/{orderId}/payment-status
func (h *OrderHandler) GetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(mux.Vars(r)["orderId"])
	if err != nil {
		response.BadRequest(w, "invalid order id", err)
		return
	}

	var installmentID *uuid.UUID
	if raw := r.URL.Query().Get("installment_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.BadRequest(w, "invalid installment id", err)
			return
		}
		installmentID = &id
	}

	status, err := h.service.GetPaymentStatus(r.Context(), CallerFromContext(r.Context()), orderID, installmentID)
	if err != nil {
		writeError(w, err)
		return
	}

	response.Success(w, status)
}
