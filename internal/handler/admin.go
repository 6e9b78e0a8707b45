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

type AdminHandler struct {
	service   *service.AdminService
	validator *validator.Validate
}

func NewAdminHandler(service *service.AdminService) *AdminHandler {
	return &AdminHandler{
		service:   service,
		validator: validator.New(),
	}
}

// SetInstallmentStatus handles PUT /admin/installments/{installmentId}/status
func (h *AdminHandler) SetInstallmentStatus(w http.ResponseWriter, r *http.Request) {
	installmentID, err := uuid.Parse(mux.Vars(r)["installmentId"])
	if err != nil {
		response.BadRequest(w, "invalid installment id", err)
		return
	}

	var req domain.SetInstallmentStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body", err)
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		writeValidationError(w, err)
		return
	}

	order, err := h.service.SetInstallmentStatus(r.Context(), CallerFromContext(r.Context()), installmentID, &req)
	if err != nil {
		writeError(w, err)
		return
	}

	response.Success(w, order)
}

// SetOrderPaymentStatus handles PUT /admin/orders/{orderId}/payment-status
func (h *AdminHandler) SetOrderPaymentStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(mux.Vars(r)["orderId"])
	if err != nil {
		response.BadRequest(w, "invalid order id", err)
		return
	}

	var req domain.SetOrderPaymentStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body", err)
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		writeValidationError(w, err)
		return
	}

	order, err := h.service.SetOrderPaymentStatus(r.Context(), CallerFromContext(r.Context()), orderID, req.Status)
	if err != nil {
		writeError(w, err)
		return
	}

	response.Success(w, order)
}

// RunSweep handles POST /admin/sweeps
func (h *AdminHandler) RunSweep(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.RunSweep(r.Context(), CallerFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	response.Success(w, report)
}

// ListWebhookLogs handles GET /admin/orders/{orderId}/webhooks
func (h *AdminHandler) ListWebhookLogs(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(mux.Vars(r)["orderId"])
	if err != nil {
		response.BadRequest(w, "invalid order id", err)
		return
	}

	logs, err := h.service.ListWebhookLogs(r.Context(), CallerFromContext(r.Context()), orderID)
	if err != nil {
		writeError(w, err)
		return
	}

	response.Success(w, logs)
}
