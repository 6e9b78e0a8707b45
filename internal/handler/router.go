package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/segyhp/installment-engine/pkg/response"
)

// Routes groups everything the HTTP surface needs
type Routes struct {
	Orders    *OrderHandler
	Payments  *PaymentHandler
	Admin     *AdminHandler
	Health    *HealthHandler
	Providers []string
	JWTSecret []byte
}

func NewRouter(rt Routes) *mux.Router {
	router := mux.NewRouter()
	router.Use(response.CORSMiddleware, response.LoggingMiddleware)

	// Health check
	router.HandleFunc("/health", rt.Health.Health).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", rt.Health.Ready).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()

	// Provider callbacks authenticate through their own signatures
	for _, provider := range rt.Providers {
		api.HandleFunc("/webhooks/"+provider, rt.Payments.Webhook(provider)).Methods(http.MethodPost)
	}

	authed := api.NewRoute().Subrouter()
	authed.Use(AuthMiddleware(rt.JWTSecret))

	authed.HandleFunc("/orders", rt.Orders.CreateOrder).Methods(http.MethodPost)
	authed.HandleFunc("/orders/{orderId}/payment-status", rt.Orders.GetPaymentStatus).Methods(http.MethodGet)
	authed.HandleFunc("/orders/{orderId}/payments", rt.Payments.InitializePayment).Methods(http.MethodPost)

	authed.HandleFunc("/admin/installments/{installmentId}/status", rt.Admin.SetInstallmentStatus).Methods(http.MethodPut)
	authed.HandleFunc("/admin/orders/{orderId}/payment-status", rt.Admin.SetOrderPaymentStatus).Methods(http.MethodPut)
	authed.HandleFunc("/admin/orders/{orderId}/webhooks", rt.Admin.ListWebhookLogs).Methods(http.MethodGet)
	authed.HandleFunc("/admin/sweeps", rt.Admin.RunSweep).Methods(http.MethodPost)

	return router
}
