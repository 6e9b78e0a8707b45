package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/segyhp/installment-engine/internal/app"
	"github.com/segyhp/installment-engine/internal/config"
	"github.com/segyhp/installment-engine/internal/handler"
	"github.com/segyhp/installment-engine/internal/service"
	"github.com/segyhp/installment-engine/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	lg, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()
	zap.ReplaceGlobals(lg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := app.New(ctx, cfg, lg)
	if err != nil {
		lg.Fatal("failed to initialize dependencies", zap.Error(err))
	}
	defer deps.Close()

	gateways := deps.Gateways()

	orderService := service.NewOrderService(deps.Orders, deps.Users, deps.StatusCache, lg.Named("orders"))
	paymentService := service.NewPaymentService(deps.Orders, deps.Users, deps.Webhooks, gateways, deps.Notifier, deps.StatusCache, lg.Named("payments"))
	adminService := service.NewAdminService(deps.Orders, deps.Webhooks, deps.StatusCache, deps.Sweeper(), lg.Named("admin"))

	router := handler.NewRouter(handler.Routes{
		Orders:    handler.NewOrderHandler(orderService),
		Payments:  handler.NewPaymentHandler(paymentService),
		Admin:     handler.NewAdminHandler(adminService),
		Health:    handler.NewHealthHandler(deps.DB, deps.Redis, cfg.Health.Timeout),
		Providers: gateways.Names(),
		JWTSecret: []byte(cfg.Auth.JWTSecret),
	})

	server := &http.Server{
		Addr:         cfg.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		lg.Info("server starting", zap.String("addr", server.Addr), zap.String("env", cfg.Server.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	<-ctx.Done()
	lg.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		lg.Error("server forced to shutdown", zap.Error(err))
	}

	lg.Info("server exited")
}
