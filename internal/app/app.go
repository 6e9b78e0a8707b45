// Package app wires configuration into stores, caches, notifiers and
// payment providers shared by the server and scheduler binaries.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/segyhp/installment-engine/internal/cache"
	"github.com/segyhp/installment-engine/internal/config"
	"github.com/segyhp/installment-engine/internal/gateway"
	"github.com/segyhp/installment-engine/internal/notification"
	"github.com/segyhp/installment-engine/internal/repository"
	"github.com/segyhp/installment-engine/internal/service"
)

type App struct {
	Config *config.Config
	Logger *zap.Logger

	// DB and Redis are nil when the matching backend is disabled
	DB    *sqlx.DB
	Redis *redis.Client

	Orders   repository.OrderRepository
	Users    repository.UserRepository
	Webhooks repository.WebhookLogRepository

	StatusCache cache.StatusCache
	Locker      cache.Locker
	Notifier    notification.Notifier

	closers []func()
}

func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{
		Config:      cfg,
		Logger:      logger,
		StatusCache: cache.NopStatusCache{},
		Locker:      cache.NopLocker{},
	}

	if err := a.initStore(); err != nil {
		return nil, err
	}
	if err := a.initRedis(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.initNotifier()

	return a, nil
}

func (a *App) initStore() error {
	if a.Config.Database.Driver == config.DriverMemory {
		a.Logger.Warn("using in-memory store, data is lost on restart")
		a.Orders = repository.NewMemoryOrderRepository()
		a.Users = repository.NewMemoryUserRepository()
		a.Webhooks = repository.NewMemoryWebhookLogRepository()
		return nil
	}

	db, err := sqlx.Connect("postgres", a.Config.Database.URL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	db.SetMaxOpenConns(a.Config.Database.MaxOpenConns)
	db.SetMaxIdleConns(a.Config.Database.MaxIdleConns)
	db.SetConnMaxLifetime(a.Config.Database.ConnMaxLifetime)

	a.DB = db
	a.closers = append(a.closers, func() { _ = db.Close() })
	a.Orders = repository.NewOrderRepository(db)
	a.Users = repository.NewUserRepository(db)
	a.Webhooks = repository.NewWebhookLogRepository(db)
	return nil
}

func (a *App) initRedis(ctx context.Context) error {
	if a.Config.Redis.Addr == "" {
		a.Logger.Info("redis disabled, running without status cache and sweep lock")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     a.Config.Redis.Addr,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("connect redis: %w", err)
	}

	a.Redis = client
	a.closers = append(a.closers, func() { _ = client.Close() })
	a.StatusCache = cache.NewRedisStatusCache(client, a.Config.Redis.StatusTTL)
	a.Locker = cache.NewRedisLocker(client)
	return nil
}

func (a *App) initNotifier() {
	if len(a.Config.Kafka.Brokers) == 0 {
		a.Notifier = notification.NewLogNotifier(a.Logger.Named("notification"))
		return
	}

	kn := notification.NewKafkaNotifier(a.Config.Kafka.Brokers, a.Config.Kafka.Topic, a.Config.Kafka.Buffer, a.Logger.Named("kafka"))
	kn.Start()
	a.Notifier = kn
	a.closers = append(a.closers, kn.Close)
}

// Gateways builds the provider registry from configuration
func (a *App) Gateways() *gateway.Registry {
	registry := gateway.NewRegistry()
	gw := a.Config.Gateway

	if gw.MockEnabled {
		registry.Register(gateway.NewMockAdapter(gateway.MockConfig{
			SuccessProbability: gw.MockSuccessProbability,
			Delay:              gw.MockDelay,
			Secret:             gw.MockSecret,
			RedirectBaseURL:    gw.FinishRedirectURL,
		}))
	}
	if gw.MidtransServerKey != "" {
		registry.Register(gateway.NewMidtransAdapter(gateway.MidtransConfig{
			ServerKey:         gw.MidtransServerKey,
			BaseURL:           gw.MidtransBaseURL,
			Timeout:           gw.Timeout,
			FinishRedirectURL: gw.FinishRedirectURL,
		}, &http.Client{Timeout: gw.Timeout}))
	}

	a.Logger.Info("payment providers registered", zap.Strings("providers", registry.Names()))
	return registry
}

func (a *App) Sweeper() *service.OverdueSweeper {
	return service.NewOverdueSweeper(a.Orders, a.StatusCache, a.Locker, service.SweeperConfig{
		Concurrency: a.Config.Scheduler.SweepConcurrency,
		LockTTL:     a.Config.Scheduler.SweepLockTTL,
	}, a.Logger.Named("sweeper"))
}

func (a *App) Reminder() *service.PaymentReminder {
	return service.NewPaymentReminder(a.Orders, a.Users, a.Notifier,
		a.Config.Scheduler.ReminderWindow, a.Config.Scheduler.SweepConcurrency, a.Logger.Named("reminder"))
}

// Close releases resources in reverse order of acquisition
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
