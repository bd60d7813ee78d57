package app

import (
	"context"

	"github.com/AbduElrahman2001/BALHA/internal/auth"
	"github.com/AbduElrahman2001/BALHA/internal/config"
	"github.com/AbduElrahman2001/BALHA/internal/metrics"
	"github.com/AbduElrahman2001/BALHA/internal/notify"
	"github.com/AbduElrahman2001/BALHA/internal/queue"
	"github.com/AbduElrahman2001/BALHA/internal/session"
	"github.com/AbduElrahman2001/BALHA/internal/store"
	"github.com/AbduElrahman2001/BALHA/internal/store/file"
	"github.com/AbduElrahman2001/BALHA/internal/store/memory"
	"github.com/AbduElrahman2001/BALHA/internal/store/postgres"
	"github.com/AbduElrahman2001/BALHA/internal/store/redis"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// App is one device's queue with everything attached to it.
type App struct {
	Store    *store.Store
	Manager  *queue.Manager
	Customer *session.Customer
	Sessions *session.Registry
	Gate     *auth.Gate
	Notifier *notify.Notifier
	Metrics  *metrics.Collector

	closers []func()
}

func Open(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*App, error) {
	a := &App{Metrics: metrics.NewCollector()}

	backend, err := a.openBackend(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	if err := a.build(ctx, backend, cfg, logger); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// OpenWithBackend builds the app over an already opened backend.
func OpenWithBackend(ctx context.Context, backend store.Backend, cfg *config.Config, logger *logrus.Logger) (*App, error) {
	a := &App{Metrics: metrics.NewCollector()}
	if err := a.build(ctx, backend, cfg, logger); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, backend store.Backend, cfg *config.Config, logger *logrus.Logger) error {
	a.Store = store.New(backend)

	manager, err := queue.Open(ctx, a.Store, queue.Options{
		RenumberOnCancel: cfg.Queue.RenumberOnCancel,
		Logger:           logger,
		Recorder:         a.Metrics,
	})
	if err != nil {
		return err
	}
	a.Manager = manager

	customer, err := session.OpenCustomer(ctx, a.Store, manager)
	if err != nil {
		return err
	}
	a.Customer = customer
	a.Sessions = session.NewRegistry(backend, manager)

	gate, err := auth.Open(ctx, a.Store, auth.Options{
		SeedUsername: cfg.Admin.Username,
		SeedPassword: cfg.Admin.Password,
		SessionTTL:   cfg.Admin.SessionTTL,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	a.Gate = gate

	a.Notifier = notify.New(manager, notify.NewProvider(cfg.Notify.Provider, logger), notify.Options{
		Recorder:    a.Metrics,
		MaxAttempts: cfg.Notify.MaxAttempts,
		Logger:      logger,
	})
	return nil
}

func (a *App) openBackend(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (store.Backend, error) {
	entry := logger.WithFields(logrus.Fields{
		"driver":    cfg.Store.Driver,
		"device_id": cfg.Store.DeviceID,
	})
	switch cfg.Store.Driver {
	case config.DriverMemory:
		entry.Info("store opened")
		return memory.New(), nil
	case config.DriverFile:
		backend, err := file.Open(cfg.Store.DataPath)
		if err != nil {
			return nil, err
		}
		entry.WithField("path", backend.Path()).Info("store opened")
		return backend, nil
	case config.DriverRedis:
		client, err := redis.NewClient(ctx, redis.Config{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		entry.Info("store opened")
		return redis.New(client, cfg.Store.DeviceID), nil
	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.Store.Postgres)
		if err != nil {
			return nil, errors.Wrap(err, "db connect")
		}
		a.closers = append(a.closers, pool.Close)
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			return nil, err
		}
		entry.Info("store opened")
		return postgres.NewBackend(pool, cfg.Store.DeviceID), nil
	default:
		return nil, errors.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
