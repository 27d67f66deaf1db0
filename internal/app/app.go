// Package app assembles the storefront from configuration and owns the
// lifecycle of everything it opens.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"github.com/rl1809/biosalim/internal/adapter/handler"
	"github.com/rl1809/biosalim/internal/adapter/metrics"
	"github.com/rl1809/biosalim/internal/adapter/publisher"
	"github.com/rl1809/biosalim/internal/adapter/storage"
	"github.com/rl1809/biosalim/internal/config"
	"github.com/rl1809/biosalim/internal/core/service"
	"github.com/rl1809/biosalim/internal/port"
)

type App struct {
	cfg    *config.Config
	logger *slog.Logger

	store   port.Storage
	carts   port.CartRepository
	events  port.EventPublisher
	metrics *metrics.Metrics

	Catalog *service.CatalogService
	Carts   *service.CartService
	Orders  *service.OrderService
	Gate    *service.AdminGate

	closers []func() error
}

// New opens the configured stores, runs migrations for SQL backends and
// builds the services. The catalog mirror is loaded before New returns.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{cfg: cfg, logger: logger, metrics: metrics.New()}

	if err := a.openStorage(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openCarts(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openEvents(); err != nil {
		a.Close()
		return nil, err
	}

	timeout := cfg.Storage.Timeout
	a.Catalog = service.NewCatalogService(a.store, timeout, logger.With("component", "catalog"))
	a.Carts = service.NewCartService(a.carts, a.Catalog, timeout, logger.With("component", "cart"))
	a.Orders = service.NewOrderService(a.store, a.Carts, a.events, timeout, logger.With("component", "orders"))
	a.Gate = service.NewAdminGate(cfg.Admin.Email, cfg.Admin.Password)
	if !cfg.AdminEnabled() {
		logger.Warn("admin credentials not configured, back office is locked")
	}

	if err := a.Catalog.Reload(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	if cfg.Storage.SeedOnStart {
		res, err := a.SeedIfEmpty(ctx)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("seed: %w", err)
		}
		if res.Products > 0 || res.Orders > 0 {
			logger.Info("seeded sample data", "products", res.Products, "orders", res.Orders)
		}
	}

	return a, nil
}

func (a *App) openStorage(ctx context.Context) error {
	switch a.cfg.Storage.Backend {
	case config.BackendRedis:
		client, err := a.redisClient(ctx)
		if err != nil {
			return err
		}
		a.store = storage.NewRedisAdapter(client, a.cfg.Storage.CartTTL)
		a.closers = append(a.closers, a.store.Close)
		a.logger.Info("connected to redis", "addr", a.cfg.Redis.Addr)

	case config.BackendMySQL:
		if err := storage.Migrate(storage.DialectMySQL, a.cfg.MySQL.DSN); err != nil {
			return err
		}
		db, err := storage.OpenSQL(ctx, storage.DialectMySQL, a.cfg.MySQL.DSN)
		if err != nil {
			return err
		}
		a.store = storage.NewBreakerStore(storage.NewSQLAdapter(db, storage.DialectMySQL), storage.BreakerSettings{
			Name:        "mysql",
			MaxFailures: a.cfg.MySQL.BreakerFailures,
			OpenTimeout: a.cfg.MySQL.BreakerTimeout,
		})
		a.closers = append(a.closers, a.store.Close)
		a.logger.Info("connected to mysql")

	case config.BackendSQLite:
		if err := storage.Migrate(storage.DialectSQLite, a.cfg.SQLite.Path); err != nil {
			return err
		}
		db, err := storage.OpenSQL(ctx, storage.DialectSQLite, a.cfg.SQLite.Path)
		if err != nil {
			return err
		}
		a.store = storage.NewSQLAdapter(db, storage.DialectSQLite)
		a.closers = append(a.closers, a.store.Close)
		a.logger.Info("opened sqlite", "path", a.cfg.SQLite.Path)

	default:
		return fmt.Errorf("unknown storage backend %q", a.cfg.Storage.Backend)
	}
	return nil
}

func (a *App) openCarts(ctx context.Context) error {
	if a.cfg.CartBackend() == config.CartStoreMemory {
		a.carts = storage.NewMemoryCartStore(a.cfg.Storage.CartTTL)
		return nil
	}
	// the redis store already serves carts
	if rs, ok := a.store.(*storage.RedisAdapter); ok {
		a.carts = rs
		return nil
	}
	client, err := a.redisClient(ctx)
	if err != nil {
		return err
	}
	rs := storage.NewRedisAdapter(client, a.cfg.Storage.CartTTL)
	a.closers = append(a.closers, rs.Close)
	a.carts = rs
	return nil
}

func (a *App) openEvents() error {
	if a.cfg.NATS.URL == "" {
		a.events = port.NopPublisher{}
		return nil
	}
	p, err := publisher.Connect(a.cfg.NATS.URL)
	if err != nil {
		return err
	}
	a.events = p
	a.closers = append(a.closers, p.Close)
	a.logger.Info("connected to nats", "url", a.cfg.NATS.URL)
	return nil
}

func (a *App) redisClient(ctx context.Context) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
		PoolSize: a.cfg.Redis.PoolSize,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}

// HTTPHandler returns the storefront and back-office JSON API.
func (a *App) HTTPHandler() http.Handler {
	cookies := sessions.NewCookieStore([]byte(a.cfg.Session.Key))
	cookies.Options.Path = "/"
	cookies.Options.HttpOnly = true
	cookies.Options.Secure = a.cfg.Session.Secure
	cookies.Options.SameSite = http.SameSiteLaxMode
	cookies.Options.MaxAge = int(a.cfg.Session.MaxAge.Seconds())

	h := handler.NewHTTPHandler(a.Catalog, a.Carts, a.Orders, a.Gate, handler.HTTPOptions{
		Sessions:       cookies,
		RequestTimeout: a.cfg.HTTP.RequestTimeout,
		MaxBodyBytes:   a.cfg.HTTP.MaxBodyBytes,
		Metrics:        a.metrics,
		MetricsHandler: a.metrics.Handler(),
		Health:         a.store,
		Logger:         a.logger.With("component", "http"),
	})
	return h.Routes()
}

// GRPCServer returns the admin gRPC server, not yet serving.
func (a *App) GRPCServer() *grpc.Server {
	h := handler.NewGRPCHandler(a.Catalog, a.Orders, a.metrics)
	return handler.NewGRPCServer(h, a.Gate, a.logger.With("component", "grpc"))
}

// Close releases everything New opened, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
