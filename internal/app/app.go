// Package app assembles the service: configuration, logger, database,
// cache, event buses, webhook dispatcher, services, HTTP surface and
// the background expirer.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"licensehub/internal/cache"
	"licensehub/internal/config"
	"licensehub/internal/events"
	"licensehub/internal/infrastructure"
	"licensehub/internal/middleware"
	"licensehub/internal/repository"
	"licensehub/internal/services"
	transport "licensehub/internal/transport/http"
	"licensehub/internal/webhook"
)

// Application is the composed service.
type Application struct {
	Config *config.Config
	Logger *slog.Logger
	Server *http.Server

	db         *repository.DB
	redis      *redis.Client
	memBus     *events.MemoryBus
	rabbit     *events.RabbitBus
	dispatcher *webhook.Dispatcher
	expirer    *services.Expirer
	licenses   *repository.LicenseRepo
	status     *cache.StatusCache
}

// New wires the application together. Postgres must be reachable; Redis
// and the broker are optional and their absence degrades the service
// rather than failing startup.
func New(ctx context.Context) (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(infrastructure.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	logger.Info("starting licensehub",
		slog.Int("port", cfg.Server.Port),
		slog.Bool("broker_enabled", cfg.Broker.Enabled),
		slog.Bool("cache_enabled", cfg.Cache.Enabled))

	db, err := repository.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if cfg.Database.EnsureSchema {
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("database schema ensured")
	}

	brands := repository.NewBrandRepo(db)
	licenses := repository.NewLicenseRepo(db)
	activations := repository.NewActivationRepo(db)
	apiKeys := repository.NewAPIKeyRepo(db)
	webhooks := repository.NewWebhookRepo(db)
	audit := repository.NewAuditRepo(db)
	idempotency := repository.NewIdempotencyRepo(db)

	// Redis backs the status cache and the rate limiter. When it is
	// unreachable at startup the service runs without the cache and
	// limits in-process instead.
	redisClient := cache.NewClient(cfg.Redis)
	var (
		statusCache *cache.StatusCache
		limiter     middleware.RateLimiter
	)
	pingCtx, cancel := context.WithTimeout(ctx, cfg.Redis.DialTimeout)
	err = redisClient.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		logger.Warn("redis unreachable, continuing without it", "addr", cfg.Redis.Addr, "error", err)
		_ = redisClient.Close()
		redisClient = nil
		limiter = middleware.NewLocalLimiter(cfg.RateLimit.Window)
	} else {
		if cfg.Cache.Enabled {
			statusCache = cache.NewStatusCache(redisClient, cfg.Cache.TTL)
		}
		limiter = cache.NewFixedWindowLimiter(redisClient, cfg.RateLimit.Window)
	}

	memBus := events.NewMemoryBus()
	buses := events.FanoutBus{memBus}
	var rabbit *events.RabbitBus
	if cfg.Broker.Enabled {
		rabbit, err = events.NewRabbitBus(cfg.Broker)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("connect broker: %w", err)
		}
		buses = append(buses, rabbit)
	}

	var dispatcher *webhook.Dispatcher
	var deliverer events.Deliverer
	if cfg.Webhook.Enabled {
		dispatcher = webhook.NewDispatcher()
		deliverer = dispatcher
	}
	var invalidator events.StatusInvalidator
	var statusCacher services.StatusCacher
	var cachePinger services.Pinger
	if statusCache != nil {
		invalidator = statusCache
		statusCacher = statusCache
		cachePinger = statusCache
	}
	events.RegisterCoreHandlers(memBus, audit, licenses, invalidator, webhooks, deliverer)

	provision := services.NewProvisionService(brands, licenses, buses)
	lifecycle := services.NewLifecycleService(licenses, buses)
	seats := services.NewSeatManager(licenses, activations, db, buses)
	status := services.NewStatusService(brands, licenses, activations, statusCacher)
	health := services.NewHealthService(db, cachePinger)

	var expirer *services.Expirer
	if cfg.Expirer.Enabled {
		expirer = services.NewExpirer(licenses, statusCacher, audit, idempotency, cfg.Expirer.Interval)
	}

	router := transport.NewRouter(cfg, transport.Dependencies{
		Brand:       transport.NewBrandHandler(provision, lifecycle, status, seats, logger),
		Product:     transport.NewProductHandler(brands, seats, status, logger),
		Health:      transport.NewHealthHandler(health),
		APIKeys:     apiKeys,
		LicenseKeys: licenses,
		Limiter:     limiter,
		Idempotency: idempotency,
		Logger:      logger,
	})

	server := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	return &Application{
		Config:     cfg,
		Logger:     logger,
		Server:     server,
		db:         db,
		redis:      redisClient,
		memBus:     memBus,
		rabbit:     rabbit,
		dispatcher: dispatcher,
		expirer:    expirer,
		licenses:   licenses,
		status:     statusCache,
	}, nil
}

// Run serves until ctx is cancelled, then drains in-flight work and
// releases every connection.
func (a *Application) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info("http server listening", slog.String("addr", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()
		a.Logger.Info("shutting down http server")
		return a.Server.Shutdown(shutdownCtx)
	})

	if a.expirer != nil {
		g.Go(func() error {
			return ignoreCancel(a.expirer.Run(ctx))
		})
	}

	if a.rabbit != nil && a.status != nil {
		apply := events.NewBrokerApplier(a.licenses, a.status)
		g.Go(func() error {
			return ignoreCancel(a.rabbit.Consume(ctx, apply))
		})
	}

	err := g.Wait()

	// Let asynchronous event handlers and webhook deliveries finish
	// before tearing down their dependencies.
	a.memBus.Wait()
	if a.dispatcher != nil {
		a.dispatcher.Wait()
	}
	if a.rabbit != nil {
		if cerr := a.rabbit.Close(); cerr != nil {
			a.Logger.Warn("broker close failed", "error", cerr)
		}
	}
	if a.redis != nil {
		if cerr := a.redis.Close(); cerr != nil {
			a.Logger.Warn("redis close failed", "error", cerr)
		}
	}
	a.db.Close()
	a.Logger.Info("shutdown complete")

	return err
}

// ignoreCancel filters the error a background loop returns when it
// stops because the application is shutting down.
func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
