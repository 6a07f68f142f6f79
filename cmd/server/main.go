// Package main is the entry point of the ZapTalk gamification and
// entitlement API.
//
// The process wires one storage backend (sqlite, postgres, redis or
// memory), the in-process event bus with an optional Redis forwarder, the
// account registry and the payment provider behind the HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ZapTalk/zaptalk.github.io/config"

	// Application layer
	"github.com/ZapTalk/zaptalk.github.io/internal/application/account"
	"github.com/ZapTalk/zaptalk.github.io/internal/application/command"
	"github.com/ZapTalk/zaptalk.github.io/internal/application/query"

	// Domain
	"github.com/ZapTalk/zaptalk.github.io/internal/domain/catalog"
	"github.com/ZapTalk/zaptalk.github.io/internal/domain/payment"
	"github.com/ZapTalk/zaptalk.github.io/internal/domain/progression"

	// Infrastructure layer
	"github.com/ZapTalk/zaptalk.github.io/internal/infrastructure/external/payments"
	"github.com/ZapTalk/zaptalk.github.io/internal/infrastructure/messaging"
	"github.com/ZapTalk/zaptalk.github.io/internal/infrastructure/persistence/document"
	"github.com/ZapTalk/zaptalk.github.io/internal/infrastructure/persistence/memory"
	"github.com/ZapTalk/zaptalk.github.io/internal/infrastructure/persistence/postgres"
	"github.com/ZapTalk/zaptalk.github.io/internal/infrastructure/persistence/redis"
	"github.com/ZapTalk/zaptalk.github.io/internal/infrastructure/persistence/sqlite"

	// Interface layer
	httpserver "github.com/ZapTalk/zaptalk.github.io/internal/interface/http"
	"github.com/ZapTalk/zaptalk.github.io/internal/interface/http/handlers"

	// Packages
	"github.com/ZapTalk/zaptalk.github.io/pkg/logger"
	"github.com/ZapTalk/zaptalk.github.io/pkg/retry"
	"github.com/ZapTalk/zaptalk.github.io/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     cfg.LogLevel(),
		AddCaller: !cfg.IsProduction(),
	}).With(logger.String("app", cfg.App.Name))

	log.Info("starting ZapTalk API",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("timezone", cfg.App.Location().String()),
	)

	calendar := timeutil.NewCalendar(nil, cfg.App.Location())

	// ─────────────────────────────────────────────────────────────────────────
	// 3. STORAGE
	// ─────────────────────────────────────────────────────────────────────────
	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = connectRedis(ctx, cfg, log)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
	}

	store, err := openStore(ctx, cfg, redisClient, log)
	if err != nil {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		return fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Backend, err)
	}
	defer func() {
		log.Info("closing storage...")
		if err := store.Close(); err != nil {
			log.Warn("storage close failed", logger.Err(err))
		}
		// The redis backend owns the client already.
		if redisClient != nil && cfg.Storage.Backend != config.StorageRedis {
			_ = redisClient.Close()
		}
	}()
	log.Info("storage ready", logger.String("backend", string(cfg.Storage.Backend)))

	// ─────────────────────────────────────────────────────────────────────────
	// 4. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.Logger = log
	bus := messaging.NewInMemoryEventBus(busConfig)
	bus.Use(
		messaging.RecoveryMiddleware(log),
		messaging.LoggingMiddleware(log),
		messaging.TimeoutMiddleware(5*time.Second),
	)
	defer func() {
		log.Info("closing event bus...")
		_ = bus.Close()
	}()

	if redisClient != nil {
		forwarder, err := redis.NewEventForwarder(redisClient, cfg.Redis.EventsChannel)
		if err != nil {
			return fmt.Errorf("failed to create event forwarder: %w", err)
		}
		if err := bus.SubscribeAll(forwarder.Handle); err != nil {
			return fmt.Errorf("failed to subscribe event forwarder: %w", err)
		}
		log.Info("forwarding events to redis", logger.String("channel", cfg.Redis.EventsChannel))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ACCOUNTS
	// ─────────────────────────────────────────────────────────────────────────
	registry, err := account.NewRegistry(account.Config{
		Catalog:         catalog.Default(),
		ProgressRepo:    document.NewProgressionRepository(store),
		EntitlementRepo: document.NewEntitlementRepository(store),
		Publisher:       bus,
		Calendar:        calendar,
		Achievements:    progression.DefaultAchievements(),
		InitialFreezes:  cfg.Gamification.InitialFreezes,
		Logger:          log,
	})
	if err != nil {
		return fmt.Errorf("failed to create account registry: %w", err)
	}
	defer registry.Close()

	// ─────────────────────────────────────────────────────────────────────────
	// 6. PAYMENTS AND HEALTH
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("storage", handlers.NewStorageCheck(store))

	provider, err := newPaymentProvider(cfg, health, log)
	if err != nil {
		return fmt.Errorf("failed to create payment provider: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	httpConfig := httpserver.DefaultConfig()
	httpConfig.Host = cfg.HTTP.Host
	httpConfig.Port = cfg.HTTP.Port
	httpConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	httpConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	httpConfig.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpConfig.RateLimitPerMinute = cfg.HTTP.RateLimit
	httpConfig.AdminAPIKeys = cfg.HTTP.AdminAPIKeys
	httpConfig.Version = cfg.App.Version

	server, err := httpserver.NewServer(httpConfig, httpserver.Dependencies{
		Accounts:      registry,
		Purchases:     command.NewPurchaseHandler(registry, provider, bus, log),
		Roadmap:       query.NewGetRoadmapHandler(registry),
		LevelProgress: query.NewGetLevelProgressHandler(registry),
		WeeklyPlan:    query.NewGetWeeklyPlanHandler(registry),
		Dashboard:     query.NewGetDashboardHandler(registry),
		Logger:        log,
		HealthChecker: health,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. RUN
	// ─────────────────────────────────────────────────────────────────────────
	errCh := server.StartAsync()
	log.Info("ZapTalk API is running", logger.String("address", server.Address()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case err, ok := <-errCh:
		if ok && err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", logger.Err(err))
			return err
		}
	case <-ctx.Done():
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("starting graceful shutdown...", logger.Duration("timeout", cfg.App.ShutdownTimeout))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	// Registry, bus and storage close through the defers above, in reverse
	// order, once in-flight requests and purchases have drained.
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", logger.Err(err))
		return err
	}

	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// connectRetrier retries backend connections that may still be starting.
func connectRetrier(cfg *config.Config, log *logger.Logger, target string) *retry.Retrier {
	return retry.StorageConnectRetrier(func(attempt int, err error, delay time.Duration) {
		log.Warn("connection attempt failed",
			logger.String("target", target),
			logger.Int("attempt", attempt),
			logger.Duration("retry_in", delay),
			logger.Err(err),
		)
	}, retry.WithMaxAttempts(cfg.Storage.ConnectAttempts))
}

func connectRedis(ctx context.Context, cfg *config.Config, log *logger.Logger) (*redis.Client, error) {
	redisConfig := redis.DefaultConfig()
	redisConfig.Addr = cfg.Redis.Addr
	redisConfig.Password = cfg.Redis.Password
	redisConfig.DB = cfg.Redis.DB
	redisConfig.KeyPrefix = cfg.Redis.KeyPrefix

	var client *redis.Client
	err := connectRetrier(cfg, log, "redis").Do(ctx, func(ctx context.Context) error {
		c, err := redis.NewClient(ctx, redisConfig)
		if err != nil {
			return err
		}
		client = c
		return nil
	})
	return client, err
}

// openStore opens the configured document store.
func openStore(ctx context.Context, cfg *config.Config, redisClient *redis.Client, log *logger.Logger) (document.Store, error) {
	var store document.Store

	err := connectRetrier(cfg, log, string(cfg.Storage.Backend)).Do(ctx, func(ctx context.Context) error {
		switch cfg.Storage.Backend {
		case config.StorageSQLite:
			s, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
			if err != nil {
				return err
			}
			store = s
		case config.StoragePostgres:
			s, err := postgres.Open(ctx, cfg.Storage.DatabaseURL, postgres.DefaultPoolOptions())
			if err != nil {
				return err
			}
			store = s
		case config.StorageRedis:
			store = redis.NewDocumentStore(redisClient)
		case config.StorageMemory:
			store = memory.New()
		default:
			return retry.Permanent(fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return store, nil
}

// newPaymentProvider builds the configured provider and registers the
// gateway circuit breaker as a health check.
func newPaymentProvider(cfg *config.Config, health handlers.HealthChecker, log *logger.Logger) (payment.Provider, error) {
	zap := payments.ZapConfig{
		AppPubkey: cfg.Payment.AppPubkey,
		Relays:    cfg.Payment.Relays,
	}

	switch cfg.Payment.Provider {
	case config.PaymentZapGateway:
		client, err := payments.NewGatewayClient(payments.GatewayConfig{
			BaseURL: cfg.Payment.GatewayURL,
			Zap:     zap,
			Timeout: cfg.Payment.Timeout,
			Logger:  log,
		})
		if err != nil {
			return nil, err
		}
		health.AddCheck("payment_gateway", handlers.NewBreakerCheck(client.Breaker()))
		return client, nil
	default:
		log.Warn("using simulated payments", logger.Duration("delay", cfg.Payment.SimulatedDelay))
		return payments.NewSimulatedProvider(zap, cfg.Payment.SimulatedDelay, log), nil
	}
}
