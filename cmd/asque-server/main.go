// Command asque-server runs the quotation SaaS API server.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/asque/asque/pkg/api"
	"github.com/asque/asque/pkg/billing"
	"github.com/asque/asque/pkg/cache"
	"github.com/asque/asque/pkg/config"
	"github.com/asque/asque/pkg/jobs"
	"github.com/asque/asque/pkg/limits"
	"github.com/asque/asque/pkg/middleware"
	"github.com/asque/asque/pkg/observability"
	"github.com/asque/asque/pkg/ratelimit"
	"github.com/asque/asque/pkg/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "asque-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	pgStore, err := store.NewPostgresStore(cfg.Database.URL,
		cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnTimeout)
	if err != nil {
		return err
	}
	logger.Info("connected to postgres")

	if err := pgStore.RunMigrations(context.Background()); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}

	// A Redis URL switches the cache and rate limiter to shared state
	// for horizontally scaled deployments; otherwise both run in-process.
	var cacheStore cache.Store
	var limiter ratelimit.Limiter
	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("invalid redis url: %w", err)
		}
		if cfg.Redis.Password != "" {
			opt.Password = cfg.Redis.Password
		}
		opt.DB = cfg.Redis.DB
		redisClient = redis.NewClient(opt)

		redisCache, err := cache.NewRedisStore(redisClient, logger)
		if err != nil {
			return err
		}
		redisCache.SetMetrics(metrics)
		cacheStore = redisCache
		limiter, err = ratelimit.NewRedisLimiter(redisClient)
		if err != nil {
			return err
		}
		logger.Info("using redis-backed cache and rate limiter")
	} else {
		memCache := cache.NewMemoryStore(logger)
		memCache.SetMetrics(metrics)
		cacheStore = memCache
		limiter = ratelimit.NewMemoryLimiter()
		logger.Info("using in-process cache and rate limiter")
	}

	provider := billing.NewStripeClient(cfg.Stripe.APIKey)
	billingSvc := billing.NewService(pgStore, cacheStore, provider, logger, metrics,
		cfg.Stripe.AppURL, cfg.Stripe.ProPriceCents)
	limitsSvc := limits.NewService(pgStore, cacheStore, logger, metrics)

	verifier, err := middleware.NewOIDCVerifier(context.Background(),
		cfg.Auth.IssuerURL, cfg.Auth.Audience)
	if err != nil {
		return err
	}

	server := api.NewServer(cfg, pgStore, cacheStore, limiter, limitsSvc, billingSvc,
		verifier, logger, metrics)

	scheduler := jobs.NewScheduler(cacheStore, limiter, pgStore, logger, metrics)
	if err := scheduler.Start(); err != nil {
		return err
	}

	shutdown := observability.NewShutdownManager(logger, nil, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(server.Shutdown)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		scheduler.Stop()
		return nil
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return pgStore.Close()
	})
	if redisClient != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return redisClient.Close()
		})
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start()
	}()

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- shutdown.WaitForShutdown()
	}()

	select {
	case err := <-serveErr:
		return err
	case err := <-waitErr:
		return err
	}
}
