package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/SGK112/ai-website-builder-sub004/config"
	"github.com/SGK112/ai-website-builder-sub004/internal/auth"
	"github.com/SGK112/ai-website-builder-sub004/internal/billing"
	"github.com/SGK112/ai-website-builder-sub004/internal/proxy"
	"github.com/SGK112/ai-website-builder-sub004/internal/relay"
	"github.com/SGK112/ai-website-builder-sub004/internal/router"
	"github.com/SGK112/ai-website-builder-sub004/internal/seeder"
	"github.com/SGK112/ai-website-builder-sub004/internal/session"
	"github.com/SGK112/ai-website-builder-sub004/internal/telemetry"
	"github.com/SGK112/ai-website-builder-sub004/internal/worker"
	"github.com/SGK112/ai-website-builder-sub004/pkg/ratelimit"
)

const serviceName = "generation-router"

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		fatal(logger, "failed to load config", err)
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	// 2. Init telemetry
	shutdownTracer, err := telemetry.InitTracer(serviceName, cfg, logger)
	if err != nil {
		fatal(logger, "failed to init tracer", err)
	}
	defer shutdownTracer()

	// 3. Connect PostgreSQL
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		fatal(logger, "failed to connect postgres", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		fatal(logger, "failed to ping postgres", err)
	}
	logger.Info("postgres connected")

	// 4. Connect Redis
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		fatal(logger, "failed to ping redis", err)
	}
	logger.Info("redis connected")

	// 5. Init auth
	authStore := auth.NewPostgresStore(pool)
	var tokens *auth.Tokens
	if cfg.SessionJWTSecret != "" {
		tokens = auth.NewTokens(cfg.SessionJWTSecret, auth.DefaultSessionTTL)
	} else {
		logger.Warn("SESSION_JWT_SECRET not set, session tokens are disabled")
	}
	authMiddleware := auth.NewMiddleware(auth.Options{
		Store:          authStore,
		Cache:          rdb,
		Tokens:         tokens,
		Logger:         logger,
		AllowAnonymous: cfg.AllowAnonymous,
	})

	// 6. Init credit ledger and usage log
	ledger := billing.NewPostgresLedger(pool)
	gate := billing.NewGate(ledger, &billing.DemoLedger{Allowance: cfg.DemoCredits})
	usageStore := billing.NewPostgresStore(pool)
	pricing := billing.Pricing{
		Chat:           cfg.CreditCostChat,
		CodeGeneration: cfg.CreditCostCode,
		Vision:         cfg.CreditCostVision,
		Other:          cfg.CreditCostOther,
	}

	// 7. Init background workers
	jobs := worker.NewPool(cfg.WorkerCount, cfg.WorkerQueueSize, logger)
	jobs.Start(ctx)
	recorder := session.NewAsyncRecorder(session.NewPostgresRecorder(pool), jobs, logger)

	// 8. Init rate limiter
	limiter := ratelimit.NewLimiter(rdb, cfg.DefaultRateLimitRPM)

	// 9. Init providers and decision engine
	registry, err := buildRegistry(cfg)
	if err != nil {
		fatal(logger, "failed to register providers", err)
	}
	for _, info := range registry.Snapshot() {
		logger.Info("provider registered", "provider", info.ID, "enabled", info.Enabled, "credentials", info.CredentialsPresent)
	}
	var engineOpts []router.Option
	if len(cfg.ProviderPriority) > 0 {
		engineOpts = append(engineOpts, router.WithPriority(cfg.ProviderPriority...))
	}
	engine := router.NewEngine(registry, engineOpts...)

	// 10. Init handler
	handler := proxy.NewHandler(proxy.Deps{
		Engine:          engine,
		Providers:       registry,
		Breakers:        router.NewBreakers(),
		Relay:           relay.New(logger),
		Gate:            gate,
		Pricing:         pricing,
		Usage:           usageStore,
		Recorder:        recorder,
		Jobs:            jobs,
		Limiter:         limiter,
		Tracer:          otel.GetTracerProvider().Tracer(serviceName),
		Logger:          logger,
		UpstreamTimeout: cfg.UpstreamTimeout,
	})

	// 11. Seed development account if RUN_SEED=true
	if os.Getenv("RUN_SEED") == "true" {
		seeder.Seed(ctx, authStore, ledger, tokens, logger)
	}

	// 12. Routes
	r := proxy.Routes(handler, authMiddleware, promhttp.Handler())

	// 13. Graceful shutdown
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: event streams stay open for the whole generation,
		// bounded by UPSTREAM_TIMEOUT instead.
		IdleTimeout: 120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("generation router starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(logger, "server error", err)
		}
	}()

	<-quit
	logger.Info("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", "error", err)
	}
	jobs.Stop()
	logger.Info("server stopped")
}
