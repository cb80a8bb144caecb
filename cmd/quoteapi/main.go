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
	_ "time/tzdata"

	"github.com/hibiken/asynq"

	"github.com/pgclosets/quote-service/internal/app"
	"github.com/pgclosets/quote-service/internal/bookings"
	"github.com/pgclosets/quote-service/internal/observability"
	"github.com/pgclosets/quote-service/internal/platform/cache"
	"github.com/pgclosets/quote-service/internal/platform/db"
	"github.com/pgclosets/quote-service/internal/pricing"
	"github.com/pgclosets/quote-service/internal/quotes"
	"github.com/pgclosets/quote-service/internal/rbac"
	"github.com/pgclosets/quote-service/internal/shared"
	"github.com/pgclosets/quote-service/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	rules := pricing.DefaultRules()
	if cfg.PricingRulesFile != "" {
		rules, err = pricing.LoadRules(cfg.PricingRulesFile)
		if err != nil {
			logger.Error("load pricing rules", slog.String("path", cfg.PricingRulesFile), slog.Any("error", err))
			os.Exit(1)
		}
	}
	calculator, err := pricing.NewCalculator(rules)
	if err != nil {
		logger.Error("init pricing", slog.Any("error", err))
		os.Exit(1)
	}

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	rbacService := rbac.NewService(dbpool, cache.NewJSONCache(redisClient, "rbac", 5*time.Minute))
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}

	quoteService := quotes.NewService(quotes.ServiceDeps{
		Repo:        quotes.NewRepository(dbpool),
		Calculator:  calculator,
		Dispatcher:  jobClient,
		Idempotency: idempotencyStore,
		Metrics:     metrics,
		Logger:      logger.With(slog.String("component", "quotes")),
	})
	quoteHandler := quotes.NewHandler(logger, quoteService, csrfManager, rbacMiddleware, cfg.PaymentWebhookSecret, cfg.Location())

	schedule, err := bookings.DefaultSchedule()
	if err != nil {
		logger.Error("init booking schedule", slog.Any("error", err))
		os.Exit(1)
	}
	bookingService := bookings.NewService(bookings.ServiceDeps{
		Repo:        bookings.NewRepository(dbpool),
		Quotes:      quoteService,
		Schedule:    schedule,
		Cache:       cache.NewJSONCache(redisClient, "bookings", bookings.AvailabilityTTL),
		Locker:      cache.NewLocker(redisClient),
		Idempotency: idempotencyStore,
		Dispatcher:  jobClient,
		Metrics:     metrics,
		Logger:      logger.With(slog.String("component", "bookings")),
	})
	bookingHandler := bookings.NewHandler(logger, bookingService, rbacMiddleware)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		QuotesHandler:      quoteHandler,
		BookingsHandler:    bookingHandler,
		PermissionsHandler: rbac.NewPermissionsHandler(logger, rbacService, rbacMiddleware),
		JobHandler:         jobs.NewHandler(inspector, logger),
		Metrics:            metrics,
		Ready: map[string]app.Pinger{
			"postgres": dbpool,
			"redis":    app.RedisPinger{Client: redisClient},
		},
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
