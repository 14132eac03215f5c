package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/josh-kwaku/mobile-money/internal/config"
	"github.com/josh-kwaku/mobile-money/internal/directory"
	"github.com/josh-kwaku/mobile-money/internal/events"
	"github.com/josh-kwaku/mobile-money/internal/fee"
	"github.com/josh-kwaku/mobile-money/internal/handler"
	"github.com/josh-kwaku/mobile-money/internal/ledger"
	"github.com/josh-kwaku/mobile-money/internal/limiter"
	"github.com/josh-kwaku/mobile-money/internal/logging"
	"github.com/josh-kwaku/mobile-money/internal/metrics"
	"github.com/josh-kwaku/mobile-money/internal/reconcile"
	"github.com/josh-kwaku/mobile-money/internal/recorder"
	"github.com/josh-kwaku/mobile-money/internal/repository"
	"github.com/josh-kwaku/mobile-money/internal/saga"
	"github.com/josh-kwaku/mobile-money/internal/service/commission"
	"github.com/josh-kwaku/mobile-money/internal/service/deposit"
	"github.com/josh-kwaku/mobile-money/internal/service/transfer"
	"github.com/josh-kwaku/mobile-money/internal/service/withdrawal"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init("mobile-money-api", cfg.LogLevel, cfg.AppEnv)

	startCtx, cancelStart := context.WithTimeout(context.Background(), time.Minute)
	defer cancelStart()

	db, err := repository.NewPostgresDB(startCtx, cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
		ConnectAttempts:  30,
	})
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	accounts := repository.NewAccountRepository(db)
	transfers := repository.NewTransferRepository(db)
	withdrawals := repository.NewWithdrawalRepository(db)
	history := repository.NewHistoryRepository(db)
	journal := repository.NewSagaStepRepository(db)
	idempotency := repository.NewIdempotencyRepository(db)
	pgLedger := repository.NewLedgerRepository(db)

	var (
		balances saga.Ledger = pgLedger
		checks   []handler.Check
	)
	if cfg.LedgerURL != "" {
		breaker := ledger.NewBreaker(ledger.NewClient(cfg.LedgerURL, cfg.LedgerTimeout), ledger.BreakerConfig{
			MaxRequests:         1,
			Interval:            time.Minute,
			Timeout:             cfg.LedgerBreakerOpenPeriod,
			ConsecutiveFailures: cfg.LedgerBreakerFailures,
			MinRequests:         20,
			FailureRatio:        0.5,
		}, logger)
		balances = breaker
		checks = append(checks, handler.Check{Name: "ledger", Ping: func(context.Context) error {
			if s := breaker.State(); s == "open" {
				return fmt.Errorf("circuit %s", s)
			}
			return nil
		}})
		slog.Info("using remote ledger", "url", cfg.LedgerURL)
	}

	var attempts *limiter.Limiter
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		attempts = limiter.New(rdb, "mobile-money:rate_limit", cfg.RedeemAttemptsPerMinute, time.Minute)
		checks = append(checks, handler.Check{Name: "redis", Ping: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	} else {
		slog.Warn("REDIS_URL not set, withdrawal redeem attempts are not rate limited")
	}

	var publisher events.Publisher = events.Noop{Logger: logger}
	if cfg.RabbitMQURL != "" {
		producer, err := events.NewProducer(cfg.RabbitMQURL, cfg.EventsExchange)
		if err != nil {
			slog.Warn("event broker unreachable, transaction events disabled", "error", err)
		} else {
			publisher = producer
		}
	}
	defer publisher.Close()

	dir := directory.New(accounts, balances)
	rec := recorder.New(transfers, history, publisher)
	fees := fee.NewCalculator()
	runner := saga.NewRunner(balances, journal, saga.WithObserver(m))

	transferSvc := transfer.NewService(dir, transfers, rec, fees, runner, cfg.PlatformAccountID)
	withdrawalSvc := withdrawal.NewService(dir, withdrawals, rec, fees, runner, attempts, m, withdrawal.Config{
		PlatformAccount: cfg.PlatformAccountID,
		CodeTTL:         cfg.WithdrawalCodeTTL,
	})
	depositSvc := deposit.NewService(dir, rec, fees, runner, m, deposit.Config{
		PlatformAccount: cfg.PlatformAccountID,
		MaxBatchItems:   cfg.BatchMaxItems,
	})
	commissionSvc := commission.NewService(transfers, withdrawals, fees)

	reconciler := reconcile.New(withdrawals, journal, pgLedger, dir, m, reconcile.Config{
		CodeTTL:    cfg.WithdrawalCodeTTL,
		StuckAfter: cfg.StuckOperationAge,
	})
	scheduler := reconcile.NewScheduler(reconciler, logger, cfg.ReconcileSchedule)
	if err := scheduler.AddJob("idempotency_cleanup", "@hourly", idempotency.CleanExpired); err != nil {
		slog.Error("failed to schedule idempotency cleanup", "error", err)
		os.Exit(1)
	}
	if err := scheduler.Start(); err != nil {
		slog.Error("failed to start reconcile scheduler", "error", err)
		os.Exit(1)
	}

	router := newRouter(routes{
		jwtSecret:   cfg.JWTSecret,
		metrics:     m,
		idempotency: idempotency,
		health:      handler.NewHealthHandler(db, checks...),
		auth:        handler.NewAuthHandler(dir, cfg.JWTSecret, cfg.JWTExpiry),
		accounts:    handler.NewAccountHandler(dir, history),
		transfers:   handler.NewTransferHandler(transferSvc),
		withdrawals: handler.NewWithdrawalHandler(withdrawalSvc),
		deposits:    handler.NewDepositHandler(depositSvc),
		commissions: handler.NewCommissionHandler(commissionSvc),
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	select {
	case <-scheduler.Stop().Done():
	case <-ctx.Done():
		slog.Warn("reconcile job still running at shutdown")
	}
	slog.Info("server stopped")
}
