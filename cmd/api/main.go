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

	"github.com/redis/go-redis/v9"

	"github.com/baharkarakas/ledger-backend/internal/api"
	"github.com/baharkarakas/ledger-backend/internal/auth"
	"github.com/baharkarakas/ledger-backend/internal/config"
	"github.com/baharkarakas/ledger-backend/internal/db"
	"github.com/baharkarakas/ledger-backend/internal/logger"
	"github.com/baharkarakas/ledger-backend/internal/metrics"
	"github.com/baharkarakas/ledger-backend/internal/middleware"
	"github.com/baharkarakas/ledger-backend/internal/notify"
	repo "github.com/baharkarakas/ledger-backend/internal/repository"
	"github.com/baharkarakas/ledger-backend/internal/repository/memory"
	"github.com/baharkarakas/ledger-backend/internal/repository/postgres"
	"github.com/baharkarakas/ledger-backend/internal/services"
	"github.com/baharkarakas/ledger-backend/internal/worker"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Env)
	slog.SetDefault(log)

	limits, err := cfg.Limits()
	if err != nil {
		return err
	}
	reporting, err := cfg.ReportingLocation()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var repos repo.Repositories
	switch cfg.Driver {
	case config.DriverMemory:
		repos, _ = memory.NewRepositories(cfg.LockTimeout)
		log.Warn("using in-memory ledger; data is lost on exit")
	default:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		if cfg.Migrate {
			if err := db.RunMigrations(ctx, pool); err != nil {
				return err
			}
		}
		repos = postgres.NewRepositories(pool, cfg.LockTimeout)
	}

	hub := notify.NewHub(16)
	var publisher notify.Publisher = hub
	var transferCounter middleware.WindowCounter = middleware.NewMemoryCounter()
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		if err := notify.NewRelay(rdb, hub).Start(ctx); err != nil {
			return err
		}
		publisher = notify.NewRedisPublisher(rdb)
		transferCounter = middleware.NewRedisCounter(rdb)
		log.Info("redis fan-out enabled")
	}

	// registered after the redis client so queued publishes drain before it closes
	wp := worker.NewPool(cfg.WorkerCount, 1024)
	defer wp.Stop()

	auditor := services.NewAuditor(repos.AuditLogs, wp)
	userSvc := services.NewUserService(repos.Users, services.RandomOpeningBalance(cfg.OpeningBalanceMax), auditor)
	balanceSvc := services.NewBalanceService(repos.Ledger)
	transferSvc := services.NewTransferService(repos.Ledger, limits,
		services.WithAuditor(auditor),
		services.WithNotifier(notify.NewDispatcher(publisher, wp)),
	)
	historySvc := services.NewHistoryService(repos.Ledger, reporting)

	metrics.Init()
	r := api.NewRouter(api.RouterDeps{
		Cfg:             cfg,
		TM:              auth.NewTokenManager(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL),
		Users:           userSvc,
		Balances:        balanceSvc,
		Transfers:       transferSvc,
		History:         historySvc,
		Notifications:   hub,
		TransferCounter: transferCounter,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "port", cfg.HTTPPort, "driver", cfg.Driver, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
