package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/medagenda/clinic-scheduling/internal/api"
	"github.com/medagenda/clinic-scheduling/internal/config"
	"github.com/medagenda/clinic-scheduling/internal/db"
	"github.com/medagenda/clinic-scheduling/internal/events"
	"github.com/medagenda/clinic-scheduling/internal/notify"
	"github.com/medagenda/clinic-scheduling/internal/observability/metrics"
	redisclient "github.com/medagenda/clinic-scheduling/internal/redis"
	"github.com/medagenda/clinic-scheduling/internal/scheduling"
	"github.com/medagenda/clinic-scheduling/pkg/logging"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load error", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("api-server starting up", "env", cfg.Env, "http_port", cfg.HTTPPort)

	if cfg.JWTSecret == "" {
		logger.Error("JWT_SECRET is required for the api server")
		os.Exit(1)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Error("postgres connection error", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	var rdb *redis.Client
	var locker redisclient.Locker = redisclient.NoopLocker{}
	if cfg.RedisAddr != "" {
		rdb, err = redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			logger.Error("redis connection error", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("error closing redis", "error", err)
			}
		}()
		locker = redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL, logger)
		logger.Info("connected to Redis")
	} else {
		logger.Info("redis not configured, slot lock fast path disabled")
	}

	repo := scheduling.NewPgRepository(pgPool)
	recorder := events.NewPgRecorder(pgPool, logger)
	notifier := notify.NewService(notify.LogSender{Logger: logger}, logger)
	schedMetrics := metrics.NewSchedulingMetrics(nil)

	svc := scheduling.NewService(repo, locker, notifier, recorder, schedMetrics, cfg, logger)

	router := api.NewRouter(api.RouterConfig{
		Service:   svc,
		PgPool:    pgPool,
		Redis:     rdb,
		JWTSecret: cfg.JWTSecret,
		Env:       cfg.Env,
		Version:   version,
		Logger:    logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	case <-rootCtx.Done():
	}

	logger.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
