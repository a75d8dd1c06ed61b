package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/medagenda/clinic-scheduling/internal/config"
	"github.com/medagenda/clinic-scheduling/internal/db"
	"github.com/medagenda/clinic-scheduling/internal/events"
	"github.com/medagenda/clinic-scheduling/internal/notify"
	"github.com/medagenda/clinic-scheduling/internal/scheduling"
	"github.com/medagenda/clinic-scheduling/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load error", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("reminder-worker starting up",
		"env", cfg.Env, "interval", cfg.WorkerInterval.String(), "lead", cfg.ReminderLead.String())

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

	repo := scheduling.NewPgRepository(pgPool)
	recorder := events.NewPgRecorder(pgPool, logger)
	notifier := notify.NewService(notify.LogSender{Logger: logger}, logger)

	// The sweep needs no slot lock; reminder sends are guarded by the
	// compare-and-set mark on each row.
	svc := scheduling.NewService(repo, nil, notifier, recorder, nil, cfg, logger)

	runOnce(rootCtx, svc, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping reminder worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *scheduling.Service, logger *logging.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	sent, err := svc.SendDueReminders(runCtx)
	if err != nil {
		logger.Error("reminder sweep error", "error", err)
		return
	}
	logger.Info("reminder sweep complete", "sent", sent, "duration", time.Since(start).String())
}
