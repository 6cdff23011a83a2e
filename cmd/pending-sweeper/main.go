package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/config"
	"github.com/hackgods/clinic-appointment-scheduling/internal/db"
	"github.com/hackgods/clinic-appointment-scheduling/internal/logging"
	"github.com/hackgods/clinic-appointment-scheduling/internal/metrics"
	"github.com/hackgods/clinic-appointment-scheduling/internal/notify"
)

// pending-sweeper cancels pending appointments whose date has passed.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("pending-sweeper starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.WorkerInterval),
		zap.Int("batch_size", cfg.SweepBatchSize),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	// Patients are told about sweep cancellations the same way the API tells them.
	var notifier appointment.Notifier = notify.NewLogNotifier(logger)
	if cfg.RabbitMQURL != "" {
		conn, ch, err := notify.Connect(cfg.RabbitMQURL, cfg.NotifyQueue)
		if err != nil {
			logger.Fatal("rabbitmq connection error", zap.Error(err))
		}
		defer func() {
			_ = ch.Close()
			_ = conn.Close()
		}()
		notifier = notify.NewRabbitNotifier(ch, cfg.NotifyQueue, cfg.PhoneRegion, logger)
	}

	svc := appointment.NewService(appointment.Dependencies{
		Appointments: appointment.NewPgRepository(pgPool),
		Schedules:    appointment.NewPgDirectory(pgPool),
		Prices:       appointment.NewPgDirectory(pgPool),
		Notifier:     notifier,
		Metrics:      metrics.NewScheduling(prometheus.NewRegistry()),
		Logger:       logger,
	}, cfg)

	// Run once at startup
	runOnce(rootCtx, logger, svc, cfg.SweepBatchSize)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping pending-sweeper")
			return
		case <-ticker.C:
			runOnce(rootCtx, logger, svc, cfg.SweepBatchSize)
		}
	}
}

func runOnce(ctx context.Context, logger *zap.Logger, svc *appointment.Service, batch int) {
	runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	start := time.Now()
	n, err := svc.SweepStalePending(runCtx, batch)
	if err != nil {
		logger.Error("sweep run failed", zap.Error(err))
		return
	}
	logger.Info("sweep run complete",
		zap.Int("cancelled", n),
		zap.Duration("took", time.Since(start)),
	)
}
