package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/api"
	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/config"
	"github.com/hackgods/clinic-appointment-scheduling/internal/db"
	"github.com/hackgods/clinic-appointment-scheduling/internal/logging"
	"github.com/hackgods/clinic-appointment-scheduling/internal/metrics"
	"github.com/hackgods/clinic-appointment-scheduling/internal/notify"
	redisclient "github.com/hackgods/clinic-appointment-scheduling/internal/redis"
)

var version = "dev"

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

	logger.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("timezone", cfg.Location.String()),
		zap.Int("granularity", cfg.Granularity),
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

	// Redis is optional; without it bookings fall back to the unique index.
	var (
		locker    redisclient.Locker
		redisPing api.PingFunc
	)
	if cfg.LockEnabled {
		rdb, err := redisclient.NewRedisClient(rootCtx, cfg)
		if err != nil {
			logger.Warn("redis unavailable, booking without slot locks", zap.Error(err))
		} else {
			defer func() {
				if err := rdb.Close(); err != nil {
					logger.Warn("error closing redis", zap.Error(err))
				}
			}()
			locker = redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
			redisPing = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
			logger.Info("connected to Redis", zap.String("addr", cfg.RedisAddr))
		}
	}

	var notifier appointment.Notifier = notify.NewLogNotifier(logger)
	if cfg.RabbitMQURL != "" {
		conn, ch, err := notify.Connect(cfg.RabbitMQURL, cfg.NotifyQueue)
		if err != nil {
			logger.Fatal("rabbitmq connection error", zap.Error(err))
		}
		defer closeAMQP(logger, conn, ch)
		notifier = notify.NewRabbitNotifier(ch, cfg.NotifyQueue, cfg.PhoneRegion, logger)
		logger.Info("publishing notifications", zap.String("queue", cfg.NotifyQueue))
	}

	svc := appointment.NewService(appointment.Dependencies{
		Appointments: appointment.NewPgRepository(pgPool),
		Schedules:    appointment.NewPgDirectory(pgPool),
		Prices:       appointment.NewPgDirectory(pgPool),
		Notifier:     notifier,
		Locker:       locker,
		Metrics:      metrics.NewScheduling(prometheus.DefaultRegisterer),
		Logger:       logger,
	}, cfg)

	router := api.NewRouter(api.RouterConfig{
		Service:        svc,
		Health:         api.NewHealthHandler(pgPool.Ping, redisPing, cfg.Env, version),
		Logger:         logger,
		Gatherer:       prometheus.DefaultGatherer,
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimit:      cfg.RateLimit,
		Now:            cfg.Now,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("http server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	logger.Info("api-server stopped")
}

func closeAMQP(logger *zap.Logger, conn *amqp.Connection, ch *amqp.Channel) {
	if err := ch.Close(); err != nil {
		logger.Warn("error closing rabbitmq channel", zap.Error(err))
	}
	if err := conn.Close(); err != nil {
		logger.Warn("error closing rabbitmq connection", zap.Error(err))
	}
}
