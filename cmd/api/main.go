package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/srgjo27/ticket_reservation/internal/adapter/handler"
	"github.com/srgjo27/ticket_reservation/internal/adapter/lock"
	"github.com/srgjo27/ticket_reservation/internal/adapter/publisher"
	"github.com/srgjo27/ticket_reservation/internal/adapter/publisher/rabbitmq"
	"github.com/srgjo27/ticket_reservation/internal/adapter/repository/postgres"
	"github.com/srgjo27/ticket_reservation/internal/core/services"
	"github.com/srgjo27/ticket_reservation/internal/platform/cache"
	"github.com/srgjo27/ticket_reservation/internal/platform/clock"
	"github.com/srgjo27/ticket_reservation/internal/platform/config"
	"github.com/srgjo27/ticket_reservation/internal/platform/database"
	"github.com/srgjo27/ticket_reservation/internal/platform/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("service stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgresDB(ctx, cfg.DB, log)
	if err != nil {
		return errors.Wrap(err, "connect to db")
	}
	defer db.Close()

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis, log)
	if err != nil {
		return errors.Wrap(err, "connect to redis")
	}
	defer redisClient.Close()

	broker := rabbitmq.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, log,
		rabbitmq.WithDialTimeout(cfg.RabbitMQ.DialTimeout))
	if err := broker.Connect(ctx); err != nil {
		// events are best effort; the publisher redials on the next publish
		log.Warn("rabbitmq unavailable at startup", zap.Error(err))
	}
	defer broker.Close()

	events := publisher.NewBuffered(broker, cfg.RabbitMQ.BufferSize, cfg.RabbitMQ.PublishTimeout, log)

	txManager := postgres.NewTxManager(db)
	tierRepo := postgres.NewTierRepository(db)
	bookingRepo := postgres.NewBookingRepository(db)
	lockService := lock.NewRedisLockService(redisClient)
	idempotency := lock.NewRedisIdempotencyStore(redisClient)

	clk := clock.NewSystem()

	bookingService := services.NewBookingService(
		txManager, tierRepo, bookingRepo, lockService, events, log,
		services.WithHoldTTL(cfg.Reservation.HoldTTL),
		services.WithMaxTicketsPerOrder(cfg.Reservation.MaxTicketsPerOrder),
		services.WithReserveAttempts(cfg.Reservation.ReserveAttempts),
		services.WithIdempotency(idempotency, cfg.Reservation.IdempotencyTTL),
		services.WithIdempotencyPendingTTL(cfg.Reservation.PendingTTL),
		services.WithPromoCodes(cfg.Reservation.PromoCodes),
		services.WithCurrency(cfg.Reservation.Currency),
		services.WithClock(clk),
	)

	reconcilerDone := make(chan struct{})
	if cfg.Reconciler.Enabled {
		reconciler := services.NewHoldReconciler(bookingRepo, bookingService, clk, log,
			cfg.Reconciler.Interval, cfg.Reconciler.Batch)
		go func() {
			defer close(reconcilerDone)
			reconciler.Run(ctx)
		}()
	} else {
		close(reconcilerDone)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(handler.RequestLogger(log))

	handler.RegisterRoutes(e, handler.NewBookingHandler(bookingService, lockService, log))

	e.Server.ReadTimeout = 5 * time.Second
	e.Server.WriteTimeout = 10 * time.Second
	e.Server.IdleTimeout = 120 * time.Second

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("port", cfg.App.Port), zap.String("env", cfg.App.Env))
		if err := e.Start(":" + cfg.App.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "server startup failed")
	case <-ctx.Done():
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "server forced to shutdown")
	}

	select {
	case <-reconcilerDone:
	case <-shutdownCtx.Done():
	}

	if err := events.Close(shutdownCtx); err != nil {
		log.Warn("booking events dropped on shutdown", zap.Error(err))
	}

	log.Info("server exiting")
	return nil
}
