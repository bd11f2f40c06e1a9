package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/artpromedia/aivo-sub003/internal/adapter"
	"github.com/artpromedia/aivo-sub003/internal/config"
	"github.com/artpromedia/aivo-sub003/internal/handler"
	"github.com/artpromedia/aivo-sub003/internal/heartbeat"
	"github.com/artpromedia/aivo-sub003/internal/infra/postgresql"
	"github.com/artpromedia/aivo-sub003/internal/infra/postgresql/migrations"
	infraredis "github.com/artpromedia/aivo-sub003/internal/infra/redis"
	"github.com/artpromedia/aivo-sub003/internal/ledger"
	"github.com/artpromedia/aivo-sub003/internal/observability"
	"github.com/artpromedia/aivo-sub003/internal/orchestrator"
	"github.com/artpromedia/aivo-sub003/internal/queue"
	"github.com/artpromedia/aivo-sub003/internal/realtime"
	"github.com/artpromedia/aivo-sub003/internal/registry"
	"github.com/artpromedia/aivo-sub003/internal/replay"
	"github.com/artpromedia/aivo-sub003/internal/transport"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	rabbit, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer rabbit.Close()

	metrics := observability.NewMetrics()

	// Ledger.
	requestRepo := ledger.NewGormRequestRepo(db)
	attemptRepo := ledger.NewGormAttemptRepo(db)
	fanoutRepo := ledger.NewGormFanoutRepo(db)

	// Realtime plumbing: registry, replay log, websocket gateway.
	connRegistry := registry.New()
	replayLog := replay.NewLog(cfg.ReplayCapacity)
	authenticator, err := realtime.NewHMACAuthenticator(cfg.RealtimeToken)
	if err != nil {
		logger.Fatal("realtime authenticator init failed", zap.Error(err))
	}
	gateway, err := realtime.NewGateway(connRegistry, replayLog, authenticator, logger)
	if err != nil {
		logger.Fatal("realtime gateway init failed", zap.Error(err))
	}
	gateway.SetMetrics(metrics)
	defer gateway.Close()

	monitor, err := heartbeat.NewMonitor(connRegistry, gateway, cfg.HeartbeatInterval, logger)
	if err != nil {
		logger.Fatal("heartbeat monitor init failed", zap.Error(err))
	}
	monitor.SetEvictionHook(func(conn registry.Connection) {
		metrics.IncHeartbeatEviction()
	})

	// Channel adapters.
	directory, err := adapter.NewHTTPDirectory(cfg.DirectoryURL)
	if err != nil {
		logger.Fatal("directory client init failed", zap.Error(err))
	}
	realtimeAdapter, err := adapter.NewRealtimeAdapter(connRegistry, replayLog, gateway, logger)
	if err != nil {
		logger.Fatal("realtime adapter init failed", zap.Error(err))
	}
	realtimeAdapter.SetMetrics(metrics)
	pushAdapter, err := adapter.NewPushAdapter(cfg.PushGatewayURL, directory, logger)
	if err != nil {
		logger.Fatal("push adapter init failed", zap.Error(err))
	}
	smsAdapter, err := adapter.NewSMSAdapter(cfg.SMSGatewayURL, directory, logger)
	if err != nil {
		logger.Fatal("sms adapter init failed", zap.Error(err))
	}

	rateLimiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec)
	if err != nil {
		logger.Fatal("rate limiter init failed", zap.Error(err))
	}

	// Orchestration.
	orch, err := orchestrator.NewOrchestrator(
		requestRepo,
		attemptRepo,
		[]adapter.Adapter{realtimeAdapter, pushAdapter, smsAdapter},
		rateLimiter,
		logger,
	)
	if err != nil {
		logger.Fatal("orchestrator init failed", zap.Error(err))
	}
	orch.SetMetrics(metrics)

	publisher := queue.NewRabbitMQPublisher(rabbit)
	defer publisher.Close()
	consumer := queue.NewRabbitMQConsumer(rabbit, cfg.WorkerConcurrency, logger)
	defer consumer.Close()

	deliveryService, err := orchestrator.NewDeliveryService(requestRepo, attemptRepo, fanoutRepo, publisher, logger)
	if err != nil {
		logger.Fatal("delivery service init failed", zap.Error(err))
	}

	worker, err := orchestrator.NewWorker(requestRepo, consumer, orch, cfg.WorkerConcurrency, logger)
	if err != nil {
		logger.Fatal("worker init failed", zap.Error(err))
	}
	worker.SetMetrics(metrics)

	sweeper, err := orchestrator.NewSweeper(requestRepo, publisher, 0, 0, 0, logger)
	if err != nil {
		logger.Fatal("sweeper init failed", zap.Error(err))
	}

	// HTTP API.
	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	if err := handler.RegisterDeliveryRoutes(app, deliveryService, authenticator); err != nil {
		logger.Fatal("route registration failed", zap.Error(err))
	}

	realtimeServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.RealtimePort),
		Handler: gateway.Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("api listening", zap.Int("port", cfg.APIPort))
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})

	g.Go(func() error {
		logger.Info("realtime gateway listening", zap.Int("port", cfg.RealtimePort))
		if err := realtimeServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error { return worker.Start(gCtx) })
	g.Go(func() error { return sweeper.Start(gCtx) })
	g.Go(func() error { return monitor.Start(gCtx) })

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := realtimeServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("realtime server shutdown failed", zap.Error(err))
		}
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logger.Warn("api shutdown failed", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Fatal("service exited with error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
