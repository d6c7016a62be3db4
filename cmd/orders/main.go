package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aescanero/costume-orders/internal/application/orchestrator"
	"github.com/aescanero/costume-orders/internal/application/workers"
	"github.com/aescanero/costume-orders/internal/config"
	"github.com/aescanero/costume-orders/internal/telemetry"
	"github.com/aescanero/costume-orders/pkg/adapters/metrics/prometheus"
	"github.com/aescanero/costume-orders/pkg/api/grpc"
	"github.com/aescanero/costume-orders/pkg/api/http"
	"github.com/aescanero/costume-orders/pkg/api/websocket"
	"github.com/aescanero/costume-orders/pkg/ports"

	prom "github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting orders service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("order_store", cfg.Store.Backend),
		zap.String("event_bus", cfg.Events.Backend))

	if err := run(cfg, logger); err != nil {
		logger.Fatal("orders service failed", zap.Error(err))
	}

	logger.Info("orders service shut down complete")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracer(ctx, telemetry.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Error("tracer shutdown error", zap.Error(err))
		}
	}()

	var redisClient *goredis.Client
	if cfg.UsesRedis() {
		redisClient = newRedisClient(cfg.Redis)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error("Redis close error", zap.Error(err))
			}
		}()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))
	}

	store, err := openStore(cfg, redisClient, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.close(); err != nil {
			logger.Error("order store close error", zap.Error(err))
		}
	}()

	bus, err := openBus(ctx, cfg, redisClient, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := bus.close(); err != nil {
			logger.Error("event bus close error", zap.Error(err))
		}
	}()

	metricsCollector := prometheus.NewCollector(prom.DefaultRegisterer)

	manager := newManager(cfg, store.value, bus.value, metricsCollector, logger)

	wsHandler := websocket.NewHandler(logger)

	checks := map[string]http.HealthCheck{
		"order_store": store.check,
		"event_bus":   bus.check,
	}
	grpcChecks := map[string]grpc.Check{
		"order_store": store.check,
		"event_bus":   bus.check,
	}

	// Built before the pool so a listen failure leaves nothing running.
	// The checks map is read on every refresh, so later entries are seen.
	grpcServer, err := grpc.NewServer(&grpc.Config{
		Addr:   cfg.GetGRPCAddr(),
		Checks: grpcChecks,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	var pool *workers.Pool
	if cfg.Workers.PoolSize > 0 {
		pool = workers.NewPool(
			cfg.Workers.PoolSize,
			bus.value,
			cfg.Events.Topic,
			[]workers.Notifier{wsHandler},
			metricsCollector,
			logger,
			cfg.Workers.HealthCheckInterval,
		)
		if err := pool.Start(); err != nil {
			_ = grpcServer.Shutdown(context.Background())
			return fmt.Errorf("failed to start worker pool: %w", err)
		}

		workersCheck := func(context.Context) error {
			if !pool.Health().IsHealthy() {
				return errors.New("worker pool is unhealthy")
			}
			return nil
		}
		checks["workers"] = workersCheck
		grpcChecks["workers"] = workersCheck
	}

	httpServer := http.NewServer(&http.Config{
		Addr:     cfg.GetHTTPAddr(),
		Workflow: manager,
		Orders:   store.value,
		Checks:   checks,
		Logger:   logger,
	})
	httpServer.SetupWebSocket(wsHandler)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(httpServer.Start)
	g.Go(grpcServer.Start)
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("received shutdown signal")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		err := errors.Join(
			httpServer.Shutdown(shutdownCtx),
			grpcServer.Shutdown(shutdownCtx),
		)
		if pool != nil {
			err = errors.Join(err, pool.Shutdown(shutdownCtx))
		}
		return err
	})

	logger.Info("orders service started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.Int("worker_pool_size", cfg.Workers.PoolSize),
		zap.Duration("workflow_deadline", cfg.Workflow.Deadline))

	return g.Wait()
}

// newManager builds the workflow from the configured retry and publish policies
func newManager(
	cfg *config.Config,
	store ports.OrderWriter,
	publisher ports.EventPublisher,
	metrics *prometheus.Collector,
	logger *zap.Logger,
) *orchestrator.Manager {
	persistPolicy := orchestrator.RetryPolicy{
		MaxAttempts:    cfg.Workflow.PersistMaxAttempts,
		InitialBackoff: cfg.Workflow.PersistInitialBackoff,
		MaxBackoff:     cfg.Workflow.PersistMaxBackoff,
	}
	publishPolicy := orchestrator.RetryPolicy{
		MaxAttempts:    cfg.Workflow.PublishMaxAttempts,
		InitialBackoff: cfg.Workflow.PersistInitialBackoff,
		MaxBackoff:     cfg.Workflow.PersistMaxBackoff,
	}

	policy := orchestrator.PublishBestEffort
	if cfg.Workflow.RequirePublish {
		policy = orchestrator.PublishRequired
	}

	return orchestrator.NewManager(
		orchestrator.NewPersistStep(store, persistPolicy, cfg.Workflow.PersistStepTimeout, logger),
		orchestrator.NewPublishStep(publisher, cfg.Events.Topic, cfg.Events.Source, publishPolicy, logger),
		metrics,
		logger,
		cfg.Workflow.Deadline,
		policy,
	)
}

// initLogger initializes the logger based on log level
func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	return logger
}
