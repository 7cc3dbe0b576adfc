// Package main provides the worker service entry point.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/orderflow/orderflow/internal/application/appcore"
	"github.com/orderflow/orderflow/internal/config"
	"github.com/orderflow/orderflow/internal/domain/event"
	orderdomain "github.com/orderflow/orderflow/internal/domain/order"
	"github.com/orderflow/orderflow/internal/infrastructure/deadletter"
	"github.com/orderflow/orderflow/internal/infrastructure/eventbus"
	"github.com/orderflow/orderflow/internal/infrastructure/eventstore"
	"github.com/orderflow/orderflow/internal/infrastructure/metrics"
	mongodbinfra "github.com/orderflow/orderflow/internal/infrastructure/mongodb"
	"github.com/orderflow/orderflow/internal/infrastructure/outbox"
	"github.com/orderflow/orderflow/internal/infrastructure/projector"
	"github.com/orderflow/orderflow/internal/infrastructure/repair"
	"github.com/orderflow/orderflow/internal/infrastructure/repository/mongodb"
	"github.com/orderflow/orderflow/internal/worker"
)

// Timeout constants for the worker service.
const redisPingTimeout = 5 * time.Second

//nolint:funlen // Main function handles startup orchestration and is readable as-is
func main() {
	cfg, err := config.Load()
	if err != nil {
		//nolint:sloglint // No context available before logger setup
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := setupLogger(cfg)

	logger.Info("starting orderflow worker service",
		slog.String("version", "0.1.0"),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go handleShutdown(cancel, logger)

	mongoClient, err := connectMongoDB(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect to MongoDB", slog.String("error", err.Error()))
		cancel()
		os.Exit(1) //nolint:gocritic // cancel() called before exit
	}
	defer func() {
		if disconnectErr := mongoClient.Disconnect(context.Background()); disconnectErr != nil {
			logger.Error("failed to disconnect from MongoDB", slog.String("error", disconnectErr.Error()))
		}
	}()

	db := mongoClient.Database(cfg.MongoDB.Database)

	if indexErr := mongodbinfra.CreateAllIndexes(ctx, db); indexErr != nil {
		logger.Error("failed to create indexes", slog.String("error", indexErr.Error()))
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	defer func() {
		if closeErr := redisClient.Close(); closeErr != nil {
			logger.Error("failed to close Redis", slog.String("error", closeErr.Error()))
		}
	}()

	pingCtx, pingCancel := context.WithTimeout(ctx, redisPingTimeout)
	if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
		pingCancel()
		logger.Error("failed to connect to Redis", slog.String("error", pingErr.Error()))
		os.Exit(1)
	}
	pingCancel()

	logger.InfoContext(ctx, "connected to Redis", slog.String("addr", cfg.Redis.Addr))

	eventBus := eventbus.NewRedisEventBus(
		redisClient,
		eventbus.WithLogger(logger),
		eventbus.WithChannelPrefix(cfg.EventBus.RedisChannelPrefix),
	)

	outboxColl := db.Collection(mongodbinfra.CollectionOutbox)
	mongoOutbox := outbox.NewMongoOutbox(outboxColl, outbox.WithLogger(logger))

	outboxMetrics := metrics.NewOutboxMetrics(prometheus.DefaultRegisterer)
	projectionMetrics := metrics.NewProjectionMetrics(prometheus.DefaultRegisterer)

	outboxConfig := worker.OutboxWorkerConfig{
		PollInterval:    cfg.Outbox.PollInterval,
		BatchSize:       cfg.Outbox.BatchSize,
		MaxRetries:      cfg.Outbox.MaxRetries,
		CleanupAge:      cfg.Outbox.CleanupAge,
		CleanupInterval: cfg.Outbox.CleanupInterval,
		Enabled:         cfg.Outbox.Enabled,
	}

	outboxWorker := worker.NewOutboxWorker(
		mongoOutbox,
		eventBus,
		logger,
		outboxConfig,
		outboxMetrics,
	)

	// Projection side
	eventStore := eventstore.NewMongoEventStore(
		mongoClient,
		db.Collection(mongodbinfra.CollectionEvents),
		eventstore.WithLogger(logger),
	)

	readRepo := mongodb.NewMongoOrderReadRepository(
		db.Collection(mongodbinfra.CollectionOrderViews),
		db.Collection(mongodbinfra.CollectionCustomerSummaries),
		mongodb.WithOrderReadRepoLogger(logger),
	)

	deadLetters := deadletter.NewMongoStore(
		db.Collection(mongodbinfra.CollectionDeadLetters),
		deadletter.WithLogger(logger),
	)

	// The order projector must run before the summary projector: the
	// summary resolves a customer through the order view.
	engine := projector.NewEngine(
		deadLetters,
		[]appcore.ReadModelProjector{
			projector.NewOrderProjector(readRepo, eventStore, logger),
			projector.NewCustomerSummaryProjector(readRepo, eventStore, logger),
		},
		projector.WithEngineLogger(logger),
		projector.WithEngineConfig(projector.EngineConfig{
			MaxAttempts:    cfg.Projection.MaxAttempts,
			InitialBackoff: cfg.Projection.InitialBackoff,
			MaxBackoff:     cfg.Projection.MaxBackoff,
			BackoffFactor:  projector.DefaultEngineConfig().BackoffFactor,
			BufferLimit:    projector.DefaultEngineConfig().BufferLimit,
		}),
		projector.WithEngineMetrics(projectionMetrics),
	)

	for _, eventType := range orderdomain.EventTypes {
		if subErr := eventBus.Subscribe(eventType, func(handlerCtx context.Context, evt event.DomainEvent) error {
			return engine.HandleEvent(handlerCtx, evt)
		}); subErr != nil {
			logger.Error("failed to subscribe projection engine",
				slog.String("event_type", eventType),
				slog.String("error", subErr.Error()),
			)
			os.Exit(1)
		}
	}

	if busErr := eventBus.Start(ctx); busErr != nil {
		logger.Error("failed to start event bus", slog.String("error", busErr.Error()))
		os.Exit(1)
	}
	defer func() {
		if shutdownErr := eventBus.Shutdown(); shutdownErr != nil {
			logger.Error("failed to shut down event bus", slog.String("error", shutdownErr.Error()))
		}
	}()

	repairQueue := repair.NewMongoQueue(db.Collection(mongodbinfra.CollectionRepairQueue), logger)

	repairConfig := worker.RepairWorkerConfig{
		PollInterval: cfg.Repair.PollInterval,
		BatchSize:    cfg.Repair.BatchSize,
		MaxRetries:   cfg.Repair.MaxRetries,
		Enabled:      cfg.Repair.Enabled,
	}

	repairWorker := worker.NewRepairWorker(
		repairQueue,
		engine,
		deadLetters,
		logger,
		repairConfig,
	)

	logger.Info("starting workers",
		slog.Bool("outbox_enabled", outboxConfig.Enabled),
		slog.Duration("outbox_poll_interval", outboxConfig.PollInterval),
		slog.Bool("repair_enabled", repairConfig.Enabled),
		slog.Duration("repair_poll_interval", repairConfig.PollInterval),
	)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if runErr := outboxWorker.Run(ctx); runErr != nil && !errors.Is(runErr, context.Canceled) {
			logger.Error("outbox worker error", slog.String("error", runErr.Error()))
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if runErr := repairWorker.Start(ctx); runErr != nil && !errors.Is(runErr, context.Canceled) {
			logger.Error("repair worker error", slog.String("error", runErr.Error()))
		}
	}()

	wg.Wait()

	logger.Info("worker service shutdown complete")
}

// setupLogger creates and configures the structured logger based on configuration.
func setupLogger(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	level := parseLogLevel(cfg.Log.Level)
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.IsDevelopment(),
	}

	switch cfg.Log.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// connectMongoDB establishes a connection to MongoDB.
func connectMongoDB(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*mongo.Client, error) {
	clientOpts := options.Client().
		ApplyURI(cfg.MongoDB.URI).
		SetMaxPoolSize(cfg.MongoDB.MaxPoolSize)

	client, err := mongo.Connect(clientOpts)
	if err != nil {
		return nil, err
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, cfg.MongoDB.Timeout)
	defer pingCancel()

	if pingErr := client.Ping(pingCtx, nil); pingErr != nil {
		return nil, pingErr
	}

	logger.InfoContext(ctx, "connected to MongoDB",
		slog.String("database", cfg.MongoDB.Database),
	)

	return client, nil
}

// handleShutdown listens for OS signals and cancels the context.
func handleShutdown(cancel context.CancelFunc, logger *slog.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)

	sig := <-quit
	logger.Info("received shutdown signal", slog.String("signal", sig.String()))
	cancel()
}
