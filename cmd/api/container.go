// Package main provides the API server entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/orderflow/orderflow/internal/application/appcore"
	"github.com/orderflow/orderflow/internal/application/dispatch"
	orderapp "github.com/orderflow/orderflow/internal/application/order"
	"github.com/orderflow/orderflow/internal/config"
	httphandler "github.com/orderflow/orderflow/internal/handler/http"
	"github.com/orderflow/orderflow/internal/infrastructure/deadletter"
	"github.com/orderflow/orderflow/internal/infrastructure/eventstore"
	"github.com/orderflow/orderflow/internal/infrastructure/healthcheck"
	mongodbinfra "github.com/orderflow/orderflow/internal/infrastructure/mongodb"
	"github.com/orderflow/orderflow/internal/infrastructure/outbox"
	"github.com/orderflow/orderflow/internal/infrastructure/repair"
	"github.com/orderflow/orderflow/internal/infrastructure/repository/mongodb"
)

// Container initialization timeouts.
const (
	containerInitTimeout   = 30 * time.Second
	mongoDisconnectTimeout = 10 * time.Second
)

// Container holds all application dependencies and manages their lifecycle.
type Container struct {
	// Configuration
	Config *config.Config
	Logger *slog.Logger

	// Infrastructure
	MongoDB     *mongo.Client
	MongoDBName string
	EventStore  *eventstore.MongoEventStore
	Outbox      appcore.Outbox
	DeadLetters appcore.DeadLetterStore
	RepairQueue repair.Queue

	// Write side
	OrderRepo  *mongodb.MongoOrderRepository
	Registry   *dispatch.Registry
	Dispatcher *dispatch.Dispatcher

	// Read side
	ReadRepo     *mongodb.MongoOrderReadRepository
	QueryService *orderapp.QueryService

	// HTTP
	OrderHandler *httphandler.OrderHandler

	// Health
	Checkers []appcore.HealthChecker
}

// ContainerOption configures the container.
type ContainerOption func(*Container)

// WithLogger sets the container logger.
func WithLogger(logger *slog.Logger) ContainerOption {
	return func(c *Container) {
		c.Logger = logger
	}
}

// NewContainer builds the dependency graph for the API server.
func NewContainer(cfg *config.Config, opts ...ContainerOption) (*Container, error) {
	c := &Container{
		Config:      cfg,
		Logger:      slog.Default(),
		MongoDBName: cfg.MongoDB.Database,
	}

	for _, opt := range opts {
		opt(c)
	}

	ctx, cancel := context.WithTimeout(context.Background(), containerInitTimeout)
	defer cancel()

	if err := c.setupMongoDB(ctx); err != nil {
		return nil, err
	}

	db := c.MongoDB.Database(c.MongoDBName)

	if err := mongodbinfra.CreateAllIndexes(ctx, db); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	c.EventStore = eventstore.NewMongoEventStore(
		c.MongoDB,
		db.Collection(mongodbinfra.CollectionEvents),
		eventstore.WithLogger(c.Logger),
	)

	c.Outbox = outbox.NewMongoOutbox(
		db.Collection(mongodbinfra.CollectionOutbox),
		outbox.WithLogger(c.Logger),
	)

	c.DeadLetters = deadletter.NewMongoStore(
		db.Collection(mongodbinfra.CollectionDeadLetters),
		deadletter.WithLogger(c.Logger),
	)

	c.RepairQueue = repair.NewMongoQueue(
		db.Collection(mongodbinfra.CollectionRepairQueue),
		c.Logger,
	)

	c.OrderRepo = mongodb.NewMongoOrderRepository(
		c.MongoDB,
		c.EventStore,
		c.Outbox,
		mongodb.WithOrderRepoLogger(c.Logger),
	)

	c.Registry = dispatch.NewRegistry()
	if err := orderapp.RegisterHandlers(c.Registry); err != nil {
		return nil, fmt.Errorf("failed to register command handlers: %w", err)
	}

	c.Dispatcher = dispatch.NewDispatcher(c.Registry, c.OrderRepo, dispatch.WithLogger(c.Logger))

	c.ReadRepo = mongodb.NewMongoOrderReadRepository(
		db.Collection(mongodbinfra.CollectionOrderViews),
		db.Collection(mongodbinfra.CollectionCustomerSummaries),
		mongodb.WithOrderReadRepoLogger(c.Logger),
	)

	c.QueryService = orderapp.NewQueryService(c.ReadRepo, orderapp.WithQueryLogger(c.Logger))

	c.OrderHandler = httphandler.NewOrderHandler(c.Dispatcher, c.QueryService)

	c.Checkers = []appcore.HealthChecker{
		healthcheck.NewOutboxBacklogChecker(c.Outbox),
		healthcheck.NewDeadLetterChecker(c.DeadLetters),
		healthcheck.NewRepairQueueChecker(c.RepairQueue, 0),
		healthcheck.NewReadModelSyncChecker(
			db.Collection(mongodbinfra.CollectionOrderViews),
			db.Collection(mongodbinfra.CollectionCustomerSummaries),
		),
	}

	return c, nil
}

// setupMongoDB connects the MongoDB client and verifies the connection.
func (c *Container) setupMongoDB(ctx context.Context) error {
	clientOpts := options.Client().
		ApplyURI(c.Config.MongoDB.URI).
		SetMaxPoolSize(c.Config.MongoDB.MaxPoolSize)

	client, err := mongo.Connect(clientOpts)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, c.Config.MongoDB.Timeout)
	defer pingCancel()

	if pingErr := client.Ping(pingCtx, nil); pingErr != nil {
		return fmt.Errorf("failed to ping MongoDB: %w", pingErr)
	}

	c.MongoDB = client
	c.Logger.InfoContext(ctx, "connected to MongoDB",
		slog.String("database", c.MongoDBName),
	)

	return nil
}

// Close releases container resources.
func (c *Container) Close() error {
	c.Logger.Info("closing container resources...")

	var errs []error

	if c.MongoDB != nil {
		ctx, cancel := context.WithTimeout(context.Background(), mongoDisconnectTimeout)
		defer cancel()

		if err := c.MongoDB.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mongodb disconnect: %w", err))
		} else {
			c.Logger.Debug("mongodb connection closed")
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	c.Logger.Info("container resources closed")
	return nil
}
