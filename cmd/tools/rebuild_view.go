// Command rebuild_view rebuilds or verifies order read views from the
// event store.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/orderflow/orderflow/internal/application/appcore"
	"github.com/orderflow/orderflow/internal/config"
	orderdomain "github.com/orderflow/orderflow/internal/domain/order"
	"github.com/orderflow/orderflow/internal/domain/uuid"
	"github.com/orderflow/orderflow/internal/infrastructure/eventstore"
	mongodbinfra "github.com/orderflow/orderflow/internal/infrastructure/mongodb"
	"github.com/orderflow/orderflow/internal/infrastructure/projector"
	"github.com/orderflow/orderflow/internal/infrastructure/repository/mongodb"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	aggregateID := flag.String("id", "", "Order ID (omit with --all)")
	all := flag.Bool("all", false, "Rebuild views for all orders")
	verify := flag.Bool("verify", false, "Verify consistency instead of rebuilding")

	flag.Parse()

	if !*all && *aggregateID == "" {
		logger.Error("either --id or --all must be specified")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx := context.Background()

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoDB.URI))
	if err != nil {
		logger.Error("failed to connect to MongoDB", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		if disconnectErr := client.Disconnect(ctx); disconnectErr != nil {
			logger.Error("failed to disconnect from MongoDB", slog.String("error", disconnectErr.Error()))
		}
	}()

	db := client.Database(cfg.MongoDB.Database)

	eventStore := eventstore.NewMongoEventStore(
		client,
		db.Collection(mongodbinfra.CollectionEvents),
		eventstore.WithLogger(logger),
	)

	readRepo := mongodb.NewMongoOrderReadRepository(
		db.Collection(mongodbinfra.CollectionOrderViews),
		db.Collection(mongodbinfra.CollectionCustomerSummaries),
		mongodb.WithOrderReadRepoLogger(logger),
	)

	// The order projector must run before the summary projector.
	projectors := []appcore.ReadModelProjector{
		projector.NewOrderProjector(readRepo, eventStore, logger),
		projector.NewCustomerSummaryProjector(readRepo, eventStore, logger),
	}

	switch {
	case *verify && *all:
		runVerifyAll(ctx, eventStore, projectors, logger)
	case *verify:
		runVerifyOne(ctx, projectors, *aggregateID, logger)
	case *all:
		runRebuildAll(ctx, projectors, logger)
	default:
		runRebuildOne(ctx, projectors, *aggregateID, logger)
	}
}

func runRebuildOne(ctx context.Context, projectors []appcore.ReadModelProjector, idStr string, logger *slog.Logger) {
	id := mustParseID(ctx, idStr, logger)

	logger.InfoContext(ctx, "rebuilding read views", slog.String("aggregate_id", id.String()))

	for _, proj := range projectors {
		if rebuildErr := proj.RebuildOne(ctx, id); rebuildErr != nil {
			logger.ErrorContext(ctx, "rebuild failed", slog.String("error", rebuildErr.Error()))
			os.Exit(1)
		}
	}

	logger.InfoContext(ctx, "rebuild completed successfully")
}

func runRebuildAll(ctx context.Context, projectors []appcore.ReadModelProjector, logger *slog.Logger) {
	logger.InfoContext(ctx, "rebuilding all read views")

	for _, proj := range projectors {
		if rebuildErr := proj.RebuildAll(ctx); rebuildErr != nil {
			logger.ErrorContext(ctx, "rebuild all failed", slog.String("error", rebuildErr.Error()))
			os.Exit(1)
		}
	}

	logger.InfoContext(ctx, "rebuild all completed successfully")
}

func runVerifyOne(ctx context.Context, projectors []appcore.ReadModelProjector, idStr string, logger *slog.Logger) {
	id := mustParseID(ctx, idStr, logger)

	logger.InfoContext(ctx, "verifying consistency", slog.String("aggregate_id", id.String()))

	inconsistent := false
	for _, proj := range projectors {
		consistent, verifyErr := proj.VerifyConsistency(ctx, id)
		if verifyErr != nil {
			logger.ErrorContext(ctx, "verification failed", slog.String("error", verifyErr.Error()))
			os.Exit(1)
		}
		if !consistent {
			inconsistent = true
		}
	}

	if inconsistent {
		logger.WarnContext(ctx, "read views are INCONSISTENT - rebuild recommended")
		os.Exit(1)
	}

	logger.InfoContext(ctx, "read views are consistent")
}

func runVerifyAll(
	ctx context.Context,
	eventStore appcore.EventStore,
	projectors []appcore.ReadModelProjector,
	logger *slog.Logger,
) {
	logger.InfoContext(ctx, "verifying all read views")

	ids, err := eventStore.ListAggregateIDs(ctx, orderdomain.AggregateType)
	if err != nil {
		logger.ErrorContext(ctx, "failed to list aggregates", slog.String("error", err.Error()))
		os.Exit(1)
	}

	inconsistentCount := 0
	for _, idStr := range ids {
		id, parseErr := uuid.ParseUUID(idStr)
		if parseErr != nil {
			logger.WarnContext(ctx, "skipping malformed aggregate id", slog.String("id", idStr))
			continue
		}

		for _, proj := range projectors {
			consistent, verifyErr := proj.VerifyConsistency(ctx, id)
			if verifyErr != nil {
				logger.ErrorContext(ctx, "verification failed",
					slog.String("aggregate_id", idStr),
					slog.String("error", verifyErr.Error()))
				os.Exit(1)
			}
			if !consistent {
				inconsistentCount++
				logger.WarnContext(ctx, "inconsistent read view", slog.String("aggregate_id", idStr))
				break
			}
		}
	}

	if inconsistentCount > 0 {
		logger.WarnContext(ctx, "verification finished with inconsistencies",
			slog.Int("total", len(ids)),
			slog.Int("inconsistent", inconsistentCount))
		os.Exit(1)
	}

	logger.InfoContext(ctx, "all read views are consistent", slog.Int("total", len(ids)))
}

func mustParseID(ctx context.Context, idStr string, logger *slog.Logger) uuid.UUID {
	id, parseErr := uuid.ParseUUID(idStr)
	if parseErr != nil {
		logger.ErrorContext(ctx, "invalid aggregate ID",
			slog.String("id", idStr),
			slog.String("error", parseErr.Error()))
		os.Exit(1)
	}
	return id
}
