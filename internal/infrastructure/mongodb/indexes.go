// Package mongodb provides MongoDB infrastructure components including index management.
package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Collection names as constants for consistency.
const (
	CollectionEvents            = "events"
	CollectionOutbox            = "outbox"
	CollectionOrderViews        = "order_views"
	CollectionCustomerSummaries = "customer_summaries"
	CollectionDeadLetters       = "projection_dead_letters"
	CollectionRepairQueue       = "repair_queue"
)

// IndexDefinition describes a MongoDB index to be created.
type IndexDefinition struct {
	Collection string
	Keys       bson.D
	Options    *options.IndexOptionsBuilder
}

// CreateAllIndexes creates all necessary indexes for the application.
// This function is idempotent - calling it multiple times is safe.
func CreateAllIndexes(ctx context.Context, db *mongo.Database) error {
	for _, idx := range GetAllIndexDefinitions() {
		coll := db.Collection(idx.Collection)
		model := mongo.IndexModel{
			Keys:    idx.Keys,
			Options: idx.Options,
		}

		if _, err := coll.Indexes().CreateOne(ctx, model); err != nil {
			return fmt.Errorf("failed to create index on collection %s: %w", idx.Collection, err)
		}
	}

	return nil
}

// GetAllIndexDefinitions returns all index definitions for all collections.
func GetAllIndexDefinitions() []IndexDefinition {
	var indexes []IndexDefinition

	indexes = append(indexes, GetEventIndexes()...)
	indexes = append(indexes, GetOutboxIndexes()...)
	indexes = append(indexes, GetOrderViewIndexes()...)
	indexes = append(indexes, GetDeadLetterIndexes()...)
	indexes = append(indexes, GetRepairQueueIndexes()...)

	return indexes
}

// GetEventIndexes returns index definitions for the events collection.
func GetEventIndexes() []IndexDefinition {
	return []IndexDefinition{
		{
			// Unique index backing optimistic locking - two writers racing
			// on the same base version cannot both insert.
			Collection: CollectionEvents,
			Keys:       bson.D{{Key: "aggregate_id", Value: 1}, {Key: "sequence", Value: 1}},
			Options:    options.Index().SetUnique(true).SetName("idx_events_aggregate_sequence_unique"),
		},
		{
			Collection: CollectionEvents,
			Keys:       bson.D{{Key: "event_type", Value: 1}, {Key: "occurred_at", Value: -1}},
			Options:    options.Index().SetName("idx_events_type_time"),
		},
		{
			// Supports listing aggregates by type for rebuilds.
			Collection: CollectionEvents,
			Keys:       bson.D{{Key: "aggregate_type", Value: 1}, {Key: "aggregate_id", Value: 1}},
			Options:    options.Index().SetName("idx_events_aggregate_type_id"),
		},
	}
}

// GetOutboxIndexes returns index definitions for the outbox collection.
func GetOutboxIndexes() []IndexDefinition {
	return []IndexDefinition{
		{
			// Poll scans unprocessed entries oldest first.
			Collection: CollectionOutbox,
			Keys:       bson.D{{Key: "processed_at", Value: 1}, {Key: "created_at", Value: 1}},
			Options:    options.Index().SetName("idx_outbox_unprocessed_created"),
		},
		{
			// Cleanup removes old processed entries.
			Collection: CollectionOutbox,
			Keys:       bson.D{{Key: "processed_at", Value: 1}},
			Options: options.Index().
				SetName("idx_outbox_processed").
				SetPartialFilterExpression(bson.D{{Key: "processed_at", Value: bson.D{{Key: "$type", Value: "date"}}}}),
		},
	}
}

// GetOrderViewIndexes returns index definitions for the read store.
func GetOrderViewIndexes() []IndexDefinition {
	return []IndexDefinition{
		{
			// List queries filter by customer and sort by creation time.
			Collection: CollectionOrderViews,
			Keys:       bson.D{{Key: "customer_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options:    options.Index().SetName("idx_order_views_customer_time"),
		},
		{
			Collection: CollectionOrderViews,
			Keys:       bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}},
			Options:    options.Index().SetName("idx_order_views_status_time"),
		},
	}
}

// GetDeadLetterIndexes returns index definitions for the dead letter store.
func GetDeadLetterIndexes() []IndexDefinition {
	return []IndexDefinition{
		{
			Collection: CollectionDeadLetters,
			Keys:       bson.D{{Key: "aggregate_id", Value: 1}, {Key: "sequence", Value: 1}},
			Options:    options.Index().SetName("idx_dead_letters_aggregate_sequence"),
		},
		{
			Collection: CollectionDeadLetters,
			Keys:       bson.D{{Key: "failed_at", Value: -1}},
			Options:    options.Index().SetName("idx_dead_letters_failed_at"),
		},
	}
}

// GetRepairQueueIndexes returns index definitions for the repair queue.
func GetRepairQueueIndexes() []IndexDefinition {
	return []IndexDefinition{
		{
			// One pending repair request per aggregate.
			Collection: CollectionRepairQueue,
			Keys:       bson.D{{Key: "aggregate_id", Value: 1}, {Key: "status", Value: 1}},
			Options:    options.Index().SetName("idx_repair_queue_aggregate_status"),
		},
		{
			Collection: CollectionRepairQueue,
			Keys:       bson.D{{Key: "status", Value: 1}, {Key: "requested_at", Value: 1}},
			Options:    options.Index().SetName("idx_repair_queue_status_time"),
		},
	}
}
