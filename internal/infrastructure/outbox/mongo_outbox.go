// Package outbox provides the transactional outbox used as the durable
// delivery channel between the command side and the projection engine.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/orderflow/orderflow/internal/application/appcore"
	"github.com/orderflow/orderflow/internal/domain/event"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const defaultPollBatchSize = 100

// outboxDocument is the MongoDB document shape for outbox entries.
type outboxDocument struct {
	ID            string         `bson:"_id"`
	EventType     string         `bson:"event_type"`
	AggregateID   string         `bson:"aggregate_id"`
	AggregateType string         `bson:"aggregate_type"`
	Sequence      int            `bson:"sequence"`
	Payload       []byte         `bson:"payload"`
	Metadata      event.Metadata `bson:"metadata"`
	OccurredAt    time.Time      `bson:"occurred_at"`
	CreatedAt     time.Time      `bson:"created_at"`
	ProcessedAt   *time.Time     `bson:"processed_at,omitempty"`
	RetryCount    int            `bson:"retry_count"`
	LastError     string         `bson:"last_error,omitempty"`
}

// MongoOutbox implements appcore.Outbox using MongoDB. Entries written in
// the same session transaction as the event-store insert survive a crash
// between commit and delivery.
type MongoOutbox struct {
	collection *mongo.Collection
	logger     *slog.Logger
}

// Option configures MongoOutbox.
type Option func(*MongoOutbox)

// WithLogger sets the logger for the outbox.
func WithLogger(logger *slog.Logger) Option {
	return func(o *MongoOutbox) {
		o.logger = logger
	}
}

// NewMongoOutbox creates a MongoDB-backed outbox.
func NewMongoOutbox(collection *mongo.Collection, opts ...Option) *MongoOutbox {
	o := &MongoOutbox{
		collection: collection,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Add inserts an event into the outbox.
func (o *MongoOutbox) Add(ctx context.Context, evt event.DomainEvent) error {
	if evt == nil {
		return errors.New("event cannot be nil")
	}

	doc, err := eventToDocument(evt)
	if err != nil {
		return fmt.Errorf("failed to convert event to document: %w", err)
	}

	if _, err = o.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert event into outbox: %w", err)
	}

	o.logger.DebugContext(ctx, "event added to outbox",
		slog.String("entry_id", doc.ID),
		slog.String("event_type", evt.EventType()),
		slog.String("aggregate_id", evt.AggregateID()),
	)

	return nil
}

// AddBatch inserts multiple events into the outbox atomically.
func (o *MongoOutbox) AddBatch(ctx context.Context, events []event.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}

	docs := make([]any, len(events))
	for i, evt := range events {
		if evt == nil {
			return fmt.Errorf("event at index %d cannot be nil", i)
		}

		doc, err := eventToDocument(evt)
		if err != nil {
			return fmt.Errorf("failed to convert event at index %d: %w", i, err)
		}
		docs[i] = doc
	}

	if _, err := o.collection.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to insert events batch into outbox: %w", err)
	}

	return nil
}

// Poll retrieves unprocessed entries up to batchSize, oldest first. The
// insertion order preserves per-aggregate commit order.
func (o *MongoOutbox) Poll(ctx context.Context, batchSize int) ([]appcore.OutboxEntry, error) {
	if batchSize <= 0 {
		batchSize = defaultPollBatchSize
	}

	filter := bson.M{"processed_at": nil}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "sequence", Value: 1}}).
		SetLimit(int64(batchSize))

	cursor, err := o.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to poll outbox: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []outboxDocument
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode outbox entries: %w", err)
	}

	entries := make([]appcore.OutboxEntry, len(docs))
	for i, doc := range docs {
		entries[i] = documentToEntry(doc)
	}

	return entries, nil
}

// MarkProcessed marks an entry as successfully published.
func (o *MongoOutbox) MarkProcessed(ctx context.Context, entryID string) error {
	now := time.Now()
	update := bson.M{"$set": bson.M{"processed_at": now}}

	result, err := o.collection.UpdateOne(ctx, bson.M{"_id": entryID}, update)
	if err != nil {
		return fmt.Errorf("failed to mark entry as processed: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("outbox entry %s not found", entryID)
	}

	return nil
}

// MarkFailed records a publishing failure for retry.
func (o *MongoOutbox) MarkFailed(ctx context.Context, entryID string, failure error) error {
	update := bson.M{
		"$inc": bson.M{"retry_count": 1},
		"$set": bson.M{"last_error": failure.Error()},
	}

	result, err := o.collection.UpdateOne(ctx, bson.M{"_id": entryID}, update)
	if err != nil {
		return fmt.Errorf("failed to mark entry as failed: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("outbox entry %s not found", entryID)
	}

	return nil
}

// Cleanup removes processed entries older than the given duration.
func (o *MongoOutbox) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	filter := bson.M{
		"processed_at": bson.M{"$ne": nil, "$lt": cutoff},
	}

	result, err := o.collection.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup outbox: %w", err)
	}

	return result.DeletedCount, nil
}

// Count returns the number of unprocessed entries.
func (o *MongoOutbox) Count(ctx context.Context) (int64, error) {
	count, err := o.collection.CountDocuments(ctx, bson.M{"processed_at": nil})
	if err != nil {
		return 0, fmt.Errorf("failed to count outbox entries: %w", err)
	}

	return count, nil
}

// Stats returns the unprocessed count and the oldest entry timestamp.
func (o *MongoOutbox) Stats(ctx context.Context) (int64, time.Time, error) {
	count, err := o.Count(ctx)
	if err != nil {
		return 0, time.Time{}, err
	}
	if count == 0 {
		return 0, time.Time{}, nil
	}

	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: 1}})
	var doc outboxDocument
	err = o.collection.FindOne(ctx, bson.M{"processed_at": nil}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return count, time.Time{}, nil
		}
		return 0, time.Time{}, fmt.Errorf("failed to find oldest outbox entry: %w", err)
	}

	return count, doc.CreatedAt, nil
}

// eventToDocument serializes a domain event into an outbox document.
func eventToDocument(evt event.DomainEvent) (*outboxDocument, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	return &outboxDocument{
		ID:            uuid.New().String(),
		EventType:     evt.EventType(),
		AggregateID:   evt.AggregateID(),
		AggregateType: evt.AggregateType(),
		Sequence:      evt.Sequence(),
		Payload:       payload,
		Metadata:      evt.Metadata(),
		OccurredAt:    evt.OccurredAt(),
		CreatedAt:     time.Now(),
	}, nil
}

// documentToEntry converts a stored document to an application entry.
func documentToEntry(doc outboxDocument) appcore.OutboxEntry {
	return appcore.OutboxEntry{
		ID:            doc.ID,
		EventType:     doc.EventType,
		AggregateID:   doc.AggregateID,
		AggregateType: doc.AggregateType,
		Sequence:      doc.Sequence,
		Payload:       doc.Payload,
		Metadata:      doc.Metadata,
		OccurredAt:    doc.OccurredAt,
		CreatedAt:     doc.CreatedAt,
		ProcessedAt:   doc.ProcessedAt,
		RetryCount:    doc.RetryCount,
		LastError:     doc.LastError,
	}
}
