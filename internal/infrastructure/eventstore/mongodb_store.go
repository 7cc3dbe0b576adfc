// Package eventstore provides write-store implementations backed by MongoDB
// and, for tests, by memory.
package eventstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/orderflow/orderflow/internal/application/appcore"
	"github.com/orderflow/orderflow/internal/domain/event"
)

// MongoEventStore implements appcore.EventStore using MongoDB. A unique
// index on (aggregate_id, sequence) backs the optimistic concurrency check:
// two writers racing on the same base version cannot both insert.
type MongoEventStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	serializer *EventSerializer
	logger     *slog.Logger
}

// Option configures MongoEventStore.
type Option func(*MongoEventStore)

// WithLogger sets the logger for the event store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *MongoEventStore) {
		s.logger = logger
	}
}

// NewMongoEventStore creates a MongoDB event store over the given collection.
func NewMongoEventStore(client *mongo.Client, collection *mongo.Collection, opts ...Option) *MongoEventStore {
	s := &MongoEventStore{
		client:     client,
		collection: collection,
		serializer: NewEventSerializer(),
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// SaveEvents appends events for an aggregate under optimistic locking.
// When the context already carries a MongoDB session the append joins that
// session's transaction, so a caller can commit events and outbox entries
// atomically.
func (s *MongoEventStore) SaveEvents(
	ctx context.Context,
	aggregateID string,
	events []event.DomainEvent,
	expectedVersion int,
) error {
	if len(events) == 0 {
		return nil
	}

	if mongo.SessionFromContext(ctx) != nil {
		return s.appendEvents(ctx, aggregateID, events, expectedVersion)
	}

	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(txCtx context.Context) (any, error) {
		return nil, s.appendEvents(txCtx, aggregateID, events, expectedVersion)
	})

	if err != nil && !errors.Is(err, appcore.ErrConcurrencyConflict) {
		s.logger.ErrorContext(ctx, "event store transaction failed",
			slog.String("aggregate_id", aggregateID),
			slog.Int("events_count", len(events)),
			slog.String("error", err.Error()),
		)
	}

	return err
}

// appendEvents runs the version check and insert inside the caller's
// transaction context.
func (s *MongoEventStore) appendEvents(
	ctx context.Context,
	aggregateID string,
	events []event.DomainEvent,
	expectedVersion int,
) error {
	currentVersion, err := s.GetVersion(ctx, aggregateID)
	if err != nil {
		return err
	}

	if currentVersion != expectedVersion {
		s.logger.WarnContext(ctx, "concurrency conflict in event store",
			slog.String("aggregate_id", aggregateID),
			slog.Int("expected_version", expectedVersion),
			slog.Int("current_version", currentVersion),
		)
		return appcore.ErrConcurrencyConflict
	}

	documents, err := s.serializer.SerializeMany(events)
	if err != nil {
		return err
	}

	docs := make([]any, len(documents))
	for i, doc := range documents {
		docs[i] = doc
	}

	if _, err = s.collection.InsertMany(ctx, docs); err != nil {
		// A duplicate (aggregate_id, sequence) means a concurrent writer
		// won the race between our version read and insert.
		if mongo.IsDuplicateKeyError(err) {
			return appcore.ErrConcurrencyConflict
		}
		return fmt.Errorf("failed to insert events: %w", err)
	}

	return nil
}

// LoadEvents loads all events for an aggregate in sequence order.
func (s *MongoEventStore) LoadEvents(ctx context.Context, aggregateID string) ([]event.DomainEvent, error) {
	filter := bson.M{"aggregate_id": aggregateID}
	opts := options.Find().SetSort(bson.D{{Key: "sequence", Value: 1}})

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find events: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []*EventDocument
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}

	if len(docs) == 0 {
		return nil, appcore.ErrAggregateNotFound
	}

	events := make([]event.DomainEvent, 0, len(docs))
	for i, doc := range docs {
		e, deserializeErr := s.serializer.Deserialize(doc)
		if deserializeErr != nil {
			return nil, fmt.Errorf("failed to deserialize event at index %d: %w", i, deserializeErr)
		}
		events = append(events, e)
	}

	return events, nil
}

// GetVersion returns the current version of an aggregate, 0 if absent.
func (s *MongoEventStore) GetVersion(ctx context.Context, aggregateID string) (int, error) {
	filter := bson.M{"aggregate_id": aggregateID}
	opts := options.FindOne().SetSort(bson.D{{Key: "sequence", Value: -1}})

	var doc EventDocument
	err := s.collection.FindOne(ctx, filter, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}

	return doc.Sequence, nil
}

// ListAggregateIDs returns the distinct aggregate ids of the given type.
func (s *MongoEventStore) ListAggregateIDs(ctx context.Context, aggregateType string) ([]string, error) {
	result := s.collection.Distinct(ctx, "aggregate_id", bson.M{"aggregate_type": aggregateType})
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to list aggregate ids: %w", err)
	}

	var ids []string
	if err := result.Decode(&ids); err != nil {
		return nil, fmt.Errorf("failed to decode aggregate ids: %w", err)
	}

	return ids, nil
}
