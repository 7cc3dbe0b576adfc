// Package deadletter provides stores for events the projection engine
// could not apply.
package deadletter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/orderflow/orderflow/internal/application/appcore"
)

const defaultListLimit = 100

// letterDocument is the MongoDB document shape for a dead letter.
type letterDocument struct {
	ID            string    `bson:"_id"`
	AggregateID   string    `bson:"aggregate_id"`
	AggregateType string    `bson:"aggregate_type"`
	EventType     string    `bson:"event_type"`
	Sequence      int       `bson:"sequence"`
	Payload       []byte    `bson:"payload,omitempty"`
	Reason        string    `bson:"reason"`
	FailedAt      time.Time `bson:"failed_at"`
	Attempts      int       `bson:"attempts"`
}

// MongoStore implements appcore.DeadLetterStore using MongoDB.
type MongoStore struct {
	collection *mongo.Collection
	logger     *slog.Logger
}

// Option configures a MongoStore.
type Option func(*MongoStore)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *MongoStore) {
		s.logger = logger
	}
}

// NewMongoStore creates a dead letter store over the given collection.
func NewMongoStore(collection *mongo.Collection, opts ...Option) *MongoStore {
	s := &MongoStore{
		collection: collection,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Add records a dead letter.
func (s *MongoStore) Add(ctx context.Context, letter appcore.DeadLetter) error {
	doc := letterDocument{
		ID:            letter.ID,
		AggregateID:   letter.AggregateID,
		AggregateType: letter.AggregateType,
		EventType:     letter.EventType,
		Sequence:      letter.Sequence,
		Payload:       letter.Payload,
		Reason:        letter.Reason,
		FailedAt:      letter.FailedAt,
		Attempts:      letter.Attempts,
	}

	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert dead letter: %w", err)
	}

	s.logger.WarnContext(ctx, "dead letter recorded",
		slog.String("aggregate_id", letter.AggregateID),
		slog.String("event_type", letter.EventType),
		slog.Int("sequence", letter.Sequence),
	)

	return nil
}

// List returns dead letters, newest first, up to limit.
func (s *MongoStore) List(ctx context.Context, limit int) ([]appcore.DeadLetter, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "failed_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := s.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find dead letters: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var docs []letterDocument
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode dead letters: %w", err)
	}

	letters := make([]appcore.DeadLetter, 0, len(docs))
	for _, doc := range docs {
		letters = append(letters, documentToLetter(doc))
	}

	return letters, nil
}

// ListAggregateIDs returns the distinct aggregate ids with dead letters.
func (s *MongoStore) ListAggregateIDs(ctx context.Context) ([]string, error) {
	result := s.collection.Distinct(ctx, "aggregate_id", bson.M{})

	var ids []string
	if err := result.Decode(&ids); err != nil {
		return nil, fmt.Errorf("failed to decode aggregate ids: %w", err)
	}

	return ids, nil
}

// Remove deletes the dead letters for one aggregate.
func (s *MongoStore) Remove(ctx context.Context, aggregateID string) error {
	result, err := s.collection.DeleteMany(ctx, bson.M{"aggregate_id": aggregateID})
	if err != nil {
		return fmt.Errorf("failed to remove dead letters: %w", err)
	}

	if result.DeletedCount > 0 {
		s.logger.InfoContext(ctx, "dead letters removed",
			slog.String("aggregate_id", aggregateID),
			slog.Int64("count", result.DeletedCount),
		)
	}

	return nil
}

// Count returns the number of stored dead letters.
func (s *MongoStore) Count(ctx context.Context) (int64, error) {
	count, err := s.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count dead letters: %w", err)
	}
	return count, nil
}

func documentToLetter(doc letterDocument) appcore.DeadLetter {
	return appcore.DeadLetter{
		ID:            doc.ID,
		AggregateID:   doc.AggregateID,
		AggregateType: doc.AggregateType,
		EventType:     doc.EventType,
		Sequence:      doc.Sequence,
		Payload:       doc.Payload,
		Reason:        doc.Reason,
		FailedAt:      doc.FailedAt,
		Attempts:      doc.Attempts,
	}
}

var _ appcore.DeadLetterStore = (*MongoStore)(nil)
