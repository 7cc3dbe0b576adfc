package mongodb

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	orderapp "github.com/orderflow/orderflow/internal/application/order"
	"github.com/orderflow/orderflow/internal/domain/uuid"
)

// MongoOrderReadRepository implements orderapp.ReadRepository over the read
// store collections. The projection engine is the only writer; the query
// service is the only other reader.
type MongoOrderReadRepository struct {
	views     *mongo.Collection
	summaries *mongo.Collection
	logger    *slog.Logger
}

// OrderReadRepoOption configures MongoOrderReadRepository.
type OrderReadRepoOption func(*MongoOrderReadRepository)

// WithOrderReadRepoLogger sets the logger for the read repository.
func WithOrderReadRepoLogger(logger *slog.Logger) OrderReadRepoOption {
	return func(r *MongoOrderReadRepository) {
		r.logger = logger
	}
}

// NewMongoOrderReadRepository creates the MongoDB order read repository.
func NewMongoOrderReadRepository(
	views *mongo.Collection,
	summaries *mongo.Collection,
	opts ...OrderReadRepoOption,
) *MongoOrderReadRepository {
	r := &MongoOrderReadRepository{
		views:     views,
		summaries: summaries,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// GetView returns the order view, tombstoned or not.
func (r *MongoOrderReadRepository) GetView(ctx context.Context, orderID uuid.UUID) (*orderapp.View, error) {
	var view orderapp.View
	err := r.views.FindOne(ctx, bson.M{"_id": orderID.String()}).Decode(&view)
	if err != nil {
		return nil, handleMongoError(err, "order view")
	}

	return &view, nil
}

// FindViews returns the non-tombstoned views matching the criteria, newest
// first.
func (r *MongoOrderReadRepository) FindViews(
	ctx context.Context,
	criteria orderapp.ViewCriteria,
) ([]*orderapp.View, error) {
	filter := bson.M{"deleted": bson.M{"$ne": true}}
	if !criteria.CustomerID.IsZero() {
		filter["customer_id"] = criteria.CustomerID.String()
	}
	if criteria.Status != "" {
		filter["status"] = string(criteria.Status)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(clampLimit(criteria.Limit))).
		SetSkip(int64(criteria.Offset))

	cursor, err := r.views.Find(ctx, filter, opts)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to find order views",
			slog.String("error", err.Error()),
		)
		return nil, handleMongoError(err, "order views")
	}
	defer func() { _ = cursor.Close(ctx) }()

	var views []*orderapp.View
	if err = cursor.All(ctx, &views); err != nil {
		return nil, fmt.Errorf("failed to decode order views: %w", err)
	}

	return views, nil
}

// UpsertView atomically replaces the view.
func (r *MongoOrderReadRepository) UpsertView(ctx context.Context, view *orderapp.View) error {
	filter := bson.M{"_id": view.OrderID.String()}
	opts := options.Replace().SetUpsert(true)

	if _, err := r.views.ReplaceOne(ctx, filter, view, opts); err != nil {
		return handleMongoError(err, "order view")
	}

	return nil
}

// DeleteView removes the view document entirely (rebuild discard path).
func (r *MongoOrderReadRepository) DeleteView(ctx context.Context, orderID uuid.UUID) error {
	if _, err := r.views.DeleteOne(ctx, bson.M{"_id": orderID.String()}); err != nil {
		return handleMongoError(err, "order view")
	}

	return nil
}

// GetSummary returns the customer summary.
func (r *MongoOrderReadRepository) GetSummary(
	ctx context.Context,
	customerID uuid.UUID,
) (*orderapp.CustomerSummary, error) {
	var summary orderapp.CustomerSummary
	err := r.summaries.FindOne(ctx, bson.M{"_id": customerID.String()}).Decode(&summary)
	if err != nil {
		return nil, handleMongoError(err, "customer summary")
	}

	if summary.Orders == nil {
		summary.Orders = make(map[string]orderapp.OrderContribution)
	}

	return &summary, nil
}

// UpsertSummary atomically replaces the customer summary.
func (r *MongoOrderReadRepository) UpsertSummary(ctx context.Context, summary *orderapp.CustomerSummary) error {
	filter := bson.M{"_id": summary.CustomerID.String()}
	opts := options.Replace().SetUpsert(true)

	if _, err := r.summaries.ReplaceOne(ctx, filter, summary, opts); err != nil {
		return handleMongoError(err, "customer summary")
	}

	return nil
}

var _ orderapp.ReadRepository = (*MongoOrderReadRepository)(nil)
