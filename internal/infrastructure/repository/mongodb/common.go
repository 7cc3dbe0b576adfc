// Package mongodb implements the application repositories over MongoDB.
package mongodb

import (
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/orderflow/orderflow/internal/application/appcore"
)

// Pagination bounds for list queries.
const (
	DefaultPaginationLimit = 50
	MaxPaginationLimit     = 100
)

// handleMongoError maps a MongoDB error into the application taxonomy.
func handleMongoError(err error, resourceType string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, mongo.ErrNoDocuments) {
		return appcore.ErrNotFound
	}

	return fmt.Errorf("failed to operate on %s: %w", resourceType, err)
}

// clampLimit applies the default and maximum pagination limits.
func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultPaginationLimit
	}
	if limit > MaxPaginationLimit {
		return MaxPaginationLimit
	}
	return limit
}
