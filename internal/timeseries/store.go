package timeseries

import (
	"context"
	"fmt"

	"shipping-metrics-api/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoStore struct {
	db *database.DBManager
}

// NewMongoStore adapts the shared DBManager to the executor's Store
// interface.
func NewMongoStore(db *database.DBManager) Store {
	return &mongoStore{db: db}
}

func (s *mongoStore) Find(ctx context.Context, collection string, useTestDB bool, filter bson.M, sort bson.D) ([]bson.M, error) {
	// Large date ranges can exceed the in-memory sort limit.
	opts := options.Find().SetSort(sort).SetAllowDiskUse(true)

	cursor, err := s.db.Database(useTestDB).Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find on %s failed: %w", collection, err)
	}
	defer cursor.Close(ctx)

	var records []bson.M
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("cursor decode on %s failed: %w", collection, err)
	}
	return records, nil
}
