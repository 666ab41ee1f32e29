package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"docgen/internal/domain/repository"
	"docgen/internal/infrastructure/metrics"
)

// MongoTargetRepo resolves targets against the collection owned by the task service.
type MongoTargetRepo struct {
	col *mongo.Collection
}

func NewMongoTargetRepo(db *mongo.Database, collection string) repository.TargetRepository {
	if collection == "" {
		collection = "tasks"
	}
	return &MongoTargetRepo{
		col: db.Collection(collection),
	}
}

func (r *MongoTargetRepo) Exists(ctx context.Context, targetID string) (bool, error) {
	metrics.IncStoreOp("mongo", "exists")

	filter := bson.M{"id": targetID, "deleted_at": bson.M{"$exists": false}}
	count, err := r.col.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		metrics.IncError("mongo_target_repo", "exists_error")
		return false, fmt.Errorf("lookup target %s: %w", targetID, err)
	}
	return count > 0, nil
}
