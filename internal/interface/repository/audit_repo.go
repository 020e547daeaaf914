package repository

import (
	"context"
	"time"

	"cruisesync-service/internal/domain/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoAuditRepository implements the AuditRepository interface, keeping the
// last raw provider document per archive path for manual triage
type MongoAuditRepository struct {
	collection *mongo.Collection
}

// NewMongoAuditRepository creates a new raw document audit repository
func NewMongoAuditRepository(db *mongo.Database) repository.AuditRepository {
	collection := db.Collection("raw_sailings")

	// Create unique index on path
	ctx := context.Background()
	indexModel := mongo.IndexModel{
		Keys:    bson.M{"path": 1},
		Options: options.Index().SetUnique(true),
	}
	collection.Indexes().CreateOne(ctx, indexModel)

	return &MongoAuditRepository{
		collection: collection,
	}
}

// SaveRaw upserts the raw bytes for one archive path
func (r *MongoAuditRepository) SaveRaw(ctx context.Context, path string, raw []byte) error {
	updateDoc := bson.M{
		"path":      path,
		"size":      len(raw),
		"raw":       raw,
		"fetchedAt": time.Now().UTC(),
	}

	opts := options.Update().SetUpsert(true)
	filter := bson.M{"path": path}

	_, err := r.collection.UpdateOne(
		ctx,
		filter,
		bson.M{"$set": updateDoc},
		opts,
	)
	return err
}
