package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"telegram-translator/internal/database/models"
)

const (
	processedCollectionName = "processed_posts"
	relayLogCollectionName  = "relay_logs"
)

// MongoStore implements Store on MongoDB.
type MongoStore struct {
	processed *mongo.Collection
	relayLogs *mongo.Collection
}

// NewMongoStore creates a new MongoDB-backed ledger.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		processed: db.Collection(processedCollectionName),
		relayLogs: db.Collection(relayLogCollectionName),
	}
}

// EnsureIndexes creates the unique (channel, post_id) index and the processed_at index used by pruning.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.processed.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "channel", Value: 1}, {Key: "post_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "processed_at", Value: 1}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create ledger indexes: %w", err)
	}
	return nil
}

// Exists reports whether (channel, postID) is in the ledger.
func (s *MongoStore) Exists(ctx context.Context, channel, postID string) (bool, error) {
	filter := bson.M{"channel": channel, "post_id": postID}
	err := s.processed.FindOne(ctx, filter).Err()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, fmt.Errorf("failed to look up %s/%s: %w", channel, postID, err)
	}
	return true, nil
}

// Insert records (channel, postID) with an upsert that never overwrites an existing row.
func (s *MongoStore) Insert(ctx context.Context, channel, postID string, at time.Time) error {
	filter := bson.M{"channel": channel, "post_id": postID}
	update := bson.M{
		"$setOnInsert": bson.M{
			"channel":      channel,
			"post_id":      postID,
			"processed_at": at.UTC(),
		},
	}
	_, err := s.processed.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		// Two concurrent upserts on the same key race on the unique index; the loser is a no-op.
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("failed to insert %s/%s: %w", channel, postID, err)
	}
	return nil
}

// DeleteOlderThan removes ledger documents processed before cutoff.
func (s *MongoStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.processed.DeleteMany(ctx, bson.M{"processed_at": bson.M{"$lt": cutoff.UTC()}})
	if err != nil {
		return 0, fmt.Errorf("failed to prune ledger: %w", err)
	}
	return res.DeletedCount, nil
}

// LogRelayedPost writes a relay log entry.
func (s *MongoStore) LogRelayedPost(ctx context.Context, entry models.RelayLog) error {
	if _, err := s.relayLogs.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("failed to insert relay log into collection '%s': %w", relayLogCollectionName, err)
	}
	return nil
}

// Close disconnects the client owning this database.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.processed.Database().Client().Disconnect(ctx)
}
