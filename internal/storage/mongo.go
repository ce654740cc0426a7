package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ragchat/internal/config"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	UsersCollection       = "users"
	CheckpointsCollection = "checkpoints"
	TokensCollection      = "user_tokens"
)

// OpenMongo connects to MongoDB and returns the configured database.
func OpenMongo(ctx context.Context, cfg *config.Config) (*mongo.Client, *mongo.Database, error) {
	if cfg == nil || cfg.Mongo.URI == "" {
		return nil, nil, errors.New("mongo uri must be provided")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}
	name := cfg.Mongo.Database
	if name == "" {
		name = "ragchat"
	}
	return client, client.Database(name), nil
}

// MigrateMongo creates the indexes the stores rely on.
func MigrateMongo(ctx context.Context, db *mongo.Database) error {
	users := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			// username is optional, so uniqueness only applies to documents that carry one.
			Keys: bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"username": bson.M{"$type": "string"}}),
		},
	}
	if _, err := db.Collection(UsersCollection).Indexes().CreateMany(ctx, users); err != nil {
		return fmt.Errorf("migrate users indexes: %w", err)
	}

	checkpoints := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "thread_id", Value: 1}, {Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if _, err := db.Collection(CheckpointsCollection).Indexes().CreateMany(ctx, checkpoints); err != nil {
		return fmt.Errorf("migrate checkpoints indexes: %w", err)
	}

	tokens := []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}}},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}
	if _, err := db.Collection(TokensCollection).Indexes().CreateMany(ctx, tokens); err != nil {
		return fmt.Errorf("migrate token indexes: %w", err)
	}
	return nil
}
