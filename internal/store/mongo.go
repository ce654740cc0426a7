package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ragchat/internal/models"
	"ragchat/internal/storage"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDriver keeps threads embedded in the user document.
type MongoDriver struct {
	client      *mongo.Client
	users       *mongo.Collection
	checkpoints *mongo.Collection
	tokens      *mongo.Collection
}

type checkpointDoc struct {
	ThreadID  string    `bson:"thread_id"`
	UserID    string    `bson:"user_id"`
	State     string    `bson:"state"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type tokenDoc struct {
	Token     string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	CreatedAt time.Time `bson:"created_at"`
	ExpiresAt time.Time `bson:"expires_at"`
}

// NewMongoDriver uses the collections created by storage.MigrateMongo.
func NewMongoDriver(client *mongo.Client, db *mongo.Database) *MongoDriver {
	return &MongoDriver{
		client:      client,
		users:       db.Collection(storage.UsersCollection),
		checkpoints: db.Collection(storage.CheckpointsCollection),
		tokens:      db.Collection(storage.TokensCollection),
	}
}

func (d *MongoDriver) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil || user.ID == "" {
		return errors.New("user id required")
	}
	doc := *user
	if doc.Threads == nil {
		doc.Threads = []models.Thread{}
	}
	if _, err := d.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (d *MongoDriver) UserByID(ctx context.Context, id string) (*models.User, error) {
	return d.findUser(ctx, bson.M{"_id": id})
}

func (d *MongoDriver) UserByLogin(ctx context.Context, login string) (*models.User, error) {
	return d.findUser(ctx, bson.M{"$or": bson.A{
		bson.M{"username": login},
		bson.M{"email": login},
	}})
}

func (d *MongoDriver) findUser(ctx context.Context, filter bson.M) (*models.User, error) {
	var user models.User
	if err := d.users.FindOne(ctx, filter).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

func (d *MongoDriver) InsertThread(ctx context.Context, userID string, thread models.Thread) (bool, error) {
	res, err := d.users.UpdateOne(ctx,
		bson.M{"_id": userID, "threads.thread_id": bson.M{"$ne": thread.ThreadID}},
		bson.M{"$push": bson.M{"threads": thread}},
	)
	if err != nil {
		return false, fmt.Errorf("push thread: %w", err)
	}
	if res.MatchedCount > 0 {
		return true, nil
	}
	n, err := d.users.CountDocuments(ctx, bson.M{"_id": userID})
	if err != nil {
		return false, fmt.Errorf("count user: %w", err)
	}
	if n == 0 {
		return false, ErrNotFound
	}
	return false, nil
}

func (d *MongoDriver) ReplaceHeadline(ctx context.Context, userID, threadID, from, to string) (bool, error) {
	res, err := d.users.UpdateOne(ctx,
		bson.M{
			"_id":     userID,
			"threads": bson.M{"$elemMatch": bson.M{"thread_id": threadID, "headline": from}},
		},
		bson.M{"$set": bson.M{"threads.$.headline": to}},
	)
	if err != nil {
		return false, fmt.Errorf("update headline: %w", err)
	}
	return res.MatchedCount > 0, nil
}

func (d *MongoDriver) DeactivateThread(ctx context.Context, userID, threadID string) (bool, error) {
	res, err := d.users.UpdateOne(ctx,
		bson.M{"_id": userID, "threads.thread_id": threadID},
		bson.M{"$set": bson.M{"threads.$.active": false}},
	)
	if err != nil {
		return false, fmt.Errorf("deactivate thread: %w", err)
	}
	return res.MatchedCount > 0, nil
}

func (d *MongoDriver) Threads(ctx context.Context, userID string) ([]models.Thread, error) {
	var doc struct {
		Threads []models.Thread `bson:"threads"`
	}
	opts := options.FindOne().SetProjection(bson.M{"threads": 1})
	if err := d.users.FindOne(ctx, bson.M{"_id": userID}, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return []models.Thread{}, nil
		}
		return nil, fmt.Errorf("find threads: %w", err)
	}
	if doc.Threads == nil {
		doc.Threads = []models.Thread{}
	}
	return doc.Threads, nil
}

func (d *MongoDriver) Load(ctx context.Context, key models.CheckpointKey) (*models.Checkpoint, error) {
	var doc checkpointDoc
	err := d.checkpoints.FindOne(ctx, bson.M{"thread_id": key.ThreadID, "user_id": key.UserID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("find checkpoint: %w", err)
	}
	var cp models.Checkpoint
	if err := json.Unmarshal([]byte(doc.State), &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	return &cp, nil
}

func (d *MongoDriver) Save(ctx context.Context, key models.CheckpointKey, cp *models.Checkpoint) error {
	if cp == nil {
		return errors.New("checkpoint required")
	}
	cp.ThreadID, cp.UserID = key.ThreadID, key.UserID
	state, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	doc := checkpointDoc{ThreadID: key.ThreadID, UserID: key.UserID, State: string(state), UpdatedAt: cp.Timestamp.UTC()}
	_, err = d.checkpoints.ReplaceOne(ctx,
		bson.M{"thread_id": key.ThreadID, "user_id": key.UserID},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (d *MongoDriver) SaveToken(ctx context.Context, token, userID string, createdAt, expiresAt time.Time) error {
	doc := tokenDoc{Token: token, UserID: userID, CreatedAt: createdAt.UTC(), ExpiresAt: expiresAt.UTC()}
	if _, err := d.tokens.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

func (d *MongoDriver) LookupToken(ctx context.Context, token string) (string, time.Time, error) {
	var doc tokenDoc
	if err := d.tokens.FindOne(ctx, bson.M{"_id": token}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", time.Time{}, ErrNotFound
		}
		return "", time.Time{}, fmt.Errorf("find token: %w", err)
	}
	return doc.UserID, doc.ExpiresAt, nil
}

func (d *MongoDriver) DeleteToken(ctx context.Context, token string) error {
	if _, err := d.tokens.DeleteOne(ctx, bson.M{"_id": token}); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

func (d *MongoDriver) DeleteUserTokens(ctx context.Context, userID string) error {
	if _, err := d.tokens.DeleteMany(ctx, bson.M{"user_id": userID}); err != nil {
		return fmt.Errorf("delete user tokens: %w", err)
	}
	return nil
}

func (d *MongoDriver) Close(ctx context.Context) error {
	if d.client == nil {
		return nil
	}
	return d.client.Disconnect(ctx)
}
