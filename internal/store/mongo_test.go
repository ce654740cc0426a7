package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"ragchat/internal/config"
	"ragchat/internal/models"
	"ragchat/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMongoStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set")
	}
	ctx := context.Background()
	cfg := &config.Config{Mongo: config.MongoConfig{URI: uri, Database: fmt.Sprintf("ragchat_test_%d", time.Now().UnixNano())}}
	client, db, err := storage.OpenMongo(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, storage.MigrateMongo(ctx, db))
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})
	return New(NewMongoDriver(client, db))
}

func TestMongoThreadLifecycle(t *testing.T) {
	s := newMongoStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, &models.User{ID: "u1", Email: "a@example.com", PasswordHash: "h", CreatedAt: time.Now().UTC()}))
	require.NoError(t, s.CreateUser(ctx, &models.User{ID: "u2", Email: "b@example.com", PasswordHash: "h", CreatedAt: time.Now().UTC()}))
	assert.ErrorIs(t, s.CreateUser(ctx, &models.User{ID: "u3", Email: "a@example.com"}), ErrDuplicate)

	for i := 0; i < 2; i++ {
		ok, err := s.EnsureThread(ctx, "t1", "u1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := s.EnsureThread(ctx, "t1", "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	user, err := s.UserByID(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, user.Threads, 1)

	ok, err = s.SetHeadlineOnce(ctx, "t1", "u1", "First")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.SetHeadlineOnce(ctx, "t1", "u1", "Second")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Deactivate(ctx, "nope", "u1")
	require.NoError(t, err)
	assert.False(t, ok)
	list, err := s.ListActive(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "First", list[0].Headline)

	ok, err = s.Deactivate(ctx, "t1", "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	list, err = s.ListActive(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMongoCheckpoints(t *testing.T) {
	s := newMongoStore(t)
	ctx := context.Background()
	key := models.CheckpointKey{ThreadID: "t1", UserID: "u1"}

	cp, err := s.Load(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, cp)

	require.NoError(t, s.Save(ctx, key, &models.Checkpoint{
		Messages: []models.Message{
			{Role: models.RoleUser, Content: models.TextContent("q")},
			{Role: models.RoleAssistant, Content: models.TextContent("a")},
		},
		Timestamp: time.Now().UTC(),
	}))
	history, err := s.LoadHistory(ctx, "t1", "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"q"}, history.Questions)
	assert.Equal(t, []string{"a"}, history.Generations)
}
