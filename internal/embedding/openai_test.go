package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"ragchat/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

func newEmbeddingServer(t *testing.T, status int, seen *embeddingRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			return
		}
		// reversed on purpose
		data := make([]map[string]any, 0, len(seen.Input))
		for i := len(seen.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{"object": "embedding", "index": i, "embedding": []float32{float32(i), 0.5}})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "model": seen.Model, "data": data})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEmbedReplacesNewlines(t *testing.T) {
	var seen embeddingRequest
	srv := newEmbeddingServer(t, http.StatusOK, &seen)
	emb := NewOpenAI(config.EmbeddingConfig{BaseURL: srv.URL, APIKey: "sk-test", Model: "text-embedding-3-small"})

	vec, err := emb.Embed(context.Background(), "What is\nLangChain?")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0.5}, vec)
	assert.Equal(t, []string{"What is LangChain?"}, seen.Input)
	assert.Equal(t, "text-embedding-3-small", seen.Model)
}

func TestEmbedBatchKeepsOrder(t *testing.T) {
	var seen embeddingRequest
	srv := newEmbeddingServer(t, http.StatusOK, &seen)
	emb := NewOpenAI(config.EmbeddingConfig{BaseURL: srv.URL, APIKey: "sk-test", Model: "m"})

	vecs, err := emb.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for i, v := range vecs {
		assert.Equal(t, float32(i), v[0])
	}
}

func TestEmbedError(t *testing.T) {
	var seen embeddingRequest
	srv := newEmbeddingServer(t, http.StatusInternalServerError, &seen)
	emb := NewOpenAI(config.EmbeddingConfig{BaseURL: srv.URL, APIKey: "sk-test", Model: "m"})

	_, err := emb.Embed(context.Background(), "q")
	require.Error(t, err)
	_, err = emb.EmbedBatch(context.Background(), nil)
	require.Error(t, err)
}
