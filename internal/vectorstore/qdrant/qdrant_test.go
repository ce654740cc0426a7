package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"ragchat/internal/vectorstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchSendsQueryAndParsesPoints(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/collections/docs/points/query", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("api-key"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 5, body["limit"])
		assert.Equal(t, []any{"text"}, body["with_payload"])
		assert.Len(t, body["query"], 2)
		_, _ = w.Write([]byte(`{"result":{"points":[
			{"id":"a","score":0.9,"payload":{"text":"first"}},
			{"id":7,"score":0.5,"payload":{"text":"second"}}
		]},"status":"ok"}`))
	}))
	defer srv.Close()

	s := NewStorage(Config{URL: srv.URL + "/", APIKey: "secret", Collection: "docs"})
	hits, err := s.Search(context.Background(), []float32{0.1, 0.2}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "first", hits[0].Text)
	assert.Equal(t, "7", hits[1].ID)
}

func TestSearchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status":{"error":"Not found: Collection"}}`, http.StatusNotFound)
	}))
	defer srv.Close()

	s := NewStorage(Config{URL: srv.URL, Collection: "missing"})
	_, err := s.Search(context.Background(), []float32{1}, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestEnsureCollectionCreatesWhenMissing(t *testing.T) {
	var created map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/collections/docs/exists":
			_, _ = w.Write([]byte(`{"result":{"exists":false}}`))
		case r.Method == http.MethodPut && r.URL.Path == "/collections/docs":
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&created))
			_, _ = w.Write([]byte(`{"result":true}`))
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	s := NewStorage(Config{URL: srv.URL, Collection: "docs"})
	require.NoError(t, s.EnsureCollection(context.Background(), 3))
	vectors := created["vectors"].(map[string]any)
	assert.EqualValues(t, 3, vectors["size"])
	assert.Equal(t, "Cosine", vectors["distance"])

	require.Error(t, s.EnsureCollection(context.Background(), 0))
}

func TestUpsertWaitsAndCarriesText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/collections/docs/points", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("wait"))
		var body struct {
			Points []struct {
				ID      string            `json:"id"`
				Payload map[string]string `json:"payload"`
			} `json:"points"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if assert.Len(t, body.Points, 1) {
			assert.Equal(t, "hello", body.Points[0].Payload["text"])
			assert.Equal(t, "a.txt", body.Points[0].Payload["source"])
		}
		_, _ = w.Write([]byte(`{"result":{"status":"completed"}}`))
	}))
	defer srv.Close()

	s := NewStorage(Config{URL: srv.URL, Collection: "docs"})
	err := s.Upsert(context.Background(), []vectorstore.Point{
		{ID: "5c56c793-69f3-4fbf-87e6-c4bf54c28c26", Vector: []float32{1, 0}, Text: "hello", Metadata: map[string]string{"source": "a.txt"}},
	})
	require.NoError(t, err)
	require.NoError(t, s.Upsert(context.Background(), nil))
}
