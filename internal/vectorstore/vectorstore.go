// Package vectorstore defines the similarity search backends used for retrieval.
package vectorstore

import "context"

// Point is one indexed passage.
type Point struct {
	ID       string
	Vector   []float32
	Text     string
	Metadata map[string]string
}

// Hit is a search result; Score is the backend's similarity.
type Hit struct {
	ID    string
	Text  string
	Score float32
}

// Store persists vectors and supports similarity search.
// Search returns hits in descending similarity order.
type Store interface {
	EnsureCollection(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, points []Point) error
	Search(ctx context.Context, vector []float32, topK int) ([]Hit, error)
}
