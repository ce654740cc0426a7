package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"ragchat/internal/vectorstore"

	chromem "github.com/philippgille/chromem-go"
)

var errNoEmbedder = errors.New("memory store expects precomputed embeddings")

// Storage keeps one chromem-go collection, optionally persisted to disk.
type Storage struct {
	mu   sync.Mutex
	db   *chromem.DB
	name string
	col  *chromem.Collection
}

// NewStorage opens a persistent store when dir is set, otherwise a purely in-memory one.
func NewStorage(dir, collection string) (*Storage, error) {
	var (
		db  *chromem.DB
		err error
	)
	if dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create vectorstore dir: %w", err)
		}
		db, err = chromem.NewPersistentDB(dir, false)
		if err != nil {
			return nil, fmt.Errorf("open vectorstore: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}
	if collection == "" {
		collection = "documents"
	}
	return &Storage{db: db, name: collection}, nil
}

func (s *Storage) collection() (*chromem.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.col != nil {
		return s.col, nil
	}
	col, err := s.db.GetOrCreateCollection(s.name, nil, func(context.Context, string) ([]float32, error) {
		return nil, errNoEmbedder
	})
	if err != nil {
		return nil, fmt.Errorf("open collection %s: %w", s.name, err)
	}
	s.col = col
	return col, nil
}

// EnsureCollection creates the collection; chromem does not fix a dimension up front.
func (s *Storage) EnsureCollection(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	_, err := s.collection()
	return err
}

func (s *Storage) Upsert(ctx context.Context, points []vectorstore.Point) error {
	if len(points) == 0 {
		return nil
	}
	col, err := s.collection()
	if err != nil {
		return err
	}
	docs := make([]chromem.Document, len(points))
	for i, p := range points {
		docs[i] = chromem.Document{
			ID:        p.ID,
			Content:   p.Text,
			Metadata:  p.Metadata,
			Embedding: p.Vector,
		}
	}
	return col.AddDocuments(ctx, docs, 1)
}

func (s *Storage) Search(ctx context.Context, vector []float32, topK int) ([]vectorstore.Hit, error) {
	if topK <= 0 {
		topK = 5
	}
	col, err := s.collection()
	if err != nil {
		return nil, err
	}
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	// chromem rejects nResults above the document count
	if topK > count {
		topK = count
	}
	results, err := col.QueryEmbedding(ctx, vector, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}
	hits := make([]vectorstore.Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, vectorstore.Hit{ID: r.ID, Text: r.Content, Score: r.Similarity})
	}
	return hits, nil
}
