package rag

import (
	"context"
	"strings"

	"ragchat/internal/vectorstore"

	"go.uber.org/zap"
)

const defaultTopK = 5

// QueryEmbedder embeds search queries.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever looks up the passages most similar to a query.
type Retriever struct {
	embedder QueryEmbedder
	store    vectorstore.Store
	topK     int
	logger   *zap.Logger
}

func NewRetriever(embedder QueryEmbedder, store vectorstore.Store, topK int, logger *zap.Logger) *Retriever {
	if topK <= 0 {
		topK = defaultTopK
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{embedder: embedder, store: store, topK: topK, logger: logger}
}

// Retrieve returns passage texts, most similar first. Failures yield nil.
func (r *Retriever) Retrieve(ctx context.Context, query string) []string {
	query = strings.ReplaceAll(query, "\n", " ")
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		r.logger.Error("embed query", zap.Error(err))
		return nil
	}
	hits, err := r.store.Search(ctx, vector, r.topK)
	if err != nil {
		r.logger.Error("search documents", zap.Int("top_k", r.topK), zap.Error(err))
		return nil
	}
	passages := make([]string, 0, len(hits))
	for _, h := range hits {
		passages = append(passages, h.Text)
	}
	r.logger.Debug("retrieved documents", zap.Int("count", len(passages)))
	return passages
}
