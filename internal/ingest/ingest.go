// Package ingest loads documents from disk, splits them into passages and
// indexes them in the vector store used for retrieval.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cloudwego/eino-ext/components/document/loader/file"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/components/document/parser"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"ragchat/internal/vectorstore"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 100
	DefaultBatchSize    = 64
)

// Embedder turns passages into vectors, one per input in order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Options control chunking and batching. Zero values use the defaults.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
	BatchSize    int
}

// Stats summarizes an ingestion run.
type Stats struct {
	Files  int
	Chunks int
}

type Ingester struct {
	loader   document.Loader
	embedder Embedder
	store    vectorstore.Store
	opts     Options
	logger   *zap.Logger

	ensured bool
}

// NewIngester builds an ingester reading local files through the eino file loader.
func NewIngester(ctx context.Context, embedder Embedder, store vectorstore.Store, logger *zap.Logger, opts Options) (*Ingester, error) {
	extParser, err := parser.NewExtParser(ctx, &parser.ExtParserConfig{
		FallbackParser: parser.TextParser{},
	})
	if err != nil {
		return nil, fmt.Errorf("init parser: %w", err)
	}
	loader, err := file.NewFileLoader(ctx, &file.FileLoaderConfig{
		UseNameAsID: true,
		Parser:      extParser,
	})
	if err != nil {
		return nil, fmt.Errorf("init file loader: %w", err)
	}
	return newIngester(loader, embedder, store, logger, opts), nil
}

func newIngester(loader document.Loader, embedder Embedder, store vectorstore.Store, logger *zap.Logger, opts Options) *Ingester {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = 0
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingester{loader: loader, embedder: embedder, store: store, opts: opts, logger: logger}
}

// Ingest indexes every regular file under paths. Directories are walked recursively.
func (in *Ingester) Ingest(ctx context.Context, paths []string) (Stats, error) {
	var stats Stats
	files, err := expand(paths)
	if err != nil {
		return stats, err
	}
	if len(files) == 0 {
		return stats, errors.New("no files to ingest")
	}
	for _, path := range files {
		n, err := in.ingestFile(ctx, path)
		if err != nil {
			return stats, fmt.Errorf("ingest %s: %w", path, err)
		}
		stats.Files++
		stats.Chunks += n
		in.logger.Info("file ingested", zap.String("path", path), zap.Int("chunks", n))
	}
	return stats, nil
}

func (in *Ingester) ingestFile(ctx context.Context, path string) (int, error) {
	docs, err := in.loader.Load(ctx, document.Source{URI: path})
	if err != nil {
		return 0, fmt.Errorf("load file: %w", err)
	}
	var builder strings.Builder
	for _, doc := range docs {
		content := strings.TrimSpace(doc.Content)
		if content == "" {
			continue
		}
		builder.WriteString(content)
		builder.WriteString("\n\n")
	}
	chunks := Chunk(strings.TrimSpace(builder.String()), in.opts.ChunkSize, in.opts.ChunkOverlap)
	if len(chunks) == 0 {
		in.logger.Warn("file has no readable text", zap.String("path", path))
		return 0, nil
	}

	for start := 0; start < len(chunks); start += in.opts.BatchSize {
		end := min(start+in.opts.BatchSize, len(chunks))
		batch := chunks[start:end]
		vectors, err := in.embedder.EmbedBatch(ctx, batch)
		if err != nil {
			return 0, fmt.Errorf("embed chunks: %w", err)
		}
		if len(vectors) != len(batch) {
			return 0, fmt.Errorf("expected %d vectors, got %d", len(batch), len(vectors))
		}
		if !in.ensured {
			if err := in.store.EnsureCollection(ctx, len(vectors[0])); err != nil {
				return 0, fmt.Errorf("ensure collection: %w", err)
			}
			in.ensured = true
		}
		points := make([]vectorstore.Point, len(batch))
		for i, text := range batch {
			points[i] = vectorstore.Point{
				ID:     uuid.NewString(),
				Vector: vectors[i],
				Text:   text,
				Metadata: map[string]string{
					"source": path,
					"chunk":  strconv.Itoa(start + i),
				},
			}
		}
		if err := in.store.Upsert(ctx, points); err != nil {
			return 0, fmt.Errorf("upsert points: %w", err)
		}
	}
	return len(chunks), nil
}

// Chunk splits text into windows of at most size runes, each starting
// overlap runes before the end of the previous one. Whitespace-only
// windows are dropped.
func Chunk(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	runes := []rune(text)
	var out []string
	for start := 0; start < len(runes); start += size - overlap {
		end := min(start+size, len(runes))
		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			out = append(out, piece)
		}
		if end == len(runes) {
			break
		}
	}
	return out
}

func expand(paths []string) ([]string, error) {
	var files []string
	for _, root := range paths {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.Type().IsRegular() {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
	}
	return files, nil
}
