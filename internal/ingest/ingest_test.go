package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/vectorstore"
)

func TestChunk(t *testing.T) {
	assert.Nil(t, Chunk("", 10, 0))
	assert.Nil(t, Chunk("   \n ", 10, 0))
	assert.Equal(t, []string{"hello"}, Chunk("hello", 10, 0))
	assert.Equal(t, []string{"abcd", "efgh", "ij"}, Chunk("abcdefghij", 4, 0))
	assert.Equal(t, []string{"abcd", "cdef", "efgh", "ghij"}, Chunk("abcdefghij", 4, 2))

	// windows count runes, not bytes
	chunks := Chunk(strings.Repeat("é", 25), 10, 0)
	require.Len(t, chunks, 3)
	assert.Equal(t, strings.Repeat("é", 10), chunks[0])
	assert.Equal(t, strings.Repeat("é", 5), chunks[2])

	// invalid overlap falls back to none
	assert.Equal(t, []string{"abcd", "efgh", "ij"}, Chunk("abcdefghij", 4, 4))
}

type fakeEmbedder struct {
	calls int
	err   error
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1, 0}
	}
	return out, nil
}

type recordingStore struct {
	dimension int
	ensured   int
	points    []vectorstore.Point
}

func (r *recordingStore) EnsureCollection(_ context.Context, dimension int) error {
	r.ensured++
	r.dimension = dimension
	return nil
}

func (r *recordingStore) Upsert(_ context.Context, points []vectorstore.Point) error {
	r.points = append(r.points, points...)
	return nil
}

func (r *recordingStore) Search(context.Context, []float32, int) ([]vectorstore.Hit, error) {
	return nil, nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestIngestDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), strings.Repeat("a", 25))
	writeFile(t, filepath.Join(dir, "nested", "b.txt"), "Once upon a time, there was a cat.")
	writeFile(t, filepath.Join(dir, "empty.txt"), "  \n")

	emb := &fakeEmbedder{}
	st := &recordingStore{}
	in, err := NewIngester(context.Background(), emb, st, nil, Options{ChunkSize: 10, BatchSize: 2})
	require.NoError(t, err)

	stats, err := in.Ingest(context.Background(), []string{dir})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Files)
	assert.Equal(t, 3+4, stats.Chunks)
	assert.Equal(t, 1, st.ensured, "collection is ensured once per run")
	assert.Equal(t, 3, st.dimension)
	require.Len(t, st.points, 7)
	assert.Equal(t, 4, emb.calls, "a.txt and b.txt need two batches each")

	ids := map[string]struct{}{}
	for _, p := range st.points {
		assert.NotEmpty(t, p.Text)
		assert.NotEmpty(t, p.Metadata["source"])
		ids[p.ID] = struct{}{}
	}
	assert.Len(t, ids, 7, "point ids are unique")
	assert.Equal(t, filepath.Join(dir, "a.txt"), st.points[0].Metadata["source"])
	assert.Equal(t, "0", st.points[0].Metadata["chunk"])
}

func TestIngestErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "hello world")

	in, err := NewIngester(context.Background(), &fakeEmbedder{err: errors.New("boom")}, &recordingStore{}, nil, Options{})
	require.NoError(t, err)
	_, err = in.Ingest(context.Background(), []string{dir})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	_, err = in.Ingest(context.Background(), []string{filepath.Join(dir, "missing")})
	require.Error(t, err)

	_, err = in.Ingest(context.Background(), []string{t.TempDir()})
	require.Error(t, err)
}
