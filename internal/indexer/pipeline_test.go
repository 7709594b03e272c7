package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"aurora-qa/internal/storage"
	"aurora-qa/internal/vectorstore"
	vectorstore_mocks "aurora-qa/internal/vectorstore/mocks"
)

// lengthEmbedder returns a 3-dimensional vector derived from the text length.
type lengthEmbedder struct {
	calls int
}

func (e *lengthEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{1, float32(len(text)%7) + 1, float32(i%3) + 1}
	}
	return out, nil
}

type failingEmbedder struct{}

func (failingEmbedder) EmbedTexts(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("503 service unavailable")
}

type testEnv struct {
	messages *storage.MessageRepo
	vectors  *vectorstore.ChromemStore
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	db, err := storage.New(filepath.Join(t.TempDir(), "aurora.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, storage.Migrate(db))

	vectors, err := vectorstore.NewChromemStore("")
	require.NoError(t, err)
	return testEnv{messages: storage.NewMessageRepo(db), vectors: vectors}
}

func writeExport(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const sampleExport = `{
  "total": 5,
  "items": [
    {"id": "m1", "user_id": "u1", "user_name": "Sophia Al-Farsi", "timestamp": "2025-01-01T09:00:00Z", "message": "Book a table for two at Nobu on Friday."},
    {"id": "m2", "user_id": "u2", "user_name": "Vikram Desai", "timestamp": "2025-01-02T10:00:00Z", "message": "I have 3 cars and need parking in Dubai."},
    {"id": "m2", "user_id": "u2", "user_name": "Vikram Desai", "timestamp": "2025-01-02T10:00:00Z", "message": "duplicate"},
    {"id": "m3", "user_id": "u3", "user_name": "Layla Kawaguchi", "timestamp": "2025-01-03T11:00:00Z", "message": "   "},
    {"id": "", "user_id": "u3", "user_name": "Layla Kawaguchi", "timestamp": "", "message": "no id"}
  ]
}`

func TestPipeline_LoadFile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	embedder := &lengthEmbedder{}
	p := NewPipeline(env.messages, embedder, env.vectors, "messages", 3, "test-model")

	stats, err := p.LoadFile(ctx, writeExport(t, sampleExport))
	require.NoError(t, err)

	assert.Equal(t, 5, stats.Read)
	assert.Equal(t, 2, stats.Stored)
	assert.Equal(t, 2, stats.Embedded)
	assert.Equal(t, 3, stats.Skipped)
	assert.Equal(t, map[string]int{SkipDuplicateID: 1, SkipEmptyMessage: 1, SkipMissingID: 1}, stats.SkippedReasons)
	assert.Equal(t, 2, stats.Authors)
	assert.Equal(t, 1, stats.Batches)
	assert.Len(t, stats.IndexVersion, 16)

	count, err := env.messages.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	indexed, err := env.vectors.Count(ctx, "messages", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, indexed)

	hits, err := env.vectors.Search(ctx, "messages", []float32{1, 1, 1}, 5, map[string]any{vectorstore.MetaAuthorID: "u2"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, PointID("m2"), hits[0].PointID)
	assert.Equal(t, "m2", hits[0].Meta[vectorstore.MetaMessageID])
	assert.Equal(t, "Vikram Desai", hits[0].Meta[vectorstore.MetaAuthor])
}

func TestPipeline_LoadIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := NewPipeline(env.messages, &lengthEmbedder{}, env.vectors, "messages", 3, "test-model")
	path := writeExport(t, sampleExport)

	_, err := p.LoadFile(ctx, path)
	require.NoError(t, err)
	_, err = p.LoadFile(ctx, path)
	require.NoError(t, err)

	count, err := env.messages.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	indexed, err := env.vectors.Count(ctx, "messages", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, indexed)
}

func TestPipeline_Batches(t *testing.T) {
	env := newTestEnv(t)
	embedder := &lengthEmbedder{}
	p := NewPipeline(env.messages, embedder, env.vectors, "messages", 3, "test-model")
	p.batchSize = 4

	msgs := make([]ExportMessage, 10)
	for i := range msgs {
		msgs[i] = ExportMessage{ID: fmt.Sprintf("m%d", i), UserID: "u1", UserName: "Sophia Al-Farsi", Message: fmt.Sprintf("message number %d", i)}
	}

	stats, err := p.Load(context.Background(), msgs)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Batches)
	assert.Equal(t, 3, embedder.calls)
	assert.Equal(t, 10, stats.Embedded)
}

func TestPipeline_MissingUserNameFallsBackToID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := NewPipeline(env.messages, &lengthEmbedder{}, env.vectors, "messages", 3, "test-model")

	_, err := p.Load(ctx, []ExportMessage{{ID: "m1", UserID: "u9", Message: "hello there"}})
	require.NoError(t, err)

	recs, err := env.messages.GetByIDs(ctx, []string{"m1"})
	require.NoError(t, err)
	assert.Equal(t, "u9", recs["m1"].UserName)
}

func TestPipeline_NothingToLoad(t *testing.T) {
	ctrl := gomock.NewController(t)
	vectors := vectorstore_mocks.NewMockVectorStore(ctrl)
	env := newTestEnv(t)
	p := NewPipeline(env.messages, &lengthEmbedder{}, vectors, "messages", 3, "test-model")

	stats, err := p.Load(context.Background(), []ExportMessage{{ID: "m1", UserID: "u1", Message: ""}})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Stored)
	assert.Equal(t, 1, stats.Skipped)
}

func TestPipeline_Errors(t *testing.T) {
	msgs := []ExportMessage{{ID: "m1", UserID: "u1", UserName: "Sophia Al-Farsi", Message: "hello there"}}

	tests := []struct {
		name     string
		embedder Embedder
		setup    func(*vectorstore_mocks.MockVectorStore)
		wantErr  string
	}{
		{
			name:     "collection mismatch",
			embedder: &lengthEmbedder{},
			setup: func(m *vectorstore_mocks.MockVectorStore) {
				m.EXPECT().EnsureCollection(gomock.Any(), "messages", 3).Return(errors.New("vector size mismatch"))
			},
			wantErr: "failed to ensure collection",
		},
		{
			name:     "embedding failure",
			embedder: failingEmbedder{},
			setup: func(m *vectorstore_mocks.MockVectorStore) {
				m.EXPECT().EnsureCollection(gomock.Any(), "messages", 3).Return(nil)
			},
			wantErr: "failed to generate embeddings",
		},
		{
			name:     "upsert failure",
			embedder: &lengthEmbedder{},
			setup: func(m *vectorstore_mocks.MockVectorStore) {
				m.EXPECT().EnsureCollection(gomock.Any(), "messages", 3).Return(nil)
				m.EXPECT().Upsert(gomock.Any(), "messages", gomock.Len(1)).Return(errors.New("connection reset"))
			},
			wantErr: "failed to upsert vectors",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			vectors := vectorstore_mocks.NewMockVectorStore(ctrl)
			tt.setup(vectors)
			env := newTestEnv(t)

			p := NewPipeline(env.messages, tt.embedder, vectors, "messages", 3, "test-model")
			_, err := p.Load(context.Background(), msgs)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPipeline_LoadFileErrors(t *testing.T) {
	env := newTestEnv(t)
	p := NewPipeline(env.messages, &lengthEmbedder{}, env.vectors, "messages", 3, "test-model")

	_, err := p.LoadFile(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = p.LoadFile(context.Background(), writeExport(t, `{"total": 1}`))
	assert.Error(t, err)
}

func TestPointID(t *testing.T) {
	assert.Equal(t, PointID("m1"), PointID("m1"))
	assert.NotEqual(t, PointID("m1"), PointID("m2"))
}
