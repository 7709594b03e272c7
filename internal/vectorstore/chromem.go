package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/philippgille/chromem-go"

	"aurora-qa/internal/contextutil"
)

// errNoEmbeddingFunc is returned if chromem is ever asked to embed text itself.
// Points always arrive with precomputed vectors.
var errNoEmbeddingFunc = errors.New("chromem store requires precomputed embeddings")

// ChromemStore implements VectorStore on an embedded chromem-go database.
// An empty path keeps everything in memory.
type ChromemStore struct {
	db *chromem.DB

	mu    sync.RWMutex
	sizes map[string]int
}

// NewChromemStore opens a persistent chromem database at path, or an in-memory one when path is empty.
func NewChromemStore(path string) (*ChromemStore, error) {
	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("failed to open chromem database at %s: %w", path, err)
		}
	}
	return &ChromemStore{
		db:    db,
		sizes: make(map[string]int),
	}, nil
}

func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errNoEmbeddingFunc
}

// EnsureCollection creates the collection if it does not exist and records its vector size.
func (s *ChromemStore) EnsureCollection(ctx context.Context, collection string, vectorSize int) error {
	if vectorSize <= 0 {
		return fmt.Errorf("vector size must be greater than 0")
	}
	if _, err := s.db.GetOrCreateCollection(collection, nil, noEmbedding); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	s.mu.Lock()
	s.sizes[collection] = vectorSize
	s.mu.Unlock()

	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "collection ready", "backend", "chromem", "collection", collection, "vector_size", vectorSize)
	return nil
}

// CollectionExists checks if a collection exists.
func (s *ChromemStore) CollectionExists(_ context.Context, collection string) (bool, error) {
	return s.db.GetCollection(collection, noEmbedding) != nil, nil
}

// Upsert adds points; an existing ID is replaced.
func (s *ChromemStore) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	coll, err := s.db.GetOrCreateCollection(collection, nil, noEmbedding)
	if err != nil {
		return fmt.Errorf("failed to get collection: %w", err)
	}

	want := s.vectorSize(collection)
	if want == 0 {
		s.mu.Lock()
		s.sizes[collection] = len(points[0].Vec)
		s.mu.Unlock()
	}
	docs := make([]chromem.Document, 0, len(points))
	for _, p := range points {
		if len(p.Vec) == 0 {
			return fmt.Errorf("point %s has no vector", p.ID)
		}
		if want > 0 && len(p.Vec) != want {
			return fmt.Errorf("point %s vector size mismatch: expected %d, got %d", p.ID, want, len(p.Vec))
		}
		docs = append(docs, chromem.Document{
			ID:        p.ID,
			Metadata:  stringifyMeta(p.Meta),
			Embedding: p.Vec,
		})
	}

	if err := coll.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}

	contextutil.LoggerFromContext(ctx).DebugContext(ctx, "upserted points", "backend", "chromem", "collection", collection, "count", len(points))
	return nil
}

// Search performs a similarity search. k is capped at the collection size.
func (s *ChromemStore) Search(ctx context.Context, collection string, query []float32, k int, filters map[string]any) ([]SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be greater than 0")
	}

	coll := s.db.GetCollection(collection, noEmbedding)
	if coll == nil {
		return nil, fmt.Errorf("collection %s not found", collection)
	}

	docCount := coll.Count()
	if docCount == 0 {
		return []SearchResult{}, nil
	}
	if k > docCount {
		k = docCount
	}

	results, err := coll.QueryEmbedding(ctx, query, k, stringifyMeta(filters), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to search points: %w", err)
	}

	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		meta := make(map[string]any, len(r.Metadata))
		for key, v := range r.Metadata {
			meta[key] = v
		}
		out = append(out, SearchResult{
			PointID: r.ID,
			Score:   r.Similarity,
			Meta:    meta,
		})
	}

	contextutil.LoggerFromContext(ctx).DebugContext(ctx, "search completed", "backend", "chromem", "collection", collection, "k", k, "results", len(out))
	return out, nil
}

// Count returns the number of points matching filters. chromem has no filtered
// count, so a filtered count scans the collection with a unit query vector.
func (s *ChromemStore) Count(ctx context.Context, collection string, filters map[string]any) (int, error) {
	coll := s.db.GetCollection(collection, noEmbedding)
	if coll == nil {
		return 0, fmt.Errorf("collection %s not found", collection)
	}

	total := coll.Count()
	if len(filters) == 0 || total == 0 {
		return total, nil
	}

	size := s.vectorSize(collection)
	if size == 0 {
		return 0, fmt.Errorf("vector size unknown for collection %s", collection)
	}
	unit := make([]float32, size)
	unit[0] = 1

	results, err := coll.QueryEmbedding(ctx, unit, total, stringifyMeta(filters), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return len(results), nil
}

func (s *ChromemStore) vectorSize(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sizes[collection]
}

func stringifyMeta(meta map[string]any) map[string]string {
	if len(meta) == 0 {
		return nil
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = fmt.Sprint(v)
	}
	return out
}
