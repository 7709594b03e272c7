package vectorstore

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_vector_store.go -package=mocks aurora-qa/internal/vectorstore VectorStore

import "context"

// Payload keys written by the indexer and read back by retrieval.
const (
	MetaMessageID = "message_id"
	MetaAuthorID  = "user_id"
	MetaAuthor    = "user_name"
	MetaTimestamp = "timestamp"
)

// Point represents a vector point with metadata.
type Point struct {
	ID   string
	Vec  []float32
	Meta map[string]any
}

// SearchResult represents a search result from vector search.
// Score is the backend's similarity; higher is always closer.
type SearchResult struct {
	PointID string
	Score   float32
	Meta    map[string]any
}

// VectorStore defines the interface for vector storage operations.
// Filters are exact-match conditions on payload keys, combined with AND.
type VectorStore interface {
	// EnsureCollection creates the collection if needed and validates its vector size.
	EnsureCollection(ctx context.Context, collection string, vectorSize int) error

	// CollectionExists reports whether the collection exists.
	CollectionExists(ctx context.Context, collection string) (bool, error)

	// Upsert inserts or updates points in the collection.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Search performs a similarity search with optional filters, ordered by descending score.
	Search(ctx context.Context, collection string, query []float32, k int, filters map[string]any) ([]SearchResult, error)

	// Count returns the number of points matching filters.
	Count(ctx context.Context, collection string, filters map[string]any) (int, error)
}
