package vectorstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/qdrant/go-client/qdrant"

	"aurora-qa/internal/contextutil"
)

// QdrantStore implements VectorStore using Qdrant.
type QdrantStore struct {
	client *qdrant.Client
}

// NewQdrantStore creates a new Qdrant vector store client.
// urlStr should be in the format "http://host:port" (e.g., "http://localhost:6333").
// The gRPC port is derived from the HTTP port.
func NewQdrantStore(urlStr string) (*QdrantStore, error) {
	host, port, err := grpcAddress(urlStr)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
	}

	return &QdrantStore{
		client: client,
	}, nil
}

// grpcAddress maps the HTTP URL of a Qdrant node to its gRPC host and port (HTTP port + 1).
func grpcAddress(urlStr string) (string, int, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid Qdrant URL: %w", err)
	}

	host := parsedURL.Hostname()
	if host == "" {
		host = "localhost"
	}

	port := 6334
	if parsedURL.Port() != "" {
		httpPort, err := strconv.Atoi(parsedURL.Port())
		if err == nil {
			port = httpPort + 1
		}
	}
	return host, port, nil
}

// Upsert inserts or updates points in the collection.
func (s *QdrantStore) Upsert(ctx context.Context, collection string, points []Point) error {
	logger := contextutil.LoggerFromContext(ctx)

	if len(points) == 0 {
		return nil
	}

	qdrantPoints := make([]*qdrant.PointStruct, 0, len(points))
	for _, point := range points {
		qdrantPoint := &qdrant.PointStruct{
			Id:      qdrant.NewID(point.ID),
			Vectors: qdrant.NewVectors(point.Vec...),
		}

		if len(point.Meta) > 0 {
			qdrantPoint.Payload = qdrant.NewValueMap(point.Meta)
		}

		qdrantPoints = append(qdrantPoints, qdrantPoint)
	}

	wait := true
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           &wait,
		Points:         qdrantPoints,
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to upsert points", "collection", collection, "count", len(points), "error", err)
		return fmt.Errorf("failed to upsert points: %w", err)
	}

	logger.DebugContext(ctx, "upserted points", "collection", collection, "count", len(points))
	return nil
}

// Search performs a similarity search with optional filters.
func (s *QdrantStore) Search(ctx context.Context, collection string, query []float32, k int, filters map[string]any) ([]SearchResult, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if k <= 0 {
		return nil, fmt.Errorf("k must be greater than 0")
	}

	qdrantFilter, err := buildFilter(filters)
	if err != nil {
		return nil, err
	}

	limit := uint64(k)
	queryReq := &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if qdrantFilter != nil {
		queryReq.Filter = qdrantFilter
	}

	scoredPoints, err := s.client.Query(ctx, queryReq)
	if err != nil {
		logger.ErrorContext(ctx, "failed to search points", "collection", collection, "k", k, "error", err)
		return nil, fmt.Errorf("failed to search points: %w", err)
	}

	results := make([]SearchResult, 0, len(scoredPoints))
	for _, result := range scoredPoints {
		pointID := ""
		if result.Id != nil {
			pointID = result.Id.GetUuid()
		}

		meta := make(map[string]any)
		if result.Payload != nil {
			meta = convertPayloadToMap(result.Payload)
		}

		results = append(results, SearchResult{
			PointID: pointID,
			Score:   result.Score,
			Meta:    meta,
		})
	}

	logger.DebugContext(ctx, "search completed", "collection", collection, "k", k, "filtered", qdrantFilter != nil, "results", len(results))
	return results, nil
}

// Count returns the exact number of points matching filters.
func (s *QdrantStore) Count(ctx context.Context, collection string, filters map[string]any) (int, error) {
	qdrantFilter, err := buildFilter(filters)
	if err != nil {
		return 0, err
	}

	exact := true
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Filter:         qdrantFilter,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return int(n), nil
}

// buildFilter turns exact-match conditions into a Qdrant must-filter.
func buildFilter(filters map[string]any) (*qdrant.Filter, error) {
	if len(filters) == 0 {
		return nil, nil
	}

	must := make([]*qdrant.Condition, 0, len(filters))
	for key, value := range filters {
		switch v := value.(type) {
		case string:
			must = append(must, qdrant.NewMatch(key, v))
		case int:
			must = append(must, qdrant.NewMatchInt(key, int64(v)))
		case int64:
			must = append(must, qdrant.NewMatchInt(key, v))
		case bool:
			must = append(must, qdrant.NewMatchBool(key, v))
		default:
			return nil, fmt.Errorf("unsupported filter value type %T for key %s", value, key)
		}
	}
	return &qdrant.Filter{Must: must}, nil
}

// CollectionExists checks if a collection exists.
func (s *QdrantStore) CollectionExists(ctx context.Context, collection string) (bool, error) {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return false, fmt.Errorf("failed to check collection existence: %w", err)
	}
	return exists, nil
}

// EnsureCollection ensures a collection exists with the specified vector size.
// If the collection exists, validates that the vector size matches.
func (s *QdrantStore) EnsureCollection(ctx context.Context, collection string, vectorSize int) error {
	logger := contextutil.LoggerFromContext(ctx)

	exists, err := s.CollectionExists(ctx, collection)
	if err != nil {
		return err
	}

	if !exists {
		logger.InfoContext(ctx, "creating collection", "collection", collection, "vector_size", vectorSize)
		err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(vectorSize),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}
		// Entity-scoped retrieval filters on the author id.
		_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: collection,
			FieldName:      MetaAuthorID,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			logger.WarnContext(ctx, "failed to create payload index", "collection", collection, "field", MetaAuthorID, "error", err)
		}
		return nil
	}

	info, err := s.client.GetCollectionInfo(ctx, collection)
	if err != nil {
		return fmt.Errorf("failed to get collection info: %w", err)
	}

	config := info.Config
	if config == nil || config.Params == nil {
		return fmt.Errorf("collection config is invalid")
	}
	params := config.Params.GetVectorsConfig().GetParams()
	if params == nil || params.Size == 0 {
		return fmt.Errorf("could not determine collection vector size")
	}
	if int(params.Size) != vectorSize {
		return fmt.Errorf("collection vector size mismatch: expected %d, got %d", vectorSize, params.Size)
	}

	logger.InfoContext(ctx, "collection validated", "collection", collection, "vector_size", vectorSize)
	return nil
}

// convertPayloadToMap converts Qdrant payload to map[string]any.
func convertPayloadToMap(payload map[string]*qdrant.Value) map[string]any {
	result := make(map[string]any, len(payload))
	for k, v := range payload {
		if v == nil {
			continue
		}
		result[k] = convertValue(v)
	}
	return result
}

// convertValue converts a Qdrant Value to Go any type.
func convertValue(v *qdrant.Value) any {
	switch val := v.Kind.(type) {
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_ListValue:
		list := make([]any, len(val.ListValue.Values))
		for i, item := range val.ListValue.Values {
			list[i] = convertValue(item)
		}
		return list
	case *qdrant.Value_StructValue:
		return convertPayloadToMap(val.StructValue.Fields)
	default:
		return nil
	}
}
