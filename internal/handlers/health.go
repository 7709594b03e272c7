package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"aurora-qa/internal/contextutil"
	"aurora-qa/internal/vectorstore"
)

// MessageCounter reports how many messages are stored.
type MessageCounter interface {
	Count(ctx context.Context) (int, error)
}

// NameCache reports how many member entities are cached.
type NameCache interface {
	Size() int
}

// HealthHandler handles HTTP requests for health checks.
type HealthHandler struct {
	vectorStore        vectorstore.VectorStore
	messages           MessageCounter
	names              NameCache
	collectionName     string
	healthCheckTimeout time.Duration
}

// NewHealthHandler creates a new HealthHandler. names may be nil.
func NewHealthHandler(vectorStore vectorstore.VectorStore, messages MessageCounter, names NameCache, collectionName string) *HealthHandler {
	return &HealthHandler{
		vectorStore:        vectorStore,
		messages:           messages,
		names:              names,
		collectionName:     collectionName,
		healthCheckTimeout: 5 * time.Second,
	}
}

// HealthResponse represents the health check response.
//
// swagger:model HealthResponse
type HealthResponse struct {
	// Overall health status: "healthy", "degraded", or "unhealthy"
	Status string `json:"status"`

	// Timestamp of the health check
	Timestamp string `json:"timestamp"`

	// Individual check results
	Checks map[string]string `json:"checks"`

	// Number of messages in the message store
	Messages int `json:"messages"`

	// Number of vectors in the collection
	IndexedMessages int `json:"indexed_messages"`

	// Number of member entities in the name cache
	NameCacheEntities int `json:"name_cache_entities"`

	// List of issues (only present if status is degraded or unhealthy)
	Issues []string `json:"issues,omitempty"`
}

// ServeHTTP handles HTTP requests for health checks.
//
// Returns 200 OK when healthy or degraded (reachable but empty), 503 Service
// Unavailable when the message store or vector index cannot be reached.
//
// swagger:route GET /api/v1/health healthCheck
//
// # Health check endpoint
//
// Returns message and vector counts, backend status and the name cache size.
//
// ---
// produces:
// - application/json
// responses:
//
//	'200':
//	  description: System is healthy or degraded
//	  schema:
//	    "$ref": "#/definitions/HealthResponse"
//	'503':
//	  description: System is unhealthy
//	  schema:
//	    "$ref": "#/definitions/HealthResponse"
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodGet {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	checkCtx, cancel := context.WithTimeout(ctx, h.healthCheckTimeout)
	defer cancel()

	response := HealthResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    make(map[string]string),
	}
	var unhealthy, degraded []string

	if n, err := h.messages.Count(checkCtx); err != nil {
		logger.WarnContext(ctx, "message store health check failed", "error", err)
		response.Checks["message_store"] = "error"
		unhealthy = append(unhealthy, "message_store_unavailable")
	} else {
		response.Checks["message_store"] = "ok"
		response.Messages = n
		if n == 0 {
			degraded = append(degraded, "no_messages_loaded")
		}
	}

	if n, ok := h.checkVectorStore(checkCtx, logger); !ok {
		response.Checks["vector_store"] = "error"
		unhealthy = append(unhealthy, "vector_store_unavailable")
	} else {
		response.Checks["vector_store"] = "ok"
		response.IndexedMessages = n
		if n < response.Messages {
			degraded = append(degraded, "index_incomplete")
		}
	}

	if h.names != nil {
		response.NameCacheEntities = h.names.Size()
	}
	if response.NameCacheEntities > 0 {
		response.Checks["name_cache"] = "ok"
	} else {
		response.Checks["name_cache"] = "empty"
	}

	status := "healthy"
	httpStatus := http.StatusOK
	switch {
	case len(unhealthy) > 0:
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	case len(degraded) > 0:
		status = "degraded"
	}
	response.Status = status
	if issues := append(unhealthy, degraded...); len(issues) > 0 {
		response.Issues = issues
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.ErrorContext(ctx, "failed to encode health response", "error", err)
	}
}

// checkVectorStore checks that the collection exists and returns its size.
func (h *HealthHandler) checkVectorStore(ctx context.Context, logger *slog.Logger) (int, bool) {
	exists, err := h.vectorStore.CollectionExists(ctx, h.collectionName)
	if err != nil {
		logger.WarnContext(ctx, "vector store health check failed", "error", err)
		return 0, false
	}
	if !exists {
		logger.WarnContext(ctx, "vector store collection does not exist", "collection", h.collectionName)
		return 0, false
	}
	n, err := h.vectorStore.Count(ctx, h.collectionName, nil)
	if err != nil {
		logger.WarnContext(ctx, "vector count failed", "error", err)
		return 0, false
	}
	return n, true
}
