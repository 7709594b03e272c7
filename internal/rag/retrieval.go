package rag

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"aurora-qa/internal/contextutil"
	"aurora-qa/internal/storage"
	"aurora-qa/internal/vectorstore"
)

// RetrieverOptions configures candidate retrieval.
type RetrieverOptions struct {
	Collection string
	// PoolSize is the semantic top-K for questions not scoped to entities.
	PoolSize int
	// EntityScanLimit caps the passages fetched per author for entity-scoped questions.
	EntityScanLimit int
	// SearchTimeout bounds each index call. Zero means no bound beyond the caller's context.
	SearchTimeout time.Duration
}

// RetrievalStrategy produces the candidate set for a classified question.
// Failures degrade to an empty set; they are never returned to the caller.
type RetrievalStrategy interface {
	Name() string
	Retrieve(ctx context.Context, c Classification, questionVec []float32) []Candidate
}

// Retriever chooses and runs a retrieval strategy over the vector index,
// hydrating hits with message text from the message store.
type Retriever struct {
	entity   *entityScopedStrategy
	semantic *semanticStrategy
}

// NewRetriever creates a retriever over index and messages.
func NewRetriever(index vectorstore.VectorStore, messages storage.MessageStore, opts RetrieverOptions) *Retriever {
	if opts.PoolSize <= 0 {
		opts.PoolSize = 100
	}
	if opts.EntityScanLimit <= 0 {
		opts.EntityScanLimit = 1000
	}
	s := &searcher{index: index, messages: messages, opts: opts}
	return &Retriever{
		entity:   &entityScopedStrategy{searcher: s},
		semantic: &semanticStrategy{searcher: s},
	}
}

// StrategyFor returns the entity-scoped strategy when the category is scoped to
// entities and at least one was resolved, otherwise the semantic strategy.
func (r *Retriever) StrategyFor(c Classification) RetrievalStrategy {
	if c.Category.EntityScoped() && len(c.Entities) > 0 {
		return r.entity
	}
	return r.semantic
}

type searcher struct {
	index    vectorstore.VectorStore
	messages storage.MessageStore
	opts     RetrieverOptions
}

func (s *searcher) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.SearchTimeout > 0 {
		return context.WithTimeout(ctx, s.opts.SearchTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *searcher) search(ctx context.Context, vec []float32, k int, filters map[string]any) ([]vectorstore.SearchResult, error) {
	callCtx, cancel := s.bounded(ctx)
	defer cancel()
	results, err := s.index.Search(callCtx, s.opts.Collection, vec, k, filters)
	if err != nil {
		return nil, s.describe(callCtx, err)
	}
	return results, nil
}

func (s *searcher) count(ctx context.Context, filters map[string]any) (int, error) {
	callCtx, cancel := s.bounded(ctx)
	defer cancel()
	n, err := s.index.Count(callCtx, s.opts.Collection, filters)
	if err != nil {
		return 0, s.describe(callCtx, err)
	}
	return n, nil
}

func (s *searcher) describe(callCtx context.Context, err error) error {
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %w", ErrTimeout, s.opts.SearchTimeout, err)
	}
	return err
}

// hydrate fetches message text for hits, keeping hit order. Hits whose message
// is missing from the store are skipped.
func (s *searcher) hydrate(ctx context.Context, hits []vectorstore.SearchResult) []Candidate {
	if len(hits) == 0 {
		return nil
	}
	logger := contextutil.LoggerFromContext(ctx)

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = messageID(h)
	}

	callCtx, cancel := s.bounded(ctx)
	defer cancel()
	rows, err := s.messages.GetByIDs(callCtx, ids)
	if err != nil {
		logger.WarnContext(ctx, "failed to load message text, returning no candidates", "error", err)
		return nil
	}

	candidates := make([]Candidate, 0, len(hits))
	for i, h := range hits {
		row, ok := rows[ids[i]]
		if !ok {
			logger.WarnContext(ctx, "message not found in store, skipping", "message_id", ids[i], "point_id", h.PointID)
			continue
		}
		candidates = append(candidates, Candidate{
			Passage: Passage{
				ID:         row.ID,
				AuthorID:   row.UserID,
				AuthorName: row.UserName,
				Text:       row.Text,
				Timestamp:  row.Timestamp,
			},
			Similarity: float64(h.Score),
		})
	}
	return candidates
}

func messageID(h vectorstore.SearchResult) string {
	if id, ok := h.Meta[vectorstore.MetaMessageID].(string); ok && id != "" {
		return id
	}
	return h.PointID
}

// entityScopedStrategy fetches every passage of each resolved author, up to the scan limit.
type entityScopedStrategy struct {
	*searcher
}

func (s *entityScopedStrategy) Name() string { return "entity_scoped" }

func (s *entityScopedStrategy) Retrieve(ctx context.Context, c Classification, questionVec []float32) []Candidate {
	logger := contextutil.LoggerFromContext(ctx)

	var authorIDs []string
	seen := make(map[string]bool)
	for _, e := range c.Entities {
		for _, id := range e.AuthorIDs {
			if !seen[id] {
				seen[id] = true
				authorIDs = append(authorIDs, id)
			}
		}
	}

	var hits []vectorstore.SearchResult
	for _, authorID := range authorIDs {
		filter := map[string]any{vectorstore.MetaAuthorID: authorID}

		limit := s.opts.EntityScanLimit
		n, err := s.count(ctx, filter)
		switch {
		case err != nil:
			logger.WarnContext(ctx, "author count failed, searching with scan limit", "author_id", authorID, "error", err)
		case n == 0:
			continue
		default:
			limit = min(n, s.opts.EntityScanLimit)
		}

		results, err := s.search(ctx, questionVec, limit, filter)
		if err != nil {
			logger.WarnContext(ctx, "author search failed, skipping author", "author_id", authorID, "error", err)
			continue
		}
		hits = append(hits, results...)
	}

	candidates := s.hydrate(ctx, mergeHits(hits))
	logger.InfoContext(ctx, "entity-scoped retrieval complete", "authors", len(authorIDs), "candidates", len(candidates))
	return candidates
}

// semanticStrategy takes the top PoolSize passages across the whole corpus.
type semanticStrategy struct {
	*searcher
}

func (s *semanticStrategy) Name() string { return "semantic" }

func (s *semanticStrategy) Retrieve(ctx context.Context, c Classification, questionVec []float32) []Candidate {
	logger := contextutil.LoggerFromContext(ctx)

	hits, err := s.search(ctx, questionVec, s.opts.PoolSize, nil)
	if err != nil {
		logger.WarnContext(ctx, "semantic search failed, continuing with no candidates", "error", err)
		return nil
	}

	candidates := s.hydrate(ctx, mergeHits(hits))
	logger.InfoContext(ctx, "semantic retrieval complete", "pool", s.opts.PoolSize, "candidates", len(candidates))
	return candidates
}

// mergeHits drops duplicate messages, keeping the best score, and orders by
// descending score with ties in arrival order.
func mergeHits(hits []vectorstore.SearchResult) []vectorstore.SearchResult {
	best := make(map[string]int, len(hits))
	merged := make([]vectorstore.SearchResult, 0, len(hits))
	for _, h := range hits {
		id := messageID(h)
		if i, ok := best[id]; ok {
			if h.Score > merged[i].Score {
				merged[i] = h
			}
			continue
		}
		best[id] = len(merged)
		merged = append(merged, h)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	return merged
}
