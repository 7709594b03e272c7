package rag

import (
	"context"
	"fmt"
	"sort"

	"aurora-qa/internal/contextutil"
)

// RerankOutcome is the reranker result. Reranked is false when the scorer was
// unavailable and Candidates are in retrieval order.
type RerankOutcome struct {
	Candidates []Candidate
	Reranked   bool
	Err        error
}

// Reranker rescores candidates with a cross-encoder and keeps the best topN.
type Reranker struct {
	scorer RelevanceScorer
	topN   int
}

// NewReranker creates a reranker. A nil scorer always falls back to retrieval order.
func NewReranker(scorer RelevanceScorer, topN int) *Reranker {
	if topN <= 0 {
		topN = 30
	}
	return &Reranker{scorer: scorer, topN: topN}
}

// Rerank scores every candidate against question, orders by relevance (stable on
// ties) and keeps the best limit, or topN when limit is not positive. If scoring
// fails the candidates keep their retrieval order, are truncated the same way, and
// carry no relevance score.
func (r *Reranker) Rerank(ctx context.Context, question string, candidates []Candidate, limit int) RerankOutcome {
	if limit <= 0 {
		limit = r.topN
	}
	if len(candidates) == 0 {
		return RerankOutcome{Reranked: r.scorer != nil}
	}

	if r.scorer == nil {
		return RerankOutcome{Candidates: truncate(candidates, limit)}
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = fmt.Sprintf("[%s] %s", c.Passage.AuthorName, c.Passage.Text)
	}

	raw, err := r.scorer.Score(ctx, question, texts)
	if err == nil && len(raw) != len(candidates) {
		err = fmt.Errorf("scorer returned %d scores for %d candidates", len(raw), len(candidates))
	}
	if err != nil {
		contextutil.LoggerFromContext(ctx).WarnContext(ctx, "reranking unavailable, keeping retrieval order",
			"candidates", len(candidates),
			"error", err,
		)
		return RerankOutcome{Candidates: truncate(candidates, limit), Err: err}
	}

	scored := make([]Candidate, len(candidates))
	for i, c := range candidates {
		c.Raw = RawLogit(raw[i])
		c.Relevance = Normalize(c.Raw)
		c.Scored = true
		scored[i] = c
	}
	// Order on the logit: large logits saturate the sigmoid and would tie.
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Raw > scored[j].Raw
	})

	return RerankOutcome{Candidates: truncate(scored, limit), Reranked: true}
}

func truncate(candidates []Candidate, limit int) []Candidate {
	n := min(len(candidates), limit)
	out := make([]Candidate, n)
	copy(out, candidates[:n])
	return out
}
