// Package crossencoder talks to a cross-encoder reranking service that exposes a
// text-embeddings-inference style POST /rerank endpoint. It returns raw logits;
// normalization is the caller's concern.
package crossencoder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"aurora-qa/internal/contextutil"
)

// Client scores (query, passage) pairs.
type Client struct {
	http      *resty.Client
	batchSize int
}

type rerankRequest struct {
	Query      string   `json:"query"`
	Texts      []string `json:"texts"`
	RawScores  bool     `json:"raw_scores"`
	ReturnText bool     `json:"return_text"`
}

type rerankHit struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

type apiError struct {
	Error     string `json:"error"`
	ErrorType string `json:"error_type"`
}

// NewClient creates a client for the service at baseURL. batchSize bounds the
// number of passages per request; timeout bounds each request.
func NewClient(baseURL string, batchSize int, timeout time.Duration) *Client {
	if batchSize <= 0 {
		batchSize = 64
	}
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &Client{http: client, batchSize: batchSize}
}

// Score returns one raw logit per text, in input order.
func (c *Client) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	logger := contextutil.LoggerFromContext(ctx)

	scores := make([]float64, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))
		batch, err := c.scoreBatch(ctx, query, texts[start:end])
		if err != nil {
			return nil, err
		}
		copy(scores[start:end], batch)
	}

	logger.DebugContext(ctx, "cross-encoder scored passages", "count", len(texts), "batch_size", c.batchSize)
	return scores, nil
}

func (c *Client) scoreBatch(ctx context.Context, query string, texts []string) ([]float64, error) {
	var hits []rerankHit
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(rerankRequest{Query: query, Texts: texts, RawScores: true}).
		SetResult(&hits).
		SetError(&apiError{}).
		Post("/rerank")
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	if resp.IsError() {
		if apiErr, ok := resp.Error().(*apiError); ok && apiErr != nil && apiErr.Error != "" {
			return nil, fmt.Errorf("rerank service error (status %d): %s", resp.StatusCode(), apiErr.Error)
		}
		return nil, fmt.Errorf("rerank service error (status %d): %s", resp.StatusCode(), resp.String())
	}

	if len(hits) != len(texts) {
		return nil, fmt.Errorf("rerank service returned %d scores for %d texts", len(hits), len(texts))
	}
	scores := make([]float64, len(texts))
	seen := make([]bool, len(texts))
	for _, h := range hits {
		if h.Index < 0 || h.Index >= len(texts) || seen[h.Index] {
			return nil, fmt.Errorf("rerank service returned invalid index %d", h.Index)
		}
		seen[h.Index] = true
		scores[h.Index] = h.Score
	}
	return scores, nil
}
