package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// EmbeddingsClient calls an OpenAI-compatible embeddings endpoint.
type EmbeddingsClient struct {
	BaseURL      string
	Model        string
	ExpectedSize int // Expected vector size for validation
	client       *openai.Client
}

// NewEmbeddingsClient creates a new embeddings client.
// All embeddings returned by EmbedTexts are validated against expectedSize.
func NewEmbeddingsClient(baseURL, apiKey, model string, expectedSize int) *EmbeddingsClient {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	return &EmbeddingsClient{
		BaseURL:      config.BaseURL,
		Model:        model,
		ExpectedSize: expectedSize,
		client:       openai.NewClientWithConfig(config),
	}
}

// EmbedTexts generates embeddings for the given texts, one vector per input in input order.
func (c *EmbeddingsClient) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("empty input array")
	}

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(c.Model),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	result := make([][]float32, len(texts))
	for i, data := range resp.Data {
		idx := data.Index
		if idx < 0 || idx >= len(texts) || result[idx] != nil {
			idx = i
		}
		if c.ExpectedSize > 0 && len(data.Embedding) != c.ExpectedSize {
			return nil, fmt.Errorf("embedding %d has size %d, expected %d", idx, len(data.Embedding), c.ExpectedSize)
		}
		result[idx] = data.Embedding
	}

	return result, nil
}
