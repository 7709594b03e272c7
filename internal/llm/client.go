package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"aurora-qa/internal/contextutil"
)

// ErrEmptyCompletion is returned when the provider answers without any content.
var ErrEmptyCompletion = errors.New("empty completion")

// Client is a chat completion client for any OpenAI-compatible API (OpenRouter by default).
type Client struct {
	BaseURL string
	Model   string
	client  *openai.Client
	tokens  *TokenCounter
}

// NewClient creates a new chat client.
func NewClient(baseURL, apiKey, model string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	return &Client{
		BaseURL: config.BaseURL,
		Model:   model,
		client:  openai.NewClientWithConfig(config),
		tokens:  NewTokenCounter(model),
	}
}

// Complete sends messages and returns the first choice with token usage.
// Usage falls back to a local estimate when the provider does not report it.
func (c *Client) Complete(ctx context.Context, messages []Message, params ChatParams) (Completion, error) {
	logger := contextutil.LoggerFromContext(ctx)

	model := params.Model
	if model == "" {
		model = c.Model
	}

	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
		Temperature: params.Temperature,
	}
	if params.MaxTokens > 0 {
		req.MaxTokens = params.MaxTokens
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			logger.ErrorContext(ctx, "chat completion rejected", "model", model, "status", apiErr.HTTPStatusCode, "error", apiErr.Message)
		}
		return Completion{}, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return Completion{}, ErrEmptyCompletion
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	served := resp.Model
	if served == "" {
		served = model
	}

	usage := Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	if usage.TotalTokens == 0 {
		usage = c.estimateUsage(messages, content)
	}
	usage.CostUSD = PricingFor(served).Cost(usage.PromptTokens, usage.CompletionTokens)

	logger.DebugContext(ctx, "chat completion received",
		"model", served,
		"prompt_tokens", usage.PromptTokens,
		"completion_tokens", usage.CompletionTokens,
		"estimated", usage.Estimated,
	)

	return Completion{
		Content: content,
		Model:   served,
		Usage:   usage,
	}, nil
}

func (c *Client) estimateUsage(messages []Message, reply string) Usage {
	prompt := 0
	for _, m := range messages {
		prompt += c.tokens.Count(m.Content)
	}
	completion := c.tokens.Count(reply)
	return Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
		Estimated:        true,
	}
}
