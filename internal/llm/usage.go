package llm

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const defaultEncoding = "cl100k_base"

// Pricing is USD per million tokens.
type Pricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// Cost returns the USD cost of a call.
func (p Pricing) Cost(promptTokens, completionTokens int) float64 {
	return float64(promptTokens)*p.InputPerMillion/1_000_000 + float64(completionTokens)*p.OutputPerMillion/1_000_000
}

var pricing = map[string]Pricing{
	"gpt-4o-mini":   {InputPerMillion: 0.15, OutputPerMillion: 0.60},
	"gpt-4o":        {InputPerMillion: 2.50, OutputPerMillion: 10.00},
	"gpt-4.1-mini":  {InputPerMillion: 0.40, OutputPerMillion: 1.60},
	"gpt-3.5-turbo": {InputPerMillion: 0.50, OutputPerMillion: 1.50},
}

// PricingFor looks up a model, ignoring any "provider/" prefix and dated suffix.
// Unknown models are priced as gpt-4o-mini.
func PricingFor(model string) Pricing {
	name := bareModel(model)
	if p, ok := pricing[name]; ok {
		return p
	}
	// Longest prefix wins so "gpt-4o-mini-2024-07-18" is not priced as "gpt-4o".
	best := ""
	for known := range pricing {
		if strings.HasPrefix(name, known) && len(known) > len(best) {
			best = known
		}
	}
	if best != "" {
		return pricing[best]
	}
	return pricing["gpt-4o-mini"]
}

func bareModel(model string) string {
	name := strings.ToLower(strings.TrimSpace(model))
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// TokenCounter counts tokens with tiktoken, falling back to four characters per
// token when no encoding can be loaded.
type TokenCounter struct {
	model string
	once  sync.Once
	tke   *tiktoken.Tiktoken
}

// NewTokenCounter creates a counter for model. The encoding is loaded on first use.
func NewTokenCounter(model string) *TokenCounter {
	return &TokenCounter{model: model}
}

// Count returns the number of tokens in text.
func (c *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	c.once.Do(c.load)
	if c.tke == nil {
		return EstimateTokens(text)
	}
	return len(c.tke.Encode(text, nil, nil))
}

func (c *TokenCounter) load() {
	if tke, err := tiktoken.EncodingForModel(bareModel(c.model)); err == nil {
		c.tke = tke
		return
	}
	if tke, err := tiktoken.GetEncoding(defaultEncoding); err == nil {
		c.tke = tke
	}
}

// EstimateTokens is the character-based fallback: one token per four characters, at least one.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return max(1, len(text)/4)
}
