package llm

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message in a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatParams holds parameters for chat completion requests.
type ChatParams struct {
	// Model specifies the model to use. If empty, the client's default model is used.
	Model string

	// MaxTokens specifies the maximum number of tokens to generate.
	// If 0, no limit is applied.
	MaxTokens int

	// Temperature controls the randomness of the output.
	Temperature float32
}

// Usage is the token accounting for one completion.
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	CostUSD          float64 `json:"cost_usd"`
	// Estimated is set when the provider omitted usage and tokens were counted locally.
	Estimated bool `json:"estimated,omitempty"`
}

// Completion is the model reply plus the model that actually served it.
type Completion struct {
	Content string
	Model   string
	Usage   Usage
}
