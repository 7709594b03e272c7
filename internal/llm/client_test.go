package llm

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// offlineCounter never loads a tiktoken encoding, so counts use the character fallback.
func offlineCounter() *TokenCounter {
	c := &TokenCounter{}
	c.once.Do(func() {})
	return c
}

func chatServer(t *testing.T, handler func(w http.ResponseWriter, body map[string]any)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("expected /v1/chat/completions, got %s", r.URL.Path)
		}
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			t.Error("missing Authorization header")
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		handler(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestNewClient(t *testing.T) {
	client := NewClient("http://localhost:8081/v1/", "test-key", "openai/gpt-4o-mini")
	if client == nil {
		t.Fatal("NewClient() returned nil")
	}
	if client.BaseURL != "http://localhost:8081/v1" {
		t.Errorf("NewClient() BaseURL = %v, want trailing slash trimmed", client.BaseURL)
	}
	if client.Model != "openai/gpt-4o-mini" {
		t.Errorf("NewClient() Model = %v", client.Model)
	}
}

func TestClient_Complete(t *testing.T) {
	tests := []struct {
		name        string
		params      ChatParams
		respond     func(w http.ResponseWriter, body map[string]any)
		wantContent string
		wantModel   string
		wantUsage   Usage
		wantErr     bool
	}{
		{
			name:   "reported usage",
			params: ChatParams{Temperature: 0.1, MaxTokens: 500},
			respond: func(w http.ResponseWriter, body map[string]any) {
				if body["model"] != "openai/gpt-4o-mini" {
					t.Errorf("model = %v, want client default", body["model"])
				}
				if body["max_tokens"] != float64(500) {
					t.Errorf("max_tokens = %v, want 500", body["max_tokens"])
				}
				_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","model":"openai/gpt-4o-mini",
					"choices":[{"index":0,"message":{"role":"assistant","content":" Vikram has 3 cars. "},"finish_reason":"stop"}],
					"usage":{"prompt_tokens":1000000,"completion_tokens":1000000,"total_tokens":2000000}}`))
			},
			wantContent: "Vikram has 3 cars.",
			wantModel:   "openai/gpt-4o-mini",
			wantUsage:   Usage{PromptTokens: 1000000, CompletionTokens: 1000000, TotalTokens: 2000000, CostUSD: 0.75},
		},
		{
			name:   "missing usage is estimated",
			params: ChatParams{Model: "override-model"},
			respond: func(w http.ResponseWriter, body map[string]any) {
				if body["model"] != "override-model" {
					t.Errorf("model = %v, want override-model", body["model"])
				}
				_, _ = w.Write([]byte(`{"id":"c2","object":"chat.completion",
					"choices":[{"index":0,"message":{"role":"assistant","content":"12345678"},"finish_reason":"stop"}]}`))
			},
			wantContent: "12345678",
			wantModel:   "override-model",
			wantUsage:   Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5, Estimated: true},
		},
		{
			name: "empty content",
			respond: func(w http.ResponseWriter, body map[string]any) {
				_, _ = w.Write([]byte(`{"id":"c3","object":"chat.completion",
					"choices":[{"index":0,"message":{"role":"assistant","content":"  "},"finish_reason":"stop"}]}`))
			},
			wantErr: true,
		},
		{
			name: "server error",
			respond: func(w http.ResponseWriter, body map[string]any) {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := chatServer(t, tt.respond)
			client := NewClient(server.URL+"/v1", "test-key", "openai/gpt-4o-mini")
			client.tokens = offlineCounter()

			messages := []Message{
				{Role: RoleSystem, Content: "sys."},
				{Role: RoleUser, Content: "question"},
			}
			got, err := client.Complete(context.Background(), messages, tt.params)
			if tt.wantErr {
				if err == nil {
					t.Error("Complete() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Complete() error = %v", err)
			}
			if got.Content != tt.wantContent {
				t.Errorf("Content = %q, want %q", got.Content, tt.wantContent)
			}
			if got.Model != tt.wantModel {
				t.Errorf("Model = %q, want %q", got.Model, tt.wantModel)
			}
			if got.Usage.PromptTokens != tt.wantUsage.PromptTokens ||
				got.Usage.CompletionTokens != tt.wantUsage.CompletionTokens ||
				got.Usage.TotalTokens != tt.wantUsage.TotalTokens ||
				got.Usage.Estimated != tt.wantUsage.Estimated {
				t.Errorf("Usage = %+v, want %+v", got.Usage, tt.wantUsage)
			}
			if math.Abs(got.Usage.CostUSD-PricingFor(tt.wantModel).Cost(tt.wantUsage.PromptTokens, tt.wantUsage.CompletionTokens)) > 1e-9 {
				t.Errorf("CostUSD = %v", got.Usage.CostUSD)
			}
		})
	}
}

func TestClient_Complete_EmptyCompletionError(t *testing.T) {
	server := chatServer(t, func(w http.ResponseWriter, body map[string]any) {
		_, _ = w.Write([]byte(`{"id":"c","object":"chat.completion","choices":[]}`))
	})
	client := NewClient(server.URL+"/v1", "k", "m")
	client.tokens = offlineCounter()

	_, err := client.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, ChatParams{})
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Errorf("Complete() error = %v, want ErrEmptyCompletion", err)
	}
}
