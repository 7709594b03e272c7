package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aurora-qa/internal/handlers"
	"aurora-qa/internal/rag"
)

func sampleResponse() handlers.AskResponse {
	reranker := 0.93
	return handlers.AskResponse{
		Answer:          "Vikram has 3 cars.",
		Confidence:      0.84,
		ConfidenceLevel: "high",
		ConfidenceBreakdown: rag.ConfidenceBreakdown{
			SourceCount: 0.3, Relevance: 0.17, Specificity: 0.17, Consistency: 0.2, Total: 0.84,
		},
		Sources: []handlers.SourceResponse{{
			ID: "m2", UserID: "u2", UserName: "Vikram Desai", Message: "I have 3 cars and need parking in Dubai.",
			SimilarityScore: 0.71, RerankerScore: &reranker,
		}},
		LatencyMs:  1234.5,
		ModelUsed:  "openai/gpt-4o-mini",
		TokenUsage: handlers.TokenUsageResponse{PromptTokens: 900, CompletionTokens: 20, TotalTokens: 920, CostUSD: 0.000147},
		QueryMetadata: handlers.QueryMetadata{
			QueryType:      "factual",
			MentionedUsers: []string{"Vikram Desai"},
		},
		Tips:     "High confidence: the answer is grounded in 12 messages.",
		Reranked: true,
	}
}

func newAskServer(t *testing.T, status int, body any, got *handlers.AskRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/ask", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		if got != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(got))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestAsk_Formatted(t *testing.T) {
	var got handlers.AskRequest
	srv := newAskServer(t, http.StatusOK, sampleResponse(), &got)

	out, err := execute(t, "ask", "How many cars does Vikram have?", "--url", srv.URL, "--sources", "--max-sources", "5", "--verbose")
	require.NoError(t, err)

	assert.Equal(t, "How many cars does Vikram have?", got.Question)
	assert.True(t, got.IncludeSources)
	require.NotNil(t, got.MaxSources)
	assert.Equal(t, 5, *got.MaxSources)

	assert.Contains(t, out, "Vikram has 3 cars.")
	assert.Contains(t, out, "Confidence: HIGH (84%)")
	assert.Contains(t, out, "Query Type: factual")
	assert.Contains(t, out, "Users: Vikram Desai")
	assert.Contains(t, out, "Tokens: 920 (900 prompt + 20 completion)")
	assert.Contains(t, out, "SOURCES (1 messages)")
	assert.Contains(t, out, "Reranker: 0.9300")
}

func TestAsk_OmitsMaxSourcesUnlessSet(t *testing.T) {
	var got handlers.AskRequest
	srv := newAskServer(t, http.StatusOK, sampleResponse(), &got)

	_, err := execute(t, "ask", "Summarize", "Sophia's", "messages", "--url", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Summarize Sophia's messages", got.Question)
	assert.Nil(t, got.MaxSources)
	assert.False(t, got.IncludeSources)
	require.NotNil(t, got.IncludeEvaluations, "the CLI opts out of evaluations explicitly")
	assert.False(t, *got.IncludeEvaluations)
}

func TestAsk_Evaluations(t *testing.T) {
	resp := sampleResponse()
	resp.Evaluations = &rag.EvaluationResults{
		Scores: []rag.EvaluationScore{
			{Name: rag.EvalGroundedness, Score: 0.9, Reasoning: "supported by the messages", Passed: true},
			{Name: rag.EvalAnswerCompleteness, Score: 0.6, Reasoning: "Answer is quite short"},
		},
		AverageScore: 0.75,
	}
	var got handlers.AskRequest
	srv := newAskServer(t, http.StatusOK, resp, &got)

	out, err := execute(t, "ask", "How many cars does Vikram have?", "--url", srv.URL, "--evaluations", "--verbose")
	require.NoError(t, err)

	require.NotNil(t, got.IncludeEvaluations)
	assert.True(t, *got.IncludeEvaluations)
	assert.Contains(t, out, "EVALUATIONS")
	assert.Contains(t, out, "PASS groundedness: 0.90")
	assert.Contains(t, out, "   supported by the messages")
	assert.Contains(t, out, "FAIL answer_completeness: 0.60")
	assert.Contains(t, out, "Average Score: 0.75")
}

func TestAsk_JSON(t *testing.T) {
	srv := newAskServer(t, http.StatusOK, sampleResponse(), nil)

	out, err := execute(t, "ask", "How many cars does Vikram have?", "--url", srv.URL, "--json")
	require.NoError(t, err)

	var decoded handlers.AskResponse
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "Vikram has 3 cars.", decoded.Answer)
	assert.Contains(t, out, "\n  \"answer\"")
}

func TestAsk_ServerError(t *testing.T) {
	srv := newAskServer(t, http.StatusBadGateway, handlers.ErrorResponse{Error: "External service error"}, nil)

	_, err := execute(t, "ask", "What did Zzyx say?", "--url", srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "External service error")
}

func TestReadQuestion(t *testing.T) {
	q, err := readQuestion(nil, strings.NewReader("  Compare Layla and Vikram \n"))
	require.NoError(t, err)
	assert.Equal(t, "Compare Layla and Vikram", q)

	_, err = readQuestion(nil, strings.NewReader("   "))
	assert.Error(t, err)
}

func TestConfidenceLabel(t *testing.T) {
	tests := []struct {
		confidence float64
		want       string
	}{
		{0.95, "HIGH"},
		{0.8, "HIGH"},
		{0.79, "MODERATE"},
		{0.6, "MODERATE"},
		{0.59, "LOW"},
		{0, "LOW"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, confidenceLabel(tt.confidence), "confidence %v", tt.confidence)
	}
}

func TestFormatResponse_LowConfidenceWithoutReranker(t *testing.T) {
	resp := handlers.AskResponse{
		Answer:        "I don't have information about Zzyx.",
		Confidence:    0.12,
		QueryMetadata: handlers.QueryMetadata{QueryType: "general", MentionedUsers: []string{}},
		Tips:          "No relevant sources were found for this question.",
	}

	out := formatResponse(resp, false)

	assert.Contains(t, out, "Confidence: LOW (12%)")
	assert.Contains(t, out, "Reranker: unavailable")
	assert.NotContains(t, out, "Users:")
	assert.NotContains(t, out, "SOURCES")
	assert.Contains(t, out, "Tip: No relevant sources")
}

func TestFormatResponse_TruncatesLongSources(t *testing.T) {
	resp := sampleResponse()
	resp.Sources[0].Message = strings.Repeat("x", 300)

	out := formatResponse(resp, false)

	assert.Contains(t, out, strings.Repeat("x", sourcePreviewLen))
	assert.NotContains(t, out, strings.Repeat("x", sourcePreviewLen+1))
	assert.NotContains(t, out, "Score:")
}

func TestLoad_RequiresFile(t *testing.T) {
	_, err := execute(t, "load")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file")
}
