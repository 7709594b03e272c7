package rag

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"aurora-qa/internal/llm"
	"aurora-qa/internal/rag/mocks"
)

func TestParseJudgement(t *testing.T) {
	tests := []struct {
		name          string
		reply         string
		wantScore     float64
		wantReasoning string
	}{
		{name: "labelled", reply: "SCORE: 0.9, REASONING: Fully supported by the messages.", wantScore: 0.9, wantReasoning: "Fully supported by the messages."},
		{name: "lowercase labels", reply: "score: 1\nreasoning: direct answer", wantScore: 1, wantReasoning: "direct answer"},
		{name: "leading number", reply: "0.75, mostly relevant", wantScore: 0.75, wantReasoning: "mostly relevant"},
		{name: "ten point scale", reply: "I would rate this 8 out of ten", wantScore: 0.8, wantReasoning: "out of ten"},
		{name: "clamped", reply: "SCORE: 1.5, REASONING: generous", wantScore: 1, wantReasoning: "generous"},
		{name: "no number", reply: "cannot judge", wantScore: 0.5, wantReasoning: "cannot judge"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, reasoning := parseJudgement(tt.reply)
			if math.Abs(score-tt.wantScore) > 1e-9 {
				t.Errorf("score = %v, want %v", score, tt.wantScore)
			}
			if reasoning != tt.wantReasoning {
				t.Errorf("reasoning = %q, want %q", reasoning, tt.wantReasoning)
			}
		})
	}
}

func TestCompleteness(t *testing.T) {
	tests := []struct {
		answer     string
		wantScore  float64
		wantPassed bool
	}{
		{answer: "  ", wantScore: 0},
		{answer: "I don't have enough information to answer that.", wantScore: 0.3},
		{answer: "Three cars.", wantScore: 0.6},
		{answer: "Vikram Desai has three cars and needs parking in Dubai.", wantScore: 0.9, wantPassed: true},
	}

	for _, tt := range tests {
		got := completeness(tt.answer)
		if got.Name != EvalAnswerCompleteness {
			t.Errorf("Name = %q", got.Name)
		}
		if got.Score != tt.wantScore || got.Passed != tt.wantPassed {
			t.Errorf("completeness(%q) = %v/%v, want %v/%v", tt.answer, got.Score, got.Passed, tt.wantScore, tt.wantPassed)
		}
	}
}

// judgeReplies answers each judge by the evaluation named in its prompt.
func judgeReplies(replies map[string]string, failing map[string]bool) func(context.Context, []llm.Message, llm.ChatParams) (llm.Completion, error) {
	markers := map[string]string{
		"directly address the question": EvalAnswerRelevance,
		"supported by the context":      EvalGroundedness,
		"retrieved messages relevant":   EvalContextRelevance,
		"named entities":                EvalEntityAccuracy,
	}
	return func(_ context.Context, messages []llm.Message, params llm.ChatParams) (llm.Completion, error) {
		prompt := messages[len(messages)-1].Content
		for marker, name := range markers {
			if !strings.Contains(prompt, marker) {
				continue
			}
			if failing[name] {
				return llm.Completion{}, errors.New("429 rate limited")
			}
			return llm.Completion{Content: replies[name]}, nil
		}
		return llm.Completion{}, errors.New("unexpected prompt")
	}
}

func TestEvaluator_Evaluate(t *testing.T) {
	sources := []Candidate{
		{Passage: Passage{ID: "m1", AuthorName: "Vikram Desai", Text: "I have 3 cars and need parking in Dubai"}},
	}
	answer := "Vikram Desai has three cars and needs parking in Dubai."
	good := map[string]string{
		EvalAnswerRelevance:  "SCORE: 1, REASONING: answers the question",
		EvalGroundedness:     "SCORE: 0.9, REASONING: supported",
		EvalContextRelevance: "SCORE: 0.8, REASONING: relevant",
		EvalEntityAccuracy:   "SCORE: 1, REASONING: accurate",
	}

	tests := []struct {
		name        string
		replies     map[string]string
		failing     map[string]bool
		wantAverage float64
		wantPassed  bool
		wantErr     bool
	}{
		{
			name:        "all judges pass",
			replies:     good,
			wantAverage: (1 + 0.9 + 0.8 + 1 + 0.9) / 5,
			wantPassed:  true,
		},
		{
			name: "ungrounded answer fails",
			replies: map[string]string{
				EvalAnswerRelevance:  "SCORE: 1, REASONING: on topic",
				EvalGroundedness:     "SCORE: 0.2, REASONING: not in the messages",
				EvalContextRelevance: "SCORE: 0.8, REASONING: relevant",
				EvalEntityAccuracy:   "SCORE: 0.5, REASONING: wrong count",
			},
			wantAverage: (1 + 0.2 + 0.8 + 0.5 + 0.9) / 5,
		},
		{
			name:        "failed judge scores zero",
			replies:     good,
			failing:     map[string]bool{EvalGroundedness: true},
			wantAverage: (1 + 0 + 0.8 + 1 + 0.9) / 5,
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			gen := mocks.NewMockGenerator(ctrl)
			gen.EXPECT().
				Complete(gomock.Any(), gomock.Any(), llm.ChatParams{Temperature: 0.1, MaxTokens: 200}).
				DoAndReturn(judgeReplies(tt.replies, tt.failing)).
				Times(4)

			evaluator := NewEvaluator(gen)
			fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
			evaluator.now = func() time.Time { return fixed }

			results, err := evaluator.Evaluate(context.Background(), "How many cars does Vikram have?", answer, sources)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Evaluate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(results.Scores) != 5 {
				t.Fatalf("len(Scores) = %d, want 5", len(results.Scores))
			}
			wantOrder := []string{EvalAnswerRelevance, EvalGroundedness, EvalContextRelevance, EvalEntityAccuracy, EvalAnswerCompleteness}
			for i, s := range results.Scores {
				if s.Name != wantOrder[i] {
					t.Errorf("Scores[%d].Name = %q, want %q", i, s.Name, wantOrder[i])
				}
			}
			if math.Abs(results.AverageScore-tt.wantAverage) > 1e-9 {
				t.Errorf("AverageScore = %v, want %v", results.AverageScore, tt.wantAverage)
			}
			if results.AllPassed != tt.wantPassed {
				t.Errorf("AllPassed = %v, want %v", results.AllPassed, tt.wantPassed)
			}
			if !results.EvaluatedAt.Equal(fixed) {
				t.Errorf("EvaluatedAt = %v, want %v", results.EvaluatedAt, fixed)
			}
			for _, s := range results.Scores {
				if tt.failing[s.Name] && (s.Passed || !strings.HasPrefix(s.Reasoning, "evaluation failed")) {
					t.Errorf("failed judge %s = %+v", s.Name, s)
				}
			}
		})
	}
}

func TestEvaluator_PromptsCarryContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	gen := mocks.NewMockGenerator(ctrl)

	var grounded string
	gen.EXPECT().
		Complete(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, messages []llm.Message, _ llm.ChatParams) (llm.Completion, error) {
			if messages[0].Role != llm.RoleSystem || messages[0].Content != judgeSystemPrompt {
				t.Errorf("system message = %+v", messages[0])
			}
			if strings.Contains(messages[1].Content, "supported by the context") {
				grounded = messages[1].Content
			}
			return llm.Completion{Content: "SCORE: 1, REASONING: ok"}, nil
		}).
		Times(4)

	sources := []Candidate{
		{Passage: Passage{Text: "Book a chauffeur for Tuesday"}},
		{Passage: Passage{Text: "Reserve a table at the sushi bar"}},
	}
	_, err := NewEvaluator(gen).Evaluate(context.Background(), "What did Vikram book?", "A chauffeur.", sources)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !strings.Contains(grounded, "Retrieved Context:\n- Book a chauffeur for Tuesday\n- Reserve a table at the sushi bar") {
		t.Errorf("groundedness prompt missing context:\n%s", grounded)
	}
}
