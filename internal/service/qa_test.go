package service_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"go.uber.org/mock/gomock"

	"aurora-qa/internal/llm"
	"aurora-qa/internal/rag"
	"aurora-qa/internal/service"
	"aurora-qa/internal/service/mocks"
)

func init() {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func intPtr(v int) *int { return &v }

func sampleResult() rag.AnswerResult {
	relevance := 0.93
	return rag.AnswerResult{
		Answer:     "Vikram has 3 cars.",
		Confidence: rag.ConfidenceBreakdown{SourceCount: 0.3, Relevance: 0.2, Specificity: 0.17, Consistency: 0.16, Total: 0.83},
		Band:       rag.BandHigh,
		Classification: rag.Classification{
			Category: rag.CategoryFactual,
			Entities: []rag.Entity{{ID: "u2", Name: "Vikram Desai"}},
		},
		Sources: []rag.Source{{
			ID: "msg-1", AuthorID: "u2", AuthorName: "Vikram Desai",
			Timestamp: "2025-01-02T10:00:00Z", Text: "I have 3 cars", Similarity: 0.71, Relevance: &relevance,
		}},
		Tip:      "High confidence: the answer is grounded in 1 message.",
		Model:    "openai/gpt-4o-mini",
		Usage:    llm.Usage{TotalTokens: 920},
		Reranked: true,
	}
}

func TestQAService_Ask(t *testing.T) {
	tests := []struct {
		name      string
		req       service.AskRequest
		mockSetup func(*mocks.MockQueryEngine)
		wantErr   error
		check     func(*testing.T, service.AskResponse)
	}{
		{
			name: "answers with sources",
			req:  service.AskRequest{Question: "  How many cars does Vikram have?  ", IncludeSources: true, MaxSources: intPtr(10)},
			mockSetup: func(m *mocks.MockQueryEngine) {
				m.EXPECT().
					Resolve(gomock.Any(), "How many cars does Vikram have?", rag.Options{IncludeSources: true, MaxSources: 10}).
					Return(sampleResult(), nil)
			},
			check: func(t *testing.T, resp service.AskResponse) {
				if resp.Answer != "Vikram has 3 cars." || resp.Confidence != 0.83 {
					t.Errorf("unexpected response: %+v", resp)
				}
				if resp.QueryType != rag.CategoryFactual {
					t.Errorf("QueryType = %q", resp.QueryType)
				}
				if len(resp.MentionedUsers) != 1 || resp.MentionedUsers[0] != "Vikram Desai" {
					t.Errorf("MentionedUsers = %v", resp.MentionedUsers)
				}
				if len(resp.Sources) != 1 || resp.Sources[0].Message != "I have 3 cars" || resp.Sources[0].UserID != "u2" {
					t.Errorf("Sources = %+v", resp.Sources)
				}
			},
		},
		{
			name: "default max sources",
			req:  service.AskRequest{Question: "What did Zzyx say?"},
			mockSetup: func(m *mocks.MockQueryEngine) {
				m.EXPECT().Resolve(gomock.Any(), "What did Zzyx say?", rag.Options{}).Return(rag.AnswerResult{Answer: "Unknown."}, nil)
			},
			check: func(t *testing.T, resp service.AskResponse) {
				if resp.Sources != nil {
					t.Errorf("Sources = %+v, want nil", resp.Sources)
				}
			},
		},
		{
			name: "passes evaluations through",
			req:  service.AskRequest{Question: "How many cars does Vikram have?", IncludeEvaluations: true, MaxSources: intPtr(45)},
			mockSetup: func(m *mocks.MockQueryEngine) {
				result := sampleResult()
				result.Evaluations = &rag.EvaluationResults{
					Scores:       []rag.EvaluationScore{{Name: rag.EvalGroundedness, Score: 0.9, Passed: true}},
					AverageScore: 0.9,
					AllPassed:    true,
				}
				m.EXPECT().
					Resolve(gomock.Any(), gomock.Any(), rag.Options{IncludeEvaluations: true, MaxSources: 45}).
					Return(result, nil)
			},
			check: func(t *testing.T, resp service.AskResponse) {
				if resp.Evaluations == nil || resp.Evaluations.AverageScore != 0.9 {
					t.Errorf("Evaluations = %+v, want average 0.9", resp.Evaluations)
				}
			},
		},
		{name: "empty question", req: service.AskRequest{Question: "   "}, wantErr: service.ErrInvalidInput},
		{name: "too short", req: service.AskRequest{Question: "Hi?"}, wantErr: service.ErrInvalidInput},
		{name: "too long", req: service.AskRequest{Question: strings.Repeat("a", 501)}, wantErr: service.ErrInvalidInput},
		{name: "max sources zero", req: service.AskRequest{Question: "What did Zzyx say?", MaxSources: intPtr(0)}, wantErr: service.ErrInvalidInput},
		{name: "max sources too large", req: service.AskRequest{Question: "What did Zzyx say?", MaxSources: intPtr(501)}, wantErr: service.ErrInvalidInput},
		{
			name: "embedding failure",
			req:  service.AskRequest{Question: "What did Zzyx say?"},
			mockSetup: func(m *mocks.MockQueryEngine) {
				m.EXPECT().Resolve(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(rag.AnswerResult{}, &rag.StageError{Stage: rag.StageEmbed, Kind: rag.ErrEmbedding, Err: errors.New("401")})
			},
			wantErr: service.ErrExternalService,
		},
		{
			name: "generation timeout",
			req:  service.AskRequest{Question: "What did Zzyx say?"},
			mockSetup: func(m *mocks.MockQueryEngine) {
				m.EXPECT().Resolve(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(rag.AnswerResult{}, &rag.StageError{
						Stage: rag.StageGenerate,
						Kind:  rag.ErrGeneration,
						Err:   fmt.Errorf("%w: %w", rag.ErrTimeout, context.DeadlineExceeded),
					})
			},
			wantErr: rag.ErrTimeout,
		},
		{
			name: "unexpected failure",
			req:  service.AskRequest{Question: "What did Zzyx say?"},
			mockSetup: func(m *mocks.MockQueryEngine) {
				m.EXPECT().Resolve(gomock.Any(), gomock.Any(), gomock.Any()).Return(rag.AnswerResult{}, errors.New("boom"))
			},
			wantErr: errors.New("boom"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			engine := mocks.NewMockQueryEngine(ctrl)
			if tt.mockSetup != nil {
				tt.mockSetup(engine)
			}

			resp, err := service.NewQAService(engine).Ask(context.Background(), tt.req)
			if tt.wantErr != nil {
				if err == nil {
					t.Fatalf("Ask() error = nil, want %v", tt.wantErr)
				}
				if !errors.Is(err, tt.wantErr) && !strings.Contains(err.Error(), tt.wantErr.Error()) {
					t.Errorf("Ask() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Ask() unexpected error: %v", err)
			}
			if tt.check != nil {
				tt.check(t, resp)
			}
		})
	}
}

func TestQAService_ValidationErrorField(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := service.NewQAService(mocks.NewMockQueryEngine(ctrl))

	_, err := svc.Ask(context.Background(), service.AskRequest{Question: "What did Zzyx say?", MaxSources: intPtr(-1)})
	var vErr *service.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("Ask() error = %v, want *ValidationError", err)
	}
	if vErr.Field != "max_sources" {
		t.Errorf("Field = %q, want max_sources", vErr.Field)
	}
}
