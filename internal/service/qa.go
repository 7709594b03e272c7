package service

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_query_engine.go -package=mocks aurora-qa/internal/service QueryEngine
//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_qa_service.go -package=mocks -mock_names=QAService=MockQAService aurora-qa/internal/service QAService

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"aurora-qa/internal/contextutil"
	"aurora-qa/internal/llm"
	"aurora-qa/internal/rag"
)

// Question and source limits accepted by Ask.
const (
	MinQuestionLength = 5
	MaxQuestionLength = 500
	MinSources        = 1
	MaxSources        = 500
)

// QueryEngine answers questions over the message corpus.
// This interface is defined from the service layer's perspective (consumer-first).
type QueryEngine interface {
	Resolve(ctx context.Context, question string, opts rag.Options) (rag.AnswerResult, error)
}

// AskRequest represents a question in the domain layer.
type AskRequest struct {
	Question       string
	IncludeSources bool
	// IncludeEvaluations asks for the answer to be judged.
	IncludeEvaluations bool
	// MaxSources caps the passages used for the answer. Nil uses the engine default.
	MaxSources *int
}

// Source is a message the answer was grounded on.
type Source struct {
	ID         string
	UserID     string
	UserName   string
	Timestamp  string
	Message    string
	Similarity float64
	Relevance  *float64
}

// AskResponse represents an answered question in the domain layer.
type AskResponse struct {
	Answer         string
	Confidence     float64
	Band           rag.Band
	Breakdown      rag.ConfidenceBreakdown
	QueryType      rag.Category
	MentionedUsers []string
	Sources        []Source
	Tip            string
	Model          string
	Usage          llm.Usage
	Reranked       bool
	Latency        time.Duration
	Evaluations    *rag.EvaluationResults
}

// QAService provides question answering.
type QAService interface {
	// Ask validates req and answers it.
	Ask(ctx context.Context, req AskRequest) (AskResponse, error)
}

// qaService implements QAService.
type qaService struct {
	engine QueryEngine
}

// NewQAService creates a new QAService.
func NewQAService(engine QueryEngine) QAService {
	return &qaService{engine: engine}
}

// Ask answers a question. Validation failures return *ValidationError wrapping
// ErrInvalidInput; embedding and generation failures wrap ErrExternalService and
// keep the engine error in the chain.
func (s *qaService) Ask(ctx context.Context, req AskRequest) (AskResponse, error) {
	logger := contextutil.LoggerFromContext(ctx)

	question := strings.TrimSpace(req.Question)
	if err := validateAsk(question, req.MaxSources); err != nil {
		logger.WarnContext(ctx, "invalid ask request", "error", err)
		return AskResponse{}, err
	}

	opts := rag.Options{IncludeSources: req.IncludeSources, IncludeEvaluations: req.IncludeEvaluations}
	if req.MaxSources != nil {
		opts.MaxSources = *req.MaxSources
	}

	result, err := s.engine.Resolve(ctx, question, opts)
	if err != nil {
		logger.ErrorContext(ctx, "failed to answer question", "error", err)
		if errors.Is(err, rag.ErrEmbedding) || errors.Is(err, rag.ErrGeneration) {
			return AskResponse{}, fmt.Errorf("%w: %w", ErrExternalService, err)
		}
		return AskResponse{}, WrapError(err, "failed to answer question")
	}

	logger.InfoContext(ctx, "question answered",
		"category", result.Classification.Category,
		"confidence", result.Confidence.Total,
		"sources", len(result.Sources),
	)

	return toAskResponse(result), nil
}

func validateAsk(question string, maxSources *int) error {
	n := utf8.RuneCountInString(question)
	switch {
	case n == 0:
		return &ValidationError{Field: "question", Message: "cannot be empty"}
	case n < MinQuestionLength:
		return &ValidationError{Field: "question", Message: fmt.Sprintf("must be at least %d characters", MinQuestionLength)}
	case n > MaxQuestionLength:
		return &ValidationError{Field: "question", Message: fmt.Sprintf("must be at most %d characters", MaxQuestionLength)}
	}
	if maxSources != nil && (*maxSources < MinSources || *maxSources > MaxSources) {
		return &ValidationError{Field: "max_sources", Message: fmt.Sprintf("must be between %d and %d", MinSources, MaxSources)}
	}
	return nil
}

func toAskResponse(result rag.AnswerResult) AskResponse {
	resp := AskResponse{
		Answer:         result.Answer,
		Confidence:     result.Confidence.Total,
		Band:           result.Band,
		Breakdown:      result.Confidence,
		QueryType:      result.Classification.Category,
		MentionedUsers: result.Classification.EntityNames(),
		Tip:            result.Tip,
		Model:          result.Model,
		Usage:          result.Usage,
		Reranked:       result.Reranked,
		Latency:        result.Latency,
		Evaluations:    result.Evaluations,
	}
	if result.Sources != nil {
		resp.Sources = make([]Source, len(result.Sources))
		for i, src := range result.Sources {
			resp.Sources[i] = Source{
				ID:         src.ID,
				UserID:     src.AuthorID,
				UserName:   src.AuthorName,
				Timestamp:  src.Timestamp,
				Message:    src.Text,
				Similarity: src.Similarity,
				Relevance:  src.Relevance,
			}
		}
	}
	return resp
}
