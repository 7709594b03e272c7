package rag

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_embedder.go -package=mocks aurora-qa/internal/rag Embedder
//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_generator.go -package=mocks aurora-qa/internal/rag Generator
//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_relevance_scorer.go -package=mocks aurora-qa/internal/rag RelevanceScorer
//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_author_directory.go -package=mocks aurora-qa/internal/rag AuthorDirectory

import (
	"context"

	"aurora-qa/internal/llm"
	"aurora-qa/internal/storage"
)

// Embedder turns texts into vectors, one per input and in input order.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces a chat completion.
type Generator interface {
	Complete(ctx context.Context, messages []llm.Message, params llm.ChatParams) (llm.Completion, error)
}

// RelevanceScorer scores (query, text) pairs jointly and returns one raw logit per text.
type RelevanceScorer interface {
	Score(ctx context.Context, query string, texts []string) ([]float64, error)
}

// AuthorDirectory lists the distinct authors of the corpus.
type AuthorDirectory interface {
	ListAuthors(ctx context.Context) ([]storage.Author, error)
}

// EntityResolver finds the members a question refers to.
type EntityResolver interface {
	Resolve(ctx context.Context, question string, questionVec []float32) []EntityMatch
}
