package rag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"aurora-qa/internal/contextutil"
	"aurora-qa/internal/llm"
	"aurora-qa/internal/metrics"
	"aurora-qa/internal/storage"
	"aurora-qa/internal/vectorstore"
)

// Engine answers natural-language questions about the message corpus.
type Engine interface {
	// Resolve runs the full pipeline for question and returns a grounded answer
	// with its confidence breakdown.
	Resolve(ctx context.Context, question string, opts Options) (AnswerResult, error)
}

// Deps are the collaborators of the engine. Scorer and Names may be nil.
type Deps struct {
	Embedder  Embedder
	Names     EntityResolver
	Index     vectorstore.VectorStore
	Messages  storage.MessageStore
	Scorer    RelevanceScorer
	Generator Generator
	Metrics   *metrics.Metrics
}

// StageTimeouts bound each external call. Zero disables the bound for that stage.
// Classification waits for the name cache at most Embed.
type StageTimeouts struct {
	Embed    time.Duration
	Search   time.Duration
	Rerank   time.Duration
	Generate time.Duration
	Evaluate time.Duration
}

// EngineConfig holds the tunables of the pipeline.
type EngineConfig struct {
	Collection      string
	PoolSize        int
	EntityScanLimit int
	RerankTopN      int
	Confidence      ConfidenceConfig
	Chat            llm.ChatParams
	Timeouts        StageTimeouts
}

// DefaultEngineConfig returns the production defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Collection:      "messages",
		PoolSize:        100,
		EntityScanLimit: 1000,
		RerankTopN:      30,
		Confidence:      DefaultConfidenceConfig(),
		Chat:            llm.ChatParams{MaxTokens: 500, Temperature: 0.1},
		Timeouts: StageTimeouts{
			Embed:    10 * time.Second,
			Search:   10 * time.Second,
			Rerank:   30 * time.Second,
			Generate: 60 * time.Second,
			Evaluate: 30 * time.Second,
		},
	}
}

// ragEngine implements the Engine interface.
type ragEngine struct {
	embedder   Embedder
	classifier *Classifier
	retriever  *Retriever
	reranker   *Reranker
	composer   *Composer
	evaluator  *Evaluator
	confidence *ConfidenceScorer
	metrics    *metrics.Metrics
	timeouts   StageTimeouts
}

// NewEngine wires the pipeline stages.
func NewEngine(deps Deps, cfg EngineConfig) (Engine, error) {
	if deps.Embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if deps.Index == nil || deps.Messages == nil {
		return nil, errors.New("vector index and message store are required")
	}
	if deps.Generator == nil {
		return nil, errors.New("generator is required")
	}
	confidence, err := NewConfidenceScorer(cfg.Confidence)
	if err != nil {
		return nil, fmt.Errorf("invalid confidence config: %w", err)
	}

	return &ragEngine{
		embedder:   deps.Embedder,
		classifier: NewClassifier(deps.Names),
		retriever: NewRetriever(deps.Index, deps.Messages, RetrieverOptions{
			Collection:      cfg.Collection,
			PoolSize:        cfg.PoolSize,
			EntityScanLimit: cfg.EntityScanLimit,
			SearchTimeout:   cfg.Timeouts.Search,
		}),
		reranker:   NewReranker(deps.Scorer, cfg.RerankTopN),
		composer:   NewComposer(deps.Generator, cfg.Chat),
		evaluator:  NewEvaluator(deps.Generator),
		confidence: confidence,
		metrics:    deps.Metrics,
		timeouts:   cfg.Timeouts,
	}, nil
}

// Resolve answers question. Retrieval and reranking failures degrade the answer;
// only embedding and generation failures are returned, as *StageError.
func (e *ragEngine) Resolve(ctx context.Context, question string, opts Options) (AnswerResult, error) {
	logger := contextutil.LoggerFromContext(ctx)
	start := time.Now()

	logger.InfoContext(ctx, "query started", "question_length", len(question))

	// Embed the question
	stageStart := time.Now()
	questionVec, err := e.embed(ctx, question)
	if err != nil {
		e.metrics.ObserveStage(StageEmbed, outcomeOf(err), time.Since(stageStart))
		logger.ErrorContext(ctx, "failed to embed question", "error", err)
		return AnswerResult{}, err
	}
	e.metrics.ObserveStage(StageEmbed, metrics.OutcomeOK, time.Since(stageStart))

	// Classify
	stageStart = time.Now()
	classifyCtx, cancel := withStageTimeout(ctx, e.timeouts.Embed)
	classification := e.classifier.Classify(classifyCtx, question, questionVec)
	cancel()
	e.metrics.ObserveStage(StageClassify, metrics.OutcomeOK, time.Since(stageStart))

	// Retrieve
	stageStart = time.Now()
	strategy := e.retriever.StrategyFor(classification)
	candidates := strategy.Retrieve(ctx, classification, questionVec)
	e.metrics.ObserveStage(StageRetrieve, metrics.OutcomeOK, time.Since(stageStart))
	e.metrics.ObserveCandidates(StageRetrieve, len(candidates))

	logger.InfoContext(ctx, "candidates retrieved",
		"category", classification.Category,
		"entities", classification.EntityNames(),
		"strategy", strategy.Name(),
		"candidates", len(candidates),
	)

	// Rerank
	stageStart = time.Now()
	rerankCtx, cancel := withStageTimeout(ctx, e.timeouts.Rerank)
	outcome := e.reranker.Rerank(rerankCtx, question, candidates, opts.MaxSources)
	cancel()
	rerankOutcome := metrics.OutcomeOK
	if !outcome.Reranked {
		rerankOutcome = metrics.OutcomeFallback
	}
	e.metrics.ObserveStage(StageRerank, rerankOutcome, time.Since(stageStart))
	e.metrics.ObserveCandidates(StageRerank, len(outcome.Candidates))

	// Generate
	stageStart = time.Now()
	genCtx, cancel := withStageTimeout(ctx, e.timeouts.Generate)
	composition, err := e.composer.Compose(genCtx, question, outcome.Candidates)
	if err != nil {
		err = stageFailure(genCtx, StageGenerate, ErrGeneration, e.timeouts.Generate, err)
	}
	cancel()
	if err != nil {
		e.metrics.ObserveStage(StageGenerate, outcomeOf(err), time.Since(stageStart))
		logger.ErrorContext(ctx, "failed to generate answer", "error", err)
		return AnswerResult{}, err
	}
	e.metrics.ObserveStage(StageGenerate, metrics.OutcomeOK, time.Since(stageStart))

	breakdown := e.confidence.Score(classification, composition.Sources, outcome.Reranked)
	e.metrics.ObserveAnswer(string(classification.Category), breakdown.Total, composition.Usage.CostUSD)

	result := AnswerResult{
		Answer:         composition.Answer,
		Confidence:     breakdown,
		Band:           BandFor(breakdown.Total),
		Classification: classification,
		Tip:            Tip(breakdown, classification, len(composition.Sources)),
		Model:          composition.Model,
		Usage:          composition.Usage,
		Reranked:       outcome.Reranked,
		Retrieved:      len(candidates),
	}
	if opts.IncludeSources {
		result.Sources = toSources(composition.Sources)
	}
	if opts.IncludeEvaluations {
		result.Evaluations = e.evaluate(ctx, question, composition)
	}
	result.Latency = time.Since(start)

	logger.InfoContext(ctx, "query completed",
		"category", classification.Category,
		"sources", len(composition.Sources),
		"confidence", breakdown.Total,
		"reranked", outcome.Reranked,
		"latency_ms", result.Latency.Milliseconds(),
	)

	return result, nil
}

// evaluate judges the answer. Failed judges score 0 and are logged; they never
// fail the request.
func (e *ragEngine) evaluate(ctx context.Context, question string, composition Composition) *EvaluationResults {
	logger := contextutil.LoggerFromContext(ctx)
	stageStart := time.Now()

	evalCtx, cancel := withStageTimeout(ctx, e.timeouts.Evaluate)
	defer cancel()

	results, err := e.evaluator.Evaluate(evalCtx, question, composition.Answer, composition.Sources)
	if err == nil {
		e.metrics.ObserveStage(StageEvaluate, metrics.OutcomeOK, time.Since(stageStart))
		return &results
	}

	outcome := metrics.OutcomeFallback
	if errors.Is(evalCtx.Err(), context.DeadlineExceeded) {
		outcome = metrics.OutcomeTimeout
	}
	e.metrics.ObserveStage(StageEvaluate, outcome, time.Since(stageStart))
	logger.WarnContext(ctx, "answer evaluation incomplete", "error", err)
	return &results
}

func (e *ragEngine) embed(ctx context.Context, question string) ([]float32, error) {
	embedCtx, cancel := withStageTimeout(ctx, e.timeouts.Embed)
	defer cancel()

	vectors, err := e.embedder.EmbedTexts(embedCtx, []string{question})
	if err != nil {
		return nil, stageFailure(embedCtx, StageEmbed, ErrEmbedding, e.timeouts.Embed, err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, &StageError{Stage: StageEmbed, Kind: ErrEmbedding, Err: errors.New("no embedding returned for question")}
	}
	return vectors[0], nil
}

func withStageTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

// stageFailure wraps err for stage, marking it as a timeout when the stage's own
// deadline fired.
func stageFailure(stageCtx context.Context, stage string, kind error, d time.Duration, err error) error {
	if errors.Is(stageCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %s: %w", ErrTimeout, d, err)
	}
	return &StageError{Stage: stage, Kind: kind, Err: err}
}

func outcomeOf(err error) string {
	if errors.Is(err, ErrTimeout) {
		return metrics.OutcomeTimeout
	}
	return metrics.OutcomeError
}

func toSources(candidates []Candidate) []Source {
	sources := make([]Source, len(candidates))
	for i, c := range candidates {
		src := Source{
			ID:         c.Passage.ID,
			AuthorID:   c.Passage.AuthorID,
			AuthorName: c.Passage.AuthorName,
			Timestamp:  c.Passage.Timestamp,
			Text:       c.Passage.Text,
			Similarity: c.Similarity,
		}
		if c.Scored {
			relevance := c.Relevance.Float64()
			src.Relevance = &relevance
		}
		sources[i] = src
	}
	return sources
}
