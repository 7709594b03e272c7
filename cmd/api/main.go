package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aurora-qa/internal/config"
	"aurora-qa/internal/crossencoder"
	"aurora-qa/internal/http"
	"aurora-qa/internal/llm"
	"aurora-qa/internal/metrics"
	"aurora-qa/internal/rag"
	"aurora-qa/internal/service"
	"aurora-qa/internal/storage"
	"aurora-qa/internal/vectorstore"
)

//go:generate swagger generate spec -o swagger.json

// General API information
//
// This API answers natural-language questions about member messages.
//
// swagger:meta
//
// ---
// swagger: '2.0'
// info:
//   title: Aurora QA API
//   description: |
//     Question answering over member messages. Questions naming members are answered from
//     those members' messages; other questions search the whole corpus. Every answer carries
//     a confidence score and its breakdown.
//   version: 1.0.0
// schemes:
//   - http
//   - https
// consumes:
//   - application/json
// produces:
//   - application/json

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	db, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := storage.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	slog.Info("Database initialized", "path", cfg.DBPath)
	messageRepo := storage.NewMessageRepo(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vectorStore, err := openVectorStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open vector store: %v", err)
	}
	if err := vectorStore.EnsureCollection(ctx, cfg.QdrantCollection, cfg.VectorSize); err != nil {
		log.Fatalf("Failed to ensure collection: %v", err)
	}
	slog.Info("Vector collection ready", "backend", cfg.VectorBackend, "collection", cfg.QdrantCollection, "vector_size", cfg.VectorSize)

	embedder := llm.NewEmbeddingsClient(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModelName, cfg.VectorSize)
	llmClient := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModelName)
	m := metrics.NewMetrics()

	names := rag.NewNameResolver(messageRepo, embedder, rag.ResolverOptions{
		Threshold:      cfg.NameMatchThreshold,
		Margin:         cfg.NameMatchMargin,
		FuzzyThreshold: rag.DefaultResolverOptions().FuzzyThreshold,
		WarmTimeout:    cfg.NameWarmTimeout,
		Metrics:        m,
	})

	deps := rag.Deps{
		Embedder:  embedder,
		Names:     names,
		Index:     vectorStore,
		Messages:  messageRepo,
		Generator: llmClient,
		Metrics:   m,
	}
	if cfg.RerankerURL != "" {
		deps.Scorer = crossencoder.NewClient(cfg.RerankerURL, cfg.RerankerBatchSize, cfg.RerankTimeout)
		slog.Info("Cross-encoder reranking enabled", "url", cfg.RerankerURL)
	} else {
		slog.Warn("RERANKER_URL not set, answers will use retrieval order")
	}

	engine, err := rag.NewEngine(deps, engineConfig(cfg))
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}
	slog.Info("Engine initialized", "model", cfg.LLMModelName, "rerank_top_n", cfg.RerankTopN)

	go func() {
		if err := names.Warm(ctx); err != nil {
			slog.Warn("Name cache warm-up failed, it will be retried on first question", "error", err)
			return
		}
		slog.Info("Name cache ready", "entities", names.Size())
	}()

	router := http.NewRouter(&http.Deps{
		QAService:   service.NewQAService(engine),
		VectorStore: vectorStore,
		Messages:    messageRepo,
		Names:       names,
		Collection:  cfg.QdrantCollection,
	})

	server := &nethttp.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Starting API server", "addr", server.Addr)
		slog.Debug("LLM configuration", "base_url", cfg.LLMBaseURL, "model", cfg.LLMModelName)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			log.Fatalf("API server failed to start: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Graceful shutdown failed", "error", err)
	}
}

func openVectorStore(cfg *config.Config) (vectorstore.VectorStore, error) {
	if cfg.VectorBackend == config.BackendChromem {
		store, err := vectorstore.NewChromemStore(cfg.ChromemPath)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	store, err := vectorstore.NewQdrantStore(cfg.QdrantURL)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func engineConfig(cfg *config.Config) rag.EngineConfig {
	ec := rag.DefaultEngineConfig()
	ec.Collection = cfg.QdrantCollection
	ec.PoolSize = cfg.RetrievalPoolSize
	ec.EntityScanLimit = cfg.EntityScanLimit
	ec.RerankTopN = cfg.RerankTopN
	ec.Confidence = rag.ConfidenceConfig{
		WeightSources:     cfg.WeightSources,
		WeightRelevance:   cfg.WeightRelevance,
		WeightSpecificity: cfg.WeightSpecificity,
		WeightConsistency: cfg.WeightConsistency,
		SourceThreshold:   cfg.SourceThreshold,
	}
	ec.Chat = llm.ChatParams{
		Model:       cfg.LLMModelName,
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: float32(cfg.LLMTemperature),
	}
	ec.Timeouts = rag.StageTimeouts{
		Embed:    cfg.EmbedTimeout,
		Search:   cfg.SearchTimeout,
		Rerank:   cfg.RerankTimeout,
		Generate: cfg.GenerateTimeout,
		Evaluate: cfg.EvaluateTimeout,
	}
	return ec
}
