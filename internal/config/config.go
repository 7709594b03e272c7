package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Vector backends supported by the query pipeline.
const (
	BackendQdrant  = "qdrant"
	BackendChromem = "chromem"
)

// Config holds all configuration for the application.
type Config struct {
	APIPort   string
	LogLevel  slog.Level
	LogFormat string

	DBPath string

	VectorBackend    string
	QdrantURL        string
	QdrantCollection string
	VectorSize       int
	ChromemPath      string

	LLMBaseURL     string
	LLMAPIKey      string
	LLMModelName   string
	LLMTemperature float64
	LLMMaxTokens   int

	EmbeddingBaseURL   string
	EmbeddingAPIKey    string
	EmbeddingModelName string

	RerankerURL       string
	RerankerBatchSize int

	RetrievalPoolSize int
	EntityScanLimit   int
	RerankTopN        int

	WeightSources      float64
	WeightRelevance    float64
	WeightSpecificity  float64
	WeightConsistency  float64
	SourceThreshold    int
	NameMatchThreshold float64
	NameMatchMargin    float64

	EmbedTimeout    time.Duration
	SearchTimeout   time.Duration
	RerankTimeout   time.Duration
	GenerateTimeout time.Duration
	EvaluateTimeout time.Duration
	// NameWarmTimeout bounds one build of the member-name cache.
	NameWarmTimeout time.Duration
}

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates required fields.
// If a .env file exists in the current directory or a parent directory, it is loaded first.
// Environment variables already set take precedence over .env file values.
func Load() (*Config, error) {
	_ = godotenv.Load()

	wd, err := os.Getwd()
	if err == nil {
		dir := wd
		for i := 0; i < 5; i++ {
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	return FromEnv()
}

// FromEnv builds a Config from the process environment without touching .env files.
func FromEnv() (*Config, error) {
	llmBaseURL := getEnv("LLM_BASE_URL", "https://openrouter.ai/api/v1")
	llmAPIKey := getEnv("LLM_API_KEY", "")

	cfg := &Config{
		APIPort:            getEnv("API_PORT", "8000"),
		LogFormat:          strings.ToLower(getEnv("LOG_FORMAT", "text")),
		DBPath:             getEnv("DB_PATH", "./data/aurora.db"),
		VectorBackend:      strings.ToLower(getEnv("VECTOR_BACKEND", BackendQdrant)),
		QdrantURL:          getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantCollection:   getEnv("QDRANT_COLLECTION", "messages"),
		ChromemPath:        getEnv("CHROMEM_PATH", ""),
		LLMBaseURL:         llmBaseURL,
		LLMAPIKey:          llmAPIKey,
		LLMModelName:       getEnv("LLM_MODEL", "openai/gpt-4o-mini"),
		EmbeddingBaseURL:   getEnv("EMBEDDING_BASE_URL", llmBaseURL),
		EmbeddingAPIKey:    getEnv("EMBEDDING_API_KEY", llmAPIKey),
		EmbeddingModelName: getEnv("EMBEDDING_MODEL", "BAAI/bge-large-en-v1.5"),
		RerankerURL:        getEnv("RERANKER_URL", ""),
	}

	level, err := parseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	switch cfg.VectorBackend {
	case BackendQdrant, BackendChromem:
	default:
		return nil, fmt.Errorf("VECTOR_BACKEND must be %q or %q, got %q", BackendQdrant, BackendChromem, cfg.VectorBackend)
	}

	// Must match the output size of the embeddings model; changing it requires a reindex.
	vectorSizeStr := getEnv("VECTOR_SIZE", "")
	if vectorSizeStr == "" {
		return nil, fmt.Errorf("VECTOR_SIZE is required")
	}
	vectorSize, err := strconv.Atoi(vectorSizeStr)
	if err != nil {
		return nil, fmt.Errorf("VECTOR_SIZE must be a valid integer: %w", err)
	}
	if vectorSize <= 0 {
		return nil, fmt.Errorf("VECTOR_SIZE must be greater than 0")
	}
	cfg.VectorSize = vectorSize

	if cfg.LLMAPIKey == "" {
		return nil, fmt.Errorf("LLM_API_KEY is required")
	}

	ints := []struct {
		key  string
		def  int
		dest *int
	}{
		{"LLM_MAX_TOKENS", 500, &cfg.LLMMaxTokens},
		{"RERANKER_BATCH_SIZE", 64, &cfg.RerankerBatchSize},
		{"RETRIEVAL_POOL_SIZE", 100, &cfg.RetrievalPoolSize},
		{"ENTITY_SCAN_LIMIT", 1000, &cfg.EntityScanLimit},
		{"RERANK_TOP_N", 30, &cfg.RerankTopN},
		{"CONFIDENCE_SOURCE_THRESHOLD", 10, &cfg.SourceThreshold},
	}
	for _, item := range ints {
		v, err := getPositiveInt(item.key, item.def)
		if err != nil {
			return nil, err
		}
		*item.dest = v
	}

	floats := []struct {
		key  string
		def  float64
		dest *float64
	}{
		{"LLM_TEMPERATURE", 0.1, &cfg.LLMTemperature},
		{"CONFIDENCE_WEIGHT_SOURCES", 0.30, &cfg.WeightSources},
		{"CONFIDENCE_WEIGHT_RELEVANCE", 0.30, &cfg.WeightRelevance},
		{"CONFIDENCE_WEIGHT_SPECIFICITY", 0.20, &cfg.WeightSpecificity},
		{"CONFIDENCE_WEIGHT_CONSISTENCY", 0.20, &cfg.WeightConsistency},
		{"NAME_MATCH_THRESHOLD", 0.5, &cfg.NameMatchThreshold},
		{"NAME_MATCH_MARGIN", 0.1, &cfg.NameMatchMargin},
	}
	for _, item := range floats {
		v, err := getNonNegativeFloat(item.key, item.def)
		if err != nil {
			return nil, err
		}
		*item.dest = v
	}

	durations := []struct {
		key  string
		def  time.Duration
		dest *time.Duration
	}{
		{"EMBED_TIMEOUT", 10 * time.Second, &cfg.EmbedTimeout},
		{"SEARCH_TIMEOUT", 10 * time.Second, &cfg.SearchTimeout},
		{"RERANK_TIMEOUT", 30 * time.Second, &cfg.RerankTimeout},
		{"GENERATE_TIMEOUT", 60 * time.Second, &cfg.GenerateTimeout},
		{"EVALUATE_TIMEOUT", 30 * time.Second, &cfg.EvaluateTimeout},
		{"NAME_WARM_TIMEOUT", 30 * time.Second, &cfg.NameWarmTimeout},
	}
	for _, item := range durations {
		v, err := getDuration(item.key, item.def)
		if err != nil {
			return nil, err
		}
		*item.dest = v
	}

	dataDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getPositiveInt(key string, defaultValue int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}
	return v, nil
}

func getNonNegativeFloat(key string, defaultValue float64) (float64, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid number: %w", key, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return v, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid duration: %w", key, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}
	return v, nil
}

func parseLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error: %w", err)
	}
	return level, nil
}
