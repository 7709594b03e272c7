package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"aurora-qa/internal/config"
	"aurora-qa/internal/contextutil"
	"aurora-qa/internal/indexer"
	"aurora-qa/internal/llm"
	"aurora-qa/internal/storage"
	"aurora-qa/internal/vectorstore"
)

func newLoadCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load a member-message export into the local index",
		Long: `Load a JSON export of member messages into the message store and vector index.

The export is either an array of messages or a page of the form {"total": N, "items": [...]}.
Each message has id, user_id, user_name, timestamp and message fields. Loading the same
export twice leaves the index unchanged.

Storage, vector backend and embedding settings come from the environment (.env supported).

Examples:
  aurora load --file messages.json
  VECTOR_BACKEND=chromem CHROMEM_PATH=./data/chromem aurora load --file messages.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(cmd, file)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "path to the JSON export")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runLoad(cmd *cobra.Command, file string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	ctx := contextutil.WithLogger(cmd.Context(), logger)

	db, err := storage.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()
	if err := storage.Migrate(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	var vectors vectorstore.VectorStore
	if cfg.VectorBackend == config.BackendChromem {
		vectors, err = vectorstore.NewChromemStore(cfg.ChromemPath)
	} else {
		vectors, err = vectorstore.NewQdrantStore(cfg.QdrantURL)
	}
	if err != nil {
		return fmt.Errorf("failed to open vector store: %w", err)
	}

	embedder := llm.NewEmbeddingsClient(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModelName, cfg.VectorSize)
	pipeline := indexer.NewPipeline(storage.NewMessageRepo(db), embedder, vectors, cfg.QdrantCollection, cfg.VectorSize, cfg.EmbeddingModelName)

	stats, err := pipeline.LoadFile(ctx, file)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Loaded %s into %s/%s\n", file, cfg.VectorBackend, cfg.QdrantCollection)
	fmt.Fprintf(out, "  read %d, stored %d, embedded %d, skipped %d\n", stats.Read, stats.Stored, stats.Embedded, stats.Skipped)
	for reason, n := range stats.SkippedReasons {
		fmt.Fprintf(out, "    %s: %d\n", reason, n)
	}
	fmt.Fprintf(out, "  authors %d, index version %s\n", stats.Authors, stats.IndexVersion)
	return nil
}
