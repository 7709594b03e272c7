package indexer

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"aurora-qa/internal/contextutil"
	"aurora-qa/internal/storage"
	"aurora-qa/internal/vectorstore"
)

// DefaultBatchSize is the number of messages embedded per request.
const DefaultBatchSize = 64

// pointNamespace derives stable vector point ids from message ids so reloading
// an export overwrites points instead of duplicating them.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("aurora-qa/messages"))

// Embedder generates embeddings for texts.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Pipeline loads member-message exports into the message store and vector index.
type Pipeline struct {
	messages       storage.MessageStore
	embedder       Embedder
	vectorStore    vectorstore.VectorStore
	collection     string
	vectorSize     int
	embeddingModel string
	batchSize      int
}

// NewPipeline creates a new loading pipeline.
func NewPipeline(
	messages storage.MessageStore,
	embedder Embedder,
	vectorStore vectorstore.VectorStore,
	collection string,
	vectorSize int,
	embeddingModel string,
) *Pipeline {
	return &Pipeline{
		messages:       messages,
		embedder:       embedder,
		vectorStore:    vectorStore,
		collection:     collection,
		vectorSize:     vectorSize,
		embeddingModel: embeddingModel,
		batchSize:      DefaultBatchSize,
	}
}

// PointID returns the vector point id for a message id.
func PointID(messageID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(messageID)).String()
}

// EmbeddingText is the text embedded for a message. The author name is included
// so that questions naming a member land near that member's messages.
func EmbeddingText(userName, message string) string {
	return fmt.Sprintf("[%s] %s", userName, message)
}

// LoadFile reads a JSON export and loads it.
func (p *Pipeline) LoadFile(ctx context.Context, path string) (Stats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read export %s: %w", path, err)
	}
	msgs, err := parseExport(data)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to parse export %s: %w", path, err)
	}
	return p.Load(ctx, msgs)
}

// Load validates messages, writes them to the message store, then embeds them
// in batches and upserts them into the vector index. Loading is idempotent.
func (p *Pipeline) Load(ctx context.Context, msgs []ExportMessage) (Stats, error) {
	logger := contextutil.LoggerFromContext(ctx)

	stats := Stats{
		Read:         len(msgs),
		IndexVersion: indexVersion(p.embeddingModel, p.vectorSize),
	}

	records := make([]storage.MessageRecord, 0, len(msgs))
	seen := make(map[string]struct{}, len(msgs))
	authors := make(map[string]struct{})
	tokenCounts := make([]int, 0, len(msgs))
	for _, m := range msgs {
		id := strings.TrimSpace(m.ID)
		text := strings.TrimSpace(m.Message)
		switch {
		case id == "":
			stats.skip(SkipMissingID)
			continue
		case strings.TrimSpace(m.UserID) == "":
			stats.skip(SkipMissingAuthor)
			continue
		case text == "":
			stats.skip(SkipEmptyMessage)
			continue
		}
		if _, dup := seen[id]; dup {
			stats.skip(SkipDuplicateID)
			continue
		}
		seen[id] = struct{}{}
		authors[m.UserID] = struct{}{}

		userName := strings.TrimSpace(m.UserName)
		if userName == "" {
			userName = m.UserID
		}
		records = append(records, storage.MessageRecord{
			ID:        id,
			UserID:    m.UserID,
			UserName:  userName,
			Timestamp: m.Timestamp,
			Text:      text,
		})
		tokenCounts = append(tokenCounts, estimateTokens(text))
	}
	stats.Authors = len(authors)
	stats.MessageTokenStats = computeTokenStats(tokenCounts)

	if stats.Skipped > 0 {
		logger.WarnContext(ctx, "skipped export records", "skipped", stats.Skipped, "reasons", stats.SkippedReasons)
	}
	if len(records) == 0 {
		logger.WarnContext(ctx, "nothing to load", "read", stats.Read)
		return stats, nil
	}

	if err := p.vectorStore.EnsureCollection(ctx, p.collection, p.vectorSize); err != nil {
		return stats, fmt.Errorf("failed to ensure collection: %w", err)
	}

	stored, err := p.messages.Upsert(ctx, records)
	stats.Stored = stored
	if err != nil {
		return stats, fmt.Errorf("failed to store messages: %w", err)
	}

	for start := 0; start < len(records); start += p.batchSize {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		end := min(start+p.batchSize, len(records))
		batch := records[start:end]

		n, err := p.indexBatch(ctx, batch)
		stats.Batches++
		if err != nil {
			return stats, fmt.Errorf("failed to index messages %d-%d: %w", start, end-1, err)
		}
		stats.Embedded += n

		logger.DebugContext(ctx, "indexed batch", "batch", stats.Batches, "size", n, "embedded", stats.Embedded)
	}

	logger.InfoContext(ctx, "load completed",
		"read", stats.Read,
		"stored", stats.Stored,
		"embedded", stats.Embedded,
		"skipped", stats.Skipped,
		"authors", stats.Authors,
		"index_version", stats.IndexVersion,
	)
	return stats, nil
}

func (p *Pipeline) indexBatch(ctx context.Context, batch []storage.MessageRecord) (int, error) {
	texts := make([]string, len(batch))
	for i, m := range batch {
		texts[i] = EmbeddingText(m.UserName, m.Text)
	}

	embeddings, err := p.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(embeddings) != len(batch) {
		return 0, fmt.Errorf("embedding count mismatch: expected %d, got %d", len(batch), len(embeddings))
	}

	points := make([]vectorstore.Point, len(batch))
	for i, m := range batch {
		points[i] = vectorstore.Point{
			ID:  PointID(m.ID),
			Vec: embeddings[i],
			Meta: map[string]any{
				vectorstore.MetaMessageID: m.ID,
				vectorstore.MetaAuthorID:  m.UserID,
				vectorstore.MetaAuthor:    m.UserName,
				vectorstore.MetaTimestamp: m.Timestamp,
			},
		}
	}

	if err := p.vectorStore.Upsert(ctx, p.collection, points); err != nil {
		return 0, fmt.Errorf("failed to upsert vectors: %w", err)
	}
	return len(points), nil
}
