package indexer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"unicode/utf8"
)

const (
	// LoaderVersion identifies how messages are turned into points.
	// Bump it when the embedded text or payload layout changes.
	LoaderVersion = "v1.0"
	// TokensPerRune is an approximation for token counting (4 chars per token).
	TokensPerRune = 4.0
)

// Stats summarizes one load.
type Stats struct {
	// Read is the number of records in the export.
	Read int `json:"read"`
	// Stored is the number of messages written to the message store.
	Stored int `json:"stored"`
	// Embedded is the number of messages embedded and written to the vector index.
	Embedded int `json:"embedded"`
	// Skipped is the number of records rejected before storage.
	Skipped int `json:"skipped"`
	// SkippedReasons is a breakdown of why records were skipped.
	SkippedReasons map[string]int `json:"skipped_reasons,omitempty"`
	// Authors is the number of distinct user ids loaded.
	Authors int `json:"authors"`
	// Batches is the number of embedding requests made.
	Batches int `json:"batches"`
	// MessageTokenStats contains statistics about estimated tokens per message.
	MessageTokenStats TokenStats `json:"message_token_stats"`
	// IndexVersion is a hash identifying the index build (loader + embedding model + vector size).
	IndexVersion string `json:"index_version"`
}

// TokenStats contains statistics about token counts in messages.
type TokenStats struct {
	Min  int     `json:"min"`
	Max  int     `json:"max"`
	Mean float64 `json:"mean"`
	P95  int     `json:"p95"`
}

func (s *Stats) skip(reason string) {
	s.Skipped++
	if s.SkippedReasons == nil {
		s.SkippedReasons = make(map[string]int)
	}
	s.SkippedReasons[reason]++
}

// estimateTokens approximates the token count of text from its rune count.
func estimateTokens(text string) int {
	n := int(math.Round(float64(utf8.RuneCountInString(text)) / TokensPerRune))
	if n < 1 {
		return 1
	}
	return n
}

// indexVersion hashes the parameters that make two indexes comparable.
func indexVersion(embeddingModel string, vectorSize int) string {
	input := fmt.Sprintf("%s|%s|vectorSize=%d", LoaderVersion, embeddingModel, vectorSize)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])[:16]
}

// computeTokenStats computes min, max, mean, and p95 from token counts.
func computeTokenStats(tokenCounts []int) TokenStats {
	if len(tokenCounts) == 0 {
		return TokenStats{}
	}

	sorted := make([]int, len(tokenCounts))
	copy(sorted, tokenCounts)
	sort.Ints(sorted)

	sum := 0
	for _, count := range sorted {
		sum += count
	}
	mean := float64(sum) / float64(len(sorted))

	p95Index := int(math.Ceil(float64(len(sorted)) * 0.95))
	if p95Index >= len(sorted) {
		p95Index = len(sorted) - 1
	}

	return TokenStats{
		Min:  sorted[0],
		Max:  sorted[len(sorted)-1],
		Mean: math.Round(mean*100) / 100,
		P95:  sorted[p95Index],
	}
}
