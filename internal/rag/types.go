package rag

import (
	"time"

	"aurora-qa/internal/llm"
)

// Category is the closed set of question kinds the classifier produces.
type Category string

const (
	CategoryUserSpecific Category = "user_specific"
	CategoryMultiUser    Category = "multi_user"
	CategoryFactual      Category = "factual"
	CategoryComparative  Category = "comparative"
	CategoryGeneral      Category = "general"
)

// EntityScoped reports whether retrieval for this category covers every
// passage of the resolved entities rather than a semantic top-K pool.
func (c Category) EntityScoped() bool {
	switch c {
	case CategoryUserSpecific, CategoryMultiUser, CategoryComparative:
		return true
	default:
		return false
	}
}

// Passage is one indexed message. Owned by the index; never modified here.
type Passage struct {
	ID         string
	AuthorID   string
	AuthorName string
	Text       string
	Timestamp  string
}

// Entity is a member known to the corpus. One entity may span several author
// ids when the same person appears under a partial name ("layla" and
// "Layla Kawaguchi").
type Entity struct {
	ID        string
	Name      string
	Aliases   []string
	AuthorIDs []string

	aliasTokens [][]string
}

// Match methods recorded on EntityMatch.
const (
	MatchExact    = "exact"
	MatchFuzzy    = "fuzzy"
	MatchSemantic = "semantic"
)

// EntityMatch is a resolved mention with the score that admitted it.
type EntityMatch struct {
	Entity Entity
	Score  float64
	Method string
}

// Classification is the classifier output for one question.
type Classification struct {
	Category Category
	Entities []Entity
	Question string
}

// EntityIDs returns the resolved entity ids in resolution order.
func (c Classification) EntityIDs() []string {
	ids := make([]string, len(c.Entities))
	for i, e := range c.Entities {
		ids[i] = e.ID
	}
	return ids
}

// EntityNames returns the canonical names of the resolved entities.
func (c Classification) EntityNames() []string {
	names := make([]string, len(c.Entities))
	for i, e := range c.Entities {
		names[i] = e.Name
	}
	return names
}

// authorSet is every author id covered by the resolved entities.
func (c Classification) authorSet() map[string]string {
	set := make(map[string]string)
	for _, e := range c.Entities {
		for _, id := range e.AuthorIDs {
			set[id] = e.ID
		}
	}
	return set
}

// Candidate is a passage moving through retrieval and reranking.
// Raw and Relevance are only meaningful when Scored is true.
type Candidate struct {
	Passage    Passage
	Similarity float64
	Raw        RawLogit
	Relevance  NormalizedScore
	Scored     bool
}

// ConfidenceBreakdown holds each weighted component and their clamped sum.
type ConfidenceBreakdown struct {
	SourceCount float64 `json:"source_count"`
	Relevance   float64 `json:"relevance"`
	Specificity float64 `json:"specificity"`
	Consistency float64 `json:"consistency"`
	Total       float64 `json:"total"`
}

// Source is a passage that was shown to the model, as reported to callers.
// Relevance is nil when reranking was unavailable.
type Source struct {
	ID         string
	AuthorID   string
	AuthorName string
	Timestamp  string
	Text       string
	Similarity float64
	Relevance  *float64
}

// Options are the per-request knobs of Resolve.
type Options struct {
	IncludeSources bool
	// MaxSources replaces the reranker's top-N as the number of passages given to
	// the model. Zero keeps the top-N.
	MaxSources int
	// IncludeEvaluations asks for the answer to be judged after it is generated.
	IncludeEvaluations bool
}

// AnswerResult is the outcome of one resolved question.
type AnswerResult struct {
	Answer         string
	Confidence     ConfidenceBreakdown
	Band           Band
	Classification Classification
	Sources        []Source
	Tip            string
	Model          string
	Usage          llm.Usage
	Reranked       bool
	Retrieved      int
	Latency        time.Duration
	// Evaluations is nil unless requested.
	Evaluations *EvaluationResults
}
