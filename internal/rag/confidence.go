package rag

import (
	"fmt"
	"math"
)

// ConfidenceConfig weights the four confidence components.
type ConfidenceConfig struct {
	WeightSources     float64
	WeightRelevance   float64
	WeightSpecificity float64
	WeightConsistency float64
	// SourceThreshold is the source count at which the source component saturates.
	SourceThreshold int
}

// DefaultConfidenceConfig returns weights 0.30/0.30/0.20/0.20 with saturation at 10 sources.
func DefaultConfidenceConfig() ConfidenceConfig {
	return ConfidenceConfig{
		WeightSources:     0.30,
		WeightRelevance:   0.30,
		WeightSpecificity: 0.20,
		WeightConsistency: 0.20,
		SourceThreshold:   10,
	}
}

// Validate checks that weights are non-negative and sum to 1.
func (c ConfidenceConfig) Validate() error {
	weights := []float64{c.WeightSources, c.WeightRelevance, c.WeightSpecificity, c.WeightConsistency}
	var sum float64
	for _, w := range weights {
		if w < 0 || math.IsNaN(w) {
			return fmt.Errorf("confidence weights must be non-negative, got %v", weights)
		}
		sum += w
	}
	if math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("confidence weights must sum to 1, got %.4f", sum)
	}
	if c.SourceThreshold <= 0 {
		return fmt.Errorf("confidence source threshold must be positive, got %d", c.SourceThreshold)
	}
	return nil
}

// Band is the coarse confidence level shown to users.
type Band string

const (
	BandHigh     Band = "high"
	BandModerate Band = "moderate"
	BandLow      Band = "low"
)

// BandFor maps a total confidence to its band.
func BandFor(total float64) Band {
	switch {
	case total >= 0.8:
		return BandHigh
	case total >= 0.6:
		return BandModerate
	default:
		return BandLow
	}
}

// Specificity factors per category.
const (
	specificityScoped         = 1.0
	specificityScopedNoEntity = 0.3
	specificityFactualEntity  = 0.85
	specificityFactual        = 0.7
	specificityGeneral        = 0.0

	consistencyMany = 0.8
	consistencyOne  = 0.4
)

// ConfidenceScorer computes the confidence breakdown of an answer.
type ConfidenceScorer struct {
	cfg ConfidenceConfig
}

// NewConfidenceScorer validates cfg and returns a scorer.
func NewConfidenceScorer(cfg ConfidenceConfig) (*ConfidenceScorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ConfidenceScorer{cfg: cfg}, nil
}

// Score rates the answer produced from sources. Each component factor lies in
// [0,1] and is reported already multiplied by its weight; Total is their clamped sum.
// When reranked is false the relevance factor uses retrieval similarity instead.
func (s *ConfidenceScorer) Score(c Classification, sources []Candidate, reranked bool) ConfidenceBreakdown {
	b := ConfidenceBreakdown{
		SourceCount: s.cfg.WeightSources * s.sourceFactor(len(sources)),
		Relevance:   s.cfg.WeightRelevance * relevanceFactor(sources, reranked),
		Specificity: s.cfg.WeightSpecificity * specificityFactor(c),
		Consistency: s.cfg.WeightConsistency * consistencyFactor(c, sources),
	}
	b.Total = clamp01(b.SourceCount + b.Relevance + b.Specificity + b.Consistency)
	return b
}

func (s *ConfidenceScorer) sourceFactor(n int) float64 {
	return clamp01(float64(n) / float64(s.cfg.SourceThreshold))
}

func relevanceFactor(sources []Candidate, reranked bool) float64 {
	if len(sources) == 0 {
		return 0
	}
	var sum float64
	for _, c := range sources {
		if reranked && c.Scored {
			sum += c.Relevance.Float64()
		} else {
			sum += clamp01(c.Similarity)
		}
	}
	return clamp01(sum / float64(len(sources)))
}

func specificityFactor(c Classification) float64 {
	switch {
	case c.Category.EntityScoped() && len(c.Entities) > 0:
		return specificityScoped
	case c.Category.EntityScoped():
		return specificityScopedNoEntity
	case c.Category == CategoryFactual && len(c.Entities) > 0:
		return specificityFactualEntity
	case c.Category == CategoryFactual:
		return specificityFactual
	default:
		return specificityGeneral
	}
}

// consistencyFactor is the share of sources written by a resolved entity, scaled by
// how many of the entities are represented for comparisons. Questions not scoped to
// entities fall back to a fixed value by source count.
func consistencyFactor(c Classification, sources []Candidate) float64 {
	if len(sources) == 0 {
		return 0
	}
	if !c.Category.EntityScoped() || len(c.Entities) == 0 {
		if len(sources) >= 2 {
			return consistencyMany
		}
		return consistencyOne
	}

	owners := c.authorSet()
	represented := make(map[string]bool)
	matching := 0
	for _, src := range sources {
		if entityID, ok := owners[src.Passage.AuthorID]; ok {
			matching++
			represented[entityID] = true
		}
	}
	factor := float64(matching) / float64(len(sources))
	if c.Category == CategoryComparative || c.Category == CategoryMultiUser {
		factor *= float64(len(represented)) / float64(len(c.Entities))
	}
	return clamp01(factor)
}

// Tip explains the confidence band and suggests how to ask a sharper question.
func Tip(b ConfidenceBreakdown, c Classification, sourceCount int) string {
	if sourceCount == 0 {
		return "No relevant sources were found for this question. " + suggestion(c)
	}

	switch BandFor(b.Total) {
	case BandHigh:
		return fmt.Sprintf("High confidence: the answer is grounded in %s.", pluralMessages(sourceCount))
	case BandModerate:
		return fmt.Sprintf("Moderate confidence: based on %s. %s", pluralMessages(sourceCount), suggestion(c))
	default:
		if sourceCount == 1 {
			return "Low confidence: only 1 relevant message was found. " + suggestion(c)
		}
		return fmt.Sprintf("Low confidence: the %s found are only loosely related. %s", pluralMessages(sourceCount), suggestion(c))
	}
}

func pluralMessages(n int) string {
	if n == 1 {
		return "1 message"
	}
	return fmt.Sprintf("%d messages", n)
}

func suggestion(c Classification) string {
	names := c.EntityNames()
	switch c.Category {
	case CategoryUserSpecific:
		if len(names) == 0 {
			return "Try naming the member you are asking about."
		}
		return fmt.Sprintf("Try asking about one specific topic in %s's messages.", names[0])
	case CategoryComparative, CategoryMultiUser:
		if len(names) < 2 {
			return "Name each member you want to compare."
		}
		return "Try comparing one specific aspect at a time."
	case CategoryFactual:
		if len(names) == 0 {
			return "Try naming the member the question is about."
		}
		return fmt.Sprintf("Try asking what %s said about the topic directly.", names[0])
	default:
		return "Mention a member by name or ask about a specific topic to narrow the search."
	}
}
