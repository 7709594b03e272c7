package rag

import (
	"context"
	"regexp"
	"strings"

	"aurora-qa/internal/contextutil"
)

var singleSubjectWords = map[string]struct{}{
	"summarize": {}, "summarise": {}, "summary": {}, "said": {}, "say": {}, "says": {},
	"message": {}, "messages": {}, "mention": {}, "mentioned": {}, "mentions": {},
	"talk": {}, "talked": {}, "talks": {}, "discuss": {}, "discussed": {}, "spoke": {},
	"share": {}, "shared": {}, "comment": {}, "commented": {}, "ask": {}, "asked": {}, "asks": {},
	"request": {}, "requested": {}, "requests": {}, "want": {}, "wants": {}, "wanted": {},
	"visit": {}, "visited": {}, "visits": {}, "places": {}, "travel": {}, "traveled": {},
	"travelled": {}, "trip": {}, "trips": {}, "plan": {}, "plans": {}, "planning": {},
	"prefer": {}, "prefers": {}, "preference": {}, "preferences": {}, "like": {}, "likes": {},
	"favorite": {}, "favourite": {}, "need": {}, "needs": {},
}

var singleSubjectPhrases = []string{"tell me about", "what did", "what does", "what has", "what is", "anything about"}

var comparisonWords = map[string]struct{}{
	"compare": {}, "compared": {}, "comparing": {}, "comparison": {}, "contrast": {},
	"versus": {}, "vs": {}, "difference": {}, "differences": {}, "differ": {}, "different": {},
	"similar": {}, "similarities": {}, "both": {}, "unlike": {},
}

var comparisonPhrases = []string{"in common", "rather than", "instead of", "same as", "more than", "less than"}

var factualWords = map[string]struct{}{
	"which": {}, "when": {}, "where": {}, "count": {}, "total": {}, "list": {},
}

var factualPhrases = []string{"how many", "how much", "how often", "how long", "what time", "number of", "what date"}

var whatAreQuestion = regexp.MustCompile(`\bwhat\b.*\b(are|were)\b`)

// Classifier assigns a category to a question from its wording and resolved entities.
type Classifier struct {
	names EntityResolver
}

// NewClassifier creates a classifier. names may be nil, in which case no entities are resolved.
func NewClassifier(names EntityResolver) *Classifier {
	return &Classifier{names: names}
}

// Classify returns the category and resolved entities for question. Rules apply in order:
// one entity with single-subject phrasing is user_specific; two or more entities or a
// comparison marker is comparative; a counting or lookup question is factual; anything
// else is general.
func (c *Classifier) Classify(ctx context.Context, question string, questionVec []float32) Classification {
	var entities []Entity
	if c.names != nil {
		for _, m := range c.names.Resolve(ctx, question, questionVec) {
			entities = append(entities, m.Entity)
		}
	}

	tokens := tokenize(question)
	padded := phraseText(tokens)

	category := CategoryGeneral
	switch {
	case len(entities) == 1 && singleSubject(question, tokens, padded):
		category = CategoryUserSpecific
	case len(entities) >= 2 || anyWord(tokens, comparisonWords) || containsPhrase(padded, comparisonPhrases):
		category = CategoryComparative
	case anyWord(tokens, factualWords) || containsPhrase(padded, factualPhrases) ||
		whatAreQuestion.MatchString(strings.ToLower(question)):
		category = CategoryFactual
	}

	contextutil.LoggerFromContext(ctx).DebugContext(ctx, "question classified",
		"category", category,
		"entities", len(entities),
	)

	return Classification{Category: category, Entities: entities, Question: question}
}

func singleSubject(question string, tokens []string, padded string) bool {
	return anyWord(tokens, singleSubjectWords) ||
		containsPhrase(padded, singleSubjectPhrases) ||
		hasPossessive(question)
}

func anyWord(tokens []string, words map[string]struct{}) bool {
	for _, t := range tokens {
		if _, ok := words[t]; ok {
			return true
		}
	}
	return false
}
