package rag

import (
	"regexp"
	"strings"
	"unicode"
)

var lexicalStopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "but": {}, "by": {},
	"for": {}, "from": {}, "has": {}, "have": {}, "in": {}, "is": {}, "it": {}, "of": {}, "on": {},
	"or": {}, "the": {}, "to": {}, "was": {}, "were": {}, "with": {},
}

// questionWords never name a member even when a display name happens to use them.
var questionWords = map[string]struct{}{
	"what": {}, "who": {}, "whom": {}, "whose": {}, "which": {}, "when": {}, "where": {}, "why": {},
	"how": {}, "did": {}, "does": {}, "do": {}, "can": {}, "could": {}, "would": {}, "should": {},
	"will": {}, "many": {}, "much": {}, "about": {}, "tell": {}, "say": {}, "said": {}, "says": {},
	"their": {}, "they": {}, "them": {}, "his": {}, "her": {}, "hers": {}, "she": {}, "him": {},
	"you": {}, "your": {}, "our": {}, "any": {}, "all": {}, "this": {}, "that": {}, "there": {},
	"than": {}, "not": {}, "message": {}, "messages": {}, "member": {}, "members": {},
}

var possessivePattern = regexp.MustCompile(`(?i)[\p{L}\p{N}]['’]s\b`)

// tokenize lowercases text and splits it on anything that is not a letter or digit,
// so "Sophia's" yields "sophia" and "s".
func tokenize(text string) []string {
	if text == "" {
		return nil
	}

	var builder strings.Builder
	builder.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			builder.WriteRune(r)
		} else {
			builder.WriteRune(' ')
		}
	}
	tokens := strings.Fields(builder.String())
	if len(tokens) == 0 {
		return nil
	}
	return tokens
}

func filterStopwords(tokens []string) []string {
	if len(tokens) == 0 {
		return nil
	}

	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, isStop := lexicalStopwords[token]; isStop {
			continue
		}
		result = append(result, token)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

// nameTokens returns the question tokens that could be part of a member name.
func nameTokens(question string) []string {
	tokens := filterStopwords(tokenize(question))
	result := tokens[:0]
	for _, token := range tokens {
		if len([]rune(token)) < 2 {
			continue
		}
		if _, ok := questionWords[token]; ok {
			continue
		}
		result = append(result, token)
	}
	return result
}

// normalizeName folds a display name to lowercase space-separated tokens.
func normalizeName(name string) string {
	return strings.Join(tokenize(name), " ")
}

// phraseText pads the joined tokens with spaces so phrases can be found with
// strings.Contains without matching inside words.
func phraseText(tokens []string) string {
	return " " + strings.Join(tokens, " ") + " "
}

func containsPhrase(padded string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(padded, " "+p+" ") {
			return true
		}
	}
	return false
}

func hasPossessive(text string) bool {
	return possessivePattern.MatchString(text)
}
