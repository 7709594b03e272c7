package rag

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/adrg/strutil"
	strmetrics "github.com/adrg/strutil/metrics"
	"golang.org/x/sync/singleflight"

	"aurora-qa/internal/contextutil"
	"aurora-qa/internal/metrics"
	"aurora-qa/internal/storage"
)

const (
	nameEmbedBatchSize = 64
	fullNameScore      = 1.0
	partialNameScore   = 0.85
	fuzzyPenalty       = 0.95
	minFuzzyTokenLen   = 4
	defaultWarmTimeout = 10 * time.Second
)

// ResolverOptions tunes entity resolution.
type ResolverOptions struct {
	// Threshold is the minimum score an entity needs to be resolved.
	Threshold float64
	// Margin keeps only entities scoring within Margin of the best match.
	Margin float64
	// FuzzyThreshold is the minimum Jaro-Winkler similarity for a misspelled name token.
	FuzzyThreshold float64
	// WarmTimeout bounds one build of the entity cache, however many callers wait on it.
	WarmTimeout time.Duration
	Metrics     *metrics.Metrics
}

// DefaultResolverOptions returns the production thresholds.
func DefaultResolverOptions() ResolverOptions {
	return ResolverOptions{Threshold: 0.5, Margin: 0.1, FuzzyThreshold: 0.88, WarmTimeout: defaultWarmTimeout}
}

// NameResolver maps names mentioned in a question to corpus entities.
// The entity set and name vectors are built lazily on first use and reused
// for the life of the process.
type NameResolver struct {
	dir      AuthorDirectory
	embedder Embedder
	opts     ResolverOptions
	jw       *strmetrics.JaroWinkler

	group singleflight.Group

	mu       sync.RWMutex
	entities []Entity
	vectors  map[string][]float32
	ready    bool
}

// NewNameResolver creates a resolver over the authors in dir. embedder may be nil,
// in which case only lexical matching is used.
func NewNameResolver(dir AuthorDirectory, embedder Embedder, opts ResolverOptions) *NameResolver {
	defaults := DefaultResolverOptions()
	if opts.Threshold <= 0 {
		opts.Threshold = defaults.Threshold
	}
	if opts.FuzzyThreshold <= 0 {
		opts.FuzzyThreshold = defaults.FuzzyThreshold
	}
	if opts.Margin < 0 {
		opts.Margin = defaults.Margin
	}
	if opts.WarmTimeout <= 0 {
		opts.WarmTimeout = defaults.WarmTimeout
	}
	return &NameResolver{
		dir:      dir,
		embedder: embedder,
		opts:     opts,
		jw:       strmetrics.NewJaroWinkler(),
	}
}

// Warm builds the entity set and name vectors if they are not built yet.
// Concurrent callers share one build, which runs detached from any caller's
// cancellation and is bounded by WarmTimeout. A caller whose ctx ends first gets
// its ctx error while the build carries on. A failed build is retried on the next call.
func (r *NameResolver) Warm(ctx context.Context) error {
	if r.isReady() {
		return nil
	}

	ch := r.group.DoChan("warm", func() (any, error) {
		if r.isReady() {
			return nil, nil
		}
		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.WarmTimeout)
		defer cancel()
		err := r.load(buildCtx)
		if err != nil && errors.Is(buildCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s: %w", ErrTimeout, r.opts.WarmTimeout, err)
		}
		return nil, err
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return fmt.Errorf("waiting for entity cache: %w", ctx.Err())
	}
}

func (r *NameResolver) isReady() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ready
}

func (r *NameResolver) load(ctx context.Context) error {
	logger := contextutil.LoggerFromContext(ctx)

	authors, err := r.dir.ListAuthors(ctx)
	if err != nil {
		return fmt.Errorf("failed to list authors: %w", err)
	}
	entities := buildEntities(authors)

	r.mu.Lock()
	r.entities = entities
	r.mu.Unlock()
	r.opts.Metrics.SetNameCacheSize(len(entities))

	if len(entities) == 0 {
		logger.WarnContext(ctx, "no authors found, entity resolution disabled until the corpus is loaded")
		return nil
	}

	if r.embedder == nil {
		r.mu.Lock()
		r.ready = true
		r.mu.Unlock()
		return nil
	}

	vectors, err := r.embedNames(ctx, entities)
	if err != nil {
		return fmt.Errorf("failed to embed member names: %w", err)
	}

	r.mu.Lock()
	r.vectors = vectors
	r.ready = true
	r.mu.Unlock()

	logger.InfoContext(ctx, "entity cache built", "entities", len(entities), "authors", len(authors))
	return nil
}

func (r *NameResolver) embedNames(ctx context.Context, entities []Entity) (map[string][]float32, error) {
	vectors := make(map[string][]float32, len(entities))
	for start := 0; start < len(entities); start += nameEmbedBatchSize {
		end := min(start+nameEmbedBatchSize, len(entities))
		batch := entities[start:end]

		names := make([]string, len(batch))
		for i, e := range batch {
			names[i] = e.Name
		}
		vecs, err := r.embedder.EmbedTexts(ctx, names)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(batch) {
			return nil, fmt.Errorf("expected %d name vectors, got %d", len(batch), len(vecs))
		}
		for i, e := range batch {
			vectors[e.ID] = vecs[i]
		}
	}
	return vectors, nil
}

// Size returns the number of known entities.
func (r *NameResolver) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entities)
}

// Resolve returns the entities the question refers to, best first.
// Name tokens in the question are matched exactly or fuzzily against every alias;
// only when nothing matches lexically is the question vector compared with name vectors.
// A warm-up failure, or ctx ending while the cache builds, degrades to whatever
// was cached, possibly nothing.
func (r *NameResolver) Resolve(ctx context.Context, question string, questionVec []float32) []EntityMatch {
	logger := contextutil.LoggerFromContext(ctx)
	if err := r.Warm(ctx); err != nil {
		logger.WarnContext(ctx, "entity cache unavailable, using cached entities", "error", err)
	}

	r.mu.RLock()
	entities := r.entities
	vectors := r.vectors
	r.mu.RUnlock()

	tokens := nameTokens(question)
	var matches []EntityMatch
	for _, e := range entities {
		score, method := r.lexicalScore(tokens, e)
		if score >= r.opts.Threshold {
			matches = append(matches, EntityMatch{Entity: e, Score: score, Method: method})
		}
	}

	if len(matches) == 0 && len(questionVec) > 0 {
		for _, e := range entities {
			vec, ok := vectors[e.ID]
			if !ok {
				continue
			}
			if score := cosine(questionVec, vec); score >= r.opts.Threshold {
				matches = append(matches, EntityMatch{Entity: e, Score: score, Method: MatchSemantic})
			}
		}
	}

	if len(matches) == 0 {
		return nil
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Entity.ID < matches[j].Entity.ID
	})

	floor := matches[0].Score - r.opts.Margin
	kept := matches[:0]
	for _, m := range matches {
		if m.Score >= floor {
			kept = append(kept, m)
		}
	}

	logger.DebugContext(ctx, "entities resolved", "count", len(kept), "top", kept[0].Entity.Name, "method", kept[0].Method)
	return kept
}

// lexicalScore rates how well the question tokens name e. A multi-token alias present
// in full scores highest, any shared token less, a misspelled token less again.
func (r *NameResolver) lexicalScore(tokens []string, e Entity) (float64, string) {
	present := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		present[t] = true
	}

	var best float64
	method := ""
	for _, alias := range e.aliasTokens {
		hits := 0
		for _, at := range alias {
			if present[at] {
				hits++
			}
		}
		switch {
		case hits == len(alias) && hits >= 2:
			return fullNameScore, MatchExact
		case hits > 0 && partialNameScore > best:
			best, method = partialNameScore, MatchExact
		}
	}
	if best > 0 {
		return best, method
	}

	for _, qt := range tokens {
		if len([]rune(qt)) < minFuzzyTokenLen {
			continue
		}
		for _, alias := range e.aliasTokens {
			for _, at := range alias {
				if len([]rune(at)) < minFuzzyTokenLen {
					continue
				}
				sim := strutil.Similarity(qt, at, r.jw)
				if sim < r.opts.FuzzyThreshold {
					continue
				}
				if score := sim * fuzzyPenalty; score > best {
					best, method = score, MatchFuzzy
				}
			}
		}
	}
	return best, method
}

// buildEntities groups authors by id and folds partial names into the full name
// they abbreviate. Result is ordered by entity id.
func buildEntities(authors []storage.Author) []Entity {
	type group struct {
		id     string
		counts map[string]int
	}
	var order []string
	groups := make(map[string]*group)
	for _, a := range authors {
		if a.ID == "" || normalizeName(a.Name) == "" {
			continue
		}
		g, ok := groups[a.ID]
		if !ok {
			g = &group{id: a.ID, counts: make(map[string]int)}
			groups[a.ID] = g
			order = append(order, a.ID)
		}
		g.counts[a.Name] += a.MessageCount
	}
	sort.Strings(order)

	entities := make([]*Entity, 0, len(order))
	for _, id := range order {
		g := groups[id]
		aliases := make([]string, 0, len(g.counts))
		for name := range g.counts {
			aliases = append(aliases, name)
		}
		sort.Strings(aliases)
		entities = append(entities, &Entity{
			ID:        id,
			Name:      canonicalName(aliases, g.counts),
			Aliases:   aliases,
			AuthorIDs: []string{id},
		})
	}

	merged := make(map[*Entity]bool)

	// Same normalized name under different ids is the same person.
	byName := make(map[string]*Entity)
	for _, e := range entities {
		key := normalizeName(e.Name)
		if target, ok := byName[key]; ok {
			mergeEntity(target, e)
			merged[e] = true
			continue
		}
		byName[key] = e
	}

	// A lone first name folds into the only full name that starts with it.
	for _, e := range entities {
		if merged[e] {
			continue
		}
		tokens := tokenize(e.Name)
		if len(tokens) != 1 {
			continue
		}
		var target *Entity
		candidates := 0
		for _, other := range entities {
			if other == e || merged[other] {
				continue
			}
			otherTokens := tokenize(other.Name)
			if len(otherTokens) >= 2 && otherTokens[0] == tokens[0] {
				target = other
				candidates++
			}
		}
		if candidates == 1 {
			mergeEntity(target, e)
			merged[e] = true
		}
	}

	result := make([]Entity, 0, len(entities))
	for _, e := range entities {
		if merged[e] {
			continue
		}
		sort.Strings(e.Aliases)
		sort.Strings(e.AuthorIDs)
		e.aliasTokens = aliasTokens(e.Aliases)
		result = append(result, *e)
	}
	return result
}

// canonicalName prefers the most complete spelling, then the most used one.
func canonicalName(aliases []string, counts map[string]int) string {
	best := aliases[0]
	for _, name := range aliases[1:] {
		nt, bt := len(tokenize(name)), len(tokenize(best))
		switch {
		case nt > bt:
			best = name
		case nt == bt && counts[name] > counts[best]:
			best = name
		}
	}
	return best
}

func mergeEntity(target, from *Entity) {
	seen := make(map[string]bool, len(target.Aliases))
	for _, a := range target.Aliases {
		seen[a] = true
	}
	for _, a := range from.Aliases {
		if !seen[a] {
			target.Aliases = append(target.Aliases, a)
			seen[a] = true
		}
	}
	target.AuthorIDs = append(target.AuthorIDs, from.AuthorIDs...)
}

// aliasTokens splits each alias into the tokens a question could use to name it.
func aliasTokens(aliases []string) [][]string {
	var sets [][]string
	for _, alias := range aliases {
		var tokens []string
		for _, token := range filterStopwords(tokenize(alias)) {
			if len([]rune(token)) < 2 {
				continue
			}
			if _, ok := questionWords[token]; ok {
				continue
			}
			tokens = append(tokens, token)
		}
		if len(tokens) > 0 {
			sets = append(sets, tokens)
		}
	}
	return sets
}
