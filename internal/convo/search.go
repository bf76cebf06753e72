package convo

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode"

	"study-bot/internal/cache"
	"study-bot/internal/metrics"
	"study-bot/internal/repo"
)

// ScoreWeights drives the relevance heuristic. Tuning happens here, not in
// the scoring loop.
type ScoreWeights struct {
	CategoryExact  int
	TitleHit       int
	CategoryHit    int
	TopicHit       int
	KeywordHit     int
	DescriptionHit int
	ComboPerHit    int
}

// DefaultWeights are the production weights. Changing them reorders search
// results for every user, so treat edits like a schema migration.
var DefaultWeights = ScoreWeights{
	CategoryExact:  8,
	TitleHit:       5,
	CategoryHit:    6,
	TopicHit:       4,
	KeywordHit:     4,
	DescriptionHit: 2,
	ComboPerHit:    2,
}

// stopWords are tokens too generic to discriminate between materials. The
// tail entries are domain noise that appears in nearly every query.
var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "about": {},
	"what": {}, "when": {}, "where": {}, "which": {}, "how": {},
	"can": {}, "you": {}, "your": {}, "have": {}, "any": {},
	"are": {}, "was": {}, "this": {}, "that": {}, "from": {},
	"please": {}, "need": {}, "want": {}, "give": {}, "send": {},
	"exam": {}, "exams": {}, "material": {}, "materials": {},
	"study": {}, "notes": {}, "file": {}, "files": {}, "document": {},
}

// categoryPhrases maps each catalog category to multi-word phrases that,
// when present in the raw query, beat tokenization. A matched phrase is
// searched as one unit and its fragments are dropped from the token list.
var categoryPhrases = map[string][]string{
	repo.CategoryFundamentals: {
		"nursing fundamentals", "fundamentals of nursing", "basic skills",
		"vital signs", "infection control", "patient safety",
	},
	repo.CategoryMedicalSurgical: {
		"medical surgical", "med surg", "adult health",
		"cardiac care", "respiratory care", "renal failure",
	},
	repo.CategoryPharmacology: {
		"drug calculations", "dosage calculation", "medication administration",
		"drug interactions", "side effects",
	},
	repo.CategoryMaternalPediatric: {
		"maternal health", "pediatric nursing", "labor and delivery",
		"newborn care", "child development", "postpartum care",
	},
}

// ScoredMaterial pairs a catalog item with its relevance score and the
// query tokens that produced it.
type ScoredMaterial struct {
	repo.Material
	Score   int
	Matched []string
}

// Searcher ranks catalog materials against free-text queries.
type Searcher struct {
	store   Store
	cache   *cache.Redis
	weights ScoreWeights
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewSearcher builds a searcher with the default weight table. redisCache
// may be nil, in which case every fallback hits the store.
func NewSearcher(store Store, redisCache *cache.Redis, m *metrics.Metrics, logger *slog.Logger) *Searcher {
	return &Searcher{
		store:   store,
		cache:   redisCache,
		weights: DefaultWeights,
		metrics: m,
		logger:  logger.With("component", "search"),
	}
}

// Search tokenizes the query, fetches candidates from the store and ranks
// them. An empty token list falls back to the most recent materials so the
// user always gets something to pick from.
func (s *Searcher) Search(ctx context.Context, query, category string, limit int) ([]ScoredMaterial, error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.SearchLatency.Observe(time.Since(start).Seconds())
		}
	}()

	tokens := s.queryTokens(query, category)
	if len(tokens) == 0 {
		s.observe("fallback")
		return s.recent(ctx, category, limit)
	}

	candidates, err := s.store.FindMaterialCandidates(ctx, tokens, category, false)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		s.observe("loose")
		candidates, err = s.store.FindMaterialCandidates(ctx, tokens, category, true)
		if err != nil {
			return nil, err
		}
	} else {
		s.observe("strict")
	}

	return s.rank(candidates, tokens, category, limit), nil
}

func (s *Searcher) observe(kind string) {
	if s.metrics != nil {
		s.metrics.SearchQueries.WithLabelValues(kind).Inc()
	}
}

const recentCacheTTL = 2 * time.Minute

func recentCacheKey(category string) string {
	if category == "" {
		category = "all"
	}
	return "materials:recent:" + category
}

func (s *Searcher) recent(ctx context.Context, category string, limit int) ([]ScoredMaterial, error) {
	var items []repo.Material
	key := recentCacheKey(category)
	if s.cache != nil {
		if hit, err := s.cache.GetJSON(ctx, key, &items); err != nil {
			s.logger.Warn("recent materials cache read failed", "error", err)
		} else if hit && len(items) >= limit && limit > 0 {
			return wrapScored(items[:limit]), nil
		}
	}

	items, err := s.store.RecentMaterials(ctx, category, limit)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, items, recentCacheTTL); err != nil {
			s.logger.Warn("recent materials cache write failed", "error", err)
		}
	}
	return wrapScored(items), nil
}

func wrapScored(items []repo.Material) []ScoredMaterial {
	out := make([]ScoredMaterial, 0, len(items))
	for _, it := range items {
		out = append(out, ScoredMaterial{Material: it})
	}
	return out
}

// queryTokens lowercases and splits the query, drops stop words and short
// fragments, then folds in any phrase from the supplied category the raw
// text contains. Matched phrases go first and absorb the tokens they cover;
// without a category the phrase table is not consulted.
func (s *Searcher) queryTokens(query, category string) []string {
	lowered := strings.ToLower(strings.TrimSpace(query))

	var phrases []string
	if category != "" {
		for _, p := range categoryPhrases[category] {
			if strings.Contains(lowered, p) {
				phrases = append(phrases, p)
			}
		}
	}
	sort.Strings(phrases)

	raw := strings.FieldsFunc(lowered, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(raw))
	tokens := make([]string, 0, len(raw)+len(phrases))
	for _, p := range phrases {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		tokens = append(tokens, p)
	}
	for _, t := range raw {
		if len(t) <= 2 {
			continue
		}
		if _, stop := stopWords[t]; stop {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		if coveredByPhrase(t, phrases) {
			continue
		}
		seen[t] = struct{}{}
		tokens = append(tokens, t)
	}
	return tokens
}

func coveredByPhrase(token string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(p, token) || strings.Contains(token, p) {
			return true
		}
	}
	return false
}

// rank scores every candidate, discards non-positive scores and returns the
// top results. Sorting is stable so equal scores keep the store's insertion
// order.
func (s *Searcher) rank(candidates []repo.Material, tokens []string, category string, limit int) []ScoredMaterial {
	scored := make([]ScoredMaterial, 0, len(candidates))
	for _, item := range candidates {
		sc := s.score(item, tokens, category)
		if sc.Score <= 0 {
			continue
		}
		scored = append(scored, sc)
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

func (s *Searcher) score(item repo.Material, tokens []string, category string) ScoredMaterial {
	w := s.weights
	title := strings.ToLower(item.Title)
	itemCat := strings.ToLower(item.Category)
	desc := ""
	if item.Description != nil {
		desc = strings.ToLower(*item.Description)
	}

	score := 0
	if category != "" && item.Category == category {
		score += w.CategoryExact
	}

	totalHits := 0
	var matched []string
	for _, tok := range tokens {
		hits := 0
		if strings.Contains(title, tok) {
			score += w.TitleHit
			hits++
		}
		if strings.Contains(itemCat, tok) {
			score += w.CategoryHit
			hits++
		}
		topicHits := 0
		for _, topic := range item.Topics {
			if strings.Contains(strings.ToLower(topic), tok) {
				topicHits++
			}
		}
		if topicHits > 0 {
			score += w.TopicHit * topicHits
			hits += topicHits
		}
		for _, kw := range item.Keywords {
			if strings.Contains(strings.ToLower(kw), tok) {
				score += w.KeywordHit
				hits++
				break
			}
		}
		if desc != "" && strings.Contains(desc, tok) {
			score += w.DescriptionHit
			hits++
		}
		if hits > 0 {
			matched = append(matched, tok)
			totalHits += hits
		}
	}
	if len(matched) > 1 {
		score += w.ComboPerHit * totalHits
	}
	return ScoredMaterial{Material: item, Score: score, Matched: matched}
}
