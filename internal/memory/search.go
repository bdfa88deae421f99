package memory

import (
	"regexp"
	"sort"
	"strings"

	"github.com/bashclaw/bashclaw/internal/bashclawerr"
)

// ScoredEntry pairs an Entry with its search relevance score.
type ScoredEntry struct {
	Entry *Entry  `json:"entry"`
	Score float64 `json:"score"`
}

// Search returns every entry whose key, value, or tags contain substring
// (case-insensitive). An empty query is rejected.
func (s *Store) Search(substring string) ([]*Entry, error) {
	if substring == "" {
		return nil, bashclawerr.New(bashclawerr.ValidationError, "search query must not be empty")
	}
	entries, err := s.allEntries()
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(substring)
	var out []*Entry
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Key), needle) ||
			strings.Contains(strings.ToLower(e.Value), needle) ||
			tagsContain(e.Tags, needle) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func tagsContain(tags []string, needle string) bool {
	for _, t := range tags {
		if strings.Contains(strings.ToLower(t), needle) {
			return true
		}
	}
	return false
}

var tokenPattern = regexp.MustCompile(`[A-Za-z0-9]+`)

func tokenize(s string) []string {
	return tokenPattern.FindAllString(strings.ToLower(s), -1)
}

// SearchText scores every entry against query: 1 point per query token
// found in the value, 2 points per query token found in the key, plus 0.5
// per query token that matches a tag. Results are sorted by score
// descending (ties broken by key) and capped at limit (0 = unlimited). If
// the FTS5 shadow index is available it answers the query directly;
// otherwise the scoring is computed with the pure-Go tokenizer, which
// implements the identical formula.
func (s *Store) SearchText(query string, limit int) ([]ScoredEntry, error) {
	if query == "" {
		return nil, bashclawerr.New(bashclawerr.ValidationError, "search query must not be empty")
	}
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return nil, bashclawerr.New(bashclawerr.ValidationError, "search query has no indexable tokens")
	}

	if s.fts != nil {
		if scored, ok := s.fts.searchText(queryTokens, limit); ok {
			return scored, nil
		}
	}

	entries, err := s.allEntries()
	if err != nil {
		return nil, err
	}

	var scored []ScoredEntry
	for _, e := range entries {
		score := scoreEntry(e, queryTokens)
		if score > 0 {
			scored = append(scored, ScoredEntry{Entry: e, Score: score})
		}
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Entry.Key < scored[j].Entry.Key
	})
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// scoreEntry implements the §4.C scoring formula: 1 per value-token
// match, 2x for a key-token match, +0.5 per matching tag.
func scoreEntry(e *Entry, queryTokens []string) float64 {
	keyTokens := tokenSet(tokenize(e.Key))
	valueTokens := tokenSet(tokenize(e.Value))
	tagTokens := tokenSet(tagTokenList(e.Tags))

	var score float64
	for _, qt := range queryTokens {
		if valueTokens[qt] {
			score += 1
		}
		if keyTokens[qt] {
			score += 2
		}
		if tagTokens[qt] {
			score += 0.5
		}
	}
	return score
}

func tagTokenList(tags []string) []string {
	var out []string
	for _, t := range tags {
		out = append(out, tokenize(t)...)
	}
	return out
}

func tokenSet(tokens []string) map[string]bool {
	m := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		m[t] = true
	}
	return m
}
