package catalog

import (
	"sort"
	"strings"
)

// Scoring weights. An exact name match dominates, a name prefix ranks
// above plain token overlap.
const (
	scoreExactName  = 100.0
	scoreNamePrefix = 25.0
	scoreTokenHit   = 10.0
	scoreTagHit     = 5.0
)

// SearchResult pairs a matched entry with its relevance.
type SearchResult struct {
	Entry Entry

	// Score orders results; higher is more relevant.
	Score float64

	// Reason is a short human-readable explanation of the match.
	Reason string
}

// Search indexes a catalog for repeated queries. Build once per loaded
// catalog; the index holds a snapshot of the entries.
type Search struct {
	entries []Entry

	// index maps a token to the positions of entries containing it.
	index map[string][]int
}

// NewSearch builds the token index over the catalog's entries.
func NewSearch(c *Catalog) *Search {
	s := &Search{
		entries: c.Entries,
		index:   make(map[string][]int),
	}
	for i, e := range s.entries {
		seen := make(map[string]bool)
		for _, tok := range entryTokens(e) {
			if seen[tok] {
				continue
			}
			seen[tok] = true
			s.index[tok] = append(s.index[tok], i)
		}
	}
	return s
}

// All returns every indexed entry.
func (s *Search) All() []Entry {
	return s.entries
}

// GetByID returns the indexed entry with the given id.
func (s *Search) GetByID(id string) (Entry, bool) {
	for _, e := range s.entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// ByCategory returns entries in the given category, case-insensitive.
func (s *Search) ByCategory(category string) []Entry {
	var out []Entry
	for _, e := range s.entries {
		if strings.EqualFold(e.Category, category) {
			out = append(out, e)
		}
	}
	return out
}

// ByTag returns entries carrying the given tag, case-insensitive.
func (s *Search) ByTag(tag string) []Entry {
	var out []Entry
	for _, e := range s.entries {
		for _, t := range e.Tags {
			if strings.EqualFold(t, tag) {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// Categories returns the distinct categories, sorted.
func (s *Search) Categories() []string {
	return distinctFold(func(yield func(string)) {
		for _, e := range s.entries {
			yield(e.Category)
		}
	})
}

// Tags returns the distinct tags, sorted.
func (s *Search) Tags() []string {
	return distinctFold(func(yield func(string)) {
		for _, e := range s.entries {
			for _, t := range e.Tags {
				yield(t)
			}
		}
	})
}

// Query matches the free-text query against the index and returns up
// to limit results, best first. limit <= 0 means no limit. Ties break
// by entry id for deterministic output.
func (s *Search) Query(query string, limit int) []SearchResult {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return nil
	}
	queryNorm := strings.Join(tokens, " ")

	scores := make(map[int]float64)
	reasons := make(map[int]string)

	for i, e := range s.entries {
		nameNorm := strings.Join(tokenize(e.Name), " ")
		if nameNorm == queryNorm {
			scores[i] += scoreExactName
			reasons[i] = "exact name match"
		} else if strings.HasPrefix(nameNorm, queryNorm) {
			scores[i] += scoreNamePrefix
			reasons[i] = "name starts with query"
		}
	}

	for _, tok := range tokens {
		for _, i := range s.index[tok] {
			scores[i] += scoreTokenHit
			if reasons[i] == "" {
				reasons[i] = "matches '" + tok + "'"
			}
		}
		for i, e := range s.entries {
			for _, tag := range e.Tags {
				if strings.EqualFold(tag, tok) {
					scores[i] += scoreTagHit
				}
			}
		}
	}

	results := make([]SearchResult, 0, len(scores))
	for i, score := range scores {
		results = append(results, SearchResult{
			Entry:  s.entries[i],
			Score:  score,
			Reason: reasons[i],
		})
	}

	sort.Slice(results, func(a, b int) bool {
		if results[a].Score != results[b].Score {
			return results[a].Score > results[b].Score
		}
		return results[a].Entry.ID < results[b].Entry.ID
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// entryTokens collects the searchable tokens of an entry: its name,
// manifest entry id, category, tags, and description.
func entryTokens(e Entry) []string {
	var tokens []string
	tokens = append(tokens, tokenize(e.Name)...)
	tokens = append(tokens, tokenize(e.ManifestEntryID)...)
	tokens = append(tokens, tokenize(e.Category)...)
	for _, t := range e.Tags {
		tokens = append(tokens, tokenize(t)...)
	}
	tokens = append(tokens, tokenize(e.Description)...)
	return tokens
}

// tokenize lowercases and splits on every non-alphanumeric rune, so
// "Go-Style.md" yields ["go", "style", "md"].
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
}

func distinctFold(each func(yield func(string))) []string {
	seen := make(map[string]bool)
	var out []string
	each(func(v string) {
		key := strings.ToLower(v)
		if v == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, v)
	})
	sort.Strings(out)
	return out
}
