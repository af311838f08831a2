// Package phonetic ranks registered song titles by how closely they sound
// like, or are spelled like, a search phrase that produced no substring
// match. The result feeds the "did you mean" line of the play command.
//
// The algorithm proceeds in two stages:
//
//  1. Phonetic candidate filtering: Double Metaphone codes are computed for
//     each word of the query and of every title. A title whose codes overlap
//     the query's becomes a phonetic candidate.
//
//  2. Jaro-Winkler ranking: phonetic candidates scoring at least the phonetic
//     threshold are ranked first, by score. Titles without phonetic overlap
//     are only considered when their Jaro-Winkler score reaches the higher
//     fuzzy threshold (default 0.85).
//
// Suggestions are informational. They never select a song on their own.
package phonetic

import (
	"cmp"
	"slices"
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched title to be suggested. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required for a title
// without phonetic overlap. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher is safe for concurrent use; it is read-only after construction.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a new [Matcher] configured with the supplied options.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Suggestion is one ranked title.
type Suggestion struct {
	// Index is the position of Title in the slice passed to Suggest.
	Index int
	Title string
	Score float64

	// Phonetic is true when the title shares a Double Metaphone code with
	// the query.
	Phonetic bool
}

// Suggest returns at most limit titles that resemble query, best first.
// Phonetic candidates rank above pure spelling matches; ties keep the order
// of titles. Duplicate titles (case-insensitive) are reported once. A blank
// query or a non-positive limit yields nil.
func (m *Matcher) Suggest(query string, titles []string, limit int) []Suggestion {
	queryLower := strings.ToLower(strings.TrimSpace(query))
	if queryLower == "" || limit <= 0 || len(titles) == 0 {
		return nil
	}
	queryTokens := strings.Fields(queryLower)
	queryCodes := codesForTokens(queryTokens)

	seen := make(map[string]struct{}, len(titles))
	var out []Suggestion
	for i, title := range titles {
		titleLower := strings.ToLower(strings.TrimSpace(title))
		if titleLower == "" {
			continue
		}
		if _, dup := seen[titleLower]; dup {
			continue
		}
		titleTokens := strings.Fields(titleLower)

		phonetic := codesOverlap(queryCodes, codesForTokens(titleTokens))
		score := bestJWScore(queryTokens, titleTokens, queryLower, titleLower)

		threshold := m.fuzzyThreshold
		if phonetic {
			threshold = m.phoneticThreshold
		}
		if score < threshold {
			continue
		}
		seen[titleLower] = struct{}{}
		out = append(out, Suggestion{Index: i, Title: title, Score: score, Phonetic: phonetic})
	}

	slices.SortStableFunc(out, func(a, b Suggestion) int {
		if a.Phonetic != b.Phonetic {
			if a.Phonetic {
				return -1
			}
			return 1
		}
		return cmp.Compare(b.Score, a.Score)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes (produced when the word is too short or
// contains no consonants) are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore is the highest Jaro-Winkler similarity among the full strings,
// the space-stripped strings and every query/title token pair. Tokens of one
// or two letters ("a", "of") are skipped in the pairwise pass since they
// match far too much.
func bestJWScore(queryTokens, titleTokens []string, queryFull, titleFull string) float64 {
	score := matchr.JaroWinkler(queryFull, titleFull, false)

	if len(queryTokens) > 1 || len(titleTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(queryTokens, ""), strings.Join(titleTokens, ""), false); s > score {
			score = s
		}
	}

	for _, qt := range queryTokens {
		if len(qt) < 3 {
			continue
		}
		for _, tt := range titleTokens {
			if len(tt) < 3 {
				continue
			}
			if s := matchr.JaroWinkler(qt, tt, false); s > score {
				score = s
			}
		}
	}
	return score
}
