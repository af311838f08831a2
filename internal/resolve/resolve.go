// Package resolve turns the free-form text of a play command into either a
// playable URL or a reason why nothing should be played.
//
// Input that looks like a URL bypasses the registry entirely. Anything else
// is a case-insensitive substring query against the song registry: exactly
// one match resolves to that song's canonical URL, zero matches and several
// matches are reported back to the user. When nothing matches, the resolver
// may attach fuzzy "did you mean" suggestions, but it never plays them.
package resolve

import (
	"context"
	"strings"

	"github.com/MrWong99/dmbot/internal/resolve/phonetic"
	"github.com/MrWong99/dmbot/internal/songs"
)

// Outcome classifies a [Resolution].
type Outcome int

const (
	// Direct means the input was a URL and is played as-is.
	Direct Outcome = iota

	// Unique means exactly one registered title matched.
	Unique

	// Ambiguous means two or more registered titles matched.
	Ambiguous

	// Empty means no registered title matched.
	Empty
)

// String implements [fmt.Stringer].
func (o Outcome) String() string {
	switch o {
	case Direct:
		return "direct"
	case Unique:
		return "unique"
	case Ambiguous:
		return "ambiguous"
	case Empty:
		return "empty"
	}
	return "unknown"
}

// Resolution is the result of [Resolver.Resolve].
type Resolution struct {
	Outcome Outcome

	// URL is set for Direct and Unique.
	URL string

	// Song is the matched entry for Unique.
	Song songs.Song

	// Matches holds every matching song, in registry order, for Ambiguous.
	Matches []songs.Song

	// Suggestions holds fuzzy title suggestions for Empty.
	Suggestions []string
}

// Playable reports whether the resolution produced a URL to enqueue.
func (r Resolution) Playable() bool {
	return r.Outcome == Direct || r.Outcome == Unique
}

// Registry is the subset of [songs.Registry] the resolver reads from.
type Registry interface {
	FindByTitleContains(ctx context.Context, query string) []songs.Song
	All(ctx context.Context) []songs.Song
}

// Option configures a [Resolver].
type Option func(*Resolver)

// WithMatcher sets the matcher used for suggestions. Default: [phonetic.New].
func WithMatcher(m *phonetic.Matcher) Option {
	return func(r *Resolver) { r.matcher = m }
}

// WithSuggestions sets how many suggestions accompany an Empty resolution.
// Zero disables suggestions. Default: 3.
func WithSuggestions(n int) Option {
	return func(r *Resolver) { r.suggestions = n }
}

// Resolver applies the resolution policy against a registry.
type Resolver struct {
	registry    Registry
	matcher     *phonetic.Matcher
	suggestions int
}

// New returns a Resolver reading from registry.
func New(registry Registry, opts ...Option) *Resolver {
	r := &Resolver{
		registry:    registry,
		matcher:     phonetic.New(),
		suggestions: 3,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve applies the resolution policy to input. It never fails: registry
// faults look like an empty registry, as [songs.Registry.FindByTitleContains]
// defines.
func (r *Resolver) Resolve(ctx context.Context, input string) Resolution {
	input = strings.TrimSpace(input)
	if IsDirectURL(input) {
		return Resolution{Outcome: Direct, URL: input}
	}

	matches := r.registry.FindByTitleContains(ctx, input)
	switch len(matches) {
	case 0:
		return Resolution{Outcome: Empty, Suggestions: r.suggest(ctx, input)}
	case 1:
		return Resolution{Outcome: Unique, URL: CanonicalURL(matches[0].VideoID), Song: matches[0]}
	default:
		return Resolution{Outcome: Ambiguous, Matches: matches}
	}
}

func (r *Resolver) suggest(ctx context.Context, query string) []string {
	if r.suggestions <= 0 || r.matcher == nil {
		return nil
	}
	all := r.registry.All(ctx)
	if len(all) == 0 {
		return nil
	}
	titles := make([]string, len(all))
	for i, s := range all {
		titles[i] = s.Title
	}
	ranked := r.matcher.Suggest(query, titles, r.suggestions)
	if len(ranked) == 0 {
		return nil
	}
	out := make([]string, len(ranked))
	for i, s := range ranked {
		out[i] = s.Title
	}
	return out
}
