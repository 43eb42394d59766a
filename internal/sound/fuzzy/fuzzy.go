// Package fuzzy ranks clip names against a partially typed query for
// autocomplete and proposes near misses for unknown names.
//
// Matching is subsequence based: every rune of the query has to appear in
// the candidate in order, not necessarily adjacent. Scores are distances,
// lower is better.
package fuzzy

import (
	"cmp"
	"slices"
	"strings"
	"unicode"
)

// MaxResults is the default autocomplete cap.
const MaxResults = 10

// Distance weights. A tight match near the start of a short name wins.
const (
	gapWeight      = 2
	leadingWeight  = 3
	trailingWeight = 1
)

// Score reports whether query is a subsequence of candidate and, if so, its
// distance. Queries without upper-case letters match case-insensitively. The
// empty query matches everything with distance 0.
func Score(query, candidate string) (int, bool) {
	if query == "" {
		return 0, true
	}
	if !hasUpper(query) {
		query = strings.ToLower(query)
		candidate = strings.ToLower(candidate)
	}
	q := []rune(query)
	c := []rune(candidate)
	if len(q) > len(c) {
		return 0, false
	}

	best, found := 0, false
	for start := range c {
		if c[start] != q[0] {
			continue
		}
		end, ok := matchFrom(q, c, start)
		if !ok {
			// No later start can complete either.
			break
		}
		gaps := end - start + 1 - len(q)
		dist := gapWeight*gaps + leadingWeight*start + trailingWeight*(len(c)-1-end)
		if !found || dist < best {
			best, found = dist, true
		}
	}
	return best, found
}

// matchFrom greedily matches q inside c beginning at start, where c[start]
// equals q[0], and returns the index of the last matched rune.
func matchFrom(q, c []rune, start int) (int, bool) {
	qi := 1
	end := start
	for ci := start + 1; ci < len(c) && qi < len(q); ci++ {
		if c[ci] == q[qi] {
			qi++
			end = ci
		}
	}
	return end, qi == len(q)
}

func hasUpper(s string) bool {
	for _, r := range s {
		if unicode.IsUpper(r) {
			return true
		}
	}
	return false
}

// Option configures [Rank].
type Option func(*rankOptions)

type rankOptions struct {
	limit  int
	strict bool
}

// WithLimit changes the result cap. Values < 1 are ignored.
func WithLimit(n int) Option {
	return func(o *rankOptions) {
		if n > 0 {
			o.limit = n
		}
	}
}

// WithStrictLimit truncates the result to exactly the cap instead of
// finishing the last score group.
func WithStrictLimit() Option {
	return func(o *rankOptions) { o.strict = true }
}

type scored struct {
	name string
	dist int
}

// Rank returns the candidates matching query, best first. Candidates with
// equal distance form a group and keep their input order. The cap is only
// checked between groups: once more than the cap have been collected no
// further group is added, so the final group may overshoot it.
func Rank(query string, candidates []string, opts ...Option) []string {
	o := rankOptions{limit: MaxResults}
	for _, opt := range opts {
		opt(&o)
	}

	matches := make([]scored, 0, len(candidates))
	for _, cand := range candidates {
		if d, ok := Score(query, cand); ok {
			matches = append(matches, scored{name: cand, dist: d})
		}
	}
	slices.SortStableFunc(matches, func(a, b scored) int {
		return cmp.Compare(a.dist, b.dist)
	})

	out := make([]string, 0, min(len(matches), o.limit+1))
	for i := 0; i < len(matches); {
		if len(out) > o.limit {
			break
		}
		j := i
		for j < len(matches) && matches[j].dist == matches[i].dist {
			out = append(out, matches[j].name)
			j++
		}
		i = j
	}
	if o.strict && len(out) > o.limit {
		out = out[:o.limit]
	}
	return out
}
