package fuzzy

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	// suggestThreshold is the Jaro-Winkler similarity a candidate needs to
	// be offered as a "did you mean".
	suggestThreshold = 0.85

	// phoneticThreshold is the lower bar for candidates that also sound
	// alike (same primary Double Metaphone code).
	phoneticThreshold = 0.7
)

// Closest returns the candidate most similar to name, if any is similar
// enough. Candidates that sound like name are preferred over those that are
// merely spelled alike.
func Closest(name string, candidates []string) (string, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "", false
	}
	namePrimary, _ := matchr.DoubleMetaphone(name)

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)
	for _, cand := range candidates {
		lower := strings.ToLower(cand)
		score := matchr.JaroWinkler(name, lower, false)
		primary, _ := matchr.DoubleMetaphone(lower)
		phonetic := namePrimary != "" && primary == namePrimary

		switch {
		case phonetic && score >= phoneticThreshold:
		case score >= suggestThreshold:
		default:
			continue
		}
		if best == "" || (phonetic && !bestPhonetic) || (phonetic == bestPhonetic && score > bestScore) {
			best, bestScore, bestPhonetic = cand, score, phonetic
		}
	}
	return best, best != ""
}
