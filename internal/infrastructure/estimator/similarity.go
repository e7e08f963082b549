package estimator

import (
	"regexp"
	"strings"
)

var nonWordRegex = regexp.MustCompile(`[^\w\s]`)

// tokenSet splits s into lowercase words, dropping punctuation
func tokenSet(s string) map[string]bool {
	cleaned := nonWordRegex.ReplaceAllString(strings.ToLower(s), " ")
	set := make(map[string]bool)
	for _, word := range strings.Fields(cleaned) {
		set[word] = true
	}
	return set
}

// similarity scores an ingredient name against a table key:
// 1.0 for equal names, Jaccard overlap of words when any word is shared,
// 0.5 when one name contains the other, otherwise 0.
func similarity(ingredient, key string) float64 {
	if ingredient == key {
		return 1.0
	}

	a, b := tokenSet(ingredient), tokenSet(key)
	if shared := intersection(a, b); shared > 0 {
		return float64(shared) / float64(union(a, b))
	}

	if strings.Contains(key, ingredient) || strings.Contains(ingredient, key) {
		return 0.5
	}
	return 0
}

func intersection(a, b map[string]bool) int {
	n := 0
	for t := range a {
		if b[t] {
			n++
		}
	}
	return n
}

func union(a, b map[string]bool) int {
	n := len(a)
	for t := range b {
		if !a[t] {
			n++
		}
	}
	return n
}
