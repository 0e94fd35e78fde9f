package cli

import (
	"sort"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// Suggest returns the items in haystack within the given edit distance of needle, closest first.
func Suggest(needle string, haystack []string, maxDistance int) []string {
	type candidate struct {
		s    string
		dist int
	}
	n := []rune(needle)
	var candidates []candidate
	for _, straw := range haystack {
		if straw == "" {
			continue
		}
		if d := levenshtein.DistanceForStrings(n, []rune(straw), levenshtein.DefaultOptions); d <= maxDistance {
			candidates = append(candidates, candidate{s: straw, dist: d})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })
	ret := make([]string, len(candidates))
	for i, c := range candidates {
		ret[i] = c.s
	}
	return ret
}

// PrettyPrintSuggestion returns a message suggesting the closest items to needle, or the
// empty string if nothing is close enough.
func PrettyPrintSuggestion(needle string, haystack []string, maxDistance int) string {
	options := Suggest(needle, haystack, maxDistance)
	switch len(options) {
	case 0:
		return ""
	case 1:
		return "\nMaybe you meant " + options[0] + " ?"
	}
	// The space before the question mark means the last suggestion can be selected without it.
	return "\nMaybe you meant " + strings.Join(options[:len(options)-1], " , ") + " or " + options[len(options)-1] + " ?"
}
