package engine

import (
	"sort"
	"strings"

	"github.com/loradex/loradex/internal/store"
)

// stopWords is the fixed English stop-word set stripped before word overlap.
var stopWords = map[string]bool{
	"about": true, "after": true, "also": true, "been": true, "before": true,
	"being": true, "both": true, "each": true, "from": true, "have": true,
	"here": true, "into": true, "just": true, "like": true, "made": true,
	"more": true, "most": true, "much": true, "only": true, "other": true,
	"over": true, "same": true, "some": true, "such": true,
	"than": true, "that": true, "their": true, "them": true, "then": true,
	"there": true, "these": true, "they": true, "this": true, "very": true,
	"what": true, "when": true, "where": true, "which": true, "while": true,
	"will": true, "with": true, "your": true,
}

// explain builds a human-readable reason for a recommendation by intersecting
// significant description words, shared tags, and the base model version.
// Non-empty parts join with " | "; nothing qualifying yields a generic string.
func explain(target *store.Adapter, candidate AdapterMeta) string {
	var parts []string

	shared := intersectWords(significantWords(target.Description), significantWords(candidate.Description))
	if len(shared) > 0 {
		if len(shared) > 3 {
			shared = shared[:3]
		}
		parts = append(parts, "Shares themes: "+strings.Join(shared, ", "))
	}

	tags := intersectWords(lowerAll(target.Tags), lowerAll(candidate.Tags))
	if len(tags) > 0 {
		if len(tags) > 3 {
			tags = tags[:3]
		}
		parts = append(parts, "Common tags: "+strings.Join(tags, ", "))
	}

	if target.SDVersion != "" && target.SDVersion == candidate.SDVersion {
		parts = append(parts, "Same base model: "+target.SDVersion)
	}

	if len(parts) == 0 {
		return "General similarity"
	}
	return strings.Join(parts, " | ")
}

// significantWords returns sorted unique lowercase words longer than three
// characters, minus stop words.
func significantWords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	seen := make(map[string]bool)
	var words []string
	for _, w := range fields {
		if len(w) > 3 && !stopWords[w] && !seen[w] {
			seen[w] = true
			words = append(words, w)
		}
	}
	sort.Strings(words)
	return words
}

func intersectWords(a, b []string) []string {
	set := make(map[string]bool, len(b))
	for _, w := range b {
		set[w] = true
	}
	var out []string
	for _, w := range a {
		if set[w] {
			out = append(out, w)
		}
	}
	return out
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
