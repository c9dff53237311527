package features

import (
	"sort"
	"strings"
)

// Keyword is an extracted keyword with a normalized frequency score.
type Keyword struct {
	Word  string
	Score float64
}

// maxKeywords caps the extracted keyword list.
const maxKeywords = 10

// ExtractKeywords returns the top-N most frequent words longer than three
// characters, scored by frequency normalized over the total word count.
// Deterministic: ties break alphabetically.
func ExtractKeywords(text string) []Keyword {
	words := splitWords(text)
	if len(words) == 0 {
		return nil
	}

	counts := make(map[string]int)
	for _, w := range words {
		if len(w) > 3 {
			counts[w]++
		}
	}
	if len(counts) == 0 {
		return nil
	}

	keywords := make([]Keyword, 0, len(counts))
	total := float64(len(words))
	for w, c := range counts {
		keywords = append(keywords, Keyword{Word: w, Score: float64(c) / total})
	}
	sort.Slice(keywords, func(i, j int) bool {
		if keywords[i].Score != keywords[j].Score {
			return keywords[i].Score > keywords[j].Score
		}
		return keywords[i].Word < keywords[j].Word
	})
	if len(keywords) > maxKeywords {
		keywords = keywords[:maxKeywords]
	}
	return keywords
}

var positiveWords = []string{
	"amazing", "beautiful", "best", "detailed", "excellent", "great",
	"high", "love", "perfect", "quality", "stunning", "wonderful",
}

var negativeWords = []string{
	"bad", "broken", "poor", "terrible", "ugly", "worst", "wrong",
}

// ClassifySentiment counts positive vs negative keywords. The score is the
// margin over the total matched count; no matches yields ("neutral", 0).
func ClassifySentiment(text string) (string, float64) {
	words := splitWords(text)
	var pos, neg int
	for _, w := range words {
		if containsWord(positiveWords, w) {
			pos++
		}
		if containsWord(negativeWords, w) {
			neg++
		}
	}

	total := pos + neg
	if total == 0 {
		return "neutral", 0
	}
	score := float64(pos-neg) / float64(total)
	switch {
	case score > 0:
		return "positive", score
	case score < 0:
		return "negative", -score
	default:
		return "neutral", 0
	}
}

// styleCategories maps a style label to the vocabulary that signals it.
// Order matters for deterministic tie-breaking; keep alphabetical.
var styleCategories = []struct {
	label string
	words []string
}{
	{"anime", []string{"anime", "manga", "chibi", "waifu", "2d", "cel"}},
	{"fantasy", []string{"fantasy", "dragon", "magic", "elf", "medieval", "mythic"}},
	{"painterly", []string{"painting", "watercolor", "oil", "brush", "impressionist", "sketch"}},
	{"photorealistic", []string{"photo", "photorealistic", "realistic", "portrait", "cinematic", "raw"}},
	{"scifi", []string{"cyberpunk", "scifi", "futuristic", "mecha", "robot", "neon"}},
}

// ClassifyStyle counts category keywords over tags and text. Confidence is the
// winning category's share of all category hits; no hits yields ("general", 0).
func ClassifyStyle(tags []string, text string) (string, float64) {
	words := splitWords(text)
	for _, t := range tags {
		words = append(words, splitWords(t)...)
	}

	best, bestHits, total := "general", 0, 0
	for _, cat := range styleCategories {
		hits := 0
		for _, w := range words {
			if containsWord(cat.words, w) {
				hits++
			}
		}
		total += hits
		if hits > bestHits {
			best, bestHits = cat.label, hits
		}
	}

	if total == 0 {
		return "general", 0
	}
	return best, float64(bestHits) / float64(total)
}

func splitWords(text string) []string {
	text = strings.ToLower(text)
	return strings.FieldsFunc(text, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

func containsWord(list []string, w string) bool {
	for _, x := range list {
		if x == w {
			return true
		}
	}
	return false
}
