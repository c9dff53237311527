// Package features derives scalar scores, keywords, sentiment, and style
// classifications from adapter metadata. Every function here is a pure,
// deterministic heuristic: the same input produces the same output regardless
// of which encoder backend is active.
package features

import (
	"strings"
	"time"

	"github.com/loradex/loradex/internal/store"
)

// Record is the extracted feature set for one adapter, before persistence.
type Record struct {
	Keywords []Keyword

	PredictedStyle  string
	StyleConfidence float64
	Sentiment       string
	SentimentScore  float64

	Quality       float64
	Popularity    float64
	Engagement    float64
	Recency       float64
	Maturity      float64
	Compatibility float64
	NSFW          float64
}

// Extractor derives feature records. The clock is injectable for tests.
type Extractor struct {
	now func() time.Time
}

// NewExtractor creates an Extractor using the wall clock.
func NewExtractor() *Extractor {
	return &Extractor{now: time.Now}
}

// NewExtractorAt creates an Extractor with a fixed clock.
func NewExtractorAt(now func() time.Time) *Extractor {
	return &Extractor{now: now}
}

// Extract computes the feature record for an adapter. Keywords and sentiment
// read the description and trained words; the numeric scores read only stats
// and timestamps, so a description edit never moves them.
func (e *Extractor) Extract(a *store.Adapter) Record {
	now := e.now()
	keywordText := a.Description + " " + strings.Join(a.TrainedWords, " ")
	style, styleConf := ClassifyStyle(a.Tags, keywordText)
	sentiment, sentScore := ClassifySentiment(a.Description)

	return Record{
		Keywords:        ExtractKeywords(keywordText),
		PredictedStyle:  style,
		StyleConfidence: styleConf,
		Sentiment:       sentiment,
		SentimentScore:  sentScore,
		Quality:         QualityScore(a.Rating, a.Downloads, a.Favorites),
		Popularity:      PopularityScore(a.Downloads),
		Engagement:      EngagementScore(a.Comments, a.Favorites),
		Recency:         RecencyScore(a.PublishedAt, now),
		Maturity:        MaturityScore(a.CreatedAt, now),
		Compatibility:   CompatibilityScore(a.SDVersion),
		NSFW:            NSFWScore(a.NSFWLevel),
	}
}
