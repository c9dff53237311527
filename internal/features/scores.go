package features

import (
	"math"
	"strings"
	"time"
)

// Score normalization divisors. Downloads saturate around 10^6, favorites and
// engagement around 10^5 on the source platform.
const (
	downloadLogScale   = 6.0
	favoriteLogScale   = 5.0
	engagementLogScale = 5.0
)

// QualityScore blends rating (60%), log-scaled downloads (30%), and
// log-scaled favorites (10%), clamped to [0,1].
func QualityScore(rating float64, downloads, favorites int64) float64 {
	r := clamp01(rating / 5.0)
	d := clamp01(math.Log10(1+float64(downloads)) / downloadLogScale)
	f := clamp01(math.Log10(1+float64(favorites)) / favoriteLogScale)
	return clamp01(0.6*r + 0.3*d + 0.1*f)
}

// PopularityScore is log10-scaled downloads, clamped to [0,1].
func PopularityScore(downloads int64) float64 {
	return clamp01(math.Log10(1+float64(downloads)) / downloadLogScale)
}

// EngagementScore is log10-scaled weighted comments+favorites, clamped to [0,1].
func EngagementScore(comments, favorites int64) float64 {
	return clamp01(math.Log10(1+float64(2*comments+favorites)) / engagementLogScale)
}

// RecencyScore decays linearly from 1 to 0 over 365 days since publication.
// A nil publish time scores 0.
func RecencyScore(publishedAt *time.Time, now time.Time) float64 {
	if publishedAt == nil {
		return 0
	}
	ageDays := now.Sub(*publishedAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Max(0, 1-ageDays/365)
}

// MaturityScore grows linearly from 0 to 1 over 180 days since creation.
func MaturityScore(createdAt, now time.Time) float64 {
	ageDays := now.Sub(createdAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Min(1, ageDays/180)
}

// CompatibilityScore rates how broadly a base model ruleset interoperates.
func CompatibilityScore(sdVersion string) float64 {
	v := strings.ToLower(strings.TrimSpace(sdVersion))
	switch {
	case v == "":
		return 0.5
	case strings.Contains(v, "xl"):
		return 1.0
	case strings.Contains(v, "2."):
		return 0.7
	default:
		return 0.8
	}
}

// NSFWScore normalizes a 0–10 nsfw level to [0,1].
func NSFWScore(level int) float64 {
	return clamp01(float64(level) / 10.0)
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
