// Package trigger canonicalizes trigger phrases and serves trigger-phrase
// queries through an inverted exact-match index with a semantic fallback.
package trigger

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// minTokenLength rejects canonical triggers shorter than this.
const minTokenLength = 2

// builtinAliases maps community shorthand to canonical trigger phrases.
var builtinAliases = map[string]string{
	"1girl":  "girl",
	"1boy":   "boy",
	"sdxl":   "stable diffusion xl",
	"sd15":   "stable diffusion 1.5",
	"sd21":   "stable diffusion 2.1",
	"hires":  "high resolution",
	"lowres": "low resolution",
	"nsfw":   "mature",
}

// Resolution is the outcome of canonicalizing a set of candidate phrases.
type Resolution struct {
	// Canonical lists resolved trigger phrases in first-seen order.
	Canonical []string
	// Aliases maps each normalized input that was rewritten to its canonical form.
	Aliases map[string]string
	// Confidence per canonical trigger: +0.2 per supporting candidate, capped at 1.0.
	Confidence map[string]float64
	// Sources maps each canonical trigger to the raw candidates that produced it.
	Sources map[string][]string
}

// QueryResolution is Resolution plus the normalized form of the whole query.
type QueryResolution struct {
	Resolution
	// Normalized is the whitespace-collapsed canonical query text; empty when
	// the query contained nothing usable.
	Normalized string
}

// Resolver canonicalizes trigger phrases.
type Resolver struct {
	aliases map[string]string
}

// NewResolver creates a Resolver with the built-in alias table plus overrides.
// Overrides win on key collision.
func NewResolver(overrides map[string]string) *Resolver {
	aliases := make(map[string]string, len(builtinAliases)+len(overrides))
	for k, v := range builtinAliases {
		aliases[k] = v
	}
	for k, v := range overrides {
		aliases[Normalize(k)] = Normalize(v)
	}
	return &Resolver{aliases: aliases}
}

// Normalize applies NFKC folding, lowercases, strips everything but
// alphanumerics and spaces, and collapses whitespace.
func Normalize(text string) string {
	text = norm.NFKC.String(text)
	text = strings.ToLower(text)

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Resolve canonicalizes candidate phrases. Candidates that normalize to the
// same canonical trigger reinforce its confidence.
func (r *Resolver) Resolve(candidates []string) Resolution {
	res := Resolution{
		Aliases:    make(map[string]string),
		Confidence: make(map[string]float64),
		Sources:    make(map[string][]string),
	}

	for _, raw := range candidates {
		normalized := Normalize(raw)
		if len(normalized) < minTokenLength {
			continue
		}

		canonical := normalized
		if alias, ok := r.aliases[normalized]; ok {
			canonical = alias
			res.Aliases[normalized] = canonical
		}

		if _, seen := res.Confidence[canonical]; !seen {
			res.Canonical = append(res.Canonical, canonical)
		}
		res.Confidence[canonical] = capConfidence(res.Confidence[canonical] + 0.2)
		res.Sources[canonical] = append(res.Sources[canonical], raw)
	}

	return res
}

// ResolveQuery canonicalizes free query text, additionally splitting it into
// sub-token candidates so partial matches can hit the exact index.
func (r *Resolver) ResolveQuery(text string) QueryResolution {
	normalized := Normalize(text)
	if normalized == "" {
		return QueryResolution{Resolution: r.Resolve(nil)}
	}

	candidates := []string{normalized}
	for _, token := range strings.Fields(normalized) {
		if token != normalized {
			candidates = append(candidates, token)
		}
	}

	return QueryResolution{
		Resolution: r.Resolve(candidates),
		Normalized: normalized,
	}
}

func capConfidence(c float64) float64 {
	if c > 1.0 {
		return 1.0
	}
	return c
}
