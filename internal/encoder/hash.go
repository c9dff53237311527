package encoder

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// HashProvider generates embeddings by hashing tokens into vector dimensions.
// Not semantically meaningful, but fully deterministic: identical text always
// yields an identical, L2-normalized vector of the standard dimensionality.
// It is the degraded-mode substitute used when no encoder sidecar is reachable.
type HashProvider struct {
	modality Modality
}

// NewHashProvider creates a hashed fallback provider for one modality.
// The modality salts every hash so the three spaces stay independent.
func NewHashProvider(m Modality) *HashProvider {
	return &HashProvider{modality: m}
}

// Name returns the provider name.
func (p *HashProvider) Name() string {
	return "hash-" + string(p.modality)
}

// Dimensions returns the output vector size.
func (p *HashProvider) Dimensions() int { return Dimensions }

// Encode hashes each text's tokens into a fixed-size vector.
func (p *HashProvider) Encode(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = p.encodeOne(text)
	}
	return out, nil
}

// encodeOne tokenizes, hashes each token (and bigram) to a dimension index,
// accumulates counts, and L2-normalizes. Empty text yields a zero vector.
func (p *HashProvider) encodeOne(text string) []float32 {
	vec := make([]float32, Dimensions)
	words := tokenize(text)

	for _, word := range words {
		vec[p.bucket(word)] += 1.0
	}

	// Bigrams capture a little word ordering.
	for i := 0; i < len(words)-1; i++ {
		vec[p.bucket(words[i]+" "+words[i+1])] += 0.5
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec
}

// bucket maps a token to a dimension index, salted by modality so the three
// spaces disagree on where any given token lands.
func (p *HashProvider) bucket(token string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(p.modality))
	h.Write([]byte{0})
	h.Write([]byte(token))
	return h.Sum64() % uint64(Dimensions)
}

// tokenize splits text into lowercase word tokens.
func tokenize(text string) []string {
	text = strings.ToLower(text)
	for _, c := range ".,;:!?()[]{}\"'`~@#$%^&*+=|\\/<>" {
		text = strings.ReplaceAll(text, string(c), " ")
	}
	fields := strings.Fields(text)
	var result []string
	for _, f := range fields {
		if len(f) >= 2 {
			result = append(result, f)
		}
	}
	return result
}
