// Package embedder orchestrates payload construction and encoding into the
// per-adapter multi-modal embedding triple.
package embedder

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/loradex/loradex/internal/encoder"
	"github.com/loradex/loradex/internal/payload"
	"github.com/loradex/loradex/internal/store"
)

// Triple holds one embedding per modality for a single adapter.
type Triple struct {
	Semantic  []float32
	Artistic  []float32
	Technical []float32
}

// Embedder turns adapters into embedding triples.
type Embedder struct {
	registry *encoder.Registry
	logger   *slog.Logger
}

// New creates an Embedder.
func New(registry *encoder.Registry, logger *slog.Logger) *Embedder {
	return &Embedder{registry: registry, logger: logger}
}

// EmbedOne computes the triple for a single adapter. Encoder failures
// propagate; the caller owns retry/skip policy.
func (e *Embedder) EmbedOne(ctx context.Context, a *store.Adapter) (Triple, error) {
	triples, err := e.EmbedBatch(ctx, []store.Adapter{*a})
	if err != nil {
		return Triple{}, err
	}
	return triples[0], nil
}

// EmbedBatch computes triples for many adapters with one encoder call per
// modality. Adapters whose payload is empty for a modality get a zero vector
// for that modality without touching the encoder.
func (e *Embedder) EmbedBatch(ctx context.Context, adapters []store.Adapter) ([]Triple, error) {
	if len(adapters) == 0 {
		return nil, nil
	}

	triples := make([]Triple, len(adapters))

	for _, m := range encoder.Modalities {
		// Collect non-empty payloads and remember which adapter each belongs to.
		var texts []string
		var owners []int
		for i := range adapters {
			text := payloadFor(m, &adapters[i])
			if text == "" {
				continue
			}
			texts = append(texts, text)
			owners = append(owners, i)
		}

		var vecs [][]float32
		if len(texts) > 0 {
			var err error
			vecs, err = e.registry.Encode(ctx, m, texts)
			if err != nil {
				return nil, fmt.Errorf("encoding %s batch: %w", m, err)
			}
		}

		for i := range adapters {
			setModality(&triples[i], m, zeroVector())
		}
		for j, owner := range owners {
			setModality(&triples[owner], m, vecs[j])
		}
	}

	return triples, nil
}

// EmbedText encodes free text directly in one modality. This is the path for
// prompt queries and trigger phrases, where the text itself is the query.
func (e *Embedder) EmbedText(ctx context.Context, m encoder.Modality, text string) ([]float32, error) {
	if text == "" {
		return zeroVector(), nil
	}
	return e.registry.EncodeOne(ctx, m, text)
}

func payloadFor(m encoder.Modality, a *store.Adapter) string {
	switch m {
	case encoder.ModalitySemantic:
		return payload.Semantic(a)
	case encoder.ModalityArtistic:
		return payload.Artistic(a)
	default:
		return payload.Technical(a)
	}
}

func setModality(t *Triple, m encoder.Modality, vec []float32) {
	switch m {
	case encoder.ModalitySemantic:
		t.Semantic = vec
	case encoder.ModalityArtistic:
		t.Artistic = vec
	default:
		t.Technical = vec
	}
}

func zeroVector() []float32 {
	return make([]float32, encoder.Dimensions)
}

// Normalize returns an L2-normalized copy of v. A zero-norm vector is
// returned as-is, never divided by zero.
func Normalize(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if norm == 0 {
		copy(out, v)
		return out
	}
	norm = math.Sqrt(norm)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// Dot returns the dot product of two equal-length vectors. For pre-normalized
// inputs this is the cosine similarity.
func Dot(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// Cosine returns the cosine similarity of two vectors, defined as 0 when
// either has zero norm.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
