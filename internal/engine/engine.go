// Package engine holds the in-memory similarity index and performs weighted
// multi-modal ranking over it.
package engine

import (
	"context"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/loradex/loradex/internal/embedder"
	"github.com/loradex/loradex/internal/store"
)

// Weights are the per-modality blend factors. They are not forced to sum to
// 1; the caller owns weight hygiene. A zero field simply contributes nothing.
type Weights struct {
	Semantic  float64
	Artistic  float64
	Technical float64
}

// DefaultWeights returns the standard 0.6/0.3/0.1 blend.
func DefaultWeights() Weights {
	return Weights{Semantic: 0.6, Artistic: 0.3, Technical: 0.1}
}

// Recommendation is one ranked result. Created fresh per query, never persisted.
type Recommendation struct {
	AdapterID  int64
	Similarity float64 // combined weighted cosine, pre-boost
	FinalScore float64 // Similarity * (1 + sum of boosts)

	Explanation string

	// Per-modality similarity breakdown.
	SemanticScore  float64
	ArtisticScore  float64
	TechnicalScore float64

	// Per-boost-type contribution. All zero when diversification is off.
	QualityBoost    float64
	PopularityBoost float64
	RecencyBoost    float64
}

// Engine owns the similarity index. The index lives behind a single atomic
// pointer: rebuilds and appends publish a complete new Snapshot, so readers
// never observe a half-updated generation.
type Engine struct {
	emb       *embedder.Embedder
	logger    *slog.Logger
	chunkSize int
	now       func() time.Time

	snapshot atomic.Pointer[Snapshot]
}

// New creates an Engine with an empty index.
func New(emb *embedder.Embedder, chunkSize int, logger *slog.Logger) *Engine {
	if chunkSize < 1 {
		chunkSize = 1
	}
	e := &Engine{emb: emb, logger: logger, chunkSize: chunkSize, now: time.Now}
	e.snapshot.Store(&Snapshot{Meta: map[int64]AdapterMeta{}})
	return e
}

// Len returns the current row count.
func (e *Engine) Len() int {
	return e.snapshot.Load().Len()
}

// Current returns the live snapshot. The returned value must not be mutated.
func (e *Engine) Current() *Snapshot {
	return e.snapshot.Load()
}

// Restore replaces the index with a previously persisted snapshot.
func (e *Engine) Restore(s *Snapshot) {
	if s.Meta == nil {
		s.Meta = map[int64]AdapterMeta{}
	}
	e.snapshot.Store(s)
}

// Build embeds all given adapters and replaces the index wholesale. A failure
// on one adapter skips that adapter and never aborts the build.
func (e *Engine) Build(ctx context.Context, adapters []store.Adapter) error {
	s := &Snapshot{Meta: make(map[int64]AdapterMeta, len(adapters))}
	if err := e.appendRows(ctx, s, adapters); err != nil {
		return err
	}
	e.snapshot.Store(s)
	e.logger.Info("similarity index built", "rows", s.Len())
	return nil
}

// AppendIncremental embeds new adapters and appends their rows to the current
// index without recomputing existing rows. Adapters already indexed are
// skipped.
func (e *Engine) AppendIncremental(ctx context.Context, adapters []store.Adapter) error {
	cur := e.snapshot.Load()

	var fresh []store.Adapter
	for _, a := range adapters {
		if cur.rowIndex(a.ID) < 0 {
			fresh = append(fresh, a)
		}
	}
	if len(fresh) == 0 {
		return nil
	}

	next := &Snapshot{
		IDs:       append([]int64(nil), cur.IDs...),
		Semantic:  append([][]float32(nil), cur.Semantic...),
		Artistic:  append([][]float32(nil), cur.Artistic...),
		Technical: append([][]float32(nil), cur.Technical...),
		Meta:      make(map[int64]AdapterMeta, len(cur.Meta)+len(fresh)),
	}
	for id, m := range cur.Meta {
		next.Meta[id] = m
	}

	if err := e.appendRows(ctx, next, fresh); err != nil {
		return err
	}
	e.snapshot.Store(next)
	e.logger.Info("similarity index extended", "added", next.Len()-cur.Len(), "rows", next.Len())
	return nil
}

// appendRows embeds adapters chunk by chunk and appends normalized rows.
// A chunk failure degrades to per-adapter embedding so one bad adapter is
// skipped rather than poisoning its neighbors.
func (e *Engine) appendRows(ctx context.Context, s *Snapshot, adapters []store.Adapter) error {
	for start := 0; start < len(adapters); start += e.chunkSize {
		end := start + e.chunkSize
		if end > len(adapters) {
			end = len(adapters)
		}
		chunk := adapters[start:end]

		triples, err := e.emb.EmbedBatch(ctx, chunk)
		if err != nil {
			e.logger.Warn("chunk embed failed, retrying per adapter", "error", err)
			triples = make([]embedder.Triple, 0, len(chunk))
			chunk = e.embedIndividually(ctx, chunk, &triples)
		}

		for i, a := range chunk {
			s.IDs = append(s.IDs, a.ID)
			s.Semantic = append(s.Semantic, embedder.Normalize(triples[i].Semantic))
			s.Artistic = append(s.Artistic, embedder.Normalize(triples[i].Artistic))
			s.Technical = append(s.Technical, embedder.Normalize(triples[i].Technical))
			s.Meta[a.ID] = AdapterMeta{
				Name:        a.Name,
				Description: a.Description,
				Tags:        a.Tags,
				SDVersion:   a.SDVersion,
				Rating:      a.Rating,
				Downloads:   a.Downloads,
				PublishedAt: a.PublishedAt,
			}
		}
	}
	return nil
}

func (e *Engine) embedIndividually(ctx context.Context, chunk []store.Adapter, triples *[]embedder.Triple) []store.Adapter {
	var kept []store.Adapter
	for i := range chunk {
		t, err := e.emb.EmbedOne(ctx, &chunk[i])
		if err != nil {
			e.logger.Warn("skipping adapter in index build", "adapter", chunk[i].ID, "error", err)
			continue
		}
		kept = append(kept, chunk[i])
		*triples = append(*triples, t)
	}
	return kept
}

// Recommend ranks index rows against the target adapter. An empty index
// returns an empty list. Results are deterministic for a fixed snapshot and
// fixed weights.
func (e *Engine) Recommend(ctx context.Context, target *store.Adapter, n int, w *Weights, diversify bool) ([]Recommendation, error) {
	s := e.snapshot.Load()
	if s.Len() == 0 || n <= 0 {
		return []Recommendation{}, nil
	}

	weights := DefaultWeights()
	if w != nil {
		weights = *w
	}

	triple, err := e.emb.EmbedOne(ctx, target)
	if err != nil {
		return nil, err
	}
	sem := embedder.Normalize(triple.Semantic)
	art := embedder.Normalize(triple.Artistic)
	tech := embedder.Normalize(triple.Technical)

	type scored struct {
		row                           int
		semantic, artistic, technical float64
		combined                      float64
	}

	candidates := make([]scored, 0, s.Len())
	for row := range s.IDs {
		if s.IDs[row] == target.ID {
			continue
		}
		c := scored{
			row:       row,
			semantic:  embedder.Dot(sem, s.Semantic[row]),
			artistic:  embedder.Dot(art, s.Artistic[row]),
			technical: embedder.Dot(tech, s.Technical[row]),
		}
		c.combined = weights.Semantic*c.semantic + weights.Artistic*c.artistic + weights.Technical*c.technical
		candidates = append(candidates, c)
	}

	// Top 2n pool by combined score; ties keep original row order.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].combined > candidates[j].combined
	})
	if len(candidates) > 2*n {
		candidates = candidates[:2*n]
	}

	now := e.now()
	results := make([]Recommendation, 0, n)
	for _, c := range candidates {
		id := s.IDs[c.row]
		meta := s.Meta[id]

		if !compatible(target.SDVersion, meta.SDVersion) {
			continue
		}

		rec := Recommendation{
			AdapterID:      id,
			Similarity:     c.combined,
			FinalScore:     c.combined,
			SemanticScore:  c.semantic,
			ArtisticScore:  c.artistic,
			TechnicalScore: c.technical,
		}

		if diversify {
			rec.QualityBoost = qualityBoost(meta.Rating)
			rec.PopularityBoost = popularityBoost(meta.Downloads)
			rec.RecencyBoost = recencyBoost(meta.PublishedAt, now)
			total := rec.QualityBoost + rec.PopularityBoost + rec.RecencyBoost
			rec.FinalScore = c.combined * (1 + total)
		}

		rec.Explanation = explain(target, meta)

		results = append(results, rec)
		if len(results) == n {
			break
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].FinalScore > results[j].FinalScore
	})
	return results, nil
}

// compatible reports whether two base model versions can serve the same
// pipeline. Unknown version on either side is treated as compatible.
func compatible(a, b string) bool {
	if a == "" || b == "" {
		return true
	}
	return a == b
}

func qualityBoost(rating float64) float64 {
	switch {
	case rating > 4:
		return 0.1
	case rating > 3:
		return 0.05
	default:
		return 0
	}
}

func popularityBoost(downloads int64) float64 {
	switch {
	case downloads > 10000:
		return 0.1
	case downloads > 1000:
		return 0.05
	default:
		return 0
	}
}

func recencyBoost(publishedAt *time.Time, now time.Time) float64 {
	if publishedAt != nil && now.Sub(*publishedAt) < 30*24*time.Hour {
		return 0.05
	}
	return 0
}
