package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/loradex/loradex/internal/embedder"
	"github.com/loradex/loradex/internal/encoder"
)

// fallbackPoolCap bounds how many trigger vectors the semantic fallback scans.
const fallbackPoolCap = 100

// IndexedTrigger is one (adapter, trigger) entry with its stored vector.
type IndexedTrigger struct {
	AdapterID int64
	Phrase    string
	Vector    []float32
}

// IndexedAdapter is the trigger-relevant slice of an embedded adapter.
type IndexedAdapter struct {
	AdapterID int64
	Name      string
	Triggers  []string
	Aliases   map[string]string
	Vectors   map[string][]float32
}

// Repository supplies the index with active embedded adapters.
type Repository interface {
	// CountActiveEmbedded returns the number of active adapters that have
	// embedding records.
	CountActiveEmbedded(ctx context.Context) (int, error)

	// ListActiveEmbedded returns trigger data for those adapters.
	ListActiveEmbedded(ctx context.Context) ([]IndexedAdapter, error)
}

// Candidate is one search result.
type Candidate struct {
	AdapterID int64
	Name      string
	Trigger   string
	Score     float64
	Matched   string // "exact" or "semantic"
}

// Index is the trigger search index: an inverted canonical-trigger map plus
// parallel trigger-vector arrays for the semantic fallback.
//
// Freshness is judged by the count of active embedded adapters, not content
// hashing: a rebuild is skipped whenever the count is unchanged, which can
// miss same-count content updates. That is a deliberate cheap-staleness
// trade-off carried over from the source behavior.
type Index struct {
	repo     Repository
	resolver *Resolver
	emb      *embedder.Embedder
	logger   *slog.Logger

	mu       sync.RWMutex
	count    int
	built    bool
	exact    map[string][]int64
	triggers []IndexedTrigger
	names    map[int64]string
}

// NewIndex creates a trigger search index.
func NewIndex(repo Repository, resolver *Resolver, emb *embedder.Embedder, logger *slog.Logger) *Index {
	return &Index{
		repo:     repo,
		resolver: resolver,
		emb:      emb,
		logger:   logger,
	}
}

// Ensure rebuilds the index when the active-embedded adapter count changed
// since the last build. Returns true when a rebuild ran.
func (ix *Index) Ensure(ctx context.Context) (bool, error) {
	current, err := ix.repo.CountActiveEmbedded(ctx)
	if err != nil {
		return false, fmt.Errorf("trigger staleness check: %w", err)
	}

	ix.mu.RLock()
	fresh := ix.built && current == ix.count
	ix.mu.RUnlock()
	if fresh {
		return false, nil
	}

	adapters, err := ix.repo.ListActiveEmbedded(ctx)
	if err != nil {
		return false, fmt.Errorf("trigger index load: %w", err)
	}

	exact := make(map[string][]int64)
	var triggers []IndexedTrigger
	names := make(map[int64]string, len(adapters))

	for _, a := range adapters {
		names[a.AdapterID] = a.Name
		res := ix.resolver.Resolve(a.Triggers)
		for _, canonical := range res.Canonical {
			exact[canonical] = append(exact[canonical], a.AdapterID)
		}
		for phrase, vec := range a.Vectors {
			if len(vec) == 0 {
				continue
			}
			triggers = append(triggers, IndexedTrigger{
				AdapterID: a.AdapterID,
				Phrase:    phrase,
				Vector:    embedder.Normalize(vec),
			})
		}
	}

	// Deterministic fallback scan order.
	sort.Slice(triggers, func(i, j int) bool {
		if triggers[i].AdapterID != triggers[j].AdapterID {
			return triggers[i].AdapterID < triggers[j].AdapterID
		}
		return triggers[i].Phrase < triggers[j].Phrase
	})

	ix.mu.Lock()
	ix.count = current
	ix.built = true
	ix.exact = exact
	ix.triggers = triggers
	ix.names = names
	ix.mu.Unlock()

	ix.logger.Info("trigger index rebuilt", "adapters", len(adapters), "triggers", len(triggers))
	return true, nil
}

// Search resolves the query and ranks candidates: an exact canonical match
// contributes 1.0 scaled by resolution confidence; when the exact pass yields
// fewer than limit results, a semantic pass scores the query embedding against
// a bounded pool of cached trigger vectors, skipping adapters already matched
// exactly. Per adapter only the strongest signal survives.
func (ix *Index) Search(ctx context.Context, query string, limit int) ([]Candidate, error) {
	if limit <= 0 {
		return nil, nil
	}

	resolved := ix.resolver.ResolveQuery(query)
	if resolved.Normalized == "" {
		return nil, nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	best := make(map[int64]Candidate)
	for _, canonical := range resolved.Canonical {
		confidence := resolved.Confidence[canonical]
		for _, id := range ix.exact[canonical] {
			score := 1.0 * confidence
			if cur, ok := best[id]; !ok || score > cur.Score {
				best[id] = Candidate{
					AdapterID: id,
					Name:      ix.names[id],
					Trigger:   canonical,
					Score:     score,
					Matched:   "exact",
				}
			}
		}
	}

	if len(best) < limit && len(ix.triggers) > 0 {
		queryVec, err := ix.emb.EmbedText(ctx, encoder.ModalitySemantic, resolved.Normalized)
		if err != nil {
			return nil, fmt.Errorf("embedding trigger query: %w", err)
		}
		queryVec = embedder.Normalize(queryVec)

		pool := ix.triggers
		if len(pool) > fallbackPoolCap {
			pool = pool[:fallbackPoolCap]
		}
		for _, t := range pool {
			if cur, ok := best[t.AdapterID]; ok && cur.Matched == "exact" {
				continue
			}
			score := embedder.Dot(queryVec, t.Vector)
			if score <= 0 {
				continue
			}
			if cur, ok := best[t.AdapterID]; !ok || score > cur.Score {
				best[t.AdapterID] = Candidate{
					AdapterID: t.AdapterID,
					Name:      ix.names[t.AdapterID],
					Trigger:   t.Phrase,
					Score:     score,
					Matched:   "semantic",
				}
			}
		}
	}

	results := make([]Candidate, 0, len(best))
	for _, c := range best {
		results = append(results, c)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].AdapterID < results[j].AdapterID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Invalidate forces the next Ensure to rebuild.
func (ix *Index) Invalidate() {
	ix.mu.Lock()
	ix.built = false
	ix.mu.Unlock()
}
