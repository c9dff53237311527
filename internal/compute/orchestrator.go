// Package compute computes and persists embedding records for adapters, with
// skip-if-exists semantics and per-adapter failure isolation in batches.
package compute

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/loradex/loradex/internal/embedder"
	"github.com/loradex/loradex/internal/encoder"
	"github.com/loradex/loradex/internal/features"
	"github.com/loradex/loradex/internal/store"
	"github.com/loradex/loradex/internal/trigger"
)

// Repository is the persistence boundary the orchestrator computes against.
// *store.Repo implements it.
type Repository interface {
	GetAdapter(ctx context.Context, id int64) (*store.Adapter, error)
	ListAdapters(ctx context.Context, ids []int64) ([]store.Adapter, error)
	ListActiveAdapters(ctx context.Context) ([]store.Adapter, error)
	EmbeddingExists(ctx context.Context, id int64) (bool, error)
	ExistingEmbeddingIDs(ctx context.Context, ids []int64) (map[int64]bool, error)
	SaveRecord(ctx context.Context, rec *store.EmbeddingRecord) error
}

// ItemError records one failed adapter within a batch.
type ItemError struct {
	AdapterID int64  `json:"adapter_id"`
	Message   string `json:"message"`
}

// Summary is the mixed result of a batch run. The batch always completes:
// per-adapter failures land in Errors, never abort the run.
type Summary struct {
	Processed   int           `json:"processed_count"`
	Skipped     int           `json:"skipped_count"`
	ErrorCount  int           `json:"error_count"`
	Errors      []ItemError   `json:"errors"`
	Duration    time.Duration `json:"-"`
	Seconds     float64       `json:"processing_time_seconds"`
	CompletedAt time.Time     `json:"completed_at"`
}

// Orchestrator computes feature records and writes them through the repository.
type Orchestrator struct {
	repo      Repository
	emb       *embedder.Embedder
	extractor *features.Extractor
	resolver  *trigger.Resolver
	logger    *slog.Logger
	now       func() time.Time
}

// New creates an Orchestrator.
func New(repo Repository, emb *embedder.Embedder, extractor *features.Extractor, resolver *trigger.Resolver, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		repo:      repo,
		emb:       emb,
		extractor: extractor,
		resolver:  resolver,
		logger:    logger,
		now:       time.Now,
	}
}

// ComputeOne computes and persists the record for a single adapter. With
// force false and an existing record it is a deliberate no-op reported as
// success. Errors propagate directly: single-item calls get no isolation.
func (o *Orchestrator) ComputeOne(ctx context.Context, adapterID int64, force bool) (bool, error) {
	if !force {
		exists, err := o.repo.EmbeddingExists(ctx, adapterID)
		if err != nil {
			return false, err
		}
		if exists {
			return true, nil
		}
	}

	adapter, err := o.repo.GetAdapter(ctx, adapterID)
	if err != nil {
		return false, err
	}

	rec, err := o.buildRecord(ctx, adapter)
	if err != nil {
		return false, fmt.Errorf("computing features for adapter %d: %w", adapterID, err)
	}
	if err := o.repo.SaveRecord(ctx, rec); err != nil {
		return false, err
	}
	return true, nil
}

// Run computes records for the given adapters (all active adapters when ids
// is nil). Requested ids with no matching adapter land in Errors. With force
// false, adapters that already have records are excluded before processing
// and counted as skipped. Work proceeds in fixed-size chunks; one adapter's
// failure is recorded and the batch continues.
func (o *Orchestrator) Run(ctx context.Context, ids []int64, force bool, batchSize int) (*Summary, error) {
	start := o.now()
	if batchSize < 1 {
		batchSize = 1
	}

	var adapters []store.Adapter
	var err error
	if ids == nil {
		adapters, err = o.repo.ListActiveAdapters(ctx)
	} else {
		adapters, err = o.repo.ListAdapters(ctx, ids)
	}
	if err != nil {
		return nil, fmt.Errorf("loading adapters: %w", err)
	}

	summary := &Summary{Errors: []ItemError{}}

	// Requested ids with no matching row are recorded as failures, not
	// silently dropped, so the counters always account for the full request.
	if ids != nil {
		found := make(map[int64]bool, len(adapters))
		for _, a := range adapters {
			found[a.ID] = true
		}
		reported := make(map[int64]bool, len(ids))
		for _, id := range ids {
			if found[id] || reported[id] {
				continue
			}
			reported[id] = true
			o.logger.Warn("embedding compute failed", "adapter", id, "error", "adapter not found")
			summary.Errors = append(summary.Errors, ItemError{AdapterID: id, Message: "adapter not found"})
		}
	}

	if !force && len(adapters) > 0 {
		allIDs := make([]int64, len(adapters))
		for i, a := range adapters {
			allIDs[i] = a.ID
		}
		existing, err := o.repo.ExistingEmbeddingIDs(ctx, allIDs)
		if err != nil {
			return nil, fmt.Errorf("checking existing embeddings: %w", err)
		}
		var pending []store.Adapter
		for _, a := range adapters {
			if existing[a.ID] {
				summary.Skipped++
				continue
			}
			pending = append(pending, a)
		}
		adapters = pending
	}

	for chunkStart := 0; chunkStart < len(adapters); chunkStart += batchSize {
		end := chunkStart + batchSize
		if end > len(adapters) {
			end = len(adapters)
		}
		for i := chunkStart; i < end; i++ {
			a := adapters[i]
			rec, err := o.buildRecord(ctx, &a)
			if err == nil {
				err = o.repo.SaveRecord(ctx, rec)
			}
			if err != nil {
				o.logger.Warn("embedding compute failed", "adapter", a.ID, "error", err)
				summary.Errors = append(summary.Errors, ItemError{AdapterID: a.ID, Message: err.Error()})
				continue
			}
			summary.Processed++
		}
	}

	summary.ErrorCount = len(summary.Errors)
	summary.Duration = o.now().Sub(start)
	summary.Seconds = summary.Duration.Seconds()
	summary.CompletedAt = o.now()

	o.logger.Info("embedding batch finished",
		"processed", summary.Processed,
		"skipped", summary.Skipped,
		"errors", summary.ErrorCount,
		"duration", summary.Duration.String(),
	)
	return summary, nil
}

// buildRecord assembles the full persisted record: embedding triple, derived
// features, resolved triggers, and per-trigger embeddings.
func (o *Orchestrator) buildRecord(ctx context.Context, a *store.Adapter) (*store.EmbeddingRecord, error) {
	triple, err := o.emb.EmbedOne(ctx, a)
	if err != nil {
		return nil, err
	}

	feats := o.extractor.Extract(a)

	resolution := o.resolver.Resolve(append(append([]string{}, a.Triggers...), a.TrainedWords...))

	trigVectors := make(map[string][]float32, len(resolution.Canonical))
	for _, canonical := range resolution.Canonical {
		vec, err := o.emb.EmbedText(ctx, encoder.ModalitySemantic, canonical)
		if err != nil {
			return nil, fmt.Errorf("embedding trigger %q: %w", canonical, err)
		}
		trigVectors[canonical] = embedder.Normalize(vec)
	}

	keywords := make([]string, len(feats.Keywords))
	keywordScores := make([]float64, len(feats.Keywords))
	for i, k := range feats.Keywords {
		keywords[i] = k.Word
		keywordScores[i] = k.Score
	}

	return &store.EmbeddingRecord{
		AdapterID:       a.ID,
		Semantic:        pgvector.NewVector(triple.Semantic),
		Artistic:        pgvector.NewVector(triple.Artistic),
		Technical:       pgvector.NewVector(triple.Technical),
		Keywords:        keywords,
		KeywordScores:   keywordScores,
		PredictedStyle:  feats.PredictedStyle,
		StyleConfidence: feats.StyleConfidence,
		Sentiment:       feats.Sentiment,
		SentimentScore:  feats.SentimentScore,
		Quality:         feats.Quality,
		Popularity:      feats.Popularity,
		Recency:         feats.Recency,
		Compatibility:   feats.Compatibility,
		Triggers:        resolution.Canonical,
		TriggerAliases:  resolution.Aliases,
		TriggerVectors:  trigVectors,
		ComputedAt:      o.now(),
	}, nil
}
