// Package recommend composes the embedding, indexing, and persistence layers
// into the recommendation service façade.
package recommend

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/loradex/loradex/internal/compute"
	"github.com/loradex/loradex/internal/embedder"
	"github.com/loradex/loradex/internal/engine"
	"github.com/loradex/loradex/internal/events"
	"github.com/loradex/loradex/internal/metrics"
	"github.com/loradex/loradex/internal/persist"
	"github.com/loradex/loradex/internal/store"
	"github.com/loradex/loradex/internal/trigger"
)

// Repository is the read side of the persistence boundary. *store.Repo
// implements it.
type Repository interface {
	GetAdapter(ctx context.Context, id int64) (*store.Adapter, error)
	ListAdapters(ctx context.Context, ids []int64) ([]store.Adapter, error)
	ListActiveAdapters(ctx context.Context) ([]store.Adapter, error)
	EmbeddingExists(ctx context.Context, id int64) (bool, error)
	GetEmbedding(ctx context.Context, id int64) (*store.EmbeddingRecord, error)
	ListActiveEmbeddings(ctx context.Context, exclude []int64) ([]store.EmbeddingRecord, error)
	CountActive(ctx context.Context) (int, error)
	CountActiveEmbedded(ctx context.Context) (int, error)
}

// FeedbackRepository persists sessions, feedback, and preferences.
// *store.FeedbackStore implements it.
type FeedbackRepository interface {
	CreateSession(ctx context.Context, kind string, targetID *int64, prompt string, resultIDs []int64) (uuid.UUID, error)
	RecordFeedback(ctx context.Context, f *store.Feedback) error
	UpsertPreference(ctx context.Context, prefType, value string, weight float64) (*store.UserPreference, error)
}

// Computer runs embedding computation. *compute.Orchestrator implements it.
type Computer interface {
	ComputeOne(ctx context.Context, adapterID int64, force bool) (bool, error)
	Run(ctx context.Context, ids []int64, force bool, batchSize int) (*compute.Summary, error)
}

// IndexManager owns index rebuild and serialization. *persist.Manager
// implements it.
type IndexManager interface {
	RebuildIndex(ctx context.Context, force bool) (*persist.RebuildResult, error)
	IndexPath() string
	CacheDir() string
}

// Service is the recommendation façade exposed to the API layer.
type Service struct {
	repo     Repository
	feedback FeedbackRepository
	computer Computer
	manager  IndexManager
	emb      *embedder.Embedder
	engine   *engine.Engine
	triggers *trigger.Index
	tracker  *metrics.Tracker
	pub      *events.Publisher
	logger   *slog.Logger

	batchSize int
	gate      chan struct{}
}

// Options bundles Service dependencies.
type Options struct {
	Repo      Repository
	Feedback  FeedbackRepository
	Computer  Computer
	Manager   IndexManager
	Embedder  *embedder.Embedder
	Engine    *engine.Engine
	Triggers  *trigger.Index
	Tracker   *metrics.Tracker
	Publisher *events.Publisher
	Logger    *slog.Logger

	BatchSize   int
	WorkerSlots int
}

// NewService creates the façade with a bounded worker gate for CPU-bound work.
func NewService(opts Options) *Service {
	slots := opts.WorkerSlots
	if slots < 1 {
		slots = 1
	}
	batch := opts.BatchSize
	if batch < 1 {
		batch = 32
	}
	return &Service{
		repo:      opts.Repo,
		feedback:  opts.Feedback,
		computer:  opts.Computer,
		manager:   opts.Manager,
		emb:       opts.Embedder,
		engine:    opts.Engine,
		triggers:  opts.Triggers,
		tracker:   opts.Tracker,
		pub:       opts.Publisher,
		logger:    opts.Logger,
		batchSize: batch,
		gate:      make(chan struct{}, slots),
	}
}

// offload runs fn on a worker slot so the serving goroutine never executes an
// encode inline without bounding. When ctx is abandoned the work still runs
// to completion and its result is discarded; embedding compute is idempotent
// until the final persistence write, so this is safe.
func (s *Service) offload(ctx context.Context, fn func() error) error {
	select {
	case s.gate <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	done := make(chan error, 1)
	go func() {
		defer func() { <-s.gate }()
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ComputeForLora computes and persists the embedding record for one adapter.
// With force false and an existing record it returns true without touching
// the record. Errors propagate directly to the caller.
func (s *Service) ComputeForLora(ctx context.Context, adapterID int64, force bool) (bool, error) {
	var ok bool
	err := s.offload(ctx, func() error {
		var cerr error
		ok, cerr = s.computer.ComputeOne(ctx, adapterID, force)
		return cerr
	})
	if err != nil {
		return false, err
	}

	if err := s.pub.EmbeddingComputed(ctx, adapterID, force); err != nil {
		s.logger.Warn("publish embedding.computed", "error", err)
	}
	return ok, nil
}

// ComputeBatch computes records for many adapters (all active when ids is
// nil) and returns the mixed-result summary.
func (s *Service) ComputeBatch(ctx context.Context, ids []int64, force bool, batchSize int) (*compute.Summary, error) {
	if batchSize < 1 {
		batchSize = s.batchSize
	}

	var summary *compute.Summary
	err := s.offload(ctx, func() error {
		var cerr error
		summary, cerr = s.computer.Run(ctx, ids, force, batchSize)
		return cerr
	})
	if err != nil {
		return nil, err
	}

	if err := s.pub.BatchComputed(ctx, summary.Processed, summary.Skipped, summary.ErrorCount); err != nil {
		s.logger.Warn("publish embedding.batch", "error", err)
	}
	return summary, nil
}

// RefreshIndexes rebuilds the similarity index (honoring force/skip
// semantics) and invalidates the trigger index so its next use rebuilds.
func (s *Service) RefreshIndexes(ctx context.Context, force bool) (*persist.RebuildResult, error) {
	var result *persist.RebuildResult
	err := s.offload(ctx, func() error {
		var rerr error
		result, rerr = s.manager.RebuildIndex(ctx, force)
		return rerr
	})
	if err != nil {
		return nil, err
	}

	if !result.Skipped {
		s.triggers.Invalidate()
	}

	if err := s.pub.IndexRebuilt(ctx, result.Status, result.IndexedItems); err != nil {
		s.logger.Warn("publish index.rebuilt", "error", err)
	}
	return result, nil
}

// SyncIncremental computes embeddings for active adapters that lack them and
// appends the newly embedded adapters to the similarity index without
// recomputing existing rows. Cheap growth between full rebuilds.
func (s *Service) SyncIncremental(ctx context.Context) (*compute.Summary, error) {
	var summary *compute.Summary
	err := s.offload(ctx, func() error {
		var cerr error
		summary, cerr = s.computer.Run(ctx, nil, false, s.batchSize)
		return cerr
	})
	if err != nil {
		return nil, err
	}

	adapters, err := s.repo.ListActiveAdapters(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.offload(ctx, func() error {
		return s.engine.AppendIncremental(ctx, adapters)
	}); err != nil {
		return nil, err
	}

	if summary.Processed > 0 {
		s.triggers.Invalidate()
	}
	return summary, nil
}

// FeedbackInput is a feedback capture payload.
type FeedbackInput struct {
	SessionID string   `json:"session_id"`
	AdapterID int64    `json:"adapter_id"`
	Action    string   `json:"action"`
	Rating    *float64 `json:"rating,omitempty"`
}

// RecordFeedback stores feedback for a served recommendation session.
func (s *Service) RecordFeedback(ctx context.Context, in FeedbackInput) error {
	sessionID, err := uuid.Parse(in.SessionID)
	if err != nil {
		return fmt.Errorf("invalid session id %q: %w", in.SessionID, err)
	}

	f := &store.Feedback{
		SessionID: sessionID,
		AdapterID: in.AdapterID,
		Action:    in.Action,
		Rating:    in.Rating,
	}
	if err := s.feedback.RecordFeedback(ctx, f); err != nil {
		return err
	}

	if err := s.pub.FeedbackRecorded(ctx, in.SessionID, in.AdapterID, in.Action); err != nil {
		s.logger.Warn("publish feedback.recorded", "error", err)
	}
	return nil
}

// PreferenceInput is a user-preference upsert payload.
type PreferenceInput struct {
	Type   string  `json:"type"`
	Value  string  `json:"value"`
	Weight float64 `json:"weight"`
}

// UpdatePreference upserts a preference signal keyed by (type, value).
func (s *Service) UpdatePreference(ctx context.Context, in PreferenceInput) (*store.UserPreference, error) {
	if in.Type == "" || in.Value == "" {
		return nil, fmt.Errorf("preference type and value are required")
	}
	return s.feedback.UpsertPreference(ctx, in.Type, in.Value, in.Weight)
}

// ServiceStats is the coverage/latency/cache report.
type ServiceStats struct {
	metrics.Stats

	ActiveAdapters   int     `json:"active_adapters"`
	EmbeddedAdapters int     `json:"embedded_adapters"`
	Coverage         float64 `json:"coverage"`
	IndexRows        int     `json:"index_rows"`
	IndexPath        string  `json:"index_path"`
	CacheDir         string  `json:"cache_dir"`
}

// Stats reports metrics plus embedding coverage.
func (s *Service) Stats(ctx context.Context) (*ServiceStats, error) {
	active, err := s.repo.CountActive(ctx)
	if err != nil {
		return nil, err
	}
	embedded, err := s.repo.CountActiveEmbedded(ctx)
	if err != nil {
		return nil, err
	}

	stats := &ServiceStats{
		Stats:            s.tracker.Snapshot(),
		ActiveAdapters:   active,
		EmbeddedAdapters: embedded,
		IndexRows:        s.engine.Len(),
		IndexPath:        s.manager.IndexPath(),
		CacheDir:         s.manager.CacheDir(),
	}
	if active > 0 {
		stats.Coverage = float64(embedded) / float64(active)
	}
	return stats, nil
}

// EmbeddingStatus reports which modality vectors exist for an adapter and
// whether a recompute is due.
type EmbeddingStatus struct {
	AdapterID      int64      `json:"adapter_id"`
	HasSemantic    bool       `json:"has_semantic"`
	HasArtistic    bool       `json:"has_artistic"`
	HasTechnical   bool       `json:"has_technical"`
	ComputedAt     *time.Time `json:"computed_at,omitempty"`
	NeedsRecompute bool       `json:"needs_recompute"`
}

// EmbeddingStatusFor looks up the embedding state of one adapter.
func (s *Service) EmbeddingStatusFor(ctx context.Context, adapterID int64) (*EmbeddingStatus, error) {
	adapter, err := s.repo.GetAdapter(ctx, adapterID)
	if err != nil {
		return nil, err
	}

	status := &EmbeddingStatus{AdapterID: adapterID}
	rec, err := s.repo.GetEmbedding(ctx, adapterID)
	if err != nil {
		if store.IsNotFound(err) {
			status.NeedsRecompute = true
			return status, nil
		}
		return nil, err
	}

	status.HasSemantic = hasSignal(rec.Semantic.Slice())
	status.HasArtistic = hasSignal(rec.Artistic.Slice())
	status.HasTechnical = hasSignal(rec.Technical.Slice())
	status.ComputedAt = &rec.ComputedAt
	status.NeedsRecompute = adapter.UpdatedAt.After(rec.ComputedAt)
	return status, nil
}

// SearchTriggers resolves a trigger-phrase query against the trigger index,
// rebuilding it first when stale.
func (s *Service) SearchTriggers(ctx context.Context, query string, limit int) ([]trigger.Candidate, error) {
	rebuilt, err := s.triggers.Ensure(ctx)
	if err != nil {
		return nil, err
	}
	if rebuilt {
		s.tracker.Miss()
	} else {
		s.tracker.Hit()
	}
	return s.triggers.Search(ctx, query, limit)
}

func hasSignal(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return true
		}
	}
	return false
}
