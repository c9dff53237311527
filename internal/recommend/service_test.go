package recommend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/loradex/loradex/internal/compute"
	"github.com/loradex/loradex/internal/embedder"
	"github.com/loradex/loradex/internal/encoder"
	"github.com/loradex/loradex/internal/engine"
	"github.com/loradex/loradex/internal/metrics"
	"github.com/loradex/loradex/internal/persist"
	"github.com/loradex/loradex/internal/store"
	"github.com/loradex/loradex/internal/trigger"
)

type fakeRepo struct {
	adapters   map[int64]store.Adapter
	embeddings map[int64]*store.EmbeddingRecord
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		adapters:   make(map[int64]store.Adapter),
		embeddings: make(map[int64]*store.EmbeddingRecord),
	}
}

func (f *fakeRepo) GetAdapter(ctx context.Context, id int64) (*store.Adapter, error) {
	a, ok := f.adapters[id]
	if !ok {
		return nil, fmt.Errorf("adapter %d: %w", id, store.ErrNotFound)
	}
	return &a, nil
}

func (f *fakeRepo) ListAdapters(ctx context.Context, ids []int64) ([]store.Adapter, error) {
	var out []store.Adapter
	for _, id := range ids {
		if a, ok := f.adapters[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListActiveAdapters(ctx context.Context) ([]store.Adapter, error) {
	var out []store.Adapter
	for id := int64(0); id < 1000; id++ {
		if a, ok := f.adapters[id]; ok && a.Active {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeRepo) EmbeddingExists(ctx context.Context, id int64) (bool, error) {
	_, ok := f.embeddings[id]
	return ok, nil
}

func (f *fakeRepo) GetEmbedding(ctx context.Context, id int64) (*store.EmbeddingRecord, error) {
	rec, ok := f.embeddings[id]
	if !ok {
		return nil, fmt.Errorf("embedding %d: %w", id, store.ErrNotFound)
	}
	return rec, nil
}

func (f *fakeRepo) ListActiveEmbeddings(ctx context.Context, exclude []int64) ([]store.EmbeddingRecord, error) {
	skip := make(map[int64]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	var out []store.EmbeddingRecord
	for id := int64(0); id < 1000; id++ {
		if rec, ok := f.embeddings[id]; ok && !skip[id] {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (f *fakeRepo) CountActive(ctx context.Context) (int, error) {
	n := 0
	for _, a := range f.adapters {
		if a.Active {
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) CountActiveEmbedded(ctx context.Context) (int, error) {
	n := 0
	for id, a := range f.adapters {
		if a.Active {
			if _, ok := f.embeddings[id]; ok {
				n++
			}
		}
	}
	return n, nil
}

type fakeFeedback struct {
	sessions      map[uuid.UUID]string
	lastResultIDs []int64
	feedback      []*store.Feedback
	preferences   map[string]*store.UserPreference
}

func newFakeFeedback() *fakeFeedback {
	return &fakeFeedback{
		sessions:    make(map[uuid.UUID]string),
		preferences: make(map[string]*store.UserPreference),
	}
}

func (f *fakeFeedback) CreateSession(ctx context.Context, kind string, targetID *int64, prompt string, resultIDs []int64) (uuid.UUID, error) {
	id := uuid.New()
	f.sessions[id] = kind
	f.lastResultIDs = append([]int64(nil), resultIDs...)
	return id, nil
}

func (f *fakeFeedback) RecordFeedback(ctx context.Context, fb *store.Feedback) error {
	if _, ok := f.sessions[fb.SessionID]; !ok {
		return fmt.Errorf("session %s: %w", fb.SessionID, store.ErrNotFound)
	}
	f.feedback = append(f.feedback, fb)
	return nil
}

func (f *fakeFeedback) UpsertPreference(ctx context.Context, prefType, value string, weight float64) (*store.UserPreference, error) {
	key := prefType + "/" + value
	p, ok := f.preferences[key]
	if !ok {
		p = &store.UserPreference{Type: prefType, Value: value, Weight: weight, Evidence: 1}
		f.preferences[key] = p
		return p, nil
	}
	p.Weight = weight
	p.Evidence++
	return p, nil
}

type fakeComputer struct {
	oneCalls int
	runCalls int
	oneErr   error
	summary  *compute.Summary
	onOne    func(id int64, force bool)
}

func (f *fakeComputer) ComputeOne(ctx context.Context, adapterID int64, force bool) (bool, error) {
	f.oneCalls++
	if f.onOne != nil {
		f.onOne(adapterID, force)
	}
	if f.oneErr != nil {
		return false, f.oneErr
	}
	return true, nil
}

func (f *fakeComputer) Run(ctx context.Context, ids []int64, force bool, batchSize int) (*compute.Summary, error) {
	f.runCalls++
	if f.summary != nil {
		return f.summary, nil
	}
	return &compute.Summary{Errors: []compute.ItemError{}}, nil
}

type fakeManager struct {
	rebuilds int
	result   *persist.RebuildResult
	onBuild  func(force bool)
}

func (f *fakeManager) RebuildIndex(ctx context.Context, force bool) (*persist.RebuildResult, error) {
	f.rebuilds++
	if f.onBuild != nil {
		f.onBuild(force)
	}
	if f.result != nil {
		return f.result, nil
	}
	return &persist.RebuildResult{Status: "rebuilt"}, nil
}

func (f *fakeManager) IndexPath() string { return "/tmp/cache/index.gob" }

func (f *fakeManager) CacheDir() string { return "/tmp/cache" }

type testHarness struct {
	svc      *Service
	repo     *fakeRepo
	feedback *fakeFeedback
	computer *fakeComputer
	manager  *fakeManager
	engine   *engine.Engine
	emb      *embedder.Embedder
	tracker  *metrics.Tracker
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := encoder.NewRegistry(encoder.Options{}, logger)
	emb := embedder.New(registry, logger)
	eng := engine.New(emb, 32, logger)
	repo := newFakeRepo()
	feedback := newFakeFeedback()
	computer := &fakeComputer{}
	manager := &fakeManager{}
	tracker := metrics.NewTracker()
	triggers := trigger.NewIndex(NewTriggerSource(repo), trigger.NewResolver(nil), emb, logger)

	svc := NewService(Options{
		Repo:        repo,
		Feedback:    feedback,
		Computer:    computer,
		Manager:     manager,
		Embedder:    emb,
		Engine:      eng,
		Triggers:    triggers,
		Tracker:     tracker,
		Publisher:   nil,
		Logger:      logger,
		BatchSize:   32,
		WorkerSlots: 2,
	})
	return &testHarness{
		svc: svc, repo: repo, feedback: feedback, computer: computer,
		manager: manager, engine: eng, emb: emb, tracker: tracker,
	}
}

func (h *testHarness) addAdapter(t *testing.T, a store.Adapter, embedded bool) {
	t.Helper()
	h.repo.adapters[a.ID] = a
	if !embedded {
		return
	}
	triple, err := h.emb.EmbedOne(context.Background(), &a)
	if err != nil {
		t.Fatalf("embedding fixture %d: %v", a.ID, err)
	}
	h.repo.embeddings[a.ID] = &store.EmbeddingRecord{
		AdapterID:      a.ID,
		Semantic:       pgvector.NewVector(triple.Semantic),
		Artistic:       pgvector.NewVector(triple.Artistic),
		Technical:      pgvector.NewVector(triple.Technical),
		PredictedStyle: "fantasy",
		Triggers:       a.Triggers,
		ComputedAt:     time.Now(),
	}
}

func fixtures() []store.Adapter {
	return []store.Adapter{
		{ID: 1, Name: "Dragon Queen", Description: "majestic golden dragon", TrainedWords: []string{"dragonqueen"}, Triggers: []string{"dragonqueen"}, Tags: []string{"fantasy"}, SDVersion: "SDXL", Rating: 4.5, Downloads: 9000, Active: true},
		{ID: 2, Name: "Dragon Knight", Description: "armored dragon rider", TrainedWords: []string{"dragonknight"}, Triggers: []string{"dragonknight"}, Tags: []string{"fantasy"}, SDVersion: "SDXL", Rating: 4.0, Downloads: 2000, Active: true},
		{ID: 3, Name: "Neon City", Description: "cyberpunk neon streets", TrainedWords: []string{"neoncity"}, Triggers: []string{"neoncity"}, Tags: []string{"scifi"}, SDVersion: "SDXL", Rating: 3.0, Downloads: 100, Active: true},
	}
}

func TestSimilarLoras(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	adapters := fixtures()
	for _, a := range adapters {
		h.addAdapter(t, a, true)
	}
	if err := h.engine.Build(ctx, adapters); err != nil {
		t.Fatalf("build: %v", err)
	}

	resp, err := h.svc.SimilarLoras(ctx, 1, 10, 0, nil, true)
	if err != nil {
		t.Fatalf("similar: %v", err)
	}
	if resp.TargetID != 1 {
		t.Errorf("target id = %d", resp.TargetID)
	}
	if resp.SessionID == "" {
		t.Error("session id missing")
	}
	if h.feedback.sessions[uuid.MustParse(resp.SessionID)] != "similar" {
		t.Error("session not recorded as similar")
	}
	if len(resp.Results) == 0 {
		t.Fatal("expected results")
	}
	for _, r := range resp.Results {
		if r.AdapterID == 1 {
			t.Error("target returned as its own recommendation")
		}
		if r.Name == "" {
			t.Error("display fields must be hydrated from the repository")
		}
	}
	if h.computer.oneCalls != 0 {
		t.Error("embedded target must not trigger a compute")
	}

	stats := h.tracker.Snapshot()
	if stats.QueryCount != 1 {
		t.Errorf("query count = %d, want 1", stats.QueryCount)
	}
	if stats.CacheHits != 1 {
		t.Errorf("populated index must count as a cache hit, got %d", stats.CacheHits)
	}
}

func TestSimilarLoras_UnknownTarget(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.SimilarLoras(context.Background(), 404, 10, 0, nil, true)
	if !store.IsNotFound(err) {
		t.Errorf("expected not-found, got %v", err)
	}
	if h.tracker.Snapshot().QueryCount != 1 {
		t.Error("latency must be observed even on failure")
	}
}

func TestSimilarLoras_ComputesMissingEmbedding(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	adapters := fixtures()
	h.addAdapter(t, adapters[0], false) // target lacks an embedding record
	h.addAdapter(t, adapters[1], true)
	if err := h.engine.Build(ctx, adapters); err != nil {
		t.Fatalf("build: %v", err)
	}

	if _, err := h.svc.SimilarLoras(ctx, 1, 10, 0, nil, true); err != nil {
		t.Fatalf("similar: %v", err)
	}
	if h.computer.oneCalls != 1 {
		t.Errorf("expected a lazy compute for the target, got %d calls", h.computer.oneCalls)
	}
}

func TestSimilarLoras_LazyRebuildOnEmptyIndex(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, a := range fixtures() {
		h.addAdapter(t, a, true)
	}

	if _, err := h.svc.SimilarLoras(ctx, 1, 10, 0, nil, true); err != nil {
		t.Fatalf("similar: %v", err)
	}
	if h.manager.rebuilds != 1 {
		t.Errorf("empty index must trigger one lazy rebuild, got %d", h.manager.rebuilds)
	}
	if h.tracker.Snapshot().CacheMisses != 1 {
		t.Error("lazy rebuild must count as a cache miss")
	}
}

func TestSimilarLoras_ThresholdFilters(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	adapters := fixtures()
	for _, a := range adapters {
		h.addAdapter(t, a, true)
	}
	if err := h.engine.Build(ctx, adapters); err != nil {
		t.Fatalf("build: %v", err)
	}

	all, err := h.svc.SimilarLoras(ctx, 1, 10, 0, nil, false)
	if err != nil {
		t.Fatalf("similar: %v", err)
	}
	strict, err := h.svc.SimilarLoras(ctx, 1, 10, 0.999, nil, false)
	if err != nil {
		t.Fatalf("similar strict: %v", err)
	}
	if len(strict.Results) >= len(all.Results) && len(all.Results) > 0 {
		t.Errorf("near-1 threshold should prune results: %d vs %d", len(strict.Results), len(all.Results))
	}
	for _, r := range strict.Results {
		if r.SimilarityScore < 0.999 {
			t.Errorf("result below threshold leaked: %f", r.SimilarityScore)
		}
	}
}

func TestSimilarLoras_SessionOmitsDeletedAdapters(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	adapters := fixtures()
	for _, a := range adapters {
		h.addAdapter(t, a, true)
	}
	if err := h.engine.Build(ctx, adapters); err != nil {
		t.Fatalf("build: %v", err)
	}
	// Adapter 2 is still indexed but gone from the repository.
	delete(h.repo.adapters, 2)

	resp, err := h.svc.SimilarLoras(ctx, 1, 10, 0, nil, false)
	if err != nil {
		t.Fatalf("similar: %v", err)
	}
	for _, r := range resp.Results {
		if r.AdapterID == 2 {
			t.Error("deleted adapter leaked into results")
		}
	}
	if len(h.feedback.lastResultIDs) != len(resp.Results) {
		t.Fatalf("session ids %v out of step with %d results", h.feedback.lastResultIDs, len(resp.Results))
	}
	for i, id := range h.feedback.lastResultIDs {
		if id != resp.Results[i].AdapterID {
			t.Errorf("session id %d = %d, result = %d", i, id, resp.Results[i].AdapterID)
		}
	}
}

func TestRecommendForPrompt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, a := range fixtures() {
		h.addAdapter(t, a, true)
	}

	resp, err := h.svc.RecommendForPrompt(ctx, "dragonqueen fantasy portrait", nil, 2, "")
	if err != nil {
		t.Fatalf("prompt: %v", err)
	}
	if resp.Prompt != "dragonqueen fantasy portrait" {
		t.Errorf("prompt echoed wrong: %q", resp.Prompt)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected limit 2, got %d", len(resp.Results))
	}
	if resp.Results[0].AdapterID != 1 {
		t.Errorf("dragon prompt should rank the dragon adapter first, got %d", resp.Results[0].AdapterID)
	}
	if resp.Results[0].Score < resp.Results[1].Score {
		t.Error("results must be sorted by score descending")
	}
	if h.feedback.sessions[uuid.MustParse(resp.SessionID)] != "prompt" {
		t.Error("session not recorded as prompt")
	}
}

func TestRecommendForPrompt_ExcludesActive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, a := range fixtures() {
		h.addAdapter(t, a, true)
	}

	resp, err := h.svc.RecommendForPrompt(ctx, "dragonqueen fantasy", []int64{1}, 10, "")
	if err != nil {
		t.Fatalf("prompt: %v", err)
	}
	for _, r := range resp.Results {
		if r.AdapterID == 1 {
			t.Error("adapter in the caller's active set must be excluded")
		}
	}
}

func TestRecommendForPrompt_SessionOmitsDeletedAdapters(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, a := range fixtures() {
		h.addAdapter(t, a, true)
	}
	// Adapter 1 keeps its embedding record but the adapter row is gone.
	delete(h.repo.adapters, 1)

	resp, err := h.svc.RecommendForPrompt(ctx, "dragonqueen fantasy", nil, 10, "")
	if err != nil {
		t.Fatalf("prompt: %v", err)
	}
	for _, r := range resp.Results {
		if r.AdapterID == 1 {
			t.Error("deleted adapter leaked into results")
		}
	}
	if len(h.feedback.lastResultIDs) != len(resp.Results) {
		t.Fatalf("session ids %v out of step with %d results", h.feedback.lastResultIDs, len(resp.Results))
	}
	for i, id := range h.feedback.lastResultIDs {
		if id != resp.Results[i].AdapterID {
			t.Errorf("session id %d = %d, result = %d", i, id, resp.Results[i].AdapterID)
		}
	}
}

func TestRecommendForPrompt_StyleBoost(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, a := range fixtures() {
		h.addAdapter(t, a, true)
	}
	// Adapter 3 is the only one not predicted "fantasy".
	h.repo.embeddings[3].PredictedStyle = "scifi"

	resp, err := h.svc.RecommendForPrompt(ctx, "city streets", nil, 10, "scifi")
	if err != nil {
		t.Fatalf("prompt: %v", err)
	}
	var boosted *PromptMatch
	for i := range resp.Results {
		if resp.Results[i].AdapterID == 3 {
			boosted = &resp.Results[i]
		} else if resp.Results[i].StyleBoost != 0 {
			t.Errorf("adapter %d boosted without style match", resp.Results[i].AdapterID)
		}
	}
	if boosted == nil {
		t.Fatal("scifi adapter missing from results")
	}
	if boosted.StyleBoost != 0.2 {
		t.Errorf("style boost = %f, want 0.2", boosted.StyleBoost)
	}
	if boosted.Score != boosted.Similarity+0.2 {
		t.Errorf("score %f != similarity %f + boost", boosted.Score, boosted.Similarity)
	}
}

func TestRecommendForPrompt_ZeroNormRecord(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := fixtures()[0]
	h.repo.adapters[a.ID] = a
	h.repo.embeddings[a.ID] = &store.EmbeddingRecord{
		AdapterID: a.ID,
		Semantic:  pgvector.NewVector(make([]float32, encoder.Dimensions)),
	}

	resp, err := h.svc.RecommendForPrompt(ctx, "anything at all", nil, 10, "")
	if err != nil {
		t.Fatalf("prompt: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("expected the record to rank with zero similarity, got %d results", len(resp.Results))
	}
	if resp.Results[0].Similarity != 0 {
		t.Errorf("zero-norm similarity = %f, want 0", resp.Results[0].Similarity)
	}
}

func TestComputeForLora(t *testing.T) {
	h := newHarness(t)
	ok, err := h.svc.ComputeForLora(context.Background(), 1, true)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if !ok || h.computer.oneCalls != 1 {
		t.Errorf("compute not delegated: ok=%v calls=%d", ok, h.computer.oneCalls)
	}
}

func TestComputeForLora_Error(t *testing.T) {
	h := newHarness(t)
	boom := errors.New("encode failed")
	h.computer.oneErr = boom
	if _, err := h.svc.ComputeForLora(context.Background(), 1, false); !errors.Is(err, boom) {
		t.Errorf("error not propagated: %v", err)
	}
}

func TestRefreshIndexes_InvalidatesTriggersUnlessSkipped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.manager.result = &persist.RebuildResult{Status: "skipped", Skipped: true}
	if _, err := h.svc.RefreshIndexes(ctx, false); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	h.manager.result = &persist.RebuildResult{Status: "rebuilt", IndexedItems: 3}
	result, err := h.svc.RefreshIndexes(ctx, true)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if result.Status != "rebuilt" {
		t.Errorf("status = %q", result.Status)
	}
	if h.manager.rebuilds != 2 {
		t.Errorf("rebuild calls = %d, want 2", h.manager.rebuilds)
	}
}

func TestSyncIncremental(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, a := range fixtures() {
		h.addAdapter(t, a, true)
	}
	h.computer.summary = &compute.Summary{Processed: 3, Errors: []compute.ItemError{}}

	summary, err := h.svc.SyncIncremental(ctx)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if summary.Processed != 3 {
		t.Errorf("processed = %d", summary.Processed)
	}
	if h.engine.Len() != 3 {
		t.Errorf("active adapters must be appended to the index, got %d rows", h.engine.Len())
	}
}

func TestRecordFeedback(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sessionID, err := h.feedback.CreateSession(ctx, "similar", nil, "", nil)
	if err != nil {
		t.Fatalf("session: %v", err)
	}

	rating := 4.0
	err = h.svc.RecordFeedback(ctx, FeedbackInput{
		SessionID: sessionID.String(),
		AdapterID: 1,
		Action:    "activated",
		Rating:    &rating,
	})
	if err != nil {
		t.Fatalf("feedback: %v", err)
	}
	if len(h.feedback.feedback) != 1 {
		t.Fatal("feedback not stored")
	}
	if h.feedback.feedback[0].Action != "activated" {
		t.Errorf("action = %q", h.feedback.feedback[0].Action)
	}
}

func TestRecordFeedback_InvalidSessionID(t *testing.T) {
	h := newHarness(t)
	err := h.svc.RecordFeedback(context.Background(), FeedbackInput{SessionID: "not-a-uuid", AdapterID: 1, Action: "activated"})
	if err == nil {
		t.Error("malformed session id must be rejected")
	}
}

func TestUpdatePreference(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.svc.UpdatePreference(ctx, PreferenceInput{Type: "", Value: "anime"}); err == nil {
		t.Error("empty type must be rejected")
	}

	p, err := h.svc.UpdatePreference(ctx, PreferenceInput{Type: "style", Value: "anime", Weight: 0.8})
	if err != nil {
		t.Fatalf("preference: %v", err)
	}
	if p.Evidence != 1 {
		t.Errorf("first upsert evidence = %d", p.Evidence)
	}

	p, err = h.svc.UpdatePreference(ctx, PreferenceInput{Type: "style", Value: "anime", Weight: 0.9})
	if err != nil {
		t.Fatalf("second preference: %v", err)
	}
	if p.Evidence != 2 {
		t.Errorf("repeat upsert evidence = %d, want 2", p.Evidence)
	}
}

func TestStats(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	adapters := fixtures()
	h.addAdapter(t, adapters[0], true)
	h.addAdapter(t, adapters[1], true)
	h.addAdapter(t, adapters[2], false)

	stats, err := h.svc.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.ActiveAdapters != 3 || stats.EmbeddedAdapters != 2 {
		t.Errorf("coverage counts = %d/%d, want 3/2", stats.ActiveAdapters, stats.EmbeddedAdapters)
	}
	if stats.Coverage != 2.0/3.0 {
		t.Errorf("coverage = %f", stats.Coverage)
	}
	if stats.IndexPath == "" {
		t.Error("index path missing")
	}
	if stats.CacheDir != "/tmp/cache" {
		t.Errorf("cache dir = %q", stats.CacheDir)
	}
}

func TestEmbeddingStatusFor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	adapters := fixtures()
	h.addAdapter(t, adapters[0], true)
	h.addAdapter(t, adapters[1], false)

	status, err := h.svc.EmbeddingStatusFor(ctx, 1)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.HasSemantic || !status.HasTechnical {
		t.Errorf("expected modality signal: %+v", status)
	}
	if status.NeedsRecompute {
		t.Error("fresh record must not need recompute")
	}
	if status.ComputedAt == nil {
		t.Error("computed timestamp missing")
	}

	status, err = h.svc.EmbeddingStatusFor(ctx, 2)
	if err != nil {
		t.Fatalf("status missing record: %v", err)
	}
	if !status.NeedsRecompute {
		t.Error("missing record must need recompute")
	}

	if _, err := h.svc.EmbeddingStatusFor(ctx, 404); !store.IsNotFound(err) {
		t.Errorf("unknown adapter: %v", err)
	}
}

func TestEmbeddingStatusFor_StaleRecord(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := fixtures()[0]
	a.UpdatedAt = time.Now()
	h.addAdapter(t, a, true)
	h.repo.embeddings[a.ID].ComputedAt = a.UpdatedAt.Add(-time.Hour)

	status, err := h.svc.EmbeddingStatusFor(ctx, a.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.NeedsRecompute {
		t.Error("adapter updated after compute must need recompute")
	}
}

func TestSearchTriggers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, a := range fixtures() {
		h.addAdapter(t, a, true)
	}

	results, err := h.svc.SearchTriggers(ctx, "dragonqueen", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected a trigger match")
	}
	if results[0].AdapterID != 1 {
		t.Errorf("top result = %d, want 1", results[0].AdapterID)
	}
	if h.tracker.Snapshot().CacheMisses != 1 {
		t.Error("first search must rebuild and count a miss")
	}

	if _, err := h.svc.SearchTriggers(ctx, "dragonqueen", 10); err != nil {
		t.Fatalf("second search: %v", err)
	}
	if h.tracker.Snapshot().CacheHits != 1 {
		t.Error("fresh index must count a hit")
	}
}

func TestOffload_CanceledContext(t *testing.T) {
	h := newHarness(t)
	h.computer.onOne = func(int64, bool) { time.Sleep(100 * time.Millisecond) }
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.svc.ComputeForLora(ctx, 1, false)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context error, got %v", err)
	}
}
