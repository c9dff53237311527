package compute

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/loradex/loradex/internal/embedder"
	"github.com/loradex/loradex/internal/encoder"
	"github.com/loradex/loradex/internal/features"
	"github.com/loradex/loradex/internal/store"
	"github.com/loradex/loradex/internal/trigger"
)

type fakeRepo struct {
	adapters map[int64]store.Adapter
	existing map[int64]bool
	saved    map[int64]*store.EmbeddingRecord

	saveErrFor map[int64]error
	existsErr  error
}

func newFakeRepo(adapters ...store.Adapter) *fakeRepo {
	f := &fakeRepo{
		adapters:   make(map[int64]store.Adapter),
		existing:   make(map[int64]bool),
		saved:      make(map[int64]*store.EmbeddingRecord),
		saveErrFor: make(map[int64]error),
	}
	for _, a := range adapters {
		f.adapters[a.ID] = a
	}
	return f
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
		if a, ok := f.adapters[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeRepo) EmbeddingExists(ctx context.Context, id int64) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	return f.existing[id], nil
}

func (f *fakeRepo) ExistingEmbeddingIDs(ctx context.Context, ids []int64) (map[int64]bool, error) {
	out := make(map[int64]bool)
	for _, id := range ids {
		if f.existing[id] {
			out[id] = true
		}
	}
	return out, nil
}

func (f *fakeRepo) SaveRecord(ctx context.Context, rec *store.EmbeddingRecord) error {
	if err := f.saveErrFor[rec.AdapterID]; err != nil {
		return err
	}
	f.saved[rec.AdapterID] = rec
	f.existing[rec.AdapterID] = true
	return nil
}

func testOrchestrator(repo Repository) *Orchestrator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := encoder.NewRegistry(encoder.Options{}, logger)
	emb := embedder.New(registry, logger)
	return New(repo, emb, features.NewExtractor(), trigger.NewResolver(nil), logger)
}

func sampleAdapter(id int64) store.Adapter {
	return store.Adapter{
		ID:           id,
		Name:         fmt.Sprintf("Adapter %d", id),
		Description:  "a beautiful fantasy dragon lora with detailed scales",
		TrainedWords: []string{"dragonstyle"},
		Triggers:     []string{"1girl", "dragon"},
		Tags:         []string{"fantasy"},
		SDVersion:    "SDXL",
		Rating:       4.5,
		Downloads:    9000,
	}
}

func TestComputeOne_SavesRecord(t *testing.T) {
	repo := newFakeRepo(sampleAdapter(1))
	o := testOrchestrator(repo)

	ok, err := o.ComputeOne(context.Background(), 1, false)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if !ok {
		t.Fatal("expected success")
	}

	rec := repo.saved[1]
	if rec == nil {
		t.Fatal("record not saved")
	}
	if rec.AdapterID != 1 {
		t.Errorf("adapter id = %d", rec.AdapterID)
	}
	if len(rec.Semantic.Slice()) != encoder.Dimensions {
		t.Errorf("semantic vector has %d dims", len(rec.Semantic.Slice()))
	}
	if rec.PredictedStyle != "fantasy" {
		t.Errorf("predicted style = %q, want fantasy", rec.PredictedStyle)
	}
	if rec.Sentiment != "positive" {
		t.Errorf("sentiment = %q, want positive", rec.Sentiment)
	}
	if len(rec.Keywords) == 0 || len(rec.Keywords) != len(rec.KeywordScores) {
		t.Errorf("keywords %d / scores %d out of step", len(rec.Keywords), len(rec.KeywordScores))
	}
	if rec.ComputedAt.IsZero() {
		t.Error("computed timestamp missing")
	}
}

func TestComputeOne_ResolvesTriggers(t *testing.T) {
	repo := newFakeRepo(sampleAdapter(1))
	o := testOrchestrator(repo)

	if _, err := o.ComputeOne(context.Background(), 1, false); err != nil {
		t.Fatalf("compute: %v", err)
	}
	rec := repo.saved[1]

	// Triggers "1girl", "dragon" plus trained word "dragonstyle".
	want := map[string]bool{"girl": true, "dragon": true, "dragonstyle": true}
	if len(rec.Triggers) != len(want) {
		t.Fatalf("triggers = %v", rec.Triggers)
	}
	for _, tr := range rec.Triggers {
		if !want[tr] {
			t.Errorf("unexpected trigger %q", tr)
		}
	}
	if rec.TriggerAliases["1girl"] != "girl" {
		t.Errorf("alias map = %v", rec.TriggerAliases)
	}
	for _, tr := range rec.Triggers {
		vec, ok := rec.TriggerVectors[tr]
		if !ok {
			t.Errorf("missing vector for trigger %q", tr)
			continue
		}
		if len(vec) != encoder.Dimensions {
			t.Errorf("trigger %q vector has %d dims", tr, len(vec))
		}
	}
}

func TestComputeOne_SkipsExisting(t *testing.T) {
	repo := newFakeRepo(sampleAdapter(1))
	repo.existing[1] = true
	o := testOrchestrator(repo)

	ok, err := o.ComputeOne(context.Background(), 1, false)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if !ok {
		t.Error("skip must be reported as success")
	}
	if repo.saved[1] != nil {
		t.Error("skip must not write a record")
	}
}

func TestComputeOne_ForceRecomputes(t *testing.T) {
	repo := newFakeRepo(sampleAdapter(1))
	repo.existing[1] = true
	o := testOrchestrator(repo)

	ok, err := o.ComputeOne(context.Background(), 1, true)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if !ok || repo.saved[1] == nil {
		t.Error("force must recompute an existing record")
	}
}

func TestComputeOne_ErrorsPropagate(t *testing.T) {
	repo := newFakeRepo()
	o := testOrchestrator(repo)

	if _, err := o.ComputeOne(context.Background(), 404, false); !store.IsNotFound(err) {
		t.Errorf("expected not-found, got %v", err)
	}

	repo.existsErr = errors.New("db down")
	if _, err := o.ComputeOne(context.Background(), 1, false); err == nil {
		t.Error("existence check failure must propagate")
	}
}

func TestRun_SkipsExistingAndCounts(t *testing.T) {
	repo := newFakeRepo(sampleAdapter(1), sampleAdapter(2), sampleAdapter(3))
	repo.existing[2] = true
	o := testOrchestrator(repo)

	summary, err := o.Run(context.Background(), nil, false, 10)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", summary.Skipped)
	}
	if summary.Processed != 2 {
		t.Errorf("processed = %d, want 2", summary.Processed)
	}
	if summary.ErrorCount != 0 {
		t.Errorf("errors = %v", summary.Errors)
	}
	if repo.saved[2] != nil {
		t.Error("existing record must not be rewritten")
	}
}

func TestRun_ForceRecomputesAll(t *testing.T) {
	repo := newFakeRepo(sampleAdapter(1), sampleAdapter(2))
	repo.existing[1] = true
	repo.existing[2] = true
	o := testOrchestrator(repo)

	summary, err := o.Run(context.Background(), nil, true, 10)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Processed != 2 || summary.Skipped != 0 {
		t.Errorf("processed=%d skipped=%d, want 2/0", summary.Processed, summary.Skipped)
	}
}

func TestRun_IsolatesItemFailures(t *testing.T) {
	repo := newFakeRepo(sampleAdapter(1), sampleAdapter(2), sampleAdapter(3))
	repo.saveErrFor[2] = errors.New("constraint violation")
	o := testOrchestrator(repo)

	summary, err := o.Run(context.Background(), nil, false, 1)
	if err != nil {
		t.Fatalf("one bad adapter must not abort the batch: %v", err)
	}
	if summary.Processed != 2 {
		t.Errorf("processed = %d, want 2", summary.Processed)
	}
	if summary.ErrorCount != 1 || len(summary.Errors) != 1 {
		t.Fatalf("errors = %v", summary.Errors)
	}
	if summary.Errors[0].AdapterID != 2 {
		t.Errorf("failed adapter = %d, want 2", summary.Errors[0].AdapterID)
	}
	if repo.saved[1] == nil || repo.saved[3] == nil {
		t.Error("healthy adapters must still be written")
	}
}

func TestRun_ExplicitIDs(t *testing.T) {
	repo := newFakeRepo(sampleAdapter(1), sampleAdapter(2), sampleAdapter(3))
	o := testOrchestrator(repo)

	summary, err := o.Run(context.Background(), []int64{1, 3}, false, 10)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Processed != 2 {
		t.Errorf("processed = %d, want 2", summary.Processed)
	}
	if repo.saved[2] != nil {
		t.Error("adapter 2 was not requested")
	}
}

func TestRun_ReportsUnknownIDs(t *testing.T) {
	repo := newFakeRepo(sampleAdapter(1), sampleAdapter(2))
	repo.existing[2] = true
	o := testOrchestrator(repo)

	summary, err := o.Run(context.Background(), []int64{1, 2, 999}, false, 10)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Processed != 1 || summary.Skipped != 1 {
		t.Errorf("processed=%d skipped=%d, want 1/1", summary.Processed, summary.Skipped)
	}
	if summary.ErrorCount != 1 || len(summary.Errors) != 1 {
		t.Fatalf("errors = %v", summary.Errors)
	}
	if e := summary.Errors[0]; e.AdapterID != 999 || e.Message != "adapter not found" {
		t.Errorf("unknown id error = %+v", e)
	}
	if summary.Processed+summary.Skipped+summary.ErrorCount != 3 {
		t.Error("every requested id must land in exactly one counter")
	}
}

func TestRun_DuplicateUnknownIDReportedOnce(t *testing.T) {
	repo := newFakeRepo(sampleAdapter(1))
	o := testOrchestrator(repo)

	summary, err := o.Run(context.Background(), []int64{999, 999, 1}, false, 10)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.ErrorCount != 1 {
		t.Errorf("errors = %v", summary.Errors)
	}
	if summary.Processed != 1 {
		t.Errorf("processed = %d, want 1", summary.Processed)
	}
}

func TestRun_EmptySet(t *testing.T) {
	repo := newFakeRepo()
	o := testOrchestrator(repo)

	summary, err := o.Run(context.Background(), nil, false, 10)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Processed != 0 || summary.Skipped != 0 || summary.ErrorCount != 0 {
		t.Errorf("empty run should be all zeros: %+v", summary)
	}
	if summary.Errors == nil {
		t.Error("errors must serialize as an empty list, not null")
	}
	if summary.CompletedAt.IsZero() {
		t.Error("completion timestamp missing")
	}
}
