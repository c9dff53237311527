package store

import "context"

// Repo bundles the typed stores behind the single persistence boundary the
// compute and recommendation layers depend on.
type Repo struct {
	Adapters   *AdapterStore
	Embeddings *EmbeddingStore
	Feedback   *FeedbackStore
}

// NewRepo creates a Repo over one DB.
func NewRepo(db *DB) *Repo {
	return &Repo{
		Adapters:   NewAdapterStore(db),
		Embeddings: NewEmbeddingStore(db),
		Feedback:   NewFeedbackStore(db),
	}
}

// GetAdapter fetches one adapter.
func (r *Repo) GetAdapter(ctx context.Context, id int64) (*Adapter, error) {
	return r.Adapters.GetAdapter(ctx, id)
}

// ListAdapters fetches adapters by id.
func (r *Repo) ListAdapters(ctx context.Context, ids []int64) ([]Adapter, error) {
	return r.Adapters.ListAdapters(ctx, ids)
}

// ListActiveAdapters fetches all active adapters.
func (r *Repo) ListActiveAdapters(ctx context.Context) ([]Adapter, error) {
	return r.Adapters.ListActiveAdapters(ctx)
}

// EmbeddingExists reports record existence for an adapter.
func (r *Repo) EmbeddingExists(ctx context.Context, id int64) (bool, error) {
	return r.Embeddings.Exists(ctx, id)
}

// ExistingEmbeddingIDs reports which ids already have records.
func (r *Repo) ExistingEmbeddingIDs(ctx context.Context, ids []int64) (map[int64]bool, error) {
	return r.Embeddings.ExistingIDs(ctx, ids)
}

// SaveRecord upserts a full embedding record atomically.
func (r *Repo) SaveRecord(ctx context.Context, rec *EmbeddingRecord) error {
	return r.Embeddings.SaveRecord(ctx, rec)
}

// GetEmbedding fetches the record for an adapter.
func (r *Repo) GetEmbedding(ctx context.Context, id int64) (*EmbeddingRecord, error) {
	return r.Embeddings.Get(ctx, id)
}

// ListActiveEmbeddings fetches records for active adapters, minus exclusions.
func (r *Repo) ListActiveEmbeddings(ctx context.Context, exclude []int64) ([]EmbeddingRecord, error) {
	return r.Embeddings.ListForActive(ctx, exclude)
}

// CountActive returns the number of active adapters.
func (r *Repo) CountActive(ctx context.Context) (int, error) {
	return r.Adapters.CountActive(ctx)
}

// CountActiveEmbedded returns the number of active adapters with records.
func (r *Repo) CountActiveEmbedded(ctx context.Context) (int, error) {
	return r.Embeddings.CountActiveEmbedded(ctx)
}
