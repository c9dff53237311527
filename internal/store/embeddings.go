package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

// EmbeddingRecord is the persisted feature record for one adapter, keyed 1:1
// by adapter id. A row exists only after a successful computation; recompute
// overwrites every field in a single transaction so a partial write is never
// observable.
type EmbeddingRecord struct {
	AdapterID int64

	Semantic  pgvector.Vector
	Artistic  pgvector.Vector
	Technical pgvector.Vector

	Keywords      []string
	KeywordScores []float64

	PredictedStyle  string
	StyleConfidence float64
	Sentiment       string
	SentimentScore  float64

	Quality       float64
	Popularity    float64
	Recency       float64
	Compatibility float64

	Triggers       []string
	TriggerAliases map[string]string
	TriggerVectors map[string][]float32

	ComputedAt time.Time
}

// EmbeddingStore persists embedding records.
type EmbeddingStore struct {
	db *DB
}

// NewEmbeddingStore creates an EmbeddingStore.
func NewEmbeddingStore(db *DB) *EmbeddingStore {
	return &EmbeddingStore{db: db}
}

// Exists reports whether a record exists for the adapter.
func (s *EmbeddingStore) Exists(ctx context.Context, adapterID int64) (bool, error) {
	var exists bool
	err := s.db.Pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM adapter_embeddings WHERE adapter_id = $1)
	`, adapterID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("embedding exists %d: %w", adapterID, err)
	}
	return exists, nil
}

// ExistingIDs returns which of the given adapter ids already have records.
func (s *EmbeddingStore) ExistingIDs(ctx context.Context, ids []int64) (map[int64]bool, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT adapter_id FROM adapter_embeddings WHERE adapter_id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("existing embedding ids: %w", err)
	}
	defer rows.Close()

	existing := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan embedding id: %w", err)
		}
		existing[id] = true
	}
	return existing, rows.Err()
}

const embeddingColumns = `
	adapter_id, semantic, artistic, technical, keywords, keyword_scores,
	predicted_style, style_confidence, sentiment, sentiment_score,
	quality, popularity, recency, compatibility,
	triggers, trigger_aliases, trigger_vectors, computed_at
`

func scanEmbedding(row pgx.Row) (*EmbeddingRecord, error) {
	r := &EmbeddingRecord{}
	err := row.Scan(
		&r.AdapterID, &r.Semantic, &r.Artistic, &r.Technical,
		&r.Keywords, &r.KeywordScores,
		&r.PredictedStyle, &r.StyleConfidence, &r.Sentiment, &r.SentimentScore,
		&r.Quality, &r.Popularity, &r.Recency, &r.Compatibility,
		&r.Triggers, &r.TriggerAliases, &r.TriggerVectors, &r.ComputedAt,
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Get fetches the record for an adapter.
func (s *EmbeddingStore) Get(ctx context.Context, adapterID int64) (*EmbeddingRecord, error) {
	r, err := scanEmbedding(s.db.Pool.QueryRow(ctx, `
		SELECT `+embeddingColumns+` FROM adapter_embeddings WHERE adapter_id = $1
	`, adapterID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("embedding %d: %w", adapterID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get embedding %d: %w", adapterID, err)
	}
	return r, nil
}

// ListForActive fetches records for all active adapters, optionally excluding
// a set of adapter ids.
func (s *EmbeddingStore) ListForActive(ctx context.Context, exclude []int64) ([]EmbeddingRecord, error) {
	if exclude == nil {
		exclude = []int64{}
	}
	rows, err := s.db.Pool.Query(ctx, `
		SELECT `+embeddingColumns+`
		FROM adapter_embeddings e
		JOIN adapters a ON a.id = e.adapter_id AND a.active
		WHERE e.adapter_id != ALL($1)
		ORDER BY e.adapter_id
	`, exclude)
	if err != nil {
		return nil, fmt.Errorf("list active embeddings: %w", err)
	}
	defer rows.Close()

	var result []EmbeddingRecord
	for rows.Next() {
		r, err := scanEmbedding(rows)
		if err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		result = append(result, *r)
	}
	return result, rows.Err()
}

// CountActiveEmbedded returns the number of active adapters that have an
// embedding record. The trigger index uses this as its staleness proxy.
func (s *EmbeddingStore) CountActiveEmbedded(ctx context.Context) (int, error) {
	var n int
	err := s.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM adapter_embeddings e
		JOIN adapters a ON a.id = e.adapter_id AND a.active
	`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active embedded: %w", err)
	}
	return n, nil
}

// SaveRecord upserts the full record in one transaction. On any failure the
// transaction rolls back, so the record is never half-written.
func (s *EmbeddingStore) SaveRecord(ctx context.Context, r *EmbeddingRecord) error {
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO adapter_embeddings (`+embeddingColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
			ON CONFLICT (adapter_id) DO UPDATE SET
				semantic = EXCLUDED.semantic,
				artistic = EXCLUDED.artistic,
				technical = EXCLUDED.technical,
				keywords = EXCLUDED.keywords,
				keyword_scores = EXCLUDED.keyword_scores,
				predicted_style = EXCLUDED.predicted_style,
				style_confidence = EXCLUDED.style_confidence,
				sentiment = EXCLUDED.sentiment,
				sentiment_score = EXCLUDED.sentiment_score,
				quality = EXCLUDED.quality,
				popularity = EXCLUDED.popularity,
				recency = EXCLUDED.recency,
				compatibility = EXCLUDED.compatibility,
				triggers = EXCLUDED.triggers,
				trigger_aliases = EXCLUDED.trigger_aliases,
				trigger_vectors = EXCLUDED.trigger_vectors,
				computed_at = EXCLUDED.computed_at
		`,
			r.AdapterID, r.Semantic, r.Artistic, r.Technical,
			r.Keywords, r.KeywordScores,
			r.PredictedStyle, r.StyleConfidence, r.Sentiment, r.SentimentScore,
			r.Quality, r.Popularity, r.Recency, r.Compatibility,
			r.Triggers, r.TriggerAliases, r.TriggerVectors, r.ComputedAt,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("save embedding %d: %w", r.AdapterID, err)
	}
	return nil
}
