package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Adapter is a read-only snapshot of a LoRA adapter owned by the adapter
// management subsystem. The recommendation core never writes these rows.
type Adapter struct {
	ID             int64
	Name           string
	Description    string
	Author         string
	TrainedWords   []string
	Triggers       []string
	ActivationText string
	Tags           []string
	Archetype      string
	SDVersion      string
	NSFWLevel      int
	Downloads      int64
	Favorites      int64
	Comments       int64
	Rating         float64
	PublishedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	FileSizeKB     int64
	Active         bool
}

const adapterColumns = `
	id, name, description, author, trained_words, triggers, activation_text,
	tags, archetype, sd_version, nsfw_level, downloads, favorites, comments,
	rating, published_at, created_at, updated_at, file_size_kb, active
`

func scanAdapter(row pgx.Row) (*Adapter, error) {
	a := &Adapter{}
	err := row.Scan(
		&a.ID, &a.Name, &a.Description, &a.Author, &a.TrainedWords, &a.Triggers,
		&a.ActivationText, &a.Tags, &a.Archetype, &a.SDVersion, &a.NSFWLevel,
		&a.Downloads, &a.Favorites, &a.Comments, &a.Rating, &a.PublishedAt,
		&a.CreatedAt, &a.UpdatedAt, &a.FileSizeKB, &a.Active,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// AdapterStore reads adapter rows.
type AdapterStore struct {
	db *DB
}

// NewAdapterStore creates an AdapterStore.
func NewAdapterStore(db *DB) *AdapterStore {
	return &AdapterStore{db: db}
}

// GetAdapter fetches a single adapter by id.
func (s *AdapterStore) GetAdapter(ctx context.Context, id int64) (*Adapter, error) {
	a, err := scanAdapter(s.db.Pool.QueryRow(ctx, `
		SELECT `+adapterColumns+` FROM adapters WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("adapter %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get adapter %d: %w", id, err)
	}
	return a, nil
}

// ListAdapters fetches adapters by id, preserving no particular order.
func (s *AdapterStore) ListAdapters(ctx context.Context, ids []int64) ([]Adapter, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT `+adapterColumns+` FROM adapters WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("list adapters: %w", err)
	}
	defer rows.Close()
	return collectAdapters(rows)
}

// ListActiveAdapters fetches all active adapters ordered by id.
func (s *AdapterStore) ListActiveAdapters(ctx context.Context) ([]Adapter, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT `+adapterColumns+` FROM adapters WHERE active ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list active adapters: %w", err)
	}
	defer rows.Close()
	return collectAdapters(rows)
}

// CountActive returns the number of active adapters.
func (s *AdapterStore) CountActive(ctx context.Context) (int, error) {
	var n int
	err := s.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM adapters WHERE active`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active adapters: %w", err)
	}
	return n, nil
}

func collectAdapters(rows pgx.Rows) ([]Adapter, error) {
	var result []Adapter
	for rows.Next() {
		a, err := scanAdapter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan adapter: %w", err)
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}
