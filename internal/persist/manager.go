// Package persist serializes the similarity index to disk and owns the
// force/skip rebuild semantics.
package persist

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/loradex/loradex/internal/engine"
	"github.com/loradex/loradex/internal/store"
)

// AdapterSource lists the adapters that participate in a rebuild.
type AdapterSource interface {
	ListActiveAdapters(ctx context.Context) ([]store.Adapter, error)
}

// RebuildResult summarizes one RebuildIndex call.
type RebuildResult struct {
	Status         string        `json:"status"` // "rebuilt", "skipped", "empty"
	IndexedItems   int           `json:"indexed_items"`
	IndexPath      string        `json:"index_path"`
	IndexSizeBytes int64         `json:"index_size_bytes"`
	Duration       time.Duration `json:"-"`
	Seconds        float64       `json:"processing_time_seconds"`
	RebuiltAt      time.Time     `json:"rebuilt_at"`
	Skipped        bool          `json:"skipped"`
	SkippedReason  string        `json:"skipped_reason,omitempty"`
}

// Manager rebuilds and persists the similarity index. Paths are runtime
// configuration, never hardcoded.
type Manager struct {
	engine    *engine.Engine
	source    AdapterSource
	indexPath string
	cacheDir  string
	logger    *slog.Logger
	now       func() time.Time
}

// NewManager creates a Manager.
func NewManager(eng *engine.Engine, source AdapterSource, indexPath, cacheDir string, logger *slog.Logger) *Manager {
	return &Manager{
		engine:    eng,
		source:    source,
		indexPath: indexPath,
		cacheDir:  cacheDir,
		logger:    logger,
		now:       time.Now,
	}
}

// IndexPath returns the configured snapshot path.
func (m *Manager) IndexPath() string { return m.indexPath }

// CacheDir returns the configured cache directory.
func (m *Manager) CacheDir() string { return m.cacheDir }

// RebuildIndex rebuilds the in-memory index and serializes it. With force
// false and a populated index it returns immediately with status "skipped"
// and performs no I/O. A rebuild yielding zero rows removes any stale
// on-disk snapshot and reports status "empty".
func (m *Manager) RebuildIndex(ctx context.Context, force bool) (*RebuildResult, error) {
	start := m.now()

	if !force && m.engine.Len() > 0 {
		return &RebuildResult{
			Status:        "skipped",
			IndexedItems:  m.engine.Len(),
			IndexPath:     m.indexPath,
			Skipped:       true,
			SkippedReason: "index already populated",
			RebuiltAt:     start,
		}, nil
	}

	adapters, err := m.source.ListActiveAdapters(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading adapters for rebuild: %w", err)
	}
	if err := m.engine.Build(ctx, adapters); err != nil {
		return nil, fmt.Errorf("rebuilding index: %w", err)
	}

	result := &RebuildResult{
		IndexPath:    m.indexPath,
		IndexedItems: m.engine.Len(),
	}

	if m.engine.Len() == 0 {
		if err := os.Remove(m.indexPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			m.logger.Warn("removing stale index snapshot", "path", m.indexPath, "error", err)
		}
		result.Status = "empty"
	} else {
		size, err := m.Save(m.engine.Current())
		if err != nil {
			return nil, err
		}
		result.Status = "rebuilt"
		result.IndexSizeBytes = size
	}

	result.Duration = m.now().Sub(start)
	result.Seconds = result.Duration.Seconds()
	result.RebuiltAt = m.now()

	m.logger.Info("index rebuild complete",
		"status", result.Status,
		"items", result.IndexedItems,
		"duration", result.Duration.String(),
	)
	return result, nil
}

// snapshotFile is the on-disk form: id list plus the three matrices. The file
// is private to this subsystem, so gob round-trip fidelity is the only
// contract.
type snapshotFile struct {
	IDs       []int64
	Semantic  [][]float32
	Artistic  [][]float32
	Technical [][]float32
	Meta      map[int64]engine.AdapterMeta
}

// Save writes the snapshot, replacing any previous file atomically via a
// temp-file rename. Returns the written size in bytes.
func (m *Manager) Save(s *engine.Snapshot) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(m.indexPath), 0o755); err != nil {
		return 0, fmt.Errorf("creating index dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(m.indexPath), "index-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("creating temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := gob.NewEncoder(tmp)
	err = enc.Encode(snapshotFile{
		IDs:       s.IDs,
		Semantic:  s.Semantic,
		Artistic:  s.Artistic,
		Technical: s.Technical,
		Meta:      s.Meta,
	})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("encoding snapshot: %w", err)
	}

	if err := os.Rename(tmp.Name(), m.indexPath); err != nil {
		return 0, fmt.Errorf("replacing snapshot: %w", err)
	}

	info, err := os.Stat(m.indexPath)
	if err != nil {
		return 0, fmt.Errorf("stat snapshot: %w", err)
	}
	return info.Size(), nil
}

// Load restores a previously saved snapshot into the engine. It also ensures
// the cache directory exists so a fresh deployment can persist from the first
// rebuild. A missing snapshot file is not an error; it simply leaves the
// index empty.
func (m *Manager) Load() error {
	if m.cacheDir != "" {
		if err := os.MkdirAll(m.cacheDir, 0o755); err != nil {
			return fmt.Errorf("creating cache dir: %w", err)
		}
	}

	f, err := os.Open(m.indexPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close()

	var sf snapshotFile
	if err := gob.NewDecoder(f).Decode(&sf); err != nil {
		return fmt.Errorf("decoding snapshot: %w", err)
	}

	m.engine.Restore(&engine.Snapshot{
		IDs:       sf.IDs,
		Semantic:  sf.Semantic,
		Artistic:  sf.Artistic,
		Technical: sf.Technical,
		Meta:      sf.Meta,
	})
	m.logger.Info("index snapshot loaded", "path", m.indexPath, "rows", len(sf.IDs))
	return nil
}
