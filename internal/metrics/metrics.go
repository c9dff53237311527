// Package metrics accumulates query latency and cache counters for the
// recommendation service. Counters live for the process lifetime and reset
// only on restart.
package metrics

import (
	"sync/atomic"
	"time"
)

// Tracker aggregates recommendation query metrics.
type Tracker struct {
	queries      atomic.Int64
	latencyMicro atomic.Int64
	cacheHits    atomic.Int64
	cacheMisses  atomic.Int64
}

// NewTracker creates a Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Observe records one completed query and its latency.
func (t *Tracker) Observe(d time.Duration) {
	t.queries.Add(1)
	t.latencyMicro.Add(d.Microseconds())
}

// Hit records an index cache hit.
func (t *Tracker) Hit() { t.cacheHits.Add(1) }

// Miss records an index cache miss.
func (t *Tracker) Miss() { t.cacheMisses.Add(1) }

// Stats is a point-in-time metrics snapshot.
type Stats struct {
	QueryCount   int64   `json:"query_count"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
	CacheHits    int64   `json:"cache_hits"`
	CacheMisses  int64   `json:"cache_misses"`
	CacheHitRate float64 `json:"cache_hit_rate"`
}

// Snapshot returns current totals.
func (t *Tracker) Snapshot() Stats {
	s := Stats{
		QueryCount:  t.queries.Load(),
		CacheHits:   t.cacheHits.Load(),
		CacheMisses: t.cacheMisses.Load(),
	}
	if s.QueryCount > 0 {
		s.AvgLatencyMS = float64(t.latencyMicro.Load()) / float64(s.QueryCount) / 1000
	}
	if total := s.CacheHits + s.CacheMisses; total > 0 {
		s.CacheHitRate = float64(s.CacheHits) / float64(total)
	}
	return s
}
