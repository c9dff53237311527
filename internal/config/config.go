// Package config provides environment-based configuration for Loradex.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all configuration for the Loradex recommendation service.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Database
	DatabaseURL string

	// NATS event bus (optional; empty disables publishing)
	NatsURL string

	// Encoder sidecar. Empty URL selects the deterministic hashed encoder.
	SidecarURL string
	Device     string

	// Index persistence
	IndexPath string
	CacheDir  string

	// Embedding computation
	BatchSize   int
	WorkerSlots int

	// Default recommendation weights
	SemanticWeight  float64
	ArtisticWeight  float64
	TechnicalWeight float64

	// Background index refresh (0 disables the loop)
	RefreshInterval time.Duration

	// Rate limiting
	RecommendRateLimit int
	ComputeRateLimit   int
	RateWindow         time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cacheDir := envStr("LORADEX_CACHE_DIR", "data/cache")
	c := &Config{
		Port:               envInt("LORADEX_PORT", 8600),
		LogLevel:           envStr("LORADEX_LOG_LEVEL", "info"),
		DatabaseURL:        envStr("DATABASE_URL", ""),
		NatsURL:            envStr("NATS_URL", ""),
		SidecarURL:         envStr("ENCODER_SIDECAR_URL", ""),
		Device:             envStr("ENCODER_DEVICE", "cpu"),
		IndexPath:          envStr("LORADEX_INDEX_PATH", filepath.Join(cacheDir, "similarity_index.gob")),
		CacheDir:           cacheDir,
		BatchSize:          envInt("LORADEX_EMBED_BATCH_SIZE", 32),
		WorkerSlots:        envInt("LORADEX_WORKER_SLOTS", 4),
		SemanticWeight:     envFloat("LORADEX_WEIGHT_SEMANTIC", 0.6),
		ArtisticWeight:     envFloat("LORADEX_WEIGHT_ARTISTIC", 0.3),
		TechnicalWeight:    envFloat("LORADEX_WEIGHT_TECHNICAL", 0.1),
		RefreshInterval:    envDuration("LORADEX_REFRESH_INTERVAL", 0),
		RecommendRateLimit: envInt("RECOMMEND_RATE_LIMIT", 120),
		ComputeRateLimit:   envInt("COMPUTE_RATE_LIMIT", 20),
		RateWindow:         time.Minute,
	}

	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if c.BatchSize < 1 {
		c.BatchSize = 1
	}
	if c.WorkerSlots < 1 {
		c.WorkerSlots = 1
	}

	return c, nil
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
