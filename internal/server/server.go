// Package server provides the HTTP server setup for Loradex.
package server

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/loradex/loradex/internal/api"
	"github.com/loradex/loradex/internal/config"
	"github.com/loradex/loradex/internal/events"
	"github.com/loradex/loradex/internal/middleware"
	"github.com/loradex/loradex/internal/recommend"
	"github.com/loradex/loradex/internal/store"
)

// Server holds all dependencies for the Loradex HTTP server.
type Server struct {
	Router *chi.Mux
	Config *config.Config
	Logger *slog.Logger
}

// New creates a new Server with all routes configured.
func New(cfg *config.Config, db *store.DB, svc *recommend.Service, natsClient *events.Client, device string, logger *slog.Logger) *Server {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(middleware.RequestLogging(logger))

	// Handlers
	healthHandler := api.NewHealthHandler(db, natsClient, device)
	recommendHandler := api.NewRecommendHandler(svc)
	embeddingHandler := api.NewEmbeddingHandler(svc)

	// Rate limiters
	recommendRL := middleware.NewRateLimiter(cfg.RecommendRateLimit, cfg.RateWindow)
	computeRL := middleware.NewRateLimiter(cfg.ComputeRateLimit, cfg.RateWindow)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.Health)

		r.Route("/recommendations", func(r chi.Router) {
			r.Use(recommendRL.Middleware)
			r.Post("/similar/{id}", recommendHandler.Similar)
			r.Post("/prompt", recommendHandler.Prompt)
			r.Get("/triggers", recommendHandler.SearchTriggers)
			r.Post("/feedback", recommendHandler.Feedback)
			r.Put("/preferences", recommendHandler.Preference)
			r.Get("/stats", recommendHandler.Stats)
		})

		r.Route("/embeddings", func(r chi.Router) {
			r.Use(computeRL.Middleware)
			r.Post("/compute/{id}", embeddingHandler.ComputeOne)
			r.Post("/compute-batch", embeddingHandler.ComputeBatch)
			r.Post("/rebuild", embeddingHandler.Rebuild)
			r.Get("/status/{id}", embeddingHandler.Status)
		})
	})

	return &Server{
		Router: r,
		Config: cfg,
		Logger: logger,
	}
}
