package recommend

import (
	"context"
	"time"

	"github.com/loradex/loradex/internal/engine"
	"github.com/loradex/loradex/internal/store"
)

// RecommendedLora is one result of the similar-lora use case. Display fields
// come fresh from the repository, never from the engine's ranking cache.
type RecommendedLora struct {
	AdapterID   int64    `json:"adapter_id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Author      string   `json:"author"`
	Tags        []string `json:"tags"`
	SDVersion   string   `json:"sd_version"`
	NSFWLevel   int      `json:"nsfw_level"`

	SimilarityScore float64 `json:"similarity_score"`
	FinalScore      float64 `json:"final_score"`
	Explanation     string  `json:"explanation"`

	SemanticScore  float64 `json:"semantic_score"`
	ArtisticScore  float64 `json:"artistic_score"`
	TechnicalScore float64 `json:"technical_score"`

	QualityBoost    float64 `json:"quality_boost"`
	PopularityBoost float64 `json:"popularity_boost"`
	RecencyBoost    float64 `json:"recency_boost"`
}

// SimilarResponse is the similar-lora use case result.
type SimilarResponse struct {
	SessionID string            `json:"session_id"`
	TargetID  int64             `json:"target_id"`
	Results   []RecommendedLora `json:"results"`
}

// SimilarLoras resolves the target adapter, lazily ensures its embedding and
// the similarity index, ranks via the engine, and maps to the public shape.
// Latency is recorded whether or not the call succeeds.
func (s *Service) SimilarLoras(ctx context.Context, targetID int64, limit int, threshold float64, weights *engine.Weights, diversify bool) (*SimilarResponse, error) {
	start := time.Now()
	defer func() { s.tracker.Observe(time.Since(start)) }()

	target, err := s.repo.GetAdapter(ctx, targetID)
	if err != nil {
		return nil, err
	}

	exists, err := s.repo.EmbeddingExists(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := s.offload(ctx, func() error {
			_, cerr := s.computer.ComputeOne(ctx, targetID, false)
			return cerr
		}); err != nil {
			return nil, err
		}
	}

	if s.engine.Len() == 0 {
		s.tracker.Miss()
		if err := s.offload(ctx, func() error {
			_, rerr := s.manager.RebuildIndex(ctx, false)
			return rerr
		}); err != nil {
			return nil, err
		}
	} else {
		s.tracker.Hit()
	}

	var recs []engine.Recommendation
	if err := s.offload(ctx, func() error {
		var rerr error
		recs, rerr = s.engine.Recommend(ctx, target, limit, weights, diversify)
		return rerr
	}); err != nil {
		return nil, err
	}

	// Threshold filter is the use case's job, not the engine's.
	filtered := recs[:0]
	for _, r := range recs {
		if r.Similarity >= threshold {
			filtered = append(filtered, r)
		}
	}
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}

	results, resultIDs, err := s.hydrate(ctx, filtered)
	if err != nil {
		return nil, err
	}

	sessionID, err := s.feedback.CreateSession(ctx, "similar", &targetID, "", resultIDs)
	if err != nil {
		return nil, err
	}

	return &SimilarResponse{
		SessionID: sessionID.String(),
		TargetID:  targetID,
		Results:   results,
	}, nil
}

// hydrate re-reads display metadata from the repository for each ranked id.
// The returned ids cover only the rows that survived hydration, so a recorded
// session never lists an adapter the caller was not shown.
func (s *Service) hydrate(ctx context.Context, recs []engine.Recommendation) ([]RecommendedLora, []int64, error) {
	lookup := make([]int64, len(recs))
	for i, r := range recs {
		lookup[i] = r.AdapterID
	}

	results := make([]RecommendedLora, 0, len(recs))
	ids := make([]int64, 0, len(recs))
	if len(lookup) == 0 {
		return results, ids, nil
	}

	adapters, err := s.repo.ListAdapters(ctx, lookup)
	if err != nil {
		return nil, nil, err
	}
	byID := make(map[int64]*store.Adapter, len(adapters))
	for i := range adapters {
		byID[adapters[i].ID] = &adapters[i]
	}

	for _, r := range recs {
		a, ok := byID[r.AdapterID]
		if !ok {
			// Indexed but since deleted; drop rather than show stale data.
			continue
		}
		ids = append(ids, r.AdapterID)
		results = append(results, RecommendedLora{
			AdapterID:       r.AdapterID,
			Name:            a.Name,
			Description:     a.Description,
			Author:          a.Author,
			Tags:            a.Tags,
			SDVersion:       a.SDVersion,
			NSFWLevel:       a.NSFWLevel,
			SimilarityScore: r.Similarity,
			FinalScore:      r.FinalScore,
			Explanation:     r.Explanation,
			SemanticScore:   r.SemanticScore,
			ArtisticScore:   r.ArtisticScore,
			TechnicalScore:  r.TechnicalScore,
			QualityBoost:    r.QualityBoost,
			PopularityBoost: r.PopularityBoost,
			RecencyBoost:    r.RecencyBoost,
		})
	}
	return results, ids, nil
}
