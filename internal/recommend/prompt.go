package recommend

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/loradex/loradex/internal/embedder"
	"github.com/loradex/loradex/internal/encoder"
)

// PromptMatch is one result of the prompt-recommendation use case.
type PromptMatch struct {
	AdapterID   int64    `json:"adapter_id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Author      string   `json:"author"`
	Tags        []string `json:"tags"`
	SDVersion   string   `json:"sd_version"`
	NSFWLevel   int      `json:"nsfw_level"`

	Similarity float64 `json:"similarity"`
	StyleBoost float64 `json:"style_boost"`
	Score      float64 `json:"score"`

	PredictedStyle string   `json:"predicted_style"`
	Triggers       []string `json:"triggers,omitempty"`
}

// PromptResponse is the prompt-recommendation use case result.
type PromptResponse struct {
	SessionID string        `json:"session_id"`
	Prompt    string        `json:"prompt"`
	Results   []PromptMatch `json:"results"`
}

// styleBoost is added when an adapter's predicted style textually contains
// the requested style preference.
const styleBoost = 0.2

// RecommendForPrompt embeds the free-text prompt (the one place free text
// legitimately feeds the semantic encoder: the prompt is the query), then
// ranks all active embedded adapters minus the caller's active set by cosine
// similarity against their stored semantic embedding, plus a style boost.
func (s *Service) RecommendForPrompt(ctx context.Context, prompt string, activeIDs []int64, limit int, stylePreference string) (*PromptResponse, error) {
	start := time.Now()
	defer func() { s.tracker.Observe(time.Since(start)) }()

	var promptVec []float32
	if err := s.offload(ctx, func() error {
		var perr error
		promptVec, perr = s.emb.EmbedText(ctx, encoder.ModalitySemantic, prompt)
		return perr
	}); err != nil {
		return nil, err
	}

	records, err := s.repo.ListActiveEmbeddings(ctx, activeIDs)
	if err != nil {
		return nil, err
	}

	wantStyle := strings.ToLower(strings.TrimSpace(stylePreference))

	type scored struct {
		recordIdx  int
		similarity float64
		boost      float64
	}
	candidates := make([]scored, 0, len(records))
	for i := range records {
		// Cosine defines zero-norm similarity as 0, never NaN.
		sim := embedder.Cosine(promptVec, records[i].Semantic.Slice())

		var boost float64
		if wantStyle != "" && strings.Contains(strings.ToLower(records[i].PredictedStyle), wantStyle) {
			boost = styleBoost
		}
		candidates = append(candidates, scored{recordIdx: i, similarity: sim, boost: boost})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		si := candidates[i].similarity + candidates[i].boost
		sj := candidates[j].similarity + candidates[j].boost
		if si != sj {
			return si > sj
		}
		return records[candidates[i].recordIdx].AdapterID < records[candidates[j].recordIdx].AdapterID
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	lookup := make([]int64, len(candidates))
	for i, c := range candidates {
		lookup[i] = records[c.recordIdx].AdapterID
	}

	// The session records only ids that survive hydration, mirroring what the
	// caller actually sees.
	ids := make([]int64, 0, len(candidates))
	results := make([]PromptMatch, 0, len(candidates))
	if len(lookup) > 0 {
		adapters, err := s.repo.ListAdapters(ctx, lookup)
		if err != nil {
			return nil, err
		}
		byID := make(map[int64]int, len(adapters))
		for i := range adapters {
			byID[adapters[i].ID] = i
		}

		for _, c := range candidates {
			rec := &records[c.recordIdx]
			idx, ok := byID[rec.AdapterID]
			if !ok {
				continue
			}
			a := &adapters[idx]
			ids = append(ids, rec.AdapterID)
			results = append(results, PromptMatch{
				AdapterID:      rec.AdapterID,
				Name:           a.Name,
				Description:    a.Description,
				Author:         a.Author,
				Tags:           a.Tags,
				SDVersion:      a.SDVersion,
				NSFWLevel:      a.NSFWLevel,
				Similarity:     c.similarity,
				StyleBoost:     c.boost,
				Score:          c.similarity + c.boost,
				PredictedStyle: rec.PredictedStyle,
				Triggers:       rec.Triggers,
			})
		}
	}

	sessionID, err := s.feedback.CreateSession(ctx, "prompt", nil, prompt, ids)
	if err != nil {
		return nil, err
	}

	return &PromptResponse{
		SessionID: sessionID.String(),
		Prompt:    prompt,
		Results:   results,
	}, nil
}
