package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// RecommendationSession records one served recommendation query so feedback
// can be tied back to what the user actually saw.
type RecommendationSession struct {
	ID        uuid.UUID
	Kind      string // "similar" or "prompt"
	TargetID  *int64
	Prompt    string
	ResultIDs []int64
	ServedAt  time.Time
}

// Feedback is a user reaction to one recommended adapter within a session.
type Feedback struct {
	ID        uuid.UUID
	SessionID uuid.UUID
	AdapterID int64
	Action    string // "activated", "dismissed", "rated"
	Rating    *float64
	CreatedAt time.Time
}

// UserPreference is an upserted preference signal keyed by (type, value).
type UserPreference struct {
	ID        uuid.UUID
	Type      string
	Value     string
	Weight    float64
	Evidence  int
	UpdatedAt time.Time
}

// FeedbackStore persists sessions, feedback, and preference signals.
type FeedbackStore struct {
	db *DB
}

// NewFeedbackStore creates a FeedbackStore.
func NewFeedbackStore(db *DB) *FeedbackStore {
	return &FeedbackStore{db: db}
}

// CreateSession records a served recommendation set and returns its id.
func (s *FeedbackStore) CreateSession(ctx context.Context, kind string, targetID *int64, prompt string, resultIDs []int64) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.db.Pool.Exec(ctx, `
		INSERT INTO recommendation_sessions (id, kind, target_id, prompt, result_ids, served_at)
		VALUES ($1, $2, $3, $4, $5, now())
	`, id, kind, targetID, prompt, resultIDs)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create session: %w", err)
	}
	return id, nil
}

// RecordFeedback stores feedback for a session/adapter pair. It fails with
// ErrNotFound when either the session or the adapter does not exist.
func (s *FeedbackStore) RecordFeedback(ctx context.Context, f *Feedback) error {
	var sessionExists, adapterExists bool
	err := s.db.Pool.QueryRow(ctx, `
		SELECT
			EXISTS(SELECT 1 FROM recommendation_sessions WHERE id = $1),
			EXISTS(SELECT 1 FROM adapters WHERE id = $2)
	`, f.SessionID, f.AdapterID).Scan(&sessionExists, &adapterExists)
	if err != nil {
		return fmt.Errorf("check feedback refs: %w", err)
	}
	if !sessionExists {
		return fmt.Errorf("session %s: %w", f.SessionID, ErrNotFound)
	}
	if !adapterExists {
		return fmt.Errorf("adapter %d: %w", f.AdapterID, ErrNotFound)
	}

	f.ID = uuid.New()
	err = s.db.Pool.QueryRow(ctx, `
		INSERT INTO recommendation_feedback (id, session_id, adapter_id, action, rating)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, f.ID, f.SessionID, f.AdapterID, f.Action, f.Rating).Scan(&f.CreatedAt)
	if err != nil {
		return fmt.Errorf("record feedback: %w", err)
	}
	return nil
}

// UpsertPreference inserts or reinforces a preference keyed by (type, value):
// a repeat submission increments the evidence counter and refreshes the
// timestamp and weight.
func (s *FeedbackStore) UpsertPreference(ctx context.Context, prefType, value string, weight float64) (*UserPreference, error) {
	p := &UserPreference{Type: prefType, Value: value}
	err := s.db.Pool.QueryRow(ctx, `
		INSERT INTO user_preferences (id, pref_type, pref_value, weight, evidence, updated_at)
		VALUES ($1, $2, $3, $4, 1, now())
		ON CONFLICT (pref_type, pref_value) DO UPDATE SET
			weight = EXCLUDED.weight,
			evidence = user_preferences.evidence + 1,
			updated_at = now()
		RETURNING id, weight, evidence, updated_at
	`, uuid.New(), prefType, value, weight).Scan(&p.ID, &p.Weight, &p.Evidence, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert preference %s=%s: %w", prefType, value, err)
	}
	return p, nil
}

// GetSession fetches a session by id.
func (s *FeedbackStore) GetSession(ctx context.Context, id uuid.UUID) (*RecommendationSession, error) {
	sess := &RecommendationSession{}
	err := s.db.Pool.QueryRow(ctx, `
		SELECT id, kind, target_id, prompt, result_ids, served_at
		FROM recommendation_sessions WHERE id = $1
	`, id).Scan(&sess.ID, &sess.Kind, &sess.TargetID, &sess.Prompt, &sess.ResultIDs, &sess.ServedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return sess, nil
}
