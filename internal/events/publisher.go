package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Publisher publishes recommendation lifecycle events. A nil Publisher is a
// valid no-op, matching how the service treats an absent NATS connection.
type Publisher struct {
	client *Client
	logger *slog.Logger
}

// NewPublisher creates an event publisher.
func NewPublisher(client *Client, logger *slog.Logger) *Publisher {
	return &Publisher{client: client, logger: logger}
}

// Event is the standard event envelope.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

func (p *Publisher) publish(_ context.Context, subject, eventType string, data any) error {
	if p == nil {
		return nil
	}
	payload, err := json.Marshal(Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    "loradex",
		Timestamp: time.Now(),
		Data:      data,
	})
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	if err := p.client.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}

	p.logger.Debug("published event", "subject", subject, "type", eventType)
	return nil
}

// EmbeddingComputed publishes a per-adapter compute completion event.
func (p *Publisher) EmbeddingComputed(ctx context.Context, adapterID int64, forced bool) error {
	return p.publish(ctx, "loradex.embedding.computed", "embedding.computed", map[string]any{
		"adapter_id": adapterID,
		"forced":     forced,
	})
}

// BatchComputed publishes a batch compute summary event.
func (p *Publisher) BatchComputed(ctx context.Context, processed, skipped, errored int) error {
	return p.publish(ctx, "loradex.embedding.batch", "embedding.batch", map[string]any{
		"processed": processed,
		"skipped":   skipped,
		"errors":    errored,
	})
}

// IndexRebuilt publishes an index rebuild event.
func (p *Publisher) IndexRebuilt(ctx context.Context, status string, items int) error {
	return p.publish(ctx, "loradex.index.rebuilt", "index.rebuilt", map[string]any{
		"status":        status,
		"indexed_items": items,
	})
}

// FeedbackRecorded publishes a feedback capture event.
func (p *Publisher) FeedbackRecorded(ctx context.Context, sessionID string, adapterID int64, action string) error {
	return p.publish(ctx, "loradex.feedback.recorded", "feedback.recorded", map[string]any{
		"session_id": sessionID,
		"adapter_id": adapterID,
		"action":     action,
	})
}
