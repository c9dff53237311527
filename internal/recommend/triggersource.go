package recommend

import (
	"context"

	"github.com/loradex/loradex/internal/trigger"
)

// TriggerSource bridges the repository to the trigger index's data interface.
type TriggerSource struct {
	repo Repository
}

// NewTriggerSource creates a TriggerSource.
func NewTriggerSource(repo Repository) *TriggerSource {
	return &TriggerSource{repo: repo}
}

// CountActiveEmbedded reports the staleness-proxy count.
func (t *TriggerSource) CountActiveEmbedded(ctx context.Context) (int, error) {
	return t.repo.CountActiveEmbedded(ctx)
}

// ListActiveEmbedded joins embedding records with adapter names for indexing.
func (t *TriggerSource) ListActiveEmbedded(ctx context.Context) ([]trigger.IndexedAdapter, error) {
	records, err := t.repo.ListActiveEmbeddings(ctx, nil)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(records))
	for i, r := range records {
		ids[i] = r.AdapterID
	}
	adapters, err := t.repo.ListAdapters(ctx, ids)
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(adapters))
	for _, a := range adapters {
		names[a.ID] = a.Name
	}

	indexed := make([]trigger.IndexedAdapter, len(records))
	for i, r := range records {
		indexed[i] = trigger.IndexedAdapter{
			AdapterID: r.AdapterID,
			Name:      names[r.AdapterID],
			Triggers:  r.Triggers,
			Aliases:   r.TriggerAliases,
			Vectors:   r.TriggerVectors,
		}
	}
	return indexed, nil
}
