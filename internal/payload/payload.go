// Package payload builds per-modality encoder input from adapter metadata.
//
// Free-text descriptions are deliberately excluded from every payload: the
// description is unbounded prose and would leak unrelated signal into the
// similarity spaces. Only structured metadata participates.
package payload

import (
	"fmt"
	"strings"

	"github.com/loradex/loradex/internal/store"
)

// Semantic builds the semantic-modality payload: what the adapter depicts.
func Semantic(a *store.Adapter) string {
	var parts []string
	if len(a.TrainedWords) > 0 {
		parts = append(parts, strings.Join(a.TrainedWords, " "))
	}
	if len(a.Triggers) > 0 {
		parts = append(parts, strings.Join(a.Triggers, " "))
	}
	if a.ActivationText != "" {
		parts = append(parts, a.ActivationText)
	}
	if len(a.Tags) > 0 {
		parts = append(parts, strings.Join(a.Tags, " "))
	}
	if a.Archetype != "" {
		parts = append(parts, "archetype: "+a.Archetype)
	}
	return strings.Join(parts, ". ")
}

// Artistic builds the artistic-modality payload: how the adapter renders.
func Artistic(a *store.Adapter) string {
	var parts []string
	if len(a.Tags) > 0 {
		parts = append(parts, "style tags: "+strings.Join(a.Tags, " "))
	}
	if a.Archetype != "" {
		parts = append(parts, "archetype: "+a.Archetype)
	}
	if a.NSFWLevel > 0 {
		parts = append(parts, "mature content")
	}
	return strings.Join(parts, ". ")
}

// Technical builds the technical-modality payload: how the adapter runs.
func Technical(a *store.Adapter) string {
	var parts []string
	if a.SDVersion != "" {
		parts = append(parts, "base model: "+a.SDVersion)
	}
	if a.FileSizeKB > 0 {
		parts = append(parts, "size: "+sizeBucket(a.FileSizeKB))
	}
	parts = append(parts, fmt.Sprintf("nsfw level %d", a.NSFWLevel))
	return strings.Join(parts, ". ")
}

// sizeBucket maps a file size to a coarse label so nearby sizes embed alike.
func sizeBucket(kb int64) string {
	mb := kb / 1024
	switch {
	case mb < 50:
		return "compact"
	case mb < 200:
		return "standard"
	case mb < 500:
		return "large"
	default:
		return "full-weight"
	}
}
