// Package encoder provides per-modality text-to-vector encoding with a
// deterministic hashed fallback when no real encoder is reachable.
package encoder

import "context"

// Dimensions is the embedding vector size for every modality (384 =
// all-MiniLM-L6-v2; sidecar models are loaded with matching output dims).
const Dimensions = 384

// Modality identifies one of the three independent embedding spaces.
type Modality string

const (
	ModalitySemantic  Modality = "semantic"
	ModalityArtistic  Modality = "artistic"
	ModalityTechnical Modality = "technical"
)

// Modalities lists all modalities in canonical order.
var Modalities = []Modality{ModalitySemantic, ModalityArtistic, ModalityTechnical}

// Provider encodes batches of text into vectors for a single modality.
// Implementations must be deterministic per input and always return vectors
// of Dimensions length, regardless of device or backend.
type Provider interface {
	// Encode returns one vector per input text, in order.
	Encode(ctx context.Context, texts []string) ([][]float32, error)

	// Name returns the provider name for logging.
	Name() string

	// Dimensions returns the output vector size.
	Dimensions() int
}
