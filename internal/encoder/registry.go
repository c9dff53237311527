package encoder

import (
	"context"
	"fmt"
	"log/slog"
)

// Registry holds one provider per modality, chosen once at construction.
// It replaces ad-hoc per-call fallback branching: the sidecar is probed a
// single time, and whichever provider wins stays for the process lifetime.
type Registry struct {
	providers map[Modality]Provider
	device    string
}

// Options configures registry construction.
type Options struct {
	// SidecarURL is the encoder sidecar base URL. Empty selects the hashed
	// fallback without probing.
	SidecarURL string

	// Device is an informational label ("cpu", "cuda", "mps"). It never
	// changes the output contract.
	Device string

	// Factory overrides provider construction, mainly for tests.
	Factory func(m Modality) Provider
}

// NewRegistry builds a registry with one provider per modality.
func NewRegistry(opts Options, logger *slog.Logger) *Registry {
	factory := opts.Factory
	if factory == nil {
		if opts.SidecarURL != "" && probe(opts.SidecarURL) {
			factory = func(m Modality) Provider { return NewSidecarProvider(opts.SidecarURL, m) }
		} else {
			if opts.SidecarURL != "" {
				logger.Warn("encoder sidecar unreachable, using hashed fallback", "url", opts.SidecarURL)
			}
			factory = func(m Modality) Provider { return NewHashProvider(m) }
		}
	}

	providers := make(map[Modality]Provider, len(Modalities))
	for _, m := range Modalities {
		providers[m] = factory(m)
	}

	device := opts.Device
	if device == "" {
		device = "cpu"
	}

	r := &Registry{providers: providers, device: device}
	logger.Info("encoder registry ready",
		"provider", providers[ModalitySemantic].Name(),
		"device", device,
		"dimensions", Dimensions,
	)
	return r
}

// Provider returns the provider for a modality.
func (r *Registry) Provider(m Modality) (Provider, error) {
	p, ok := r.providers[m]
	if !ok {
		return nil, fmt.Errorf("unknown modality %q", m)
	}
	return p, nil
}

// Encode encodes texts with the modality's provider.
func (r *Registry) Encode(ctx context.Context, m Modality, texts []string) ([][]float32, error) {
	p, err := r.Provider(m)
	if err != nil {
		return nil, err
	}
	return p.Encode(ctx, texts)
}

// EncodeOne encodes a single text.
func (r *Registry) EncodeOne(ctx context.Context, m Modality, text string) ([]float32, error) {
	vecs, err := r.Encode(ctx, m, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("expected 1 vector, got %d", len(vecs))
	}
	return vecs[0], nil
}

// Device returns the informational device label.
func (r *Registry) Device() string { return r.device }
