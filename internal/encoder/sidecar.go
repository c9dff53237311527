package encoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SidecarProvider encodes text by calling the local model sidecar service.
// One instance serves one modality; the sidecar keys its loaded models by the
// model field of the request.
type SidecarProvider struct {
	url      string
	modality Modality
	client   *http.Client
}

// NewSidecarProvider creates a sidecar-backed provider for one modality.
// url is the base URL of the sidecar, e.g. "http://localhost:8601".
func NewSidecarProvider(url string, m Modality) *SidecarProvider {
	return &SidecarProvider{
		url:      url,
		modality: m,
		client:   &http.Client{},
	}
}

// Name returns the provider name.
func (p *SidecarProvider) Name() string {
	return "sidecar-" + string(p.modality)
}

// Dimensions returns the output vector size.
func (p *SidecarProvider) Dimensions() int { return Dimensions }

type sidecarRequest struct {
	Model Modality `json:"model"`
	Texts []string `json:"texts"`
}

type sidecarResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Encode generates embeddings for texts using the sidecar.
func (p *SidecarProvider) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(sidecarRequest{Model: p.modality, Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling sidecar: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("sidecar returned %d: %s", resp.StatusCode, string(respBody))
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var result sidecarResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}

	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("sidecar returned %d embeddings for %d texts", len(result.Embeddings), len(texts))
	}

	return result.Embeddings, nil
}

// probe checks whether a sidecar answers its health endpoint.
func probe(url string) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(url + "/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
