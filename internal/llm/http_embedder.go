package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPEmbeddingProvider calls an injected embedding service over HTTP,
// grounded on the teacher's documentContextServiceImpl HTTP client pattern
// (services/impl/document_context_impl.go), generalized from a vector
// search call to a batch embed call.
type HTTPEmbeddingProvider struct {
	BaseURL    string
	APIKey     string
	model      string
	dimension  int
	httpClient *http.Client
}

func NewHTTPEmbeddingProvider(baseURL, apiKey, model string, dimension int) *HTTPEmbeddingProvider {
	return &HTTPEmbeddingProvider{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		model:      model,
		dimension:  dimension,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (e *HTTPEmbeddingProvider) ModelName() string { return e.model }
func (e *HTTPEmbeddingProvider) Dimension() int    { return e.dimension }

func (e *HTTPEmbeddingProvider) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *HTTPEmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody, err := json.Marshal(map[string]interface{}{
		"model": e.model,
		"input": texts,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.BaseURL+"/v1/embeddings", bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.APIKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding service returned status %d: %s", resp.StatusCode, string(b))
	}

	var decoded struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}

	vectors := make([][]float32, len(decoded.Data))
	for i, d := range decoded.Data {
		if len(d.Embedding) != e.dimension {
			return nil, fmt.Errorf("embedding dimension mismatch: got %d, expected %d", len(d.Embedding), e.dimension)
		}
		vectors[i] = d.Embedding
	}
	return vectors, nil
}
