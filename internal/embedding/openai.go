package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OpenAIEmbedder calls an OpenAI-compatible /v1/embeddings endpoint such as
// llama.cpp or text-embeddings-inference.
type OpenAIEmbedder struct {
	BaseURL      string
	APIKey       string
	ModelName    string
	ExpectedSize int // Expected vector size for validation
	client       *http.Client
}

// NewOpenAIEmbedder creates a new embeddings client.
// All embeddings returned are validated against expectedSize.
func NewOpenAIEmbedder(baseURL, apiKey, model string, expectedSize int) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		BaseURL:      baseURL,
		APIKey:       apiKey,
		ModelName:    model,
		ExpectedSize: expectedSize,
		client:       &http.Client{Timeout: 60 * time.Second},
	}
}

// EmbeddingsRequest represents the request payload for embeddings API.
type EmbeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// EmbeddingData represents a single embedding in the response.
type EmbeddingData struct {
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

// EmbeddingsResponse represents the response from the embeddings API.
type EmbeddingsResponse struct {
	Data []EmbeddingData `json:"data"`
}

// Dimension returns the configured vector size.
func (c *OpenAIEmbedder) Dimension() int { return c.ExpectedSize }

// Model returns the remote model name.
func (c *OpenAIEmbedder) Model() string { return c.ModelName }

// Embed returns the embedding of a single text.
func (c *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedAll(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedAll generates embeddings for the given texts.
// Returns a slice of float32 vectors, one per input text.
func (c *OpenAIEmbedder) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	url := fmt.Sprintf("%s/v1/embeddings", c.BaseURL)

	body, err := json.Marshal(EmbeddingsRequest{Model: c.ModelName, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if c.APIKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, unavailable(fmt.Errorf("failed to send request: %w", err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, unavailable(fmt.Errorf("bad status %d: %s", resp.StatusCode, string(raw)))
	}

	var embeddingsResp EmbeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&embeddingsResp); err != nil {
		return nil, unavailable(fmt.Errorf("failed to decode response: %w", err))
	}

	if len(embeddingsResp.Data) != len(texts) {
		return nil, unavailable(fmt.Errorf("expected %d embeddings, got %d", len(texts), len(embeddingsResp.Data)))
	}

	// Servers may return data out of order; place each vector by its index
	result := make([][]float32, len(texts))
	for i, data := range embeddingsResp.Data {
		if len(data.Embedding) != c.ExpectedSize {
			return nil, unavailable(fmt.Errorf("embedding %d has size %d, expected %d", i, len(data.Embedding), c.ExpectedSize))
		}
		pos := data.Index
		if pos < 0 || pos >= len(texts) {
			return nil, unavailable(fmt.Errorf("embedding %d has index %d, expected 0-%d", i, pos, len(texts)-1))
		}
		if result[pos] != nil {
			return nil, unavailable(fmt.Errorf("duplicate embedding for input %d", pos))
		}

		vec := make([]float32, len(data.Embedding))
		for j, v := range data.Embedding {
			vec[j] = float32(v)
		}
		result[pos] = vec
	}

	return result, nil
}
