package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
)

// OllamaEmbedder embeds text with a model served by a local Ollama instance.
type OllamaEmbedder struct {
	embedder embeddings.Embedder
	model    string
	dim      int
}

// NewOllamaEmbedder checks that the model is pulled, then probes it once to learn
// its dimension. Failures are returned as *ModelLoadError.
func NewOllamaEmbedder(ctx context.Context, baseURL, model string) (*OllamaEmbedder, error) {
	loadErr := func(err error) error {
		return &ModelLoadError{Provider: ProviderOllama, Model: model, Err: err}
	}

	if err := NewModelChecker(baseURL).EnsureModel(ctx, model); err != nil {
		return nil, loadErr(err)
	}

	llm, err := ollama.New(
		ollama.WithServerURL(baseURL),
		ollama.WithModel(model),
	)
	if err != nil {
		return nil, loadErr(fmt.Errorf("failed to create ollama client: %w", err))
	}

	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, loadErr(fmt.Errorf("failed to create embedder: %w", err))
	}

	return newOllamaEmbedder(ctx, embedder, model)
}

func newOllamaEmbedder(ctx context.Context, embedder embeddings.Embedder, model string) (*OllamaEmbedder, error) {
	probe, err := embedder.EmbedQuery(ctx, "dimension probe")
	if err != nil {
		return nil, &ModelLoadError{Provider: ProviderOllama, Model: model, Err: fmt.Errorf("probe embedding failed: %w", err)}
	}
	if len(probe) == 0 {
		return nil, &ModelLoadError{Provider: ProviderOllama, Model: model, Err: fmt.Errorf("probe embedding is empty")}
	}

	return &OllamaEmbedder{embedder: embedder, model: model, dim: len(probe)}, nil
}

// Dimension returns the probed vector size.
func (e *OllamaEmbedder) Dimension() int { return e.dim }

// Model returns the Ollama model name.
func (e *OllamaEmbedder) Model() string { return e.model }

// Embed returns the embedding of a single text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, unavailable(fmt.Errorf("failed to embed query: %w", err))
	}
	if len(vec) != e.dim {
		return nil, unavailable(fmt.Errorf("embedding has size %d, expected %d", len(vec), e.dim))
	}
	return vec, nil
}

// EmbedAll returns one embedding per text.
func (e *OllamaEmbedder) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, unavailable(fmt.Errorf("failed to embed documents: %w", err))
	}
	if len(vecs) != len(texts) {
		return nil, unavailable(fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vecs)))
	}
	for i, vec := range vecs {
		if len(vec) != e.dim {
			return nil, unavailable(fmt.Errorf("embedding %d has size %d, expected %d", i, len(vec), e.dim))
		}
	}
	return vecs, nil
}

// ModelChecker asks an Ollama server which models it has pulled.
type ModelChecker struct {
	baseURL string
	client  *http.Client
}

// NewModelChecker creates a checker for the Ollama server at baseURL.
func NewModelChecker(baseURL string) *ModelChecker {
	return &ModelChecker{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// TagsResponse is the body of Ollama's /api/tags endpoint.
type TagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

// IsModelAvailable reports whether modelName has been pulled.
// A name without a tag also matches its ":latest" variant.
func (mc *ModelChecker) IsModelAvailable(ctx context.Context, modelName string) (bool, error) {
	url := fmt.Sprintf("%s/api/tags", mc.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create tags request: %w", err)
	}

	resp, err := mc.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to list models: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return false, fmt.Errorf("bad status %d: %s", resp.StatusCode, string(raw))
	}

	var tags TagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return false, fmt.Errorf("failed to decode tags response: %w", err)
	}

	want := modelName
	if !strings.Contains(want, ":") {
		want += ":latest"
	}
	for _, m := range tags.Models {
		if m.Name == modelName || m.Name == want || m.Model == modelName || m.Model == want {
			return true, nil
		}
	}
	return false, nil
}

// EnsureModel returns an error unless modelName is available.
func (mc *ModelChecker) EnsureModel(ctx context.Context, modelName string) error {
	ok, err := mc.IsModelAvailable(ctx, modelName)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("model %s is not pulled (run: ollama pull %s)", modelName, modelName)
	}
	return nil
}
