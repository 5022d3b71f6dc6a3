package embedding

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_embedder.go -package=mocks pdfchat/internal/embedding Embedder

import (
	"context"
	"errors"
	"fmt"
)

// Supported providers.
const (
	ProviderOllama  = "ollama"
	ProviderOpenAI  = "openai"
	ProviderHashing = "hashing"
)

var (
	// ErrModelLoad is matched by every ModelLoadError.
	ErrModelLoad = errors.New("embedding model unavailable")
	// ErrEmbeddingUnavailable is returned when embedding fails after startup.
	ErrEmbeddingUnavailable = errors.New("embedding failed")
)

// ModelLoadError reports that the embedding model could not be initialised.
type ModelLoadError struct {
	Provider string
	Model    string
	Err      error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("failed to load embedding model %s (%s): %v", e.Model, e.Provider, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// Is reports ModelLoadError as ErrModelLoad.
func (e *ModelLoadError) Is(target error) bool { return target == ErrModelLoad }

// Embedder maps text to fixed-size vectors. Chunk text and question text must
// go through the same Embedder so both live in one vector space.
type Embedder interface {
	// Embed returns the vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedAll returns one vector per input text, in order.
	EmbedAll(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension is the length of every returned vector.
	Dimension() int
	// Model identifies the model producing the vectors.
	Model() string
}

// Options selects and configures an Embedder.
type Options struct {
	Provider  string
	BaseURL   string
	Model     string
	APIKey    string
	Dimension int
}

// New creates the configured Embedder and verifies it can produce vectors.
// Any failure is returned as a *ModelLoadError.
func New(ctx context.Context, opts Options) (Embedder, error) {
	switch opts.Provider {
	case ProviderHashing:
		if opts.Dimension <= 0 {
			return nil, &ModelLoadError{Provider: opts.Provider, Model: "hashing", Err: fmt.Errorf("dimension must be greater than 0")}
		}
		return NewHashingEmbedder(opts.Dimension), nil
	case ProviderOllama:
		return NewOllamaEmbedder(ctx, opts.BaseURL, opts.Model)
	case ProviderOpenAI:
		e := NewOpenAIEmbedder(opts.BaseURL, opts.APIKey, opts.Model, opts.Dimension)
		if _, err := e.Embed(ctx, "dimension probe"); err != nil {
			return nil, &ModelLoadError{Provider: opts.Provider, Model: opts.Model, Err: err}
		}
		return e, nil
	default:
		return nil, &ModelLoadError{Provider: opts.Provider, Model: opts.Model, Err: fmt.Errorf("unknown embedding provider %q", opts.Provider)}
	}
}

// unavailable marks a runtime embedding failure.
func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
}
