package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"pdfchat/internal/ingest"
)

var (
	// ErrEmptyIndex is returned when searching before any document was indexed.
	ErrEmptyIndex = errors.New("no document indexed")
	// ErrDimensionMismatch is returned when vectors do not line up with chunks or each other.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrInvalidVector is returned for vectors with zero magnitude or non-finite values.
	ErrInvalidVector = errors.New("invalid vector")
)

// Hit is a search result. Score is the cosine similarity to the query.
type Hit struct {
	Chunk ingest.Chunk
	Score float32
}

// Index is an immutable nearest-neighbour structure over one document's chunks.
// Implementations are safe for concurrent Search calls.
type Index interface {
	// Search returns at most k hits ordered by non-increasing Score.
	// Equal scores are ordered by ascending Chunk.Index.
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)
	// Len returns the number of indexed chunks.
	Len() int
	// Dimension returns the vector size, 0 for an empty index.
	Dimension() int
	// Close releases backing resources once in-flight searches finish.
	// A closed index keeps answering from its in-memory copy.
	Close(ctx context.Context) error
}

// Builder constructs fresh indexes. Backends are interchangeable: for the same
// inputs every Builder yields indexes returning the same hits in the same order.
type Builder interface {
	// Build indexes chunks[i] under vectors[i].
	Build(ctx context.Context, chunks []ingest.Chunk, vectors [][]float32) (Index, error)
	// Name identifies the backend.
	Name() string
}

// Empty returns an Index whose Search always fails with ErrEmptyIndex.
func Empty() Index { return emptyIndex{} }

type emptyIndex struct{}

func (emptyIndex) Search(context.Context, []float32, int) ([]Hit, error) { return nil, ErrEmptyIndex }
func (emptyIndex) Len() int                                               { return 0 }
func (emptyIndex) Dimension() int                                         { return 0 }
func (emptyIndex) Close(context.Context) error                            { return nil }

// closeGuard orders Close after every search already running on an index.
type closeGuard struct {
	mu     sync.RWMutex
	closed bool
}

// search runs backend while the index is open and exact otherwise.
func (g *closeGuard) search(ctx context.Context, exact *exactScorer, query []float32, k int, backend func() ([]Hit, error)) ([]Hit, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return exact.search(ctx, query, k)
	}
	return backend()
}

// close runs release once, after in-flight searches have returned.
func (g *closeGuard) close(release func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	return release()
}

// validate checks Build inputs and returns the shared dimension.
func validate(chunks []ingest.Chunk, vectors [][]float32) (int, error) {
	if len(chunks) != len(vectors) {
		return 0, fmt.Errorf("%w: %d chunks but %d vectors", ErrDimensionMismatch, len(chunks), len(vectors))
	}
	if len(vectors) == 0 {
		return 0, nil
	}
	dim := len(vectors[0])
	if dim == 0 {
		return 0, fmt.Errorf("%w: empty vector", ErrDimensionMismatch)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return 0, fmt.Errorf("%w: vector %d has size %d, expected %d", ErrDimensionMismatch, i, len(v), dim)
		}
		mag := magnitude(v)
		if mag == 0 || math.IsNaN(mag) || math.IsInf(mag, 0) {
			return 0, fmt.Errorf("%w: vector %d", ErrInvalidVector, i)
		}
	}
	return dim, nil
}

func checkQuery(query []float32, k, dim int) error {
	if k <= 0 {
		return fmt.Errorf("k must be greater than 0")
	}
	if len(query) != dim {
		return fmt.Errorf("%w: query has size %d, expected %d", ErrDimensionMismatch, len(query), dim)
	}
	return nil
}

func magnitude(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// sortHits orders by descending score, then ascending chunk index.
func sortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Chunk.Index < hits[j].Chunk.Index
	})
}

func limit(hits []Hit, k int) []Hit {
	if len(hits) > k {
		return hits[:k]
	}
	return hits
}
