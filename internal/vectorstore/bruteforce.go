package vectorstore

import (
	"context"
	"math"

	"pdfchat/internal/ingest"
)

// BruteForceBuilder builds exhaustive linear-scan indexes. It is the reference
// ranking the other backends are checked against.
type BruteForceBuilder struct{}

// NewBruteForceBuilder creates a BruteForceBuilder.
func NewBruteForceBuilder() *BruteForceBuilder { return &BruteForceBuilder{} }

// Name returns "bruteforce".
func (b *BruteForceBuilder) Name() string { return "bruteforce" }

// Build copies the inputs and precomputes vector magnitudes.
func (b *BruteForceBuilder) Build(_ context.Context, chunks []ingest.Chunk, vectors [][]float32) (Index, error) {
	dim, err := validate(chunks, vectors)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return Empty(), nil
	}
	return &bruteForceIndex{scorer: newExactScorer(chunks, vectors, dim)}, nil
}

type bruteForceIndex struct {
	scorer *exactScorer
}

func (i *bruteForceIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if err := checkQuery(query, k, i.scorer.dim); err != nil {
		return nil, err
	}
	return i.scorer.search(ctx, query, k)
}

func (i *bruteForceIndex) Len() int                    { return len(i.scorer.chunks) }
func (i *bruteForceIndex) Dimension() int              { return i.scorer.dim }
func (i *bruteForceIndex) Close(context.Context) error { return nil }

// exactScorer computes cosine similarity against cached magnitudes.
// All backends score through it so equal inputs give bit-identical scores.
type exactScorer struct {
	chunks  []ingest.Chunk
	vectors [][]float32
	mags    []float64
	dim     int
}

func newExactScorer(chunks []ingest.Chunk, vectors [][]float32, dim int) *exactScorer {
	s := &exactScorer{
		chunks:  append([]ingest.Chunk(nil), chunks...),
		vectors: make([][]float32, len(vectors)),
		mags:    make([]float64, len(vectors)),
		dim:     dim,
	}
	for i, v := range vectors {
		s.vectors[i] = append([]float32(nil), v...)
		s.mags[i] = magnitude(v)
	}
	return s
}

// score returns the cosine similarity of query and vector i. A zero query scores 0.
func (s *exactScorer) score(query []float32, queryMag float64, i int) float32 {
	if queryMag == 0 {
		return 0
	}
	var dot float64
	for j, x := range s.vectors[i] {
		dot += float64(x) * float64(query[j])
	}
	sim := dot / (queryMag * s.mags[i])
	if math.IsNaN(sim) {
		return 0
	}
	return float32(sim)
}

func (s *exactScorer) scoreAll(query []float32) []Hit {
	qm := magnitude(query)
	hits := make([]Hit, len(s.chunks))
	for i := range s.chunks {
		hits[i] = Hit{Chunk: s.chunks[i], Score: s.score(query, qm, i)}
	}
	return hits
}

// search ranks every chunk exactly.
func (s *exactScorer) search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hits := s.scoreAll(query)
	sortHits(hits)
	return limit(hits, k), nil
}

// scorePositions scores the chunks at the given positions, ignoring duplicates
// and positions out of range.
func (s *exactScorer) scorePositions(query []float32, positions []int) []Hit {
	qm := magnitude(query)
	seen := make(map[int]struct{}, len(positions))
	hits := make([]Hit, 0, len(positions))
	for _, p := range positions {
		if p < 0 || p >= len(s.chunks) {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		hits = append(hits, Hit{Chunk: s.chunks[p], Score: s.score(query, qm, p)})
	}
	return hits
}

// boundaryEpsilon bounds the score disagreement between an approximate backend
// and exactScorer.
const boundaryEpsilon = 1e-4

// candidateFetcher returns the positions of the n chunks a backend ranks highest for query.
type candidateFetcher func(ctx context.Context, query []float32, n int) ([]int, error)

// searchCandidates asks a backend for a candidate window, rescores it exactly and
// widens the window until no chunk outside it can tie with the k-th hit.
func searchCandidates(ctx context.Context, s *exactScorer, query []float32, k int, fetch candidateFetcher) ([]Hit, error) {
	total := len(s.chunks)
	if magnitude(query) == 0 {
		// Every chunk scores 0, so rank purely by chunk order
		hits := s.scoreAll(query)
		sortHits(hits)
		return limit(hits, k), nil
	}

	want := min(total, 2*k+4)
	for {
		positions, err := fetch(ctx, query, want)
		if err != nil {
			return nil, err
		}
		hits := s.scorePositions(query, positions)
		sortHits(hits)

		if want >= total || len(hits) <= k {
			return limit(hits, k), nil
		}
		floor := hits[len(hits)-1].Score
		if floor < hits[k-1].Score-boundaryEpsilon {
			return hits[:k], nil
		}
		want = min(total, want*2)
	}
}
