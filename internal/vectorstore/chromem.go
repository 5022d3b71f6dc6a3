package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"

	"pdfchat/internal/contextutil"
	"pdfchat/internal/ingest"
)

const chromemCollection = "chunks"

// ChromemBuilder builds in-process indexes backed by a chromem-go collection.
type ChromemBuilder struct{}

// NewChromemBuilder creates a ChromemBuilder.
func NewChromemBuilder() *ChromemBuilder { return &ChromemBuilder{} }

// Name returns "chromem".
func (b *ChromemBuilder) Name() string { return "chromem" }

// precomputedOnly is the collection's embedding func. Every document and query
// carries its own embedding, so chromem must never embed text itself.
func precomputedOnly(context.Context, string) ([]float32, error) {
	return nil, errors.New("chromem index accepts precomputed embeddings only")
}

// Build creates a fresh chromem database holding one document per chunk.
func (b *ChromemBuilder) Build(ctx context.Context, chunks []ingest.Chunk, vectors [][]float32) (Index, error) {
	logger := contextutil.LoggerFromContext(ctx)

	dim, err := validate(chunks, vectors)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return Empty(), nil
	}

	db := chromem.NewDB()
	collection, err := db.CreateCollection(chromemCollection, nil, precomputedOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	docs := make([]chromem.Document, len(chunks))
	for i, chunk := range chunks {
		docs[i] = chromem.Document{
			ID:      strconv.Itoa(i),
			Content: chunk.Text,
			Metadata: map[string]string{
				"chunk_index": strconv.Itoa(chunk.Index),
				"page":        strconv.Itoa(chunk.Page),
			},
			Embedding: append([]float32(nil), vectors[i]...),
		}
	}
	if err := collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return nil, fmt.Errorf("failed to add documents: %w", err)
	}

	logger.DebugContext(ctx, "chromem index built", "chunks", len(chunks), "dimension", dim)
	return &chromemIndex{
		db:         db,
		collection: collection,
		scorer:     newExactScorer(chunks, vectors, dim),
	}, nil
}

type chromemIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
	scorer     *exactScorer
	guard      closeGuard
}

func (i *chromemIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if err := checkQuery(query, k, i.scorer.dim); err != nil {
		return nil, err
	}
	return i.guard.search(ctx, i.scorer, query, k, func() ([]Hit, error) {
		return searchCandidates(ctx, i.scorer, query, k, i.fetch)
	})
}

// fetch returns the positions of chromem's top n documents.
func (i *chromemIndex) fetch(ctx context.Context, query []float32, n int) ([]int, error) {
	results, err := i.collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: append([]float32(nil), query...),
		NResults:       n,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}
	positions := make([]int, 0, len(results))
	for _, r := range results {
		p, err := strconv.Atoi(r.ID)
		if err != nil {
			return nil, fmt.Errorf("unexpected document id %q: %w", r.ID, err)
		}
		positions = append(positions, p)
	}
	return positions, nil
}

func (i *chromemIndex) Len() int       { return len(i.scorer.chunks) }
func (i *chromemIndex) Dimension() int { return i.scorer.dim }

func (i *chromemIndex) Close(context.Context) error {
	return i.guard.close(func() error {
		return i.db.DeleteCollection(chromemCollection)
	})
}
