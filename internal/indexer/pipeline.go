package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pdfchat/internal/contextutil"
	"pdfchat/internal/embedding"
	"pdfchat/internal/ingest"
	"pdfchat/internal/storage"
	"pdfchat/internal/vectorstore"
)

// ErrIncompatibleSnapshot is returned when a snapshot was chunked or embedded differently.
var ErrIncompatibleSnapshot = errors.New("snapshot incompatible with active embedder")

// DefaultBatchSize is the number of chunks embedded per request when none is configured.
const DefaultBatchSize = 32

// Pipeline turns uploaded PDFs into searchable indexes.
type Pipeline struct {
	chunker   *ingest.Chunker
	ingestor  *ingest.Ingestor
	embedder  embedding.Embedder
	builder   vectorstore.Builder
	batchSize int
}

// NewPipeline creates a new indexing pipeline.
func NewPipeline(chunker *ingest.Chunker, embedder embedding.Embedder, builder vectorstore.Builder, batchSize int) *Pipeline {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Pipeline{
		chunker:   chunker,
		ingestor:  ingest.NewIngestor(chunker),
		embedder:  embedder,
		builder:   builder,
		batchSize: batchSize,
	}
}

// Embedder returns the embedder used for chunks. Questions must use the same one.
func (p *Pipeline) Embedder() embedding.Embedder {
	return p.embedder
}

// IndexVersion identifies the chunker settings and embedding model that produce this pipeline's vectors.
func (p *Pipeline) IndexVersion() string {
	return indexVersion(p.embedder.Model(), p.chunker.Size(), p.chunker.Overlap())
}

// Backend names the index backend.
func (p *Pipeline) Backend() string {
	return p.builder.Name()
}

// Build ingests, embeds and indexes one PDF. Nothing is left allocated on failure.
func (p *Pipeline) Build(ctx context.Context, filename string, data []byte) (*Result, error) {
	logger := contextutil.LoggerFromContext(ctx)
	start := time.Now()

	doc, err := p.ingestor.Ingest(filename, data)
	if err != nil {
		logger.WarnContext(ctx, "failed to ingest document", "filename", filename, "error", err)
		return nil, fmt.Errorf("failed to ingest %s: %w", filename, err)
	}
	if len(doc.Chunks) == 0 {
		return nil, fmt.Errorf("failed to ingest %s: %w: no chunks", filename, ingest.ErrInvalidDocument)
	}

	logger.DebugContext(ctx, "document ingested", "filename", filename, "pages", doc.PageCount, "chunks", len(doc.Chunks), "bytes", len(data))

	texts := make([]string, len(doc.Chunks))
	for i, c := range doc.Chunks {
		texts[i] = c.Text
	}
	vectors, err := p.embedAll(ctx, texts)
	if err != nil {
		return nil, err
	}

	idx, err := p.builder.Build(ctx, doc.Chunks, vectors)
	if err != nil {
		return nil, fmt.Errorf("failed to build index: %w", err)
	}

	stats := computeChunkStats(doc.Chunks, doc.PageCount)
	stats.IndexVersion = p.IndexVersion()

	logger.InfoContext(ctx, "document indexed",
		"filename", filename,
		"document_id", doc.ID,
		"chunks", stats.Count,
		"pages", stats.Pages,
		"approx_tokens", stats.ApproxTokens,
		"index_version", stats.IndexVersion,
		"backend", p.builder.Name(),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &Result{
		Document: doc,
		Vectors:  vectors,
		Index:    idx,
		Stats:    stats,
	}, nil
}

// embedAll embeds texts in batches of batchSize.
func (p *Pipeline) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	logger := contextutil.LoggerFromContext(ctx)

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += p.batchSize {
		// Check for context cancellation
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := min(start+p.batchSize, len(texts))
		batch, err := p.embedder.EmbedAll(ctx, texts[start:end])
		if err != nil {
			logger.ErrorContext(ctx, "failed to embed chunks", "from", start, "to", end, "error", err)
			return nil, fmt.Errorf("failed to generate embeddings: %w", err)
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("failed to generate embeddings: %w: expected %d vectors, got %d",
				embedding.ErrEmbeddingUnavailable, end-start, len(batch))
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// Restore rebuilds an index from a persisted snapshot without embedding anything.
func (p *Pipeline) Restore(ctx context.Context, snap *storage.Snapshot) (vectorstore.Index, error) {
	if snap.EmbeddingModel != p.embedder.Model() || snap.Dimension != p.embedder.Dimension() {
		return nil, fmt.Errorf("%w: embedded with %s/%d, active embedder is %s/%d",
			ErrIncompatibleSnapshot, snap.EmbeddingModel, snap.Dimension, p.embedder.Model(), p.embedder.Dimension())
	}
	if snap.IndexVersion != p.IndexVersion() {
		return nil, fmt.Errorf("%w: index version %q, active version is %q",
			ErrIncompatibleSnapshot, snap.IndexVersion, p.IndexVersion())
	}
	idx, err := p.builder.Build(ctx, snap.Chunks, snap.Vectors)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild index: %w", err)
	}
	return idx, nil
}
