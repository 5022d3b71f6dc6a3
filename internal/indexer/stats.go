package indexer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"unicode/utf8"

	"pdfchat/internal/ingest"
)

const (
	// ChunkerVersion is the version identifier for the chunker implementation.
	// Update this when chunking logic changes significantly.
	ChunkerVersion = "v1.0"
	// TokensPerRune is an approximation for token counting (4 chars per token).
	TokensPerRune = 4.0
)

// ChunkStats summarises the chunks of one indexed document.
type ChunkStats struct {
	// Count is the number of chunks.
	Count int `json:"count"`
	// MinBytes is the smallest chunk length in bytes.
	MinBytes int `json:"min_bytes"`
	// MaxBytes is the largest chunk length in bytes.
	MaxBytes int `json:"max_bytes"`
	// MeanBytes is the mean chunk length, rounded to 2 decimals.
	MeanBytes float64 `json:"mean_bytes"`
	// Pages is the page count of the source PDF.
	Pages int `json:"pages"`
	// ApproxTokens estimates the total token count of all chunks.
	ApproxTokens int `json:"approx_tokens"`
	// IndexVersion identifies the chunker, its parameters and the embedding model.
	IndexVersion string `json:"index_version"`
}

// computeChunkStats computes size statistics for chunks.
func computeChunkStats(chunks []ingest.Chunk, pages int) ChunkStats {
	stats := ChunkStats{Count: len(chunks), Pages: pages}
	if len(chunks) == 0 {
		return stats
	}

	stats.MinBytes = len(chunks[0].Text)
	sum := 0
	for _, c := range chunks {
		n := len(c.Text)
		stats.MinBytes = min(stats.MinBytes, n)
		stats.MaxBytes = max(stats.MaxBytes, n)
		sum += n

		// Estimate tokens from rune count (approximation: ~4 chars per token)
		tokens := int(math.Round(float64(utf8.RuneCountInString(c.Text)) / TokensPerRune))
		stats.ApproxTokens += max(tokens, 1)
	}
	mean := float64(sum) / float64(len(chunks))
	stats.MeanBytes = math.Round(mean*100) / 100
	return stats
}

// indexVersion hashes everything that changes the vectors of a document.
func indexVersion(embeddingModel string, chunkSize, chunkOverlap int) string {
	input := fmt.Sprintf("%s|%s|chunkSize=%d|chunkOverlap=%d", ChunkerVersion, embeddingModel, chunkSize, chunkOverlap)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])[:16] // 16 hex chars = 64 bits
}
