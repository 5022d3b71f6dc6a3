package indexer

import (
	"pdfchat/internal/ingest"
	"pdfchat/internal/vectorstore"
)

// Result is a fully built index together with the data it was built from.
type Result struct {
	Document *ingest.Document
	// Vectors[i] is the embedding of Document.Chunks[i].
	Vectors [][]float32
	Index   vectorstore.Index
	Stats   ChunkStats
}
