package ingest

import (
	"github.com/google/uuid"
)

// Ingestor turns uploaded PDF bytes into a chunked Document.
type Ingestor struct {
	chunker *Chunker
}

// NewIngestor creates an Ingestor using the given chunker.
func NewIngestor(chunker *Chunker) *Ingestor {
	return &Ingestor{chunker: chunker}
}

// Ingest extracts the PDF text and splits it into chunks tagged with their
// starting page. It has no side effects.
func (in *Ingestor) Ingest(filename string, data []byte) (*Document, error) {
	doc, err := Extract(data)
	if err != nil {
		return nil, err
	}

	doc.ID = uuid.NewString()
	doc.Filename = filename
	doc.Chunks = in.chunker.Split(doc.Text)
	for i := range doc.Chunks {
		doc.Chunks[i].Page = doc.PageAt(doc.Chunks[i].SourceOffset)
	}

	return doc, nil
}
