package ingest

import (
	"errors"
	"sort"
)

// ErrInvalidDocument is returned when uploaded bytes are not a readable PDF
// or contain no extractable text.
var ErrInvalidDocument = errors.New("invalid document")

// Chunk is a bounded slice of a document's extracted text.
// Text is always exactly Document.Text[SourceOffset : SourceOffset+len(Text)].
type Chunk struct {
	// Index is the chunk's position in document order, starting at 0.
	Index int
	// Text is the chunk content.
	Text string
	// SourceOffset is the byte offset of Text within the extracted document text.
	SourceOffset int
	// Page is the 1-based page number the chunk starts on.
	Page int
}

// PageSpan records where a page's normalised text sits in Document.Text.
type PageSpan struct {
	Number int
	Start  int
	End    int
}

// Document is the result of ingesting one PDF.
type Document struct {
	ID       string
	Filename string
	// Text is the whitespace-normalised text of all pages joined by newlines.
	Text string
	// Pages lists only pages that produced text.
	Pages []PageSpan
	// PageCount is the number of pages in the PDF, including empty ones.
	PageCount int
	Chunks    []Chunk
}

// PageAt returns the page number containing the byte offset.
// Offsets on a page separator belong to the preceding page.
func (d *Document) PageAt(offset int) int {
	if len(d.Pages) == 0 {
		return 0
	}
	i := sort.Search(len(d.Pages), func(i int) bool {
		return d.Pages[i].Start > offset
	})
	if i == 0 {
		return d.Pages[0].Number
	}
	return d.Pages[i-1].Number
}
