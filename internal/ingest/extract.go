package ingest

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Extract parses PDF bytes and returns the normalised text of every page.
// Bytes that are not a readable PDF, or a PDF without any text, fail with ErrInvalidDocument.
func Extract(data []byte) (*Document, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrInvalidDocument)
	}

	rawPages, err := readPages(data)
	if err != nil {
		return nil, err
	}

	doc := &Document{PageCount: len(rawPages)}
	var b strings.Builder
	for i, raw := range rawPages {
		text := normalizeWhitespace(raw)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		start := b.Len()
		b.WriteString(text)
		doc.Pages = append(doc.Pages, PageSpan{Number: i + 1, Start: start, End: b.Len()})
	}
	doc.Text = b.String()

	if doc.Text == "" {
		return nil, fmt.Errorf("%w: no text could be extracted from the PDF", ErrInvalidDocument)
	}

	return doc, nil
}

// readPages returns the raw text of each page in order.
// The PDF parser panics on some malformed inputs, so panics are converted to errors.
func readPages(data []byte) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("%w: malformed PDF: %v", ErrInvalidDocument, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	numPages := reader.NumPage()
	if numPages == 0 {
		return nil, fmt.Errorf("%w: PDF has no pages", ErrInvalidDocument)
	}

	pages = make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		// A page whose text cannot be decoded counts as empty
		text, err := page.GetPlainText(nil)
		if err != nil {
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}

	return pages, nil
}

// normalizeWhitespace collapses whitespace runs into single spaces and trims the ends.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
