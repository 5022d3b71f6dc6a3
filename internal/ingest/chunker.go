package ingest

import (
	"fmt"
	"unicode/utf8"
)

// Chunker splits text into fixed-size windows that overlap their neighbour.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker creates a chunker producing chunks of about size bytes,
// each sharing overlap bytes with the previous one.
func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be greater than 0")
	}
	if overlap < 0 || overlap*2 >= size {
		return nil, fmt.Errorf("chunk overlap must be >= 0 and less than half of chunk size")
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Size returns the target chunk length in bytes.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the number of bytes shared by consecutive chunks.
func (c *Chunker) Overlap() int { return c.overlap }

// Split cuts text into ordered chunks. Every chunk is an exact substring of
// text and chunk i+1 starts overlap bytes before chunk i ends, so the regions
// between consecutive SourceOffsets tile the whole text.
func (c *Chunker) Split(text string) []Chunk {
	n := len(text)
	if n == 0 {
		return nil
	}

	var chunks []Chunk
	start := 0
	for {
		end := start + c.size
		if end >= n {
			end = n
		} else {
			end = c.breakPoint(text, start, end)
		}

		chunks = append(chunks, Chunk{
			Index:        len(chunks),
			Text:         text[start:end],
			SourceOffset: start,
		})
		if end == n {
			break
		}

		next := alignForward(text, end-c.overlap)
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}

// breakPoint moves end back to just after the last whitespace within the final
// tenth of the window. Without whitespace it only aligns end to a rune boundary.
func (c *Chunker) breakPoint(text string, start, end int) int {
	lo := end - c.size/10
	if lo <= start {
		lo = start + 1
	}
	for i := end - 1; i >= lo; i-- {
		if text[i] == ' ' || text[i] == '\n' {
			return i + 1
		}
	}

	aligned := end
	for aligned > start && !utf8.RuneStart(text[aligned]) {
		aligned--
	}
	if aligned == start {
		return alignForward(text, end)
	}
	return aligned
}

// alignForward returns the first rune start at or after pos.
func alignForward(text string, pos int) int {
	if pos < 0 {
		pos = 0
	}
	for pos < len(text) && !utf8.RuneStart(text[pos]) {
		pos++
	}
	return pos
}
