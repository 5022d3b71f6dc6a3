package ingest

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestNewChunker(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		wantErr bool
	}{
		{name: "valid", size: 1000, overlap: 200},
		{name: "no overlap", size: 100, overlap: 0},
		{name: "zero size", size: 0, overlap: 0, wantErr: true},
		{name: "negative overlap", size: 100, overlap: -1, wantErr: true},
		{name: "overlap half of size", size: 100, overlap: 50, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewChunker(tt.size, tt.overlap)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewChunker() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// reconstruct concatenates the non-overlapping region of every chunk.
func reconstruct(chunks []Chunk) string {
	var b strings.Builder
	for i, c := range chunks {
		if i == len(chunks)-1 {
			b.WriteString(c.Text)
			break
		}
		b.WriteString(c.Text[:chunks[i+1].SourceOffset-c.SourceOffset])
	}
	return b.String()
}

func TestChunker_Split_Coverage(t *testing.T) {
	words := strings.Repeat("retrieval augmented generation answers questions from context ", 60)
	tests := []struct {
		name    string
		text    string
		size    int
		overlap int
	}{
		{name: "prose", text: words, size: 200, overlap: 40},
		{name: "prose no overlap", text: words, size: 150, overlap: 0},
		{name: "no whitespace", text: strings.Repeat("x", 1234), size: 100, overlap: 20},
		{name: "multibyte", text: strings.Repeat("héllo wörld ünïcode ", 80), size: 64, overlap: 10},
		{name: "multibyte no whitespace", text: strings.Repeat("日本語", 200), size: 50, overlap: 7},
		{name: "with page separators", text: "page one text\npage two text\npage three text", size: 16, overlap: 3},
		{name: "shorter than size", text: "short text", size: 100, overlap: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewChunker(tt.size, tt.overlap)
			if err != nil {
				t.Fatalf("NewChunker() error = %v", err)
			}

			chunks := c.Split(tt.text)
			if len(chunks) == 0 {
				t.Fatal("Split() returned no chunks")
			}

			if got := reconstruct(chunks); got != tt.text {
				t.Errorf("reconstructed text differs from input (len %d vs %d)", len(got), len(tt.text))
			}

			for i, chunk := range chunks {
				if chunk.Index != i {
					t.Errorf("chunk %d Index = %d", i, chunk.Index)
				}
				if tt.text[chunk.SourceOffset:chunk.SourceOffset+len(chunk.Text)] != chunk.Text {
					t.Errorf("chunk %d is not the slice at its SourceOffset", i)
				}
				if !utf8.ValidString(chunk.Text) {
					t.Errorf("chunk %d splits a rune", i)
				}
				if i > 0 && chunk.SourceOffset <= chunks[i-1].SourceOffset {
					t.Errorf("chunk %d does not advance: %d <= %d", i, chunk.SourceOffset, chunks[i-1].SourceOffset)
				}
			}
		})
	}
}

func TestChunker_Split_Overlap(t *testing.T) {
	text := strings.Repeat("abcd efgh ", 100)
	c, err := NewChunker(100, 25)
	if err != nil {
		t.Fatalf("NewChunker() error = %v", err)
	}

	chunks := c.Split(text)
	if len(chunks) < 3 {
		t.Fatalf("Split() returned %d chunks, want at least 3", len(chunks))
	}

	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1]
		prevEnd := prev.SourceOffset + len(prev.Text)
		if got := prevEnd - chunks[i].SourceOffset; got != 25 {
			t.Errorf("overlap between chunk %d and %d = %d, want 25", i-1, i, got)
		}
	}
	for i, chunk := range chunks[:len(chunks)-1] {
		if len(chunk.Text) > 100 || len(chunk.Text) < 90 {
			t.Errorf("chunk %d length = %d, want within [90,100]", i, len(chunk.Text))
		}
		if !strings.HasSuffix(chunk.Text, " ") {
			t.Errorf("chunk %d should end on a word boundary, got %q", i, chunk.Text[len(chunk.Text)-5:])
		}
	}
}

func TestChunker_Split_Empty(t *testing.T) {
	c, _ := NewChunker(100, 10)
	if chunks := c.Split(""); chunks != nil {
		t.Errorf("Split(\"\") = %v, want nil", chunks)
	}
}
