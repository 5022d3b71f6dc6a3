package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"pdfchat/internal/ingest"
)

// ErrNotFound is returned when no snapshot exists for a session.
var ErrNotFound = errors.New("not found")

// Snapshot is a session's indexed document as persisted between restarts.
// Vectors[i] is the embedding of Chunks[i]. IndexVersion identifies the chunker
// settings and model the vectors came from.
type Snapshot struct {
	SessionID      string
	DocumentID     string
	Filename       string
	Pages          int
	EmbeddingModel string
	Dimension      int
	IndexVersion   string
	CreatedAt      time.Time
	Chunks         []ingest.Chunk
	Vectors        [][]float32
}

// SnapshotInfo is the document row of a snapshot without its chunks.
type SnapshotInfo struct {
	SessionID      string
	DocumentID     string
	Filename       string
	Pages          int
	EmbeddingModel string
	Dimension      int
	IndexVersion   string
	ChunkCount     int
	CreatedAt      time.Time
}

// encodeVector packs v as little-endian float32 values.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

// decodeVector unpacks a blob written by encodeVector.
func decodeVector(buf []byte, dim int) ([]float32, error) {
	if len(buf) != 4*dim {
		return nil, fmt.Errorf("embedding blob has %d bytes, expected %d", len(buf), 4*dim)
	}
	v := make([]float32, dim)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v, nil
}
