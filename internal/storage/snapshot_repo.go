package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_snapshot_store.go -package=mocks pdfchat/internal/storage SnapshotStore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pdfchat/internal/ingest"
)

// SnapshotStore defines the interface for snapshot storage operations.
type SnapshotStore interface {
	// Save replaces the session's snapshot atomically.
	Save(ctx context.Context, snap *Snapshot) error
	// Load returns the session's snapshot. Returns ErrNotFound if none exists.
	Load(ctx context.Context, sessionID string) (*Snapshot, error)
	// List returns the document rows of all snapshots, ordered by session ID.
	List(ctx context.Context) ([]SnapshotInfo, error)
	// Delete removes the session's snapshot. Deleting a missing snapshot is not an error.
	Delete(ctx context.Context, sessionID string) error
}

// SnapshotRepo provides methods for snapshot operations.
// It implements the SnapshotStore interface.
type SnapshotRepo struct {
	db *sql.DB
}

// NewSnapshotRepo creates a new SnapshotRepo.
func NewSnapshotRepo(db *sql.DB) *SnapshotRepo {
	return &SnapshotRepo{db: db}
}

// Save replaces the session's document row and chunks in one transaction.
func (r *SnapshotRepo) Save(ctx context.Context, snap *Snapshot) error {
	if len(snap.Chunks) != len(snap.Vectors) {
		return fmt.Errorf("snapshot has %d chunks but %d vectors", len(snap.Chunks), len(snap.Vectors))
	}
	createdAt := snap.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE session_id = ?", snap.SessionID); err != nil {
		return fmt.Errorf("failed to delete old chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE session_id = ?", snap.SessionID); err != nil {
		return fmt.Errorf("failed to delete old document: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (session_id, document_id, filename, pages, embedding_model, dimension, index_version, chunk_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.SessionID, snap.DocumentID, snap.Filename, snap.Pages, snap.EmbeddingModel, snap.Dimension, snap.IndexVersion, len(snap.Chunks), createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO chunks (session_id, chunk_index, source_offset, page, text, embedding) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for i, c := range snap.Chunks {
		if len(snap.Vectors[i]) != snap.Dimension {
			return fmt.Errorf("chunk %d has vector size %d, expected %d", c.Index, len(snap.Vectors[i]), snap.Dimension)
		}
		if _, err := stmt.ExecContext(ctx, snap.SessionID, c.Index, c.SourceOffset, c.Page, c.Text, encodeVector(snap.Vectors[i])); err != nil {
			return fmt.Errorf("failed to insert chunk: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// Load returns the session's snapshot with chunks ordered by chunk index.
// Returns ErrNotFound if the session has no snapshot.
func (r *SnapshotRepo) Load(ctx context.Context, sessionID string) (*Snapshot, error) {
	snap := &Snapshot{SessionID: sessionID}
	var chunkCount int
	err := r.db.QueryRowContext(ctx,
		`SELECT document_id, filename, pages, embedding_model, dimension, index_version, chunk_count, created_at
		 FROM documents WHERE session_id = ?`,
		sessionID,
	).Scan(&snap.DocumentID, &snap.Filename, &snap.Pages, &snap.EmbeddingModel, &snap.Dimension, &snap.IndexVersion, &chunkCount, &snap.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT chunk_index, source_offset, page, text, embedding FROM chunks WHERE session_id = ? ORDER BY chunk_index",
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	snap.Chunks = make([]ingest.Chunk, 0, chunkCount)
	snap.Vectors = make([][]float32, 0, chunkCount)
	for rows.Next() {
		var c ingest.Chunk
		var blob []byte
		if err := rows.Scan(&c.Index, &c.SourceOffset, &c.Page, &c.Text, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		vec, err := decodeVector(blob, snap.Dimension)
		if err != nil {
			return nil, fmt.Errorf("failed to decode chunk %d: %w", c.Index, err)
		}
		snap.Chunks = append(snap.Chunks, c)
		snap.Vectors = append(snap.Vectors, vec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	if len(snap.Chunks) != chunkCount {
		return nil, fmt.Errorf("snapshot for session %s has %d chunks, expected %d", sessionID, len(snap.Chunks), chunkCount)
	}
	return snap, nil
}

// List returns the document rows of all stored snapshots.
func (r *SnapshotRepo) List(ctx context.Context) ([]SnapshotInfo, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT session_id, document_id, filename, pages, embedding_model, dimension, index_version, chunk_count, created_at
		 FROM documents ORDER BY session_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var infos []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		if err := rows.Scan(&info.SessionID, &info.DocumentID, &info.Filename, &info.Pages,
			&info.EmbeddingModel, &info.Dimension, &info.IndexVersion, &info.ChunkCount, &info.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return infos, nil
}

// Delete removes the session's document row; its chunks go with it.
func (r *SnapshotRepo) Delete(ctx context.Context, sessionID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM documents WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}
