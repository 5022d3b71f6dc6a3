package service

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_document_service.go -package=mocks pdfchat/internal/service DocumentService

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"pdfchat/internal/contextutil"
	"pdfchat/internal/indexer"
	"pdfchat/internal/rag"
	"pdfchat/internal/session"
	"pdfchat/internal/storage"
)

// UploadedMessage is returned after a document has been indexed.
const UploadedMessage = "PDF processed and indexed successfully."

// UploadRequest is an uploaded file.
type UploadRequest struct {
	Filename string
	Data     []byte
}

// UploadResult describes the document now indexed for the session.
type UploadResult struct {
	Message     string
	DocumentID  string
	Filename    string
	Pages       int
	ChunksCount int
	Stats       indexer.ChunkStats
}

// QueryRequest is a question about the session's document.
type QueryRequest struct {
	Question string
}

// QueryResult is a generated answer and the chunks it was grounded on.
type QueryResult struct {
	Answer  string
	Sources []rag.Source
}

// SessionStatus describes a session's indexed document.
type SessionStatus struct {
	SessionID      string
	DocumentID     string
	Filename       string
	Pages          int
	ChunkCount     int
	EmbeddingModel string
	Dimension      int
	Backend        string
	LoadedAt       time.Time
}

// DocumentService uploads documents into sessions and answers questions about them.
type DocumentService interface {
	// Upload indexes a PDF and makes it the session's only document.
	Upload(ctx context.Context, sessionID string, req UploadRequest) (*UploadResult, error)
	// Query answers a question from the session's document.
	Query(ctx context.Context, sessionID string, req QueryRequest) (*QueryResult, error)
	// QueryStream is Query with the answer delivered incrementally through onToken.
	QueryStream(ctx context.Context, sessionID string, req QueryRequest, onToken func(string) error) (*QueryResult, error)
	// Status describes the session's document. Returns ErrNotFound for sessions without one.
	Status(ctx context.Context, sessionID string) (*SessionStatus, error)
	// Reset forgets the session's document and its snapshot.
	Reset(ctx context.Context, sessionID string) error
	// Restore loads persisted snapshots into their sessions and returns how many were restored.
	Restore(ctx context.Context) (int, error)
}

// documentService implements DocumentService.
type documentService struct {
	pipeline  *indexer.Pipeline
	engine    rag.Engine
	sessions  *session.Store
	snapshots storage.SnapshotStore
}

// NewDocumentService creates a new DocumentService. snapshots may be nil to disable persistence.
func NewDocumentService(pipeline *indexer.Pipeline, engine rag.Engine, sessions *session.Store, snapshots storage.SnapshotStore) DocumentService {
	return &documentService{
		pipeline:  pipeline,
		engine:    engine,
		sessions:  sessions,
		snapshots: snapshots,
	}
}

func validateUpload(req UploadRequest) error {
	name := filepath.Base(strings.TrimSpace(req.Filename))
	if name == "" || name == "." || name == "/" {
		return &ValidationError{Field: "file", Message: "filename is required"}
	}
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return &ValidationError{Field: "file", Message: "File must be a PDF."}
	}
	if len(req.Data) == 0 {
		return &ValidationError{Field: "file", Message: "file is empty"}
	}
	return nil
}

// Upload validates, indexes and installs the document. A failed upload leaves the
// session's previous document in place.
func (s *documentService) Upload(ctx context.Context, sessionID string, req UploadRequest) (*UploadResult, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if err := validateUpload(req); err != nil {
		logger.WarnContext(ctx, "upload rejected", "filename", req.Filename, "error", err)
		return nil, err
	}
	filename := filepath.Base(strings.TrimSpace(req.Filename))

	res, err := s.pipeline.Build(ctx, filename, req.Data)
	if err != nil {
		return nil, WrapError(err, "failed to index document")
	}

	embedder := s.pipeline.Embedder()
	state := &session.State{
		Document: session.DocumentInfo{
			ID:             res.Document.ID,
			Filename:       filename,
			Pages:          res.Document.PageCount,
			ChunkCount:     len(res.Document.Chunks),
			EmbeddingModel: embedder.Model(),
			Dimension:      embedder.Dimension(),
		},
		Index:    res.Index,
		LoadedAt: time.Now().UTC(),
	}
	s.install(ctx, sessionID, state)

	if s.snapshots != nil {
		snap := &storage.Snapshot{
			SessionID:      sessionID,
			DocumentID:     res.Document.ID,
			Filename:       filename,
			Pages:          res.Document.PageCount,
			EmbeddingModel: embedder.Model(),
			Dimension:      embedder.Dimension(),
			IndexVersion:   res.Stats.IndexVersion,
			CreatedAt:      state.LoadedAt,
			Chunks:         res.Document.Chunks,
			Vectors:        res.Vectors,
		}
		if err := s.snapshots.Save(ctx, snap); err != nil {
			logger.ErrorContext(ctx, "failed to save snapshot", "session_id", sessionID, "error", err)
		}
	}

	logger.InfoContext(ctx, "document uploaded",
		"session_id", sessionID,
		"document_id", res.Document.ID,
		"filename", filename,
		"chunks", len(res.Document.Chunks),
		"mean_bytes", res.Stats.MeanBytes,
		"approx_tokens", res.Stats.ApproxTokens,
	)

	return &UploadResult{
		Message:     UploadedMessage,
		DocumentID:  res.Document.ID,
		Filename:    filename,
		Pages:       res.Document.PageCount,
		ChunksCount: len(res.Document.Chunks),
		Stats:       res.Stats,
	}, nil
}

// install swaps state into the session and closes the index it replaced.
func (s *documentService) install(ctx context.Context, sessionID string, state *session.State) {
	prev := s.sessions.Replace(sessionID, state)
	if prev == nil || prev.Index == nil {
		return
	}
	if err := prev.Index.Close(ctx); err != nil {
		contextutil.LoggerFromContext(ctx).WarnContext(ctx, "failed to close replaced index", "session_id", sessionID, "error", err)
	}
}

func (s *documentService) lookup(ctx context.Context, sessionID string, req QueryRequest) (*session.State, error) {
	if strings.TrimSpace(req.Question) == "" {
		contextutil.LoggerFromContext(ctx).WarnContext(ctx, "empty question in query request")
		return nil, &ValidationError{Field: "question", Message: "cannot be empty"}
	}
	state, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, ErrEmptyIndex
	}
	return state, nil
}

// Query answers a question from the session's document.
func (s *documentService) Query(ctx context.Context, sessionID string, req QueryRequest) (*QueryResult, error) {
	state, err := s.lookup(ctx, sessionID, req)
	if err != nil {
		return nil, err
	}

	answer, err := s.engine.Answer(ctx, state.Index, req.Question)
	if err != nil {
		return nil, WrapError(err, "failed to answer question")
	}
	return &QueryResult{Answer: answer.Text, Sources: answer.Sources}, nil
}

// QueryStream answers a question, streaming the answer through onToken.
func (s *documentService) QueryStream(ctx context.Context, sessionID string, req QueryRequest, onToken func(string) error) (*QueryResult, error) {
	state, err := s.lookup(ctx, sessionID, req)
	if err != nil {
		return nil, err
	}

	answer, err := s.engine.AnswerStream(ctx, state.Index, req.Question, onToken)
	if err != nil {
		return nil, WrapError(err, "failed to stream answer")
	}
	return &QueryResult{Answer: answer.Text, Sources: answer.Sources}, nil
}

// Status describes the session's document.
func (s *documentService) Status(_ context.Context, sessionID string) (*SessionStatus, error) {
	state, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, ErrNotFound
	}
	return &SessionStatus{
		SessionID:      sessionID,
		DocumentID:     state.Document.ID,
		Filename:       state.Document.Filename,
		Pages:          state.Document.Pages,
		ChunkCount:     state.Document.ChunkCount,
		EmbeddingModel: state.Document.EmbeddingModel,
		Dimension:      state.Document.Dimension,
		Backend:        s.pipeline.Backend(),
		LoadedAt:       state.LoadedAt,
	}, nil
}

// Reset removes the session's document from memory and from the snapshot store.
func (s *documentService) Reset(ctx context.Context, sessionID string) error {
	logger := contextutil.LoggerFromContext(ctx)

	if prev, ok := s.sessions.Reset(sessionID); ok && prev.Index != nil {
		if err := prev.Index.Close(ctx); err != nil {
			logger.WarnContext(ctx, "failed to close index", "session_id", sessionID, "error", err)
		}
	}
	if s.snapshots != nil {
		if err := s.snapshots.Delete(ctx, sessionID); err != nil {
			return WrapError(err, "failed to delete snapshot")
		}
	}

	logger.InfoContext(ctx, "session reset", "session_id", sessionID)
	return nil
}

// Restore rebuilds every compatible snapshot into its session. Snapshots from
// another embedding model or chunker configuration are skipped with a warning.
func (s *documentService) Restore(ctx context.Context) (int, error) {
	logger := contextutil.LoggerFromContext(ctx)
	if s.snapshots == nil {
		return 0, nil
	}

	infos, err := s.snapshots.List(ctx)
	if err != nil {
		return 0, WrapError(err, "failed to list snapshots")
	}

	embedder := s.pipeline.Embedder()
	version := s.pipeline.IndexVersion()
	restored := 0
	for _, info := range infos {
		if info.EmbeddingModel != embedder.Model() || info.Dimension != embedder.Dimension() || info.IndexVersion != version {
			logger.WarnContext(ctx, "skipping incompatible snapshot",
				"session_id", info.SessionID,
				"embedding_model", info.EmbeddingModel,
				"dimension", info.Dimension,
				"index_version", info.IndexVersion,
			)
			continue
		}

		snap, err := s.snapshots.Load(ctx, info.SessionID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return restored, WrapError(err, "failed to load snapshot")
		}
		idx, err := s.pipeline.Restore(ctx, snap)
		if err != nil {
			logger.WarnContext(ctx, "skipping unrestorable snapshot", "session_id", info.SessionID, "error", err)
			continue
		}

		s.install(ctx, info.SessionID, &session.State{
			Document: session.DocumentInfo{
				ID:             snap.DocumentID,
				Filename:       snap.Filename,
				Pages:          snap.Pages,
				ChunkCount:     len(snap.Chunks),
				EmbeddingModel: snap.EmbeddingModel,
				Dimension:      snap.Dimension,
			},
			Index:    idx,
			LoadedAt: snap.CreatedAt,
		})
		restored++
	}

	logger.InfoContext(ctx, "snapshots restored", "restored", restored, "stored", len(infos))
	return restored, nil
}
