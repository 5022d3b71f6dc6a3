package handlers

import (
	"net/http"
	"time"

	"pdfchat/internal/contextutil"
	"pdfchat/internal/service"
)

// SessionHandler reports and clears the caller's session.
type SessionHandler struct {
	documents service.DocumentService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(documents service.DocumentService) *SessionHandler {
	return &SessionHandler{documents: documents}
}

// SessionResponse describes the document loaded in a session.
type SessionResponse struct {
	SessionID      string `json:"session_id"`
	DocumentID     string `json:"document_id"`
	Filename       string `json:"filename"`
	Pages          int    `json:"pages"`
	ChunksCount    int    `json:"chunks_count"`
	EmbeddingModel string `json:"embedding_model"`
	Dimension      int    `json:"dimension"`
	Backend        string `json:"backend"`
	LoadedAt       string `json:"loaded_at"`
}

// ServeHTTP handles GET (status) and DELETE (reset) for the caller's session.
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)
	sessionID := contextutil.SessionIDFromContext(ctx)

	switch r.Method {
	case http.MethodGet:
		status, err := h.documents.Status(ctx, sessionID)
		if err != nil {
			handleServiceError(ctx, w, err, "Failed to read session")
			return
		}
		writeJSON(ctx, w, http.StatusOK, SessionResponse{
			SessionID:      status.SessionID,
			DocumentID:     status.DocumentID,
			Filename:       status.Filename,
			Pages:          status.Pages,
			ChunksCount:    status.ChunkCount,
			EmbeddingModel: status.EmbeddingModel,
			Dimension:      status.Dimension,
			Backend:        status.Backend,
			LoadedAt:       status.LoadedAt.UTC().Format(time.RFC3339),
		})
	case http.MethodDelete:
		if err := h.documents.Reset(ctx, sessionID); err != nil {
			handleServiceError(ctx, w, err, "Failed to reset session")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		WriteError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "Method not allowed")
	}
}
