package handlers

import (
	"errors"
	"io"
	"net/http"

	"pdfchat/internal/contextutil"
	"pdfchat/internal/indexer"
	"pdfchat/internal/service"
)

// multipartMemory is how much of a multipart body is kept in memory before spilling to disk.
const multipartMemory = 8 << 20

// UploadHandler handles PDF uploads.
type UploadHandler struct {
	documents      service.DocumentService
	maxUploadBytes int64
}

// NewUploadHandler creates a new UploadHandler.
func NewUploadHandler(documents service.DocumentService, maxUploadBytes int64) *UploadHandler {
	return &UploadHandler{
		documents:      documents,
		maxUploadBytes: maxUploadBytes,
	}
}

// UploadResponse represents the HTTP response payload for an upload.
type UploadResponse struct {
	Message     string             `json:"message"`
	ChunksCount int                `json:"chunks_count"`
	DocumentID  string             `json:"document_id"`
	Filename    string             `json:"filename"`
	Pages       int                `json:"pages"`
	Stats       indexer.ChunkStats `json:"stats"`
}

// ServeHTTP indexes the multipart "file" field as the session's document.
func (h *UploadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		WriteError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "Method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		h.writeBodyError(w, r, err)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		logger.WarnContext(ctx, "missing file field", "error", err)
		WriteError(w, http.StatusBadRequest, CodeInvalidInput, "A PDF file is required in the \"file\" field.")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeBodyError(w, r, err)
		return
	}

	result, err := h.documents.Upload(ctx, contextutil.SessionIDFromContext(ctx), service.UploadRequest{
		Filename: header.Filename,
		Data:     data,
	})
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to process PDF")
		return
	}

	writeJSON(ctx, w, http.StatusOK, UploadResponse{
		Message:     result.Message,
		ChunksCount: result.ChunksCount,
		DocumentID:  result.DocumentID,
		Filename:    result.Filename,
		Pages:       result.Pages,
		Stats:       result.Stats,
	})
}

func (h *UploadHandler) writeBodyError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		logger.WarnContext(ctx, "upload too large", "limit", tooLarge.Limit)
		WriteError(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, "The uploaded file is too large.")
		return
	}
	logger.WarnContext(ctx, "invalid multipart body", "error", err)
	WriteError(w, http.StatusBadRequest, CodeInvalidInput, "Invalid multipart form")
}
