package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"pdfchat/internal/contextutil"
	"pdfchat/internal/service"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeInvalidInput         = "invalid_input"
	CodeInvalidDocument      = "invalid_document"
	CodePayloadTooLarge      = "payload_too_large"
	CodeNotFound             = "not_found"
	CodeEmptyIndex           = "empty_index"
	CodeUpstreamUnavailable  = "upstream_unavailable"
	CodeEmbeddingUnavailable = "embedding_unavailable"
	CodeMethodNotAllowed     = "method_not_allowed"
	CodeInternal             = "internal"
)

// EmptyIndexMessage is returned when a question arrives before any upload.
const EmptyIndexMessage = "No PDF indexed. Please upload a PDF first."

// InvalidDocumentMessage covers uploads that are not PDFs and PDFs without text.
const InvalidDocumentMessage = "File is not a readable PDF with text."

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(ctx context.Context, w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// WriteError writes an ErrorResponse with the given status code.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// classifyError maps service errors to a status code, error code and client message.
func classifyError(err error, defaultMsg string) (int, string, string) {
	var validationErr *service.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, CodeInvalidInput, validationErr.Message
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, CodeInvalidInput, "Invalid input"
	case errors.Is(err, service.ErrInvalidDocument):
		return http.StatusBadRequest, CodeInvalidDocument, InvalidDocumentMessage
	case errors.Is(err, service.ErrEmptyIndex):
		return http.StatusConflict, CodeEmptyIndex, EmptyIndexMessage
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, CodeNotFound, "Resource not found"
	case errors.Is(err, service.ErrUpstreamUnavailable):
		return http.StatusBadGateway, CodeUpstreamUnavailable, "The language model is unavailable"
	case errors.Is(err, service.ErrEmbeddingUnavailable), errors.Is(err, service.ErrModelLoad):
		return http.StatusServiceUnavailable, CodeEmbeddingUnavailable, "The embedding model is unavailable"
	default:
		return http.StatusInternalServerError, CodeInternal, defaultMsg
	}
}

// handleServiceError maps service errors to appropriate HTTP status codes and responses.
func handleServiceError(ctx context.Context, w http.ResponseWriter, err error, defaultMsg string) {
	logger := contextutil.LoggerFromContext(ctx)
	status, code, msg := classifyError(err, defaultMsg)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(ctx, "service error", "error", err, "status", status)
	} else {
		logger.WarnContext(ctx, "request rejected", "error", err, "status", status)
	}
	WriteError(w, status, code, msg)
}
