package service

import (
	"errors"
	"fmt"

	"pdfchat/internal/embedding"
	"pdfchat/internal/ingest"
	"pdfchat/internal/llm"
	"pdfchat/internal/vectorstore"
)

var (
	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned when a requested resource is not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidDocument is returned for uploads that are not readable PDFs with text.
	ErrInvalidDocument = ingest.ErrInvalidDocument
	// ErrModelLoad is returned when the embedding model cannot be initialised.
	ErrModelLoad = embedding.ErrModelLoad
	// ErrEmbeddingUnavailable is returned when text cannot be embedded.
	ErrEmbeddingUnavailable = embedding.ErrEmbeddingUnavailable
	// ErrEmptyIndex is returned when querying a session without an indexed document.
	ErrEmptyIndex = vectorstore.ErrEmptyIndex
	// ErrUpstreamUnavailable is returned when the hosted model fails.
	ErrUpstreamUnavailable = llm.ErrUpstreamUnavailable
)

// ValidationError represents a validation error with a field name.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// Is reports every ValidationError as ErrInvalidInput.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// WrapError wraps an error with additional context.
func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}
