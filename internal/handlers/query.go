package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	ghhtml "github.com/yuin/goldmark/renderer/html"

	"pdfchat/internal/contextutil"
	"pdfchat/internal/rag"
	"pdfchat/internal/service"
)

// Answer formats accepted in QueryRequest.Format.
const (
	FormatText = "text"
	FormatHTML = "html"
)

// maxQueryBytes bounds the JSON body of a question.
const maxQueryBytes = 64 << 10

// QueryHandler answers questions about the session's document.
type QueryHandler struct {
	documents service.DocumentService
	markdown  goldmark.Markdown
}

// NewQueryHandler creates a new QueryHandler.
func NewQueryHandler(documents service.DocumentService) *QueryHandler {
	return &QueryHandler{
		documents: documents,
		// Model output is untrusted, so raw HTML in it is escaped
		markdown: goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				extension.Typographer,
			),
			goldmark.WithRendererOptions(
				ghhtml.WithHardWraps(),
			),
		),
	}
}

// QueryRequest represents the HTTP request payload for a question.
type QueryRequest struct {
	Question string `json:"question"`
	// Format is "text" (default) or "html" to also return the answer rendered from Markdown.
	Format string `json:"format,omitempty"`
}

// QueryResponse represents the HTTP response payload for a question.
type QueryResponse struct {
	Answer     string       `json:"answer"`
	Sources    []rag.Source `json:"sources"`
	AnswerHTML string       `json:"answer_html,omitempty"`
}

// tokenEvent is the payload of each streamed SSE data event.
type tokenEvent struct {
	Token string `json:"token"`
}

// ServeHTTP answers a question. With ?stream=true the answer is sent as
// Server-Sent Events followed by a "done" event carrying the full response.
func (h *QueryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		WriteError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "Method not allowed")
		return
	}

	var req QueryRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxQueryBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.WarnContext(ctx, "query body too large", "limit", tooLarge.Limit)
			WriteError(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, "The request body is too large.")
			return
		}
		logger.WarnContext(ctx, "invalid request body", "error", err)
		WriteError(w, http.StatusBadRequest, CodeInvalidInput, "Invalid request body")
		return
	}

	format := strings.ToLower(strings.TrimSpace(req.Format))
	switch format {
	case "", FormatText, FormatHTML:
	default:
		logger.WarnContext(ctx, "unknown answer format", "format", req.Format)
		WriteError(w, http.StatusBadRequest, CodeInvalidInput, "format must be text or html")
		return
	}

	svcReq := service.QueryRequest{Question: req.Question}
	sessionID := contextutil.SessionIDFromContext(ctx)

	if r.URL.Query().Get("stream") == "true" {
		h.handleStreamingQuery(w, r, sessionID, svcReq, format)
		return
	}

	result, err := h.documents.Query(ctx, sessionID, svcReq)
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to answer question")
		return
	}

	writeJSON(ctx, w, http.StatusOK, h.response(r, result, format))
}

func (h *QueryHandler) response(r *http.Request, result *service.QueryResult, format string) QueryResponse {
	sources := result.Sources
	if sources == nil {
		sources = []rag.Source{}
	}
	resp := QueryResponse{Answer: result.Answer, Sources: sources}
	if format == FormatHTML {
		resp.AnswerHTML = h.renderHTML(r, result.Answer)
	}
	return resp
}

// renderHTML converts the Markdown answer to HTML. On failure the answer is returned escaped.
func (h *QueryHandler) renderHTML(r *http.Request, answer string) string {
	var buf bytes.Buffer
	if err := h.markdown.Convert([]byte(answer), &buf); err != nil {
		ctx := r.Context()
		contextutil.LoggerFromContext(ctx).WarnContext(ctx, "failed to render answer", "error", err)
		return "<p>" + html.EscapeString(answer) + "</p>"
	}
	return buf.String()
}

// handleStreamingQuery streams the answer using Server-Sent Events. Errors that
// occur before the first token are sent as ordinary JSON error responses.
func (h *QueryHandler) handleStreamingQuery(w http.ResponseWriter, r *http.Request, sessionID string, req service.QueryRequest, format string) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.ErrorContext(ctx, "streaming not supported by response writer")
		WriteError(w, http.StatusInternalServerError, CodeInternal, "Streaming not supported")
		return
	}

	started := false
	start := func() {
		if started {
			return
		}
		started = true
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
	}

	result, err := h.documents.QueryStream(ctx, sessionID, req, func(chunk string) error {
		start()
		if err := writeEvent(w, "", tokenEvent{Token: chunk}); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		if !started {
			handleServiceError(ctx, w, err, "Failed to answer question")
			return
		}
		logger.ErrorContext(ctx, "error streaming answer", "error", err)
		_, code, msg := classifyError(err, "Failed to answer question")
		_ = writeEvent(w, "error", ErrorResponse{Error: msg, Code: code})
		flusher.Flush()
		return
	}

	start()
	_ = writeEvent(w, "done", h.response(r, result, format))
	flusher.Flush()
}

// writeEvent writes one SSE event with a JSON data line. An empty name writes an unnamed event.
func writeEvent(w http.ResponseWriter, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if name != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", name); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
