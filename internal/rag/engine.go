package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pdfchat/internal/contextutil"
	"pdfchat/internal/embedding"
	"pdfchat/internal/llm"
	"pdfchat/internal/vectorstore"
)

// ErrEmptyQuestion is returned for questions that are empty after trimming.
var ErrEmptyQuestion = errors.New("question must not be empty")

// SystemPrompt restricts the model to the retrieved context.
const SystemPrompt = "You are a helpful assistant. Answer the question using only the context provided below. " +
	"If the context does not contain the answer, say that you cannot find the answer in the document."

// Engine answers questions about one indexed document.
type Engine interface {
	// Answer retrieves the most similar chunks and asks the model to answer from them.
	Answer(ctx context.Context, idx vectorstore.Index, question string) (*Answer, error)
	// AnswerStream is Answer with the generated text delivered through onToken as it arrives.
	AnswerStream(ctx context.Context, idx vectorstore.Index, question string, onToken func(string) error) (*Answer, error)
}

type ragEngine struct {
	embedder  embedding.Embedder
	generator Generator
	opts      Options
}

// NewEngine creates a new RAG engine. Zero option fields take their defaults.
func NewEngine(embedder embedding.Embedder, generator Generator, opts Options) Engine {
	def := DefaultOptions()
	if opts.TopK <= 0 {
		opts.TopK = def.TopK
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = def.MaxTokens
	}
	return &ragEngine{
		embedder:  embedder,
		generator: generator,
		opts:      opts,
	}
}

// retrieve embeds the question and returns the top hits as sources.
func (e *ragEngine) retrieve(ctx context.Context, idx vectorstore.Index, question string) ([]Source, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}
	if idx == nil || idx.Len() == 0 {
		return nil, vectorstore.ErrEmptyIndex
	}

	queryVector, err := e.embedder.Embed(ctx, question)
	if err != nil {
		logger.ErrorContext(ctx, "failed to embed question", "error", err)
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	hits, err := idx.Search(ctx, queryVector, e.opts.TopK)
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	sources := make([]Source, len(hits))
	scores := make([]float32, len(hits))
	for i, h := range hits {
		sources[i] = Source{
			ChunkIndex: h.Chunk.Index,
			Page:       h.Chunk.Page,
			Score:      h.Score,
			Text:       h.Chunk.Text,
		}
		scores[i] = h.Score
	}
	logger.DebugContext(ctx, "retrieved chunks", "k", e.opts.TopK, "results", len(hits), "scores", scores)
	return sources, nil
}

// BuildMessages composes the system and user messages for a question and its context.
func BuildMessages(question string, sources []Source) []llm.Message {
	texts := make([]string, len(sources))
	for i, s := range sources {
		texts[i] = s.Text
	}
	user := fmt.Sprintf("Context:\n%s\n\nQuestion:\n%s", strings.Join(texts, "\n\n"), question)
	return []llm.Message{
		{Role: "system", Content: SystemPrompt},
		{Role: "user", Content: user},
	}
}

func (e *ragEngine) params() llm.ChatParams {
	return llm.ChatParams{MaxTokens: e.opts.MaxTokens, Temperature: e.opts.Temperature}
}

// Answer answers question from the chunks of idx.
func (e *ragEngine) Answer(ctx context.Context, idx vectorstore.Index, question string) (*Answer, error) {
	logger := contextutil.LoggerFromContext(ctx)

	sources, err := e.retrieve(ctx, idx, question)
	if err != nil {
		return nil, err
	}

	text, err := e.generator.ChatWithMessages(ctx, BuildMessages(question, sources), e.params())
	if err != nil {
		logger.ErrorContext(ctx, "failed to get LLM response", "error", err)
		return nil, fmt.Errorf("failed to get LLM response: %w", err)
	}

	logger.InfoContext(ctx, "question answered", "sources", len(sources), "answer_length", len(text))
	return &Answer{Text: text, Sources: sources}, nil
}

// AnswerStream answers question, passing each generated fragment to onToken.
// The returned Answer holds the concatenated text.
func (e *ragEngine) AnswerStream(ctx context.Context, idx vectorstore.Index, question string, onToken func(string) error) (*Answer, error) {
	logger := contextutil.LoggerFromContext(ctx)

	sources, err := e.retrieve(ctx, idx, question)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	err = e.generator.StreamChatWithMessages(ctx, BuildMessages(question, sources), e.params(), func(chunk string) error {
		b.WriteString(chunk)
		return onToken(chunk)
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to stream LLM response", "error", err)
		return nil, fmt.Errorf("failed to stream LLM response: %w", err)
	}

	logger.InfoContext(ctx, "question answered", "sources", len(sources), "answer_length", b.Len(), "stream", true)
	return &Answer{Text: b.String(), Sources: sources}, nil
}
