package rag

import (
	"context"

	"pdfchat/internal/llm"
)

// Generator produces chat completions. *llm.Client implements it.
type Generator interface {
	ChatWithMessages(ctx context.Context, messages []llm.Message, params llm.ChatParams) (string, error)
	StreamChatWithMessages(ctx context.Context, messages []llm.Message, params llm.ChatParams, callback func(chunk string) error) error
}

// Source is a retrieved chunk that was given to the model as context.
type Source struct {
	// ChunkIndex is the chunk's position in the document.
	ChunkIndex int `json:"chunk_index"`
	// Page is the 1-based page the chunk starts on.
	Page int `json:"page"`
	// Score is the cosine similarity between the question and the chunk.
	Score float32 `json:"score"`
	// Text is the chunk content.
	Text string `json:"text"`
}

// Answer is the result of answering one question.
type Answer struct {
	// Text is the generated answer, exactly as the model returned it.
	Text string `json:"answer"`
	// Sources are the retrieved chunks in rank order.
	Sources []Source `json:"sources"`
}

// Options tunes retrieval and generation.
type Options struct {
	// TopK is the number of chunks retrieved per question.
	TopK int
	// MaxTokens caps the generated answer.
	MaxTokens int
	// Temperature is the sampling temperature.
	Temperature float32
}

// DefaultOptions returns the retrieval and generation settings used when none are configured.
func DefaultOptions() Options {
	return Options{TopK: 3, MaxTokens: 512, Temperature: 0.5}
}
