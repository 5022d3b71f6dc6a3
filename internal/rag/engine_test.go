package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/mock/gomock"

	"pdfchat/internal/embedding"
	"pdfchat/internal/embedding/mocks"
	"pdfchat/internal/ingest"
	"pdfchat/internal/llm"
	"pdfchat/internal/vectorstore"
)

type stubGenerator struct {
	reply    string
	tokens   []string
	err      error
	messages []llm.Message
	params   llm.ChatParams
}

func (g *stubGenerator) ChatWithMessages(_ context.Context, messages []llm.Message, params llm.ChatParams) (string, error) {
	g.messages, g.params = messages, params
	return g.reply, g.err
}

func (g *stubGenerator) StreamChatWithMessages(_ context.Context, messages []llm.Message, params llm.ChatParams, callback func(string) error) error {
	g.messages, g.params = messages, params
	if g.err != nil {
		return g.err
	}
	for _, tok := range g.tokens {
		if err := callback(tok); err != nil {
			return err
		}
	}
	return nil
}

func buildIndex(t *testing.T, emb embedding.Embedder, texts ...string) vectorstore.Index {
	t.Helper()
	ctx := context.Background()
	chunks := make([]ingest.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = ingest.Chunk{Index: i, Text: text, Page: i + 1}
	}
	vectors, err := emb.EmbedAll(ctx, texts)
	if err != nil {
		t.Fatalf("EmbedAll() error = %v", err)
	}
	idx, err := vectorstore.NewBruteForceBuilder().Build(ctx, chunks, vectors)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return idx
}

func TestEngine_Answer(t *testing.T) {
	emb := embedding.NewHashingEmbedder(256)
	idx := buildIndex(t, emb,
		"Bananas are yellow and grow in tropical climates.",
		"The capital of France is Paris.",
		"Rust is a systems programming language.",
		"Mount Everest is the highest mountain on Earth.",
	)
	gen := &stubGenerator{reply: " Paris is the capital of France. "}
	engine := NewEngine(emb, gen, Options{TopK: 2, MaxTokens: 512, Temperature: 0.5})

	answer, err := engine.Answer(context.Background(), idx, "What is the capital of France?")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}

	if answer.Text != " Paris is the capital of France. " {
		t.Errorf("Answer().Text = %q, want model output verbatim", answer.Text)
	}
	if len(answer.Sources) != 2 {
		t.Fatalf("got %d sources, want 2", len(answer.Sources))
	}
	if answer.Sources[0].ChunkIndex != 1 || answer.Sources[0].Page != 2 {
		t.Errorf("top source = %+v, want the Paris chunk", answer.Sources[0])
	}
	if answer.Sources[0].Score < answer.Sources[1].Score {
		t.Error("sources must be ordered by descending score")
	}

	if len(gen.messages) != 2 || gen.messages[0].Role != "system" || gen.messages[1].Role != "user" {
		t.Fatalf("messages = %+v", gen.messages)
	}
	if gen.messages[0].Content != SystemPrompt {
		t.Errorf("system prompt = %q", gen.messages[0].Content)
	}
	user := gen.messages[1].Content
	wantPrefix := "Context:\nThe capital of France is Paris.\n\n"
	if !strings.HasPrefix(user, wantPrefix) {
		t.Errorf("user message = %q, want prefix %q", user, wantPrefix)
	}
	if !strings.HasSuffix(user, "\n\nQuestion:\nWhat is the capital of France?") {
		t.Errorf("user message = %q, missing question suffix", user)
	}
	if gen.params.MaxTokens != 512 || gen.params.Temperature != 0.5 {
		t.Errorf("params = %+v", gen.params)
	}
}

func TestEngine_Answer_Errors(t *testing.T) {
	emb := embedding.NewHashingEmbedder(64)
	idx := buildIndex(t, emb, "one chunk of text")

	tests := []struct {
		name     string
		idx      vectorstore.Index
		question string
		genErr   error
		wantErr  error
	}{
		{name: "empty question", idx: idx, question: "   ", wantErr: ErrEmptyQuestion},
		{name: "empty index", idx: vectorstore.Empty(), question: "anything?", wantErr: vectorstore.ErrEmptyIndex},
		{name: "nil index", idx: nil, question: "anything?", wantErr: vectorstore.ErrEmptyIndex},
		{name: "upstream failure", idx: idx, question: "text?", genErr: llm.ErrUpstreamUnavailable, wantErr: llm.ErrUpstreamUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewEngine(emb, &stubGenerator{err: tt.genErr}, Options{})
			_, err := engine.Answer(context.Background(), tt.idx, tt.question)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Answer() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEngine_Answer_EmbeddingFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	emb := mocks.NewMockEmbedder(ctrl)
	idx := buildIndex(t, embedding.NewHashingEmbedder(8), "some text")

	emb.EXPECT().Embed(gomock.Any(), "question?").Return(nil, embedding.ErrEmbeddingUnavailable)

	engine := NewEngine(emb, &stubGenerator{}, DefaultOptions())
	_, err := engine.Answer(context.Background(), idx, "question?")
	if !errors.Is(err, embedding.ErrEmbeddingUnavailable) {
		t.Errorf("Answer() error = %v, want ErrEmbeddingUnavailable", err)
	}
}

func TestEngine_AnswerStream(t *testing.T) {
	emb := embedding.NewHashingEmbedder(128)
	idx := buildIndex(t, emb, "Paris is in France.", "Berlin is in Germany.")
	gen := &stubGenerator{tokens: []string{"Paris", " is", " in France."}}
	engine := NewEngine(emb, gen, DefaultOptions())

	var streamed []string
	answer, err := engine.AnswerStream(context.Background(), idx, "Where is Paris?", func(tok string) error {
		streamed = append(streamed, tok)
		return nil
	})
	if err != nil {
		t.Fatalf("AnswerStream() error = %v", err)
	}
	if strings.Join(streamed, "") != "Paris is in France." || answer.Text != "Paris is in France." {
		t.Errorf("streamed %q, answer %q", streamed, answer.Text)
	}
	if len(answer.Sources) != 2 {
		t.Errorf("got %d sources, want 2 (k larger than the index)", len(answer.Sources))
	}
}

func TestNewEngine_Defaults(t *testing.T) {
	e := NewEngine(nil, nil, Options{}).(*ragEngine)
	if e.opts.TopK != 3 || e.opts.MaxTokens != 512 {
		t.Errorf("defaults = %+v", e.opts)
	}
}
