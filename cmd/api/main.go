package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pdfchat/internal/config"
	"pdfchat/internal/embedding"
	"pdfchat/internal/handlers"
	"pdfchat/internal/http"
	"pdfchat/internal/indexer"
	"pdfchat/internal/ingest"
	"pdfchat/internal/llm"
	"pdfchat/internal/rag"
	"pdfchat/internal/service"
	"pdfchat/internal/session"
	"pdfchat/internal/storage"
	"pdfchat/internal/vectorstore"
)

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Configure structured logging with configurable level and format
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The embedding model must load before anything is served
	embedder, err := embedding.New(ctx, embedding.Options{
		Provider:  cfg.EmbeddingProvider,
		BaseURL:   cfg.EmbeddingBaseURL,
		Model:     cfg.EmbeddingModelName,
		APIKey:    cfg.EmbeddingAPIKey,
		Dimension: cfg.EmbeddingDim,
	})
	if err != nil {
		log.Fatalf("Failed to load embedding model: %v", err)
	}
	slog.Info("Embedding model loaded", "provider", cfg.EmbeddingProvider, "model", embedder.Model(), "dimension", embedder.Dimension())

	healthChecks := []handlers.HealthCheck{{
		Name: "embedder",
		Check: func(ctx context.Context) error {
			_, err := embedder.Embed(ctx, "health check")
			return err
		},
	}}

	// Initialize Qdrant vector store when it backs the index
	var store vectorstore.VectorStore
	if cfg.IndexBackend == config.IndexBackendQdrant {
		qdrantStore, err := vectorstore.NewQdrantStore(cfg.QdrantURL)
		if err != nil {
			log.Fatalf("Failed to create Qdrant client: %v", err)
		}
		defer func() {
			_ = qdrantStore.Close()
		}()
		if err := qdrantStore.Health(ctx); err != nil {
			log.Fatalf("Qdrant is not reachable: %v", err)
		}
		store = qdrantStore
		healthChecks = append(healthChecks, handlers.HealthCheck{Name: "index", Check: qdrantStore.Health})
		slog.Info("Qdrant vector store ready", "url", cfg.QdrantURL, "collection_prefix", cfg.QdrantCollectionPrefix)
	}

	builder, err := vectorstore.NewBuilder(cfg.IndexBackend, store, cfg.QdrantCollectionPrefix)
	if err != nil {
		log.Fatalf("Failed to create index builder: %v", err)
	}

	chunker, err := ingest.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		log.Fatalf("Failed to create chunker: %v", err)
	}
	pipeline := indexer.NewPipeline(chunker, embedder, builder, cfg.EmbeddingBatchSize)

	// Create LLM client (external service layer)
	llmClient := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModelName, cfg.LLMTimeout)
	ragEngine := rag.NewEngine(embedder, llmClient, rag.Options{
		TopK:        cfg.TopK,
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: cfg.LLMTemperature,
	})
	slog.Info("RAG engine initialized", "backend", builder.Name(), "top_k", cfg.TopK, "model", cfg.LLMModelName)

	// Snapshots are optional
	var snapshots storage.SnapshotStore
	if cfg.DBPath != "" {
		db, err := storage.New(cfg.DBPath)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer func() {
			_ = db.Close()
		}()
		if err := storage.Migrate(db); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		snapshots = storage.NewSnapshotRepo(db)
		healthChecks = append(healthChecks, handlers.HealthCheck{Name: "storage", Check: pingCheck(db)})
		slog.Info("Database initialized", "path", cfg.DBPath)
	}

	sessions := session.NewStore()
	documents := service.NewDocumentService(pipeline, ragEngine, sessions, snapshots)
	if restored, err := documents.Restore(ctx); err != nil {
		slog.Error("Failed to restore snapshots", "error", err)
	} else if restored > 0 {
		slog.Info("Sessions restored", "count", restored)
	}

	router := http.NewRouter(&http.Deps{
		Documents:      documents,
		HealthChecks:   healthChecks,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	addr := ":" + cfg.APIPort
	server := &nethttp.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Starting API server", "addr", addr)
		slog.Debug("LLM configuration", "base_url", cfg.LLMBaseURL, "model", cfg.LLMModelName, "timeout", cfg.LLMTimeout)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			log.Fatalf("API server failed: %v", err)
		}
	case <-ctx.Done():
		slog.Info("Shutting down API server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Graceful shutdown failed", "error", err)
	}

	// Drop backend resources such as Qdrant collections
	for _, id := range sessions.IDs() {
		if state, ok := sessions.Reset(id); ok && state.Index != nil {
			if err := state.Index.Close(shutdownCtx); err != nil {
				slog.Warn("Failed to close index", "session_id", id, "error", err)
			}
		}
	}
	slog.Info("API server stopped")
}

func pingCheck(db *sql.DB) func(context.Context) error {
	return func(ctx context.Context) error {
		return db.PingContext(ctx)
	}
}
