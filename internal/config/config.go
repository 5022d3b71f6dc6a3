package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Embedding providers accepted by EMBEDDING_PROVIDER.
const (
	EmbeddingProviderOllama  = "ollama"
	EmbeddingProviderOpenAI  = "openai"
	EmbeddingProviderHashing = "hashing"
)

// Index backends accepted by INDEX_BACKEND.
const (
	IndexBackendChromem    = "chromem"
	IndexBackendBruteForce = "bruteforce"
	IndexBackendQdrant     = "qdrant"
)

// Config holds all configuration for the application.
type Config struct {
	LLMBaseURL     string
	LLMModelName   string
	LLMAPIKey      string
	LLMTimeout     time.Duration
	LLMMaxTokens   int
	LLMTemperature float32

	EmbeddingProvider  string
	EmbeddingBaseURL   string
	EmbeddingModelName string
	EmbeddingAPIKey    string
	EmbeddingDim       int
	EmbeddingBatchSize int

	IndexBackend           string
	QdrantURL              string
	QdrantCollectionPrefix string

	ChunkSize    int
	ChunkOverlap int
	TopK         int

	MaxUploadBytes int64
	DBPath         string
	APIPort        string

	LogLevel  slog.Level
	LogFormat string
}

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates required fields.
// If a .env file exists in the current directory or project root, it will be loaded automatically.
// Environment variables already set take precedence over .env file values.
func Load() (*Config, error) {
	// Try current directory first, then walk up looking for a .env file
	_ = godotenv.Load()

	wd, err := os.Getwd()
	if err == nil {
		dir := wd
		for i := 0; i < 5; i++ { // Limit search depth
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	cfg := &Config{
		LLMBaseURL:             strings.TrimRight(getEnv("LLM_BASE_URL", "https://router.huggingface.co"), "/"),
		LLMModelName:           getEnv("LLM_MODEL", "meta-llama/Llama-3.1-8B-Instruct"),
		LLMAPIKey:              getEnv("HUGGINGFACEHUB_API_TOKEN", getEnv("LLM_API_KEY", "")),
		EmbeddingProvider:      strings.ToLower(getEnv("EMBEDDING_PROVIDER", EmbeddingProviderOllama)),
		EmbeddingBaseURL:       strings.TrimRight(getEnv("EMBEDDING_BASE_URL", "http://localhost:11434"), "/"),
		EmbeddingModelName:     getEnv("EMBEDDING_MODEL", "all-minilm"),
		EmbeddingAPIKey:        getEnv("EMBEDDING_API_KEY", ""),
		IndexBackend:           strings.ToLower(getEnv("INDEX_BACKEND", IndexBackendChromem)),
		QdrantURL:              getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantCollectionPrefix: getEnv("QDRANT_COLLECTION_PREFIX", "pdfchat"),
		DBPath:                 getEnv("DB_PATH", ""),
		APIPort:                getEnv("API_PORT", "8000"),
		LogFormat:              strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}

	// The hosted model cannot be called without a token
	if cfg.LLMAPIKey == "" {
		return nil, fmt.Errorf("HUGGINGFACEHUB_API_TOKEN (or LLM_API_KEY) is required")
	}

	if cfg.LLMTimeout, err = getDuration("LLM_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.LLMMaxTokens, err = getPositiveInt("LLM_MAX_TOKENS", 512); err != nil {
		return nil, err
	}
	temperature, err := strconv.ParseFloat(getEnv("LLM_TEMPERATURE", "0.5"), 32)
	if err != nil {
		return nil, fmt.Errorf("LLM_TEMPERATURE must be a valid number: %w", err)
	}
	if temperature < 0 || temperature > 2 {
		return nil, fmt.Errorf("LLM_TEMPERATURE must be between 0 and 2")
	}
	cfg.LLMTemperature = float32(temperature)

	switch cfg.EmbeddingProvider {
	case EmbeddingProviderOllama, EmbeddingProviderOpenAI, EmbeddingProviderHashing:
	default:
		return nil, fmt.Errorf("EMBEDDING_PROVIDER must be one of %s, %s, %s", EmbeddingProviderOllama, EmbeddingProviderOpenAI, EmbeddingProviderHashing)
	}
	// Note: EMBEDDING_DIM must match the model output for the openai provider.
	// all-minilm (all-MiniLM-L6-v2) produces 384 dimensions.
	if cfg.EmbeddingDim, err = getPositiveInt("EMBEDDING_DIM", 384); err != nil {
		return nil, err
	}
	if cfg.EmbeddingBatchSize, err = getPositiveInt("EMBEDDING_BATCH_SIZE", 32); err != nil {
		return nil, err
	}

	switch cfg.IndexBackend {
	case IndexBackendChromem, IndexBackendBruteForce, IndexBackendQdrant:
	default:
		return nil, fmt.Errorf("INDEX_BACKEND must be one of %s, %s, %s", IndexBackendChromem, IndexBackendBruteForce, IndexBackendQdrant)
	}

	if cfg.ChunkSize, err = getPositiveInt("CHUNK_SIZE", 1000); err != nil {
		return nil, err
	}
	if cfg.ChunkOverlap, err = getInt("CHUNK_OVERLAP", 200); err != nil {
		return nil, err
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap*2 >= cfg.ChunkSize {
		return nil, fmt.Errorf("CHUNK_OVERLAP must be >= 0 and less than half of CHUNK_SIZE")
	}

	if cfg.TopK, err = getPositiveInt("TOP_K", 3); err != nil {
		return nil, err
	}
	if cfg.TopK > 20 {
		return nil, fmt.Errorf("TOP_K must be at most 20")
	}

	maxUpload, err := getPositiveInt("MAX_UPLOAD_BYTES", 32<<20)
	if err != nil {
		return nil, err
	}
	cfg.MaxUploadBytes = int64(maxUpload)

	if cfg.LogLevel, err = parseLogLevel(getEnv("LOG_LEVEL", "info")); err != nil {
		return nil, err
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("LOG_FORMAT must be text or json")
	}

	// Create the data directory for the snapshot database
	if cfg.DBPath != "" {
		dataDir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	return cfg, nil
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return v, nil
}

func getPositiveInt(key string, defaultValue int) (int, error) {
	v, err := getInt(key, defaultValue)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}
	return v, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid duration: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}
	return d, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL must be debug, info, warn or error: %w", err)
	}
	return level, nil
}
