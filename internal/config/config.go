// Package config provides application configuration loaded from environment
// variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/vidqa/ingestor/internal/ingesterrors"
)

// Config holds all application configuration. Required values missing at
// startup are a fatal error, never a per-job failure.
type Config struct {
	DatabaseURL string
	Port        string
	LogLevel    string
	LogFormat   string

	// OpenAIAPIKey authenticates embedding requests.
	OpenAIAPIKey        string
	EmbeddingModel      string
	EmbeddingDimensions int

	// EmbeddingRateLimit caps embedding inputs per second across all
	// workers; 0 disables the limiter.
	EmbeddingRateLimit int

	// TranscribeAPIURL is the speech-transcription service endpoint.
	TranscribeAPIURL string
	TranscribeAPIKey string

	// AudioResolverURL is the media sidecar that extracts audio tracks.
	AudioResolverURL string

	// YouTubeBaseURL overrides the caption endpoint, for tests and proxies.
	YouTubeBaseURL     string
	TranscriptLanguage string

	ChunkTargetTokens  int
	ChunkOverlapTokens int

	// IngestMaxConcurrent is the worker pool size; IngestMaxAttempts is the
	// queue-level retry bound per job.
	IngestMaxConcurrent int
	IngestMaxAttempts   int
	IngestJobTimeout    time.Duration

	AcquireTimeout    time.Duration
	TranscribeTimeout time.Duration
	EmbedTimeout      time.Duration
	WriteTimeout      time.Duration

	TranscribePollInitial  time.Duration
	TranscribePollMax      time.Duration
	TranscribePollDeadline time.Duration

	TranscriptCacheSize int
	TranscriptCacheTTL  time.Duration

	MetricsEnabled bool
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a
// default value.
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsDuration retrieves an environment variable as a duration or
// returns a default value.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func requireEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", ingesterrors.Fatal(fmt.Errorf("%s environment variable is required but not set", key))
	}

	return value, nil
}

// Load reads configuration from environment variables. It loads a .env file
// when present. Missing required values abort startup with a fatal error.
func Load() (*Config, error) {
	// Skip logging when .env is absent (e.g. env from secrets store).
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	databaseURL, err := requireEnv("DATABASE_URL")
	if err != nil {
		return nil, err
	}

	openaiKey, err := requireEnv("OPENAI_API_KEY")
	if err != nil {
		return nil, err
	}

	transcribeURL, err := requireEnv("TRANSCRIBE_API_URL")
	if err != nil {
		return nil, err
	}

	audioResolverURL, err := requireEnv("AUDIO_RESOLVER_URL")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL: databaseURL,
		Port:        getEnv("PORT", "8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "text"),

		OpenAIAPIKey:        openaiKey,
		EmbeddingModel:      getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDimensions: getEnvAsInt("EMBEDDING_DIMENSIONS", 1536),
		EmbeddingRateLimit:  getEnvAsInt("EMBEDDING_RATE_LIMIT", 100),

		TranscribeAPIURL: transcribeURL,
		TranscribeAPIKey: getEnv("TRANSCRIBE_API_KEY", ""),
		AudioResolverURL: audioResolverURL,

		YouTubeBaseURL:     getEnv("YOUTUBE_BASE_URL", ""),
		TranscriptLanguage: getEnv("TRANSCRIPT_LANGUAGE", "en"),

		ChunkTargetTokens:  getEnvAsInt("CHUNK_TARGET_TOKENS", 1000),
		ChunkOverlapTokens: getEnvAsInt("CHUNK_OVERLAP_TOKENS", 200),

		IngestMaxConcurrent: getEnvAsInt("INGEST_MAX_CONCURRENT", 4),
		IngestMaxAttempts:   getEnvAsInt("INGEST_MAX_ATTEMPTS", 5),
		IngestJobTimeout:    getEnvAsDuration("INGEST_JOB_TIMEOUT", 30*time.Minute),

		AcquireTimeout:    getEnvAsDuration("ACQUIRE_TIMEOUT", 30*time.Second),
		TranscribeTimeout: getEnvAsDuration("TRANSCRIBE_TIMEOUT", 20*time.Minute),
		EmbedTimeout:      getEnvAsDuration("EMBED_TIMEOUT", 2*time.Minute),
		WriteTimeout:      getEnvAsDuration("WRITE_TIMEOUT", time.Minute),

		TranscribePollInitial:  getEnvAsDuration("TRANSCRIBE_POLL_INITIAL", 2*time.Second),
		TranscribePollMax:      getEnvAsDuration("TRANSCRIBE_POLL_MAX", 30*time.Second),
		TranscribePollDeadline: getEnvAsDuration("TRANSCRIBE_POLL_DEADLINE", 15*time.Minute),

		TranscriptCacheSize: getEnvAsInt("TRANSCRIPT_CACHE_SIZE", 256),
		TranscriptCacheTTL:  getEnvAsDuration("TRANSCRIPT_CACHE_TTL", time.Hour),

		MetricsEnabled: getEnv("METRICS_ENABLED", "true") == "true",
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.ChunkTargetTokens <= 0 {
		return ingesterrors.Fatal(errors.New("CHUNK_TARGET_TOKENS must be a positive integer"))
	}

	if c.ChunkOverlapTokens < 0 || c.ChunkOverlapTokens >= c.ChunkTargetTokens {
		return ingesterrors.Fatal(errors.New("CHUNK_OVERLAP_TOKENS must be non-negative and smaller than CHUNK_TARGET_TOKENS"))
	}

	if c.IngestMaxConcurrent <= 0 {
		return ingesterrors.Fatal(errors.New("INGEST_MAX_CONCURRENT must be a positive integer"))
	}

	if c.IngestMaxAttempts <= 0 {
		return ingesterrors.Fatal(errors.New("INGEST_MAX_ATTEMPTS must be a positive integer"))
	}

	if c.EmbeddingDimensions <= 0 {
		return ingesterrors.Fatal(errors.New("EMBEDDING_DIMENSIONS must be a positive integer"))
	}

	return nil
}
