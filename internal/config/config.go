// Package config provides configuration loading for the write pipeline.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/igualparatodos/multiwoven/internal/core"
	"github.com/igualparatodos/multiwoven/internal/embedding"
	"github.com/igualparatodos/multiwoven/internal/loader"
	"github.com/igualparatodos/multiwoven/internal/objectstore"
)

// Config holds process-wide settings.
type Config struct {
	// Temporal settings
	TemporalAddress   string
	TemporalNamespace string
	TemporalTaskQueue string

	// Database settings
	DatabaseURL string

	// Loader defaults
	PageSize           int
	DefaultConcurrency int
	DefaultBatchSize   int

	// Embedding settings
	EmbeddingProvider string
	EmbeddingModel    string
	EmbeddingDim      int
	OpenAIAPIKey      string
	OpenAIBaseURL     string

	// Report archive settings
	MinioEndpoint        string
	MinioAccessKey       string
	MinioSecretKey       string
	MinioRegion          string
	MinioUseSSL          bool
	ReportsBucket        string
	ReportsPrefix        string
	ReportsLocalDir      string
	ReportsRetentionDays int

	LogLevel string
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		TemporalAddress:   getEnv("TEMPORAL_ADDRESS", "localhost:7233"),
		TemporalNamespace: getEnv("TEMPORAL_NAMESPACE", "default"),
		TemporalTaskQueue: getEnv("TEMPORAL_TASK_QUEUE", "reverse-etl"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		PageSize:           getEnvInt("LOADER_PAGE_SIZE", loader.DefaultPageSize),
		DefaultConcurrency: getEnvInt("LOADER_CONCURRENCY", loader.DefaultConcurrency),
		DefaultBatchSize:   getEnvInt("LOADER_BATCH_SIZE", loader.DefaultBatchSize),

		EmbeddingProvider: getEnv("EMBEDDING_PROVIDER", embedding.ProviderZero),
		EmbeddingModel:    getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDim:      getEnvInt("EMBEDDING_DIM", embedding.DefaultDim),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", ""),

		MinioEndpoint:        getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey:       getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey:       getEnv("MINIO_SECRET_KEY", ""),
		MinioRegion:          getEnv("MINIO_REGION", ""),
		MinioUseSSL:          getEnvBool("MINIO_USE_SSL", false),
		ReportsBucket:        getEnv("REPORTS_BUCKET", "sync-reports"),
		ReportsPrefix:        getEnv("REPORTS_PREFIX", "runs"),
		ReportsLocalDir:      getEnv("REPORTS_LOCAL_DIR", filepath.Join(os.TempDir(), "sync-reports")),
		ReportsRetentionDays: getEnvInt("REPORTS_RETENTION_DAYS", 0),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// LoaderConfig returns the loader defaults.
func (c *Config) LoaderConfig() loader.Config {
	return loader.Config{
		PageSize:           c.PageSize,
		DefaultConcurrency: c.DefaultConcurrency,
		DefaultBatchSize:   c.DefaultBatchSize,
	}
}

// Embedding returns the default embedding provider settings.
func (c *Config) Embedding() embedding.Config {
	return embedding.Config{
		Provider: c.EmbeddingProvider,
		Model:    c.EmbeddingModel,
		APIKey:   c.OpenAIAPIKey,
		BaseURL:  c.OpenAIBaseURL,
		Dim:      c.EmbeddingDim,
	}
}

// Embedders returns the provider set used by vector rules. Rules naming
// "local" or "zero" get those providers; any other name gets the default.
func (c *Config) Embedders() *embedding.Set {
	dim := c.EmbeddingDim
	return embedding.NewSet(embedding.New(c.Embedding())).
		Add(embedding.ProviderLocal, embedding.New(embedding.Config{Provider: embedding.ProviderLocal, Dim: dim})).
		Add(embedding.ProviderZero, embedding.New(embedding.Config{Provider: embedding.ProviderZero, Dim: dim}))
}

// ObjectStore returns a MinIO client when credentials are set and a local
// store otherwise.
func (c *Config) ObjectStore() (objectstore.ObjectStore, error) {
	if c.MinioEndpoint != "" && c.MinioAccessKey != "" && c.MinioSecretKey != "" {
		client, err := objectstore.NewS3Client(objectstore.S3Config{
			EndpointURL:     c.MinioEndpoint,
			AccessKeyID:     c.MinioAccessKey,
			SecretAccessKey: c.MinioSecretKey,
			Region:          c.MinioRegion,
			UseSSL:          c.MinioUseSSL,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	return objectstore.NewLocalStore(c.ReportsLocalDir), nil
}

// Logger builds the process logger at the configured level.
func (c *Config) Logger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

// LoadSyncConfig reads a YAML or JSON sync configuration and prepares it.
func LoadSyncConfig(path string) (*core.SyncConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sync config: %w", err)
	}
	return ParseSyncConfig(data)
}

// ParseSyncConfig decodes and prepares a sync configuration.
func ParseSyncConfig(data []byte) (*core.SyncConfig, error) {
	var cfg core.SyncConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, core.NewError(core.CodeInvalidConfig, false, fmt.Errorf("decode sync config: %w", err))
	}
	if cfg.Destination.Connector == "" {
		return nil, core.NewError(core.CodeInvalidConfig, false, fmt.Errorf("destination.connector is required"))
	}
	if err := cfg.Prepare(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
