package config

import (
	"fmt"
	"log"
	"time"

	"github.com/cloo-solutions/policyrag/internal/domain"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "POLICYRAG"

// Vector store backends.
const (
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Debug       bool   `envconfig:"DEBUG" default:"false"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`

	VectorBackend     string `envconfig:"VECTOR_BACKEND" default:"badger"`
	DatabaseURL       string `envconfig:"DATABASE_URL"`
	DBMaxConns        int32  `envconfig:"DB_MAX_CONNS" default:"10"`
	DBConnectAttempts int    `envconfig:"DB_CONNECT_ATTEMPTS" default:"3"`
	BadgerPath        string `envconfig:"BADGER_PATH" default:"./data/vectors"`
	CollectionName    string `envconfig:"COLLECTION_NAME" default:"kfg_policies"`

	OpenAIAPIKey        string `envconfig:"OPENAI_API_KEY"`
	EmbeddingBaseURL    string `envconfig:"EMBEDDING_BASE_URL"`
	EmbeddingModel      string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDimensions int    `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`

	CompletionAPIKey      string  `envconfig:"COMPLETION_API_KEY"`
	CompletionBaseURL     string  `envconfig:"COMPLETION_BASE_URL" default:"https://api.deepseek.com/v1"`
	CompletionModel       string  `envconfig:"COMPLETION_MODEL" default:"deepseek-chat"`
	CompletionMaxTokens   int     `envconfig:"COMPLETION_MAX_TOKENS" default:"4096"`
	CompletionTemperature float32 `envconfig:"COMPLETION_TEMPERATURE" default:"0.1"`

	MinSimilarityScore      float64 `envconfig:"MIN_SIMILARITY_SCORE" default:"0.3"`
	ChatSimilarityCutoff    float64 `envconfig:"CHAT_SIMILARITY_CUTOFF" default:"0.2"`
	MaxDocumentsPerQuery    int     `envconfig:"MAX_DOCUMENTS_PER_QUERY" default:"5"`
	MaxSearchResults        int     `envconfig:"MAX_SEARCH_RESULTS" default:"10"`
	MaxContextLength        int     `envconfig:"MAX_CONTEXT_LENGTH" default:"8000"`
	EnableCategoryFiltering bool    `envconfig:"ENABLE_CATEGORY_FILTERING" default:"true"`
	EnableTypeFiltering     bool    `envconfig:"ENABLE_TYPE_FILTERING" default:"true"`

	SourcePath        string        `envconfig:"SOURCE_PATH" default:"./kfg_policy"`
	OutputPath        string        `envconfig:"OUTPUT_PATH" default:"./kfg_policy"`
	OverrideRulesFile string        `envconfig:"OVERRIDE_RULES_FILE"`
	AdminToken        string        `envconfig:"ADMIN_TOKEN"`
	MaxBodyBytes      int64         `envconfig:"MAX_BODY_BYTES" default:"5242880"`
	SyncInterval      time.Duration `envconfig:"SYNC_INTERVAL" default:"0s"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"policyrag-corpus"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
	S3Prefix    string `envconfig:"S3_PREFIX"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// Validate reports missing or inconsistent settings as configuration errors.
func (c *Config) Validate() error {
	switch c.VectorBackend {
	case BackendBadger:
		if c.BadgerPath == "" {
			return domain.Wrap(domain.ErrMissingConfig, fmt.Errorf("BADGER_PATH is required for the badger backend"))
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return domain.Wrap(domain.ErrMissingConfig, fmt.Errorf("DATABASE_URL is required for the postgres backend"))
		}
	default:
		return domain.Wrap(domain.ErrInvalidConfig, fmt.Errorf("unknown VECTOR_BACKEND %q", c.VectorBackend))
	}

	if c.CollectionName == "" {
		return domain.Wrap(domain.ErrMissingConfig, fmt.Errorf("COLLECTION_NAME is required"))
	}
	if c.MinSimilarityScore < 0 || c.MinSimilarityScore > 1 {
		return domain.Wrap(domain.ErrInvalidConfig, fmt.Errorf("MIN_SIMILARITY_SCORE %v outside [0,1]", c.MinSimilarityScore))
	}
	if c.ChatSimilarityCutoff > c.MinSimilarityScore {
		return domain.Wrap(domain.ErrInvalidConfig, fmt.Errorf("CHAT_SIMILARITY_CUTOFF %v is above MIN_SIMILARITY_SCORE %v", c.ChatSimilarityCutoff, c.MinSimilarityScore))
	}
	if c.MaxDocumentsPerQuery <= 0 {
		return domain.Wrap(domain.ErrInvalidConfig, fmt.Errorf("MAX_DOCUMENTS_PER_QUERY must be positive"))
	}
	if c.MaxSearchResults <= 0 {
		return domain.Wrap(domain.ErrInvalidConfig, fmt.Errorf("MAX_SEARCH_RESULTS must be positive"))
	}
	if c.SyncInterval < 0 {
		return domain.Wrap(domain.ErrInvalidConfig, fmt.Errorf("SYNC_INTERVAL must not be negative"))
	}
	if c.EmbeddingDimensions <= 0 {
		return domain.Wrap(domain.ErrInvalidConfig, fmt.Errorf("EMBEDDING_DIMENSIONS must be positive"))
	}

	return nil
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

// HasCompletion reports whether a completion service is configured.
func (c *Config) HasCompletion() bool {
	return c.CompletionKey() != ""
}

// CompletionKey returns the completion API key, falling back to the embedding key.
func (c *Config) CompletionKey() string {
	if c.CompletionAPIKey != "" {
		return c.CompletionAPIKey
	}
	return c.OpenAIAPIKey
}

// HasAdminToken reports whether admin endpoints are enabled.
func (c *Config) HasAdminToken() bool {
	return c.AdminToken != ""
}
