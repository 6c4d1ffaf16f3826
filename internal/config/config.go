package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarkAustinGrow/marvins-memory/pkg/config"
	"github.com/MarkAustinGrow/marvins-memory/pkg/llm"
)

const (
	VectorStorePostgres = "postgres"
	VectorStoreMemory   = "memory"
)

// Config stores environment configuration for the memory service.
type Config struct {
	Port        string
	DatabaseURL string
	APIKey      string

	DatabaseMaxOpenConns    int
	DatabaseMaxIdleConns    int
	DatabaseConnMaxLifetime time.Duration
	DatabasePingTimeout     time.Duration

	VectorStore         string
	VectorTable         string
	EmbeddingDimensions int
	EmbeddingCacheSize  int

	LLM       llm.Config
	Embedding llm.Config

	MinAlignmentScore float64

	CharacterID            string
	CharacterFile          string
	CharacterPollInterval  time.Duration
	CharacterRetryInterval time.Duration

	CuriosityGuidelinesFile string

	PerplexityAPIKey   string
	PerplexityAPIURL   string
	PerplexityModel    string
	ResearchTimeout    time.Duration
	ResearchMaxRetries int
	ResearchMaxBackoff time.Duration

	ResearchAutoApprove   bool
	ResearchMaxInsights   int
	ResearchMinConfidence float64

	TweetsEnabled      bool
	TweetsTable        string
	TweetBatchSchedule string
	TweetBatchLimit    int
	TweetItemDelay     time.Duration
}

// LoadConfig loads the configuration from environment variables.
func LoadConfig() Config {
	return Config{
		Port:        config.GetEnv("PORT", "18020"),
		DatabaseURL: config.GetEnv("DATABASE_URL", ""),
		APIKey:      config.GetEnv("API_KEY", ""),

		DatabaseMaxOpenConns:    config.GetEnvInt("DATABASE_MAX_OPEN_CONNS", 10),
		DatabaseMaxIdleConns:    config.GetEnvInt("DATABASE_MAX_IDLE_CONNS", 2),
		DatabaseConnMaxLifetime: config.GetEnvDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		DatabasePingTimeout:     config.GetEnvDuration("DATABASE_PING_TIMEOUT", 10*time.Second),

		VectorStore:         strings.ToLower(config.GetEnv("VECTOR_STORE", VectorStorePostgres)),
		VectorTable:         config.GetEnv("VECTOR_TABLE", "marvin.memories"),
		EmbeddingDimensions: config.GetEnvInt("EMBEDDING_DIMENSIONS", 1536),
		EmbeddingCacheSize:  config.GetEnvInt("EMBEDDING_CACHE_SIZE", 10000),

		LLM:       llm.LoadConfig(),
		Embedding: llm.LoadEmbeddingConfig(),

		MinAlignmentScore: config.GetEnvFloat("MIN_ALIGNMENT_SCORE", 0.7),

		CharacterID:            config.GetEnv("CHARACTER_ID", ""),
		CharacterFile:          config.GetEnv("CHARACTER_FILE", ""),
		CharacterPollInterval:  config.GetEnvDuration("CHARACTER_POLL_INTERVAL", 5*time.Minute),
		CharacterRetryInterval: config.GetEnvDuration("CHARACTER_RETRY_INTERVAL", time.Minute),

		CuriosityGuidelinesFile: config.GetEnv("CURIOSITY_GUIDELINES_FILE", ""),

		PerplexityAPIKey:   config.GetEnv("PERPLEXITY_API_KEY", ""),
		PerplexityAPIURL:   config.GetEnv("PERPLEXITY_API_URL", "https://api.perplexity.ai"),
		PerplexityModel:    config.GetEnv("PERPLEXITY_MODEL", "pplx-70b-online"),
		ResearchTimeout:    config.GetEnvDuration("RESEARCH_TIMEOUT", 30*time.Second),
		ResearchMaxRetries: config.GetEnvInt("RESEARCH_MAX_RETRIES", 3),
		ResearchMaxBackoff: config.GetEnvDuration("RESEARCH_MAX_BACKOFF", 60*time.Second),

		ResearchAutoApprove:   config.GetEnvBool("RESEARCH_AUTO_APPROVE", false),
		ResearchMaxInsights:   config.GetEnvInt("RESEARCH_MAX_INSIGHTS", 5),
		ResearchMinConfidence: config.GetEnvFloat("RESEARCH_MIN_CONFIDENCE", 0.7),

		TweetsEnabled:      config.GetEnvBool("TWEETS_ENABLED", false),
		TweetsTable:        config.GetEnv("TWEETS_TABLE", "tweets_cache"),
		TweetBatchSchedule: config.GetEnv("TWEET_BATCH_SCHEDULE", "@every 6h"),
		TweetBatchLimit:    config.GetEnvInt("TWEET_BATCH_LIMIT", 10),
		TweetItemDelay:     config.GetEnvDuration("TWEET_ITEM_DELAY", 2*time.Second),
	}
}

// NeedsDatabase reports whether any configured component reads Postgres.
func (c Config) NeedsDatabase() bool {
	return c.VectorStore == VectorStorePostgres || c.TweetsEnabled || c.CharacterID != ""
}

// Validate reports every configuration problem at once.
func (c Config) Validate() error {
	var errs []error
	switch c.VectorStore {
	case VectorStorePostgres, VectorStoreMemory:
	default:
		errs = append(errs, fmt.Errorf("VECTOR_STORE must be %q or %q, got %q", VectorStorePostgres, VectorStoreMemory, c.VectorStore))
	}
	if c.NeedsDatabase() && c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required for the postgres vector store, tweet processing and database-backed characters"))
	}
	if c.DatabaseMaxOpenConns <= 0 {
		errs = append(errs, fmt.Errorf("DATABASE_MAX_OPEN_CONNS must be positive, got %d", c.DatabaseMaxOpenConns))
	}
	if c.DatabaseMaxIdleConns > c.DatabaseMaxOpenConns {
		errs = append(errs, fmt.Errorf("DATABASE_MAX_IDLE_CONNS (%d) exceeds DATABASE_MAX_OPEN_CONNS (%d)", c.DatabaseMaxIdleConns, c.DatabaseMaxOpenConns))
	}
	if c.EmbeddingDimensions <= 0 {
		errs = append(errs, fmt.Errorf("EMBEDDING_DIMENSIONS must be positive, got %d", c.EmbeddingDimensions))
	}
	if c.MinAlignmentScore < 0 || c.MinAlignmentScore > 1 {
		errs = append(errs, fmt.Errorf("MIN_ALIGNMENT_SCORE must be within [0,1], got %v", c.MinAlignmentScore))
	}
	if c.ResearchMinConfidence < 0 || c.ResearchMinConfidence > 1 {
		errs = append(errs, fmt.Errorf("RESEARCH_MIN_CONFIDENCE must be within [0,1], got %v", c.ResearchMinConfidence))
	}
	if c.ResearchMaxInsights <= 0 {
		errs = append(errs, fmt.Errorf("RESEARCH_MAX_INSIGHTS must be positive, got %d", c.ResearchMaxInsights))
	}
	if c.TweetBatchLimit <= 0 {
		errs = append(errs, fmt.Errorf("TWEET_BATCH_LIMIT must be positive, got %d", c.TweetBatchLimit))
	}
	return errors.Join(errs...)
}
