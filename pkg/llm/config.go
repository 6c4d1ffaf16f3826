package llm

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarkAustinGrow/marvins-memory/pkg/clients"
	"github.com/MarkAustinGrow/marvins-memory/pkg/config"
	"github.com/MarkAustinGrow/marvins-memory/pkg/logging"
)

type Config struct {
	Provider  string
	Model     string
	APIKey    string
	APIURL    string
	MaxTokens int
	Timeout   time.Duration

	// Retry overrides the default policy; zero MaxAttempts keeps the default.
	Retry  clients.RetryPolicy
	Logger logging.Logger
}

func LoadConfig() Config {
	return Config{
		Provider: config.GetEnv("LLM_PROVIDER", "openai"),
		Model:    config.GetEnv("LLM_MODEL", "gpt-4o-mini"),
		APIKey:   config.GetEnv("LLM_API_KEY", ""),
		APIURL:   config.GetEnv("LLM_API_URL", ""),
		Timeout:  config.GetEnvDuration("LLM_TIMEOUT", 60*time.Second),
	}
}

// LoadEmbeddingConfig loads embedding-specific configuration from EMBEDDING_*
// env vars, falling back to their LLM_* counterparts when unset. The model
// does not fall back: chat models cannot embed.
func LoadEmbeddingConfig() Config {
	return Config{
		Provider: config.GetEnv("EMBEDDING_PROVIDER", config.GetEnv("LLM_PROVIDER", "openai")),
		Model:    config.GetEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		APIKey:   config.GetEnv("EMBEDDING_API_KEY", config.GetEnv("LLM_API_KEY", "")),
		APIURL:   config.GetEnv("EMBEDDING_API_URL", config.GetEnv("LLM_API_URL", "")),
		Timeout:  config.GetEnvDuration("EMBEDDING_TIMEOUT", 30*time.Second),
	}
}

func NewProvider(cfg Config) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return NewOpenAIProvider(cfg), nil
	case "anthropic":
		return NewAnthropicProvider(cfg), nil
	case "ollama":
		return NewOllamaProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}

func (c Config) retryPolicy(name string) clients.RetryPolicy {
	p := c.Retry
	if p.MaxAttempts == 0 {
		p = clients.DefaultRetryPolicy(name)
		p.MaxDelay = 10 * time.Second
	}
	if p.Name == "" {
		p.Name = name
	}
	if p.ShouldRetry == nil {
		p.ShouldRetry = shouldRetry
	}
	if p.Logger == nil {
		p.Logger = c.Logger
	}
	return p
}
