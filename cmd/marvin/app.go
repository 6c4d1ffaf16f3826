package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarkAustinGrow/marvins-memory/internal/config"
	"github.com/MarkAustinGrow/marvins-memory/internal/curiosity"
	"github.com/MarkAustinGrow/marvins-memory/internal/embedding"
	"github.com/MarkAustinGrow/marvins-memory/internal/memory"
	"github.com/MarkAustinGrow/marvins-memory/internal/persona"
	"github.com/MarkAustinGrow/marvins-memory/internal/research"
	"github.com/MarkAustinGrow/marvins-memory/internal/tweets"
	"github.com/MarkAustinGrow/marvins-memory/internal/vectorstore"
	"github.com/MarkAustinGrow/marvins-memory/pkg/clients"
	"github.com/MarkAustinGrow/marvins-memory/pkg/database"
	"github.com/MarkAustinGrow/marvins-memory/pkg/llm"
	"github.com/MarkAustinGrow/marvins-memory/pkg/logging"
	"github.com/MarkAustinGrow/marvins-memory/pkg/monitoring"
	"github.com/MarkAustinGrow/marvins-memory/pkg/version"
)

const serviceName = "marvin"

// app holds the constructed services shared by every command.
type app struct {
	cfg    config.Config
	logger logging.Logger

	db        *sql.DB
	store     vectorstore.Store
	embedder  *embedding.Embedder
	persona   *persona.Manager
	gate      *memory.Gate
	memories  *memory.Service
	oracle    *curiosity.Oracle
	research  *research.Orchestrator
	processor *tweets.Processor
	health    *monitoring.HealthChecker
}

type appOptions struct {
	// tweets builds the tweet processor even when TWEETS_ENABLED is off.
	tweets bool
}

func newApp(ctx context.Context, cfg config.Config, logger logging.Logger, opts appOptions) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	a := &app{
		cfg:    cfg,
		logger: logger,
		health: monitoring.NewHealthChecker(serviceName, version.Version),
	}
	withTweets := cfg.TweetsEnabled || opts.tweets

	if cfg.NeedsDatabase() || withTweets {
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required for tweet processing")
		}
		db, err := database.Connect(ctx, database.Config{
			URL:             cfg.DatabaseURL,
			MaxOpenConns:    cfg.DatabaseMaxOpenConns,
			MaxIdleConns:    cfg.DatabaseMaxIdleConns,
			ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
			PingTimeout:     cfg.DatabasePingTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		a.db = db
		a.health.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	}

	if err := a.buildMemory(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.buildResearch(); err != nil {
		a.Close()
		return nil, err
	}
	if withTweets {
		if err := a.buildTweets(); err != nil {
			a.Close()
			return nil, err
		}
	}

	a.health.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"LLM_API_KEY":        cfg.LLM.APIKey,
		"PERPLEXITY_API_KEY": cfg.PerplexityAPIKey,
	}))
	return a, nil
}

func (a *app) buildMemory(ctx context.Context) error {
	cfg := a.cfg

	embedClient, err := a.embeddingClient(ctx)
	if err != nil {
		return err
	}
	a.embedder, err = embedding.New(embedding.Config{
		Client:     embedClient,
		Dimensions: cfg.EmbeddingDimensions,
		CacheSize:  cfg.EmbeddingCacheSize,
		Logger:     a.logger,
	})
	if err != nil {
		return err
	}

	switch cfg.VectorStore {
	case config.VectorStorePostgres:
		pg, err := vectorstore.NewPostgresStore(vectorstore.PostgresConfig{
			DB:         a.db,
			Table:      cfg.VectorTable,
			Dimensions: cfg.EmbeddingDimensions,
			Logger:     a.logger,
		})
		if err != nil {
			return err
		}
		schemaCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := pg.EnsureSchema(schemaCtx); err != nil {
			return err
		}
		a.store = pg
	default:
		mem, err := vectorstore.NewMemoryStore(cfg.EmbeddingDimensions)
		if err != nil {
			return err
		}
		a.logger.Warn("Using the in-process vector store; memories are lost on restart")
		a.store = mem
	}
	a.health.AddCheck("vector_store", monitoring.PingHealthCheck("vector_store", a.store, false))

	var source persona.Source
	switch {
	case cfg.CharacterID != "":
		source = persona.NewPostgresSource(a.db, cfg.CharacterID)
	case cfg.CharacterFile != "":
		source = persona.NewFileSource(cfg.CharacterFile)
	}
	a.persona = persona.NewManager(persona.ManagerConfig{
		Source:        source,
		PollInterval:  cfg.CharacterPollInterval,
		RetryInterval: cfg.CharacterRetryInterval,
		Logger:        a.logger,
	})
	loadCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := a.persona.Load(loadCtx); err != nil {
		a.logger.WithError(err).Warn("Failed to load character, using the default profile")
	}
	a.logger.WithFields(logging.Fields{
		"character": a.persona.Current().Name,
		"version":   a.persona.Version(),
	}).Info("Character loaded")

	cfg.LLM.Logger = a.logger
	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		return err
	}
	a.gate, err = memory.NewGate(memory.GateConfig{
		Store:        a.store,
		Embedder:     a.embedder,
		Scorer:       persona.NewScorer(provider, a.persona),
		Persona:      a.persona,
		MinAlignment: cfg.MinAlignmentScore,
		Logger:       a.logger,
	})
	if err != nil {
		return err
	}
	a.memories, err = memory.NewService(memory.ServiceConfig{Gate: a.gate, Logger: a.logger})
	if err != nil {
		return err
	}

	a.oracle = curiosity.New(curiosity.Config{
		LLM:            provider,
		Profiles:       a.persona,
		GuidelinesFile: cfg.CuriosityGuidelinesFile,
		Logger:         a.logger,
	})
	a.logger.WithFields(logging.Fields{
		"file":  cfg.CuriosityGuidelinesFile,
		"bytes": len(a.oracle.Guidelines()),
	}).Info("Curiosity guidelines loaded")
	return nil
}

// embeddingClient picks the deterministic hash embedder for offline runs
// and the HTTP provider otherwise.
func (a *app) embeddingClient(ctx context.Context) (llm.EmbeddingClient, error) {
	cfg := a.cfg.Embedding
	if strings.EqualFold(cfg.Provider, "hash") {
		a.logger.Warn("Using hash embeddings; similarity is lexical only")
		return embedding.HashClient{Dimensions: a.cfg.EmbeddingDimensions}, nil
	}
	cfg.Logger = a.logger
	breakerCfg := clients.DefaultCircuitBreakerConfig("embeddings")
	breakerCfg.Logger = a.logger
	client, err := llm.NewEmbeddingClient(cfg, clients.NewCircuitBreaker(breakerCfg))
	if err != nil {
		return nil, err
	}

	probeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	dims, err := llm.ProbeEmbeddingDimensions(probeCtx, client)
	switch {
	case err != nil:
		a.logger.WithError(err).Warn("Embedding provider unavailable at startup, zero vectors will be stored until it recovers")
	case dims != a.cfg.EmbeddingDimensions:
		return nil, fmt.Errorf("embedding model %s returns %d dimensions, EMBEDDING_DIMENSIONS is %d", cfg.Model, dims, a.cfg.EmbeddingDimensions)
	}
	return client, nil
}

func (a *app) buildResearch() error {
	cfg := a.cfg
	var client research.Client
	if cfg.PerplexityAPIKey == "" {
		a.logger.Warn("PERPLEXITY_API_KEY is not set, research calls will fail")
		client = unconfiguredResearch{}
	} else {
		breakerCfg := clients.DefaultCircuitBreakerConfig("perplexity")
		breakerCfg.Logger = a.logger
		pplx, err := research.NewPerplexityClient(research.PerplexityConfig{
			APIKey:      cfg.PerplexityAPIKey,
			APIURL:      cfg.PerplexityAPIURL,
			Model:       cfg.PerplexityModel,
			Timeout:     cfg.ResearchTimeout,
			MaxAttempts: cfg.ResearchMaxRetries,
			MaxBackoff:  cfg.ResearchMaxBackoff,
			Breaker:     clients.NewCircuitBreaker(breakerCfg),
			Logger:      a.logger,
		})
		if err != nil {
			return err
		}
		client = pplx
	}

	var err error
	a.research, err = research.NewOrchestrator(research.OrchestratorConfig{
		Client:        client,
		Gate:          a.gate,
		AutoApprove:   cfg.ResearchAutoApprove,
		MaxInsights:   cfg.ResearchMaxInsights,
		MinConfidence: cfg.ResearchMinConfidence,
		Logger:        a.logger,
	})
	return err
}

func (a *app) buildTweets() error {
	source, err := tweets.NewSQLSource(a.db, a.cfg.TweetsTable)
	if err != nil {
		return err
	}
	a.processor, err = tweets.NewProcessor(tweets.ProcessorConfig{
		Source:     source,
		Oracle:     a.oracle,
		Researcher: a.research,
		Gate:       a.gate,
		BatchLimit: a.cfg.TweetBatchLimit,
		ItemDelay:  a.cfg.TweetItemDelay,
		Logger:     a.logger,
	})
	return err
}

// Close releases everything newApp opened. It is safe on a partially
// built app.
func (a *app) Close() {
	if a.persona != nil {
		a.persona.Stop()
	}
	if a.embedder != nil {
		a.embedder.Close()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.WithError(err).Warn("Error closing database")
		}
	}
}

// unconfiguredResearch stands in for the research API when no key is set.
type unconfiguredResearch struct{}

func (unconfiguredResearch) Query(context.Context, string) (research.Answer, error) {
	return research.Answer{}, &research.APIError{Kind: research.KindAuth, Message: "Perplexity API key is not configured"}
}
