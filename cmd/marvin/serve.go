package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MarkAustinGrow/marvins-memory/internal/api"
	"github.com/MarkAustinGrow/marvins-memory/internal/config"
	"github.com/MarkAustinGrow/marvins-memory/internal/tweets"
	pkgconfig "github.com/MarkAustinGrow/marvins-memory/pkg/config"
	"github.com/MarkAustinGrow/marvins-memory/pkg/logging"
	"github.com/MarkAustinGrow/marvins-memory/pkg/middleware"
	"github.com/MarkAustinGrow/marvins-memory/pkg/monitoring"
	"github.com/MarkAustinGrow/marvins-memory/pkg/server"
	"github.com/MarkAustinGrow/marvins-memory/pkg/version"
)

// loadRuntime builds the service logger and reads the configuration.
func loadRuntime() (logging.Logger, config.Config) {
	logger := logging.NewLoggerWithService(serviceName)
	pkgconfig.LoadEnv(logger)
	return logger, config.LoadConfig()
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the character refresher and the tweet scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, cfg := loadRuntime()
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg config.Config, logger logging.Logger) error {
	a, err := newApp(ctx, cfg, logger, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	a.persona.Start(ctx)

	var batcher api.TweetBatcher
	if a.processor != nil {
		batcher = a.processor
		scheduler, err := tweets.NewScheduler(tweets.SchedulerConfig{
			Processor:  a.processor,
			Schedule:   cfg.TweetBatchSchedule,
			RunOnStart: true,
			Logger:     logger,
		})
		if err != nil {
			return err
		}
		scheduler.Start(ctx)
		defer scheduler.Stop()
	}

	metrics := monitoring.NewMetricsCollector(serviceName, version.Version, version.GitCommit)
	router := server.SetupServiceRouter(logger, serviceName, a.health, metrics)
	protected := router.Group("/", middleware.APIKeyMiddleware(cfg.APIKey))
	api.NewHandler(api.Config{
		Memories: a.memories,
		Research: a.research,
		Tweets:   batcher,
		Profile:  a.persona,
		Logger:   logger,
	}).Register(protected)

	logger.WithFields(logging.Fields{
		"version":      version.Version,
		"vector_store": cfg.VectorStore,
		"tweets":       a.processor != nil,
		"auth":         cfg.APIKey != "",
	}).Info("Marvin memory service ready")

	return server.Run(ctx, server.DefaultConfig(serviceName, cfg.Port), router, logger)
}
