// -----------------------------------------------------------------------
// App - application wiring and lifecycle
// -----------------------------------------------------------------------

package app

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/handlers"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/services/extractor"
	"github.com/ternarybob/colligo/internal/services/llm"
	"github.com/ternarybob/colligo/internal/services/pipeline"
	"github.com/ternarybob/colligo/internal/services/tasks"
	"github.com/ternarybob/colligo/internal/storage"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Core services
	Extractor     interfaces.ContentExtractor
	LLMService    interfaces.LLMService
	Embedder      interfaces.EmbeddingService
	Limiter       *pipeline.ClassLimiter
	Registry      *tasks.Registry
	Retention     *tasks.Retention
	ArtifactStore interfaces.ArtifactStore
	Orchestrator  *pipeline.Orchestrator

	// HTTP handlers
	APIHandler      *handlers.APIHandler
	TaskHandler     *handlers.TaskHandler
	ArtifactHandler *handlers.ArtifactHandler
}

// New creates the application with all services wired
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	a := &App{
		Config: config,
		Logger: logger,
	}

	factory := llm.NewProviderFactory(config, logger)
	a.LLMService = factory
	a.Embedder = llm.NewEmbedder(factory)

	a.Extractor = extractor.NewService(config.Extractor, logger)

	a.Limiter = pipeline.NewClassLimiter(logger)
	a.Limiter.SetRPM(pipeline.UsageRepair, config.Pipeline.RepairMaxRPM)
	a.Limiter.SetRPM(pipeline.UsageSummarize, config.Pipeline.SummarizeMaxRPM)

	a.Registry = tasks.NewRegistry(logger)

	store, err := storage.NewBadgerArtifactStore(config.Storage.Badger.Path, logger)
	if err != nil {
		return nil, err
	}
	a.ArtifactStore = store

	retention, err := tasks.NewRetention(a.Registry, config.Retention.Schedule, config.Retention.MaxAge, store.RunGC, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	a.Retention = retention
	a.Retention.Start()

	snap := pipeline.NewSnapshotter(config.Pipeline.DebugMode, config.Pipeline.DebugDir, logger)

	a.Orchestrator = pipeline.NewOrchestrator(
		a.Extractor,
		a.LLMService,
		a.Embedder,
		a.Limiter,
		a.Registry,
		a.ArtifactStore,
		snap,
		config.Pipeline,
		logger,
	)

	a.APIHandler = handlers.NewAPIHandler(logger)
	a.TaskHandler = handlers.NewTaskHandler(a.Orchestrator, a.Registry, logger)
	a.ArtifactHandler = handlers.NewArtifactHandler(a.ArtifactStore, logger)

	logger.Info().
		Str("environment", config.Environment).
		Str("default_provider", config.LLM.DefaultProvider).
		Msg("Application initialized")

	return a, nil
}

// Close shuts down services in reverse dependency order
func (a *App) Close() {
	if a.Retention != nil {
		a.Retention.Stop()
	}
	if a.Extractor != nil {
		if err := a.Extractor.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close extractor")
		}
	}
	if a.LLMService != nil {
		if err := a.LLMService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close LLM service")
		}
	}
	if a.ArtifactStore != nil {
		if err := a.ArtifactStore.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close artifact store")
		}
	}
	a.Logger.Info().Msg("Application closed")
}
