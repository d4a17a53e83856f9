package app

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nomad/internal/common"
	"github.com/ternarybob/nomad/internal/handlers"
	"github.com/ternarybob/nomad/internal/interfaces"
	"github.com/ternarybob/nomad/internal/services/documents"
	"github.com/ternarybob/nomad/internal/services/embeddings"
	"github.com/ternarybob/nomad/internal/services/generation"
	"github.com/ternarybob/nomad/internal/services/llm"
	"github.com/ternarybob/nomad/internal/services/retrieval"
	"github.com/ternarybob/nomad/internal/services/session"
	"github.com/ternarybob/nomad/internal/services/vectorindex"
	badgerstore "github.com/ternarybob/nomad/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager interfaces.StorageManager

	// Domain services
	LLMService       interfaces.LLMService
	EmbeddingService interfaces.EmbeddingService
	VectorIndex      *vectorindex.Index
	DocumentService  interfaces.DocumentService
	RetrievalService interfaces.RetrievalService
	SessionManager   *session.Manager
	Orchestrator     *generation.Orchestrator

	// Handlers
	WSHandler       *handlers.WebSocketHandler
	DocumentHandler *handlers.DocumentHandler
	APIHandler      *handlers.APIHandler

	maintenance *cron.Cron
}

// New creates the application: storage, services, handlers, and the
// maintenance schedule, in dependency order.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	a := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := a.initStorage(); err != nil {
		return nil, err
	}
	if err := a.initServices(); err != nil {
		return nil, err
	}
	a.initHandlers()
	if err := a.initMaintenance(); err != nil {
		return nil, err
	}

	logger.Info().Msg("Application initialized")
	return a, nil
}

func (a *App) initStorage() error {
	manager, err := badgerstore.NewManager(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.StorageManager = manager
	return nil
}

func (a *App) initServices() error {
	a.LLMService = llm.NewService(&a.Config.LLM, a.Config.Embeddings.Model, a.Logger)

	embedder, err := embeddings.NewService(a.LLMService, a.StorageManager.CacheStorage(), &a.Config.Embeddings, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize embedding service: %w", err)
	}
	a.EmbeddingService = embedder

	a.VectorIndex = vectorindex.NewIndex(a.StorageManager.VectorStorage(), a.Config.Embeddings.Dimension, a.Logger)
	if err := a.VectorIndex.Load(); err != nil {
		return fmt.Errorf("failed to load vector index: %w", err)
	}

	documentService := documents.NewService(a.StorageManager.DocumentStorage(), a.EmbeddingService, a.VectorIndex, &a.Config.Documents, a.Logger)
	if err := documentService.RepairHashIndex(); err != nil {
		return fmt.Errorf("failed to repair hash index: %w", err)
	}
	a.DocumentService = documentService
	a.RetrievalService = retrieval.NewService(a.EmbeddingService, a.VectorIndex, a.DocumentService, &a.Config.Retrieval, a.Logger)

	a.SessionManager = session.NewManager(&a.Config.Session, a.Logger)
	a.SessionManager.StartSweep()

	a.Orchestrator = generation.NewOrchestrator(a.LLMService, a.RetrievalService, a.DocumentService, a.SessionManager, a.Logger)
	return nil
}

func (a *App) initHandlers() {
	a.WSHandler = handlers.NewWebSocketHandler(a.SessionManager, a.Orchestrator, a.DocumentService, a.Logger)
	a.DocumentHandler = handlers.NewDocumentHandler(a.DocumentService, a.EmbeddingService, a.VectorIndex, a.Logger)
	a.APIHandler = handlers.NewAPIHandler(a.LLMService, a.DocumentService, a.SessionManager, a.Logger)
}

// initMaintenance schedules the periodic embedding-cache flush and vector
// index integrity check.
func (a *App) initMaintenance() error {
	a.maintenance = cron.New()

	_, err := a.maintenance.AddFunc(a.Config.Maintenance.Schedule, func() {
		if err := a.EmbeddingService.FlushCache(); err != nil {
			a.Logger.Warn().Err(err).Msg("Scheduled cache flush failed")
		}
		if err := a.VectorIndex.Rebuild(); err != nil {
			a.Logger.Warn().Err(err).Msg("Scheduled index check failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid maintenance schedule %q: %w", a.Config.Maintenance.Schedule, err)
	}

	a.maintenance.Start()
	a.Logger.Debug().Str("schedule", a.Config.Maintenance.Schedule).Msg("Maintenance schedule started")
	return nil
}

// Close shuts the application down in reverse dependency order
func (a *App) Close() error {
	a.Logger.Info().Msg("Shutting down application")

	if a.maintenance != nil {
		ctx := a.maintenance.Stop()
		<-ctx.Done()
	}

	if a.SessionManager != nil {
		a.SessionManager.StopSweep()
	}

	if a.EmbeddingService != nil {
		if err := a.EmbeddingService.FlushCache(); err != nil {
			a.Logger.Warn().Err(err).Msg("Final cache flush failed")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
	}

	a.Logger.Info().Msg("Application stopped")
	return nil
}
