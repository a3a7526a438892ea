package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/upb/ai-racers/config"
	"github.com/upb/ai-racers/internal/observability"
	"github.com/upb/ai-racers/models"
	"github.com/upb/ai-racers/repositories"
	"github.com/upb/ai-racers/repositories/postgres"
	"github.com/upb/ai-racers/services/comparison"
	"github.com/upb/ai-racers/services/pricing"
	"github.com/upb/ai-racers/services/providers"
	"github.com/upb/ai-racers/services/providers/anthropic"
	"github.com/upb/ai-racers/services/providers/gemini"
	"github.com/upb/ai-racers/services/providers/ollama"
	"github.com/upb/ai-racers/services/providers/openai"
	"github.com/upb/ai-racers/services/providers/openrouter"
	"github.com/upb/ai-racers/services/providers/xai"
)

// Dependencies holds every wired component. This is the central wiring point
// for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger

	// Dispatch
	Router       *providers.Router
	Pricing      *pricing.Resolver
	Orchestrator *comparison.Orchestrator
	Metrics      *observability.Collector

	// Run history, nil unless a database is configured
	DB          *postgres.DB
	RepoFactory *postgres.RepositoryFactory
	Runs        repositories.ComparisonRunRepository
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	deps := &Dependencies{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewCollector(),
	}

	if err := deps.initProviders(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	if err := deps.initPricing(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize pricing: %w", err)
	}

	deps.initOrchestrator(cfg)

	if cfg.Database.Enabled() {
		if err := deps.initDatabase(ctx, cfg); err != nil {
			deps.Orchestrator.Close()
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
	} else {
		logger.Debug("no database configured, run history disabled")
	}

	logger.Debug("all dependencies initialized",
		zap.Int("configured_providers", len(cfg.ConfiguredProviders())))
	return deps, nil
}

// initProviders registers one adapter per provider family behind a shared HTTP client
func (d *Dependencies) initProviders(cfg *config.Config) error {
	client := providers.NewHTTPClient(cfg.HTTP.Timeout)

	adapters := []providers.Adapter{
		openai.New(client, d.Logger),
		gemini.New(client, d.Logger),
		anthropic.New(client, d.Logger),
		xai.New(client, d.Logger),
		ollama.New(client, d.Logger, ollama.WithGenerateAPI(cfg.Providers.Ollama.UseGenerate)),
		openrouter.New(client, d.Logger, cfg.Providers.OpenRouter.Referer, cfg.Providers.OpenRouter.Title),
	}

	router, err := providers.NewRouter(d.Logger, adapters)
	if err != nil {
		return err
	}
	d.Router = router

	configured := cfg.ConfiguredProviders()
	if len(configured) == 0 {
		d.Logger.Warn("no LLM providers configured")
	}
	for _, id := range configured {
		d.Logger.Debug("provider configured", zap.String("provider", string(id)))
	}
	return nil
}

// initPricing loads the catalog override when one is configured
func (d *Dependencies) initPricing(cfg *config.Config) error {
	catalog := pricing.DefaultCatalog()
	if path := cfg.Pricing.CatalogPath; path != "" {
		loaded, err := pricing.LoadCatalogFile(path)
		if err != nil {
			return err
		}
		catalog = loaded
		d.Logger.Info("pricing catalog loaded", zap.String("path", path))
	}
	d.Pricing = pricing.NewResolver(catalog, d.Logger)
	return nil
}

func (d *Dependencies) initOrchestrator(cfg *config.Config) {
	d.Orchestrator = comparison.NewOrchestrator(d.Router, cfg, d.Logger,
		comparison.WithUpdateHook(func(result models.ComparisonResult) {
			d.Metrics.RecordResult(result)
		}),
	)
}

// initDatabase opens the run history store and creates its schema
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	if err := d.openHistory(ctx, factory); err != nil {
		factory.Close()
		return err
	}
	return nil
}

// openHistory checks the store answers queries before creating the schema
func (d *Dependencies) openHistory(ctx context.Context, factory *postgres.RepositoryFactory) error {
	if err := factory.GetDB().HealthCheck(ctx); err != nil {
		return err
	}
	if err := factory.InitSchema(ctx); err != nil {
		return err
	}

	d.attachRepositories(factory)
	return nil
}

func (d *Dependencies) attachRepositories(factory *postgres.RepositoryFactory) {
	repos := factory.NewRepositories()
	d.RepoFactory = factory
	d.DB = factory.GetDB()
	d.Runs = repos.ComparisonRuns
}

// HasHistory reports whether run history is available
func (d *Dependencies) HasHistory() bool {
	return d.Runs != nil
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Debug("shutting down dependencies")

	var errs []error

	if d.Orchestrator != nil {
		d.Orchestrator.Close()
	}

	// Close database connection
	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}

	// Sync logger
	_ = d.Logger.Sync()

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
