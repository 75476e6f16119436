// Package app wires the orchestrator's components together: storage,
// adapters, the stage registry, the scheduler, and the HTTP server.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/flowforge/orchestrator/internal/adapters/ciwait"
	"github.com/flowforge/orchestrator/internal/adapters/codehost"
	"github.com/flowforge/orchestrator/internal/adapters/roles"
	"github.com/flowforge/orchestrator/internal/adapters/secrets"
	"github.com/flowforge/orchestrator/internal/config"
	"github.com/flowforge/orchestrator/internal/domain"
	apphttp "github.com/flowforge/orchestrator/internal/http"
	"github.com/flowforge/orchestrator/internal/http/handlers"
	"github.com/flowforge/orchestrator/internal/http/middleware"
	"github.com/flowforge/orchestrator/internal/observability"
	"github.com/flowforge/orchestrator/internal/pipeline"
	pipelinehandlers "github.com/flowforge/orchestrator/internal/pipeline/handlers"
	"github.com/flowforge/orchestrator/internal/platform/logger"
	"github.com/flowforge/orchestrator/internal/store"

	"gorm.io/gorm"
)

// App holds every long-lived component the orchestrator runs.
type App struct {
	Log       *logger.Logger
	Cfg       *config.Config
	DB        *gorm.DB
	Store     *store.Store
	Publisher *store.Publisher
	Scheduler *pipeline.Scheduler
	Server    *apphttp.Server

	shutdownOTel func(context.Context) error
}

// New loads configuration, connects to storage, wires the adapter and
// handler registry, and builds the scheduler and HTTP server.
func New() (*App, error) {
	log, err := logger.New("dev")
	if err != nil {
		return nil, fmt.Errorf("app: building logger: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("app: loading config: %w", err)
	}

	db, err := store.Open(cfg.DatabaseURL, log)
	if err != nil {
		return nil, fmt.Errorf("app: opening store: %w", err)
	}
	st := store.New(db)
	publisher := store.NewPublisher(cfg.DatabaseURL, log)

	shutdownOTel := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "orchestrator",
		Environment: "dev",
		Version:     "dev",
	})

	dispatcher := roles.NewHTTPDispatcher(cfg.LLMEndpoint)
	host := codehost.NewGitHubClient(cfg.GithubToken)
	waiter := ciwait.New(host, 10*time.Second)
	scanner := secrets.New()

	registry, err := buildRegistry(dispatcher, host, waiter, scanner, cfg.GithubRepo)
	if err != nil {
		return nil, fmt.Errorf("app: building handler registry: %w", err)
	}

	scheduler := pipeline.NewScheduler(st, registry, publisher, log, pipeline.SchedulerConfig{
		PollInterval: cfg.WorkerPollInterval,
		MaxAttempts:  cfg.Retry.MaxAttempts,
		Retry: pipeline.RetryPolicy{
			MinBackoff:     cfg.Retry.MinBackoff,
			MaxBackoff:     cfg.Retry.MaxBackoff,
			JitterFraction: cfg.Retry.JitterFraction,
		},
		ReworkCaps: cfg.Retry.ReworkCaps,
	})

	taskHandler := handlers.NewTaskHandler(st, publisher, cfg.Retry.MaxAttempts)
	healthHandler := handlers.NewHealthHandler()
	webhookHandler := handlers.NewWebhookHandler(publisher, cfg.GithubWebhookSecret)
	authMiddleware := middleware.NewAuthMiddleware(log, cfg.OperatorToken)

	server := apphttp.NewServer(apphttp.RouterConfig{
		Log:         log,
		Health:      healthHandler,
		Task:        taskHandler,
		Webhook:     webhookHandler,
		Auth:        authMiddleware,
		ServiceName: "orchestrator",
	})

	return &App{
		Log:          log,
		Cfg:          cfg,
		DB:           db,
		Store:        st,
		Publisher:    publisher,
		Scheduler:    scheduler,
		Server:       server,
		shutdownOTel: shutdownOTel,
	}, nil
}

// buildRegistry registers every stage's handler, grounded on
// SPEC_FULL.md's §4.C component design.
func buildRegistry(dispatcher roles.Dispatcher, host codehost.Client, waiter *ciwait.Waiter, scanner *secrets.Scanner, repo string) (*pipelinehandlers.Registry, error) {
	registry := pipelinehandlers.NewRegistry()

	registrations := []struct {
		stage domain.Stage
		fn    pipelinehandlers.Func
	}{
		{domain.StageProduct, pipelinehandlers.Product(dispatcher)},
		{domain.StageOrchestrate, pipelinehandlers.Orchestrate(dispatcher, host, repo)},
		{domain.StageBackend, pipelinehandlers.CodeGen(dispatcher, "backend", "backend_diff")},
		{domain.StageQABackend, pipelinehandlers.QA(dispatcher, "qa_backend", "qa_backend_report", domain.StageBackend)},
		{domain.StageSecurity, pipelinehandlers.Security(scanner)},
		{domain.StageBackendGate, pipelinehandlers.BackendGate()},
		{domain.StageFrontend, pipelinehandlers.CodeGen(dispatcher, "frontend", "frontend_diff")},
		{domain.StageQAFrontend, pipelinehandlers.QA(dispatcher, "qa_frontend", "qa_frontend_report", domain.StageFrontend)},
		{domain.StageFrontendGate, pipelinehandlers.FrontendGate()},
		{domain.StageDocs, pipelinehandlers.CodeGen(dispatcher, "docs", "docs_diff")},
		{domain.StageDocsGate, pipelinehandlers.DocsGate()},
		{domain.StageCIWait, pipelinehandlers.CIWait(waiter, repo, 15*time.Minute)},
		{domain.StageHumanApproval, pipelinehandlers.HumanApproval()},
		{domain.StageMerge, pipelinehandlers.Merge(host, repo)},
	}

	for _, reg := range registrations {
		if err := registry.Register(reg.stage, reg.fn); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// Close flushes the logger and shuts down tracing.
func (a *App) Close() {
	if a.shutdownOTel != nil {
		_ = a.shutdownOTel(context.Background())
	}
	a.Log.Sync()
}
