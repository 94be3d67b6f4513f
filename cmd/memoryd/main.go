// Command memoryd is the cognitive memory store's daemon entrypoint,
// adapted from the teacher's cmd/server/main.go bootstrap: build a
// logger, load config, wire storage and the memory/analytics services,
// start the gRPC/HTTP servers and the Temporal worker, and shut down
// cleanly on SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"go.temporal.io/sdk/worker"

	"github.com/antigravity/cogmem/internal/agent"
	"github.com/antigravity/cogmem/internal/analytics"
	"github.com/antigravity/cogmem/internal/analytics/enrich"
	"github.com/antigravity/cogmem/internal/config"
	"github.com/antigravity/cogmem/internal/logging"
	"github.com/antigravity/cogmem/internal/memory"
	"github.com/antigravity/cogmem/internal/memory/adapters"
	"github.com/antigravity/cogmem/internal/svc"
	"github.com/antigravity/cogmem/internal/telemetry"
	"github.com/antigravity/cogmem/internal/workflow"
)

func main() {
	logger := logging.New("info")
	defer logger.Sync()

	cfg, err := config.Load(os.Getenv("COGMEM_CONFIG"))
	if err != nil {
		logger.Fatalw("failed to load config", "error", err)
	}

	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		logger.Fatalw("failed to open postgres connection", "error", err)
	}
	defer db.Close()

	metrics, err := telemetry.New()
	if err != nil {
		logger.Fatalw("failed to initialize telemetry", "error", err)
	}
	defer metrics.Shutdown(context.Background())

	store := adapters.NewPostgresStore(db, logger)
	embedder := adapters.NewGeminiEmbedder(cfg.GeminiAPIKey, 768)
	router := agent.NewLLMRouter(cfg.GeminiAPIKey, "")
	extractor := adapters.NewLLMExtractor(router, cfg.LLMProvider, cfg.LLMModel)
	summariser := adapters.NewLLMSummarizer(router, cfg.LLMProvider, cfg.LLMModel)

	memSvc := memory.NewMemoryService(store, embedder, extractor, summariser, logger, metrics, memory.NewMemoryServiceOptions{
		SemanticDedupPrefixLen: cfg.SemanticDedupPrefixLen,
	})
	memSvc.Session.SummarizeEvery = cfg.SummaryTriggerCount
	memSvc.Session.MaxContentLength = cfg.MaxSessionLength

	analyticsSvc := analytics.NewService(db, "postgres", router, cfg.LLMProvider, cfg.LLMModel, embedder,
		cfg.SQLMaxExecutionTime, cfg.SQLMaxRows, logger, metrics)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if sweeper, err := memSvc.Working.RunTTLSweeper(ctx, cfg.TTLSweepCron); err != nil {
		logger.Warnw("failed to start working-memory TTL sweeper", "error", err)
	} else {
		defer sweeper.Stop()
	}

	activities := workflow.NewActivities(enrich.NewDiscoverer(db), enrich.NewEnricher())

	go func() {
		// A separate Temporal client for the worker, same as the teacher's
		// cmd/server/main.go: the worker's client is independent of
		// whatever client internal/svc's workflow engine uses to start runs.
		tc, err := workflow.NewTemporalClient(cfg.TemporalHost, logger)
		if err != nil {
			logger.Warnw("failed to create temporal client for worker, data sourcing workflows disabled", "error", err)
			return
		}
		defer tc.Close()

		w := worker.New(tc, "cogmem-sourcing-task-queue", worker.Options{})
		w.RegisterWorkflow(workflow.DataSourcingWorkflow)
		w.RegisterActivity(activities.DiscoverMetadataActivity)
		w.RegisterActivity(activities.EnrichMetadataActivity)

		logger.Info("starting temporal worker")
		if err := w.Run(worker.InterruptCh()); err != nil {
			logger.Errorw("temporal worker stopped", "error", err)
		}
	}()

	wfEngine, err := workflow.NewEngine(cfg.TemporalHost, logger)
	if err != nil {
		logger.Warnw("failed to connect workflow engine, /analytics/source/workflow disabled", "error", err)
		wfEngine = nil
	}

	server := svc.New(memSvc, analyticsSvc, wfEngine, cfg.GRPCPort, cfg.HTTPPort, logger)
	if err := server.Run(ctx); err != nil {
		logger.Fatalw("server stopped", "error", err)
	}
}
