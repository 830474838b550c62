package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/claimsight-ai/claimsight-engine/pkg/analyzer"
	"github.com/claimsight-ai/claimsight-engine/pkg/audit"
	"github.com/claimsight-ai/claimsight-engine/pkg/config"
	"github.com/claimsight-ai/claimsight-engine/pkg/executor"
	"github.com/claimsight-ai/claimsight-engine/pkg/handlers"
	"github.com/claimsight-ai/claimsight-engine/pkg/llm"
	"github.com/claimsight-ai/claimsight-engine/pkg/logging"
	"github.com/claimsight-ai/claimsight-engine/pkg/middleware"
	"github.com/claimsight-ai/claimsight-engine/pkg/parser"
	"github.com/claimsight-ai/claimsight-engine/pkg/planner"
	"github.com/claimsight-ai/claimsight-engine/pkg/registry"
	"github.com/claimsight-ai/claimsight-engine/pkg/retry"
	"github.com/claimsight-ai/claimsight-engine/pkg/services"
	enginesql "github.com/claimsight-ai/claimsight-engine/pkg/sql"
	"github.com/claimsight-ai/claimsight-engine/pkg/validator"
	"github.com/claimsight-ai/claimsight-engine/pkg/warehouse"
	"github.com/claimsight-ai/claimsight-engine/pkg/warehouse/mssql"
	"github.com/claimsight-ai/claimsight-engine/pkg/warehouse/postgres"
)

// Version is injected at build time via -ldflags.
var Version = "dev"

func main() {
	cfg, err := config.Load("config.yaml", Version)
	if err != nil {
		// No logger yet; stderr is all we have.
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		os.Stderr.WriteString("failed to build logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("engine exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The registry must load and validate before anything serves. A broken
	// schema or rule set is a configuration error, not a degraded mode.
	snap, err := registry.Load(cfg.Registry.SchemaPath, cfg.Registry.RulesPath)
	if err != nil {
		return err
	}
	reg := registry.New(snap, logger)
	logger.Info("registry loaded",
		zap.Int("tables", len(snap.Schema.Tables)),
		zap.Int("rules", len(snap.Rules)))

	norms, err := analyzer.LoadNorms(cfg.Registry.NormsPath)
	if err != nil {
		return err
	}

	wh, err := connectWarehouse(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer wh.Close()

	reasoningClient, err := llm.NewClient(&llm.Config{
		Provider: cfg.Reasoning.Provider,
		Endpoint: cfg.Reasoning.Endpoint,
		Model:    cfg.Reasoning.Model,
		APIKey:   cfg.Reasoning.APIKey,
	}, logger)
	if err != nil {
		return err
	}

	dialect := enginesql.Dialect(cfg.Warehouse.Dialect)
	builder, err := planner.New(dialect, logger)
	if err != nil {
		return err
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxRetries = cfg.Executor.MaxRetries

	pipeline := services.NewPipeline(
		reg,
		parser.New(reasoningClient, logger),
		validator.New(validator.Config{ConfidenceThreshold: cfg.Pipeline.ConfidenceThreshold}, logger),
		builder,
		executor.New(wh, executor.Config{
			StatementTimeout: cfg.Executor.StatementTimeout,
			MaxRows:          cfg.Executor.MaxRows,
			MaxResultBytes:   cfg.Executor.MaxResultBytes,
			Retry:            retryCfg,
		}, logger),
		analyzer.New(analyzer.Config{
			TolerancePercent: cfg.Analyzer.TrendTolerancePercent,
			AnomalySigma:     cfg.Analyzer.AnomalySigma,
			Norms:            norms,
		}, logger),
		audit.NewMemoryRecorder(logger),
		logger,
	)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewQueryHandler(pipeline, &registryReloader{reg: reg, cfg: cfg.Registry}, logger).RegisterRoutes(mux)

	server := &http.Server{
		Addr:    cfg.BindAddr + ":" + cfg.Port,
		Handler: middleware.RequestLogger(logger)(mux),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("engine listening",
			zap.String("addr", server.Addr),
			zap.String("dialect", cfg.Warehouse.Dialect),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return server.Shutdown(shutdownCtx)
}

func connectWarehouse(ctx context.Context, cfg *config.Config, logger *zap.Logger) (warehouse.Warehouse, error) {
	connStr := cfg.Warehouse.ConnectionString()
	logger.Info("connecting warehouse",
		zap.String("dialect", cfg.Warehouse.Dialect),
		zap.String("conn", logging.SanitizeConnectionString(connStr)))

	if cfg.Warehouse.Dialect == string(enginesql.DialectMSSQL) {
		wh, err := mssql.New(connStr)
		if err != nil {
			return nil, err
		}
		return wh, wh.Ping(ctx)
	}

	wh, err := postgres.New(ctx, connStr)
	if err != nil {
		return nil, err
	}
	return wh, wh.Ping(ctx)
}

// registryReloader adapts the registry's path-taking reload to the handler's
// zero-argument interface.
type registryReloader struct {
	reg *registry.Registry
	cfg config.RegistryConfig
}

func (r *registryReloader) Reload() error {
	return r.reg.Reload(r.cfg.SchemaPath, r.cfg.RulesPath)
}
