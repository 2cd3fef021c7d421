package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-analyst/pkg/adapters/datasource"
	_ "github.com/ekaya-inc/ekaya-analyst/pkg/adapters/datasource/mssql"
	_ "github.com/ekaya-inc/ekaya-analyst/pkg/adapters/datasource/postgres"
	_ "github.com/ekaya-inc/ekaya-analyst/pkg/adapters/datasource/sqlite"
	"github.com/ekaya-inc/ekaya-analyst/pkg/config"
	"github.com/ekaya-inc/ekaya-analyst/pkg/handlers"
	"github.com/ekaya-inc/ekaya-analyst/pkg/llm"
	"github.com/ekaya-inc/ekaya-analyst/pkg/logging"
	"github.com/ekaya-inc/ekaya-analyst/pkg/mcp"
	"github.com/ekaya-inc/ekaya-analyst/pkg/mcp/tools"
	"github.com/ekaya-inc/ekaya-analyst/pkg/metrics"
	"github.com/ekaya-inc/ekaya-analyst/pkg/middleware"
	"github.com/ekaya-inc/ekaya-analyst/pkg/retry"
	"github.com/ekaya-inc/ekaya-analyst/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.String("error", logging.SanitizeError(err)))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Configuration loaded",
		zap.String("version", cfg.Version),
		zap.String("environment", cfg.Env),
		zap.String("store", cfg.Store.Type),
		zap.String("primary_model", cfg.LLM.Primary.Model),
		zap.Bool("secondary_model", cfg.LLM.Secondary.Enabled()),
	)

	startup := retry.StartupConfig()
	startup.OnRetry = func(attempt int, err error) {
		logger.Warn("Store not ready, retrying",
			zap.Int("attempt", attempt),
			zap.String("error", logging.SanitizeError(err)))
	}

	factory := datasource.NewDatasourceAdapterFactory(logger)
	store, err := retry.DoWithResult(ctx, startup, func(ctx context.Context) (datasource.Store, error) {
		return factory.NewStore(ctx, cfg.Store.Type, cfg.Store.StoreMap())
	})
	if err != nil {
		return err
	}
	defer store.Close()

	schema := services.NewSchemaContextService(store, logger)
	if err := retry.Do(ctx, startup, func(ctx context.Context) error {
		_, err := schema.Load(ctx)
		return err
	}); err != nil {
		return fmt.Errorf("load schema: %w", err)
	}

	tiers, err := llm.NewTiers(
		modelConfig(cfg.LLM.Primary, "primary"),
		modelConfig(cfg.LLM.Secondary, "secondary"),
		llm.CircuitBreakerConfig{Threshold: cfg.LLM.BreakerThreshold, ResetAfter: cfg.LLM.BreakerReset},
		logger,
	)
	if err != nil {
		return fmt.Errorf("configure models: %w", err)
	}

	analysis := services.NewAnalysisService(
		schema,
		services.NewQueryGenerator(tiers, services.GeneratorConfig{
			Dialect:     store.Dialect().Name,
			CallTimeout: cfg.LLM.CallTimeout,
			Temperature: cfg.LLM.Primary.Temperature,
		}, logger),
		services.NewQueryRunner(store, services.RunnerConfig{
			Timeout:        cfg.Query.Timeout,
			CountTimeout:   cfg.Query.CountTimeout,
			MaxRows:        cfg.Query.MaxRows,
			ParameterLimit: cfg.Store.ParameterLimit,
			ScreenLiterals: !cfg.Query.SkipLiteralScreening,
		}, logger),
		services.NewVisualizationSynthesizer(services.ChartConfig{
			MaxPoints:        cfg.Charts.MaxPoints,
			MaxInferred:      cfg.Charts.MaxInferred,
			MaxPieCategories: cfg.Charts.MaxPieCategories,
		}, logger),
		services.NewNarrativeComposer(tiers.Primary, cfg.LLM.CallTimeout, logger),
		cfg.Session.Timeout,
		logger,
	)
	datasets := services.NewDatasetService(schema, store, cfg.Store.Type, logger)

	mux := http.NewServeMux()
	handlers.NewAnalysisHandler(analysis, logger).RegisterRoutes(mux)
	handlers.NewDatasetHandler(datasets, logger).RegisterRoutes(mux)
	handlers.NewHealthHandler(datasets, tiers, cfg.Version, cfg.Env, logger).RegisterRoutes(mux)

	mcpServer := mcp.NewServer("ekaya-analyst", cfg.Version, logger)
	mcpServer.RegisterAnalystTools(&tools.AnalysisToolDeps{Analysis: analysis, Datasets: datasets, Models: tiers}, cfg.Version)
	mux.Handle("/mcp", mcpServer.Handler())

	if !cfg.Metrics.Disabled {
		mux.Handle("GET /metrics", metrics.Handler())
	}

	// No WriteTimeout: analysis streams are bounded by the session timeout.
	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           middleware.Chain(mux, middleware.Metrics(), middleware.RequestLogger(logger)),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting ekaya-analyst", zap.String("addr", server.Addr), zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Session.Timeout+5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// modelConfig converts a configured tier, or returns nil when it is disabled.
func modelConfig(m config.ModelConfig, tier string) *llm.Config {
	if !m.Enabled() {
		return nil
	}
	provider := strings.ToLower(m.Provider)
	apiKey := m.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(defaultKeyEnv(provider))
	}
	endpoint := m.BaseURL
	if endpoint == "" && provider != llm.ProviderAnthropic {
		endpoint = "https://api.openai.com/v1"
	}
	return &llm.Config{
		Provider:  provider,
		Endpoint:  endpoint,
		Model:     m.Model,
		APIKey:    apiKey,
		Tier:      tier,
		MaxTokens: m.MaxTokens,
	}
}

// defaultKeyEnv names the provider's conventional API key variable.
func defaultKeyEnv(provider string) string {
	if provider == llm.ProviderAnthropic {
		return "ANTHROPIC_API_KEY"
	}
	return "OPENAI_API_KEY"
}
