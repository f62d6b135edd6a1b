package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/chunker"
	"github.com/kailas-cloud/docqa/internal/config"
	"github.com/kailas-cloud/docqa/internal/db"
	dbRedis "github.com/kailas-cloud/docqa/internal/db/redis"
	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/extract"
	"github.com/kailas-cloud/docqa/internal/index"
	logpkg "github.com/kailas-cloud/docqa/internal/logger"
	"github.com/kailas-cloud/docqa/internal/metrics"
	budgetrepo "github.com/kailas-cloud/docqa/internal/repository/budget"
	"github.com/kailas-cloud/docqa/internal/repository/embcache"
	openaiProv "github.com/kailas-cloud/docqa/internal/transport/openai"
	budgetuc "github.com/kailas-cloud/docqa/internal/usecase/budget"
	embeddinguc "github.com/kailas-cloud/docqa/internal/usecase/embedding"
	generationuc "github.com/kailas-cloud/docqa/internal/usecase/generation"
	healthuc "github.com/kailas-cloud/docqa/internal/usecase/health"
	"github.com/kailas-cloud/docqa/internal/usecase/rag"
	usageuc "github.com/kailas-cloud/docqa/internal/usecase/usage"
)

// app is the composition root shared by the server and the CLI commands.
type app struct {
	env       string
	cfg       config.Config
	logger    *zap.Logger
	store     db.Store // nil when the cache is disabled
	engine    *rag.Engine
	extractor *extract.Extractor
	health    *healthuc.Service
	usage     *usageuc.Service
}

func newApp(ctx context.Context, g *globalFlags) (*app, error) {
	env := g.env
	if env == "" {
		env = config.GetEnv()
	}

	var (
		cfg config.Config
		err error
	)
	if g.configPath != "" {
		cfg, err = config.LoadFile(g.configPath)
	} else {
		cfg, err = config.Load(env)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if g.indexDir != "" {
		cfg.Index.Dir = g.indexDir
	}

	level := cfg.Logging.Level
	if g.logLevel != "" {
		level = g.logLevel
	}
	logger, err := logpkg.NewLogger(env, level)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	a := &app{env: env, cfg: cfg, logger: logger}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context) error {
	cfg := a.cfg

	if cfg.Cache.Enabled() {
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Cache.Addrs,
			Password: cfg.Cache.Password,
		})
		if err != nil {
			return fmt.Errorf("create cache store: %w", err)
		}
		a.store = store
		if err := store.WaitForReady(ctx, time.Duration(cfg.Cache.ReadinessTimeout)*time.Second); err != nil {
			return fmt.Errorf("cache store not ready: %w", err)
		}
		a.logger.Info("Connected to embedding cache",
			zap.String("driver", cfg.Cache.Driver),
			zap.Strings("addrs", cfg.Cache.Addrs),
		)
	}

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterGenerationMetrics()
	metrics.RegisterEngineMetrics()

	// One tracker shared by embedders, generator and the usage report.
	var (
		tracker *budgetuc.Tracker
		budget  budgetChecker
		reader  usageuc.BudgetReader
	)
	if b := cfg.Provider.Budget; b.Enabled() {
		tracker = budgetuc.NewTracker(cfg.Provider.Name,
			b.DailyTokenLimit, b.MonthlyTokenLimit, budgetuc.Action(b.Action), a.logger)
		if a.store != nil {
			tracker.WithStore(ctx, budgetrepo.New(a.store, 0, 0))
		}
		// nil interface, not a typed nil pointer
		budget, reader = tracker, tracker
	}
	a.usage = usageuc.New(reader)

	docEmbedder := buildEmbedder(cfg.Provider, cfg.Provider.DocumentInstruction, a.store, cfg.Cache, budget, a.logger)
	queryEmbedder := buildEmbedder(cfg.Provider, cfg.Provider.QueryInstruction, a.store, cfg.Cache, budget, a.logger)
	generator := buildGenerator(cfg.Provider, budget, a.logger)

	engine, err := rag.Open(ctx, rag.Config{
		IndexDir:         cfg.Index.Dir,
		DefaultTopK:      cfg.Index.DefaultTopK,
		MaxTopK:          cfg.Index.MaxTopK,
		EmbedConcurrency: cfg.Index.EmbedConcurrency,
		EmbeddingModel:   cfg.Provider.EmbeddingModel,
		GenerationModel:  cfg.Provider.GenerationModel,
		ProviderURL:      cfg.Provider.BaseURL,
	}, rag.Deps{
		Splitter: chunker.New(
			chunker.WithChunkSize(cfg.Index.ChunkSize),
			chunker.WithOverlap(cfg.Index.ChunkOverlap),
		),
		DocEmbedder:   docEmbedder,
		QueryEmbedder: queryEmbedder,
		Generator:     generator,
		Logger:        a.logger,
	})
	if err != nil {
		return fmt.Errorf("open engine: %w", err)
	}
	a.engine = engine
	a.extractor = extract.New(int64(cfg.HTTP.MaxUploadMB) << 20)

	var cache healthuc.DBPinger
	if a.store != nil {
		cache = a.store
	}
	a.health = healthuc.New(
		index.Dir(cfg.Index.Dir),
		cache,
		newProviderHealthChecker("embedding", docEmbedder),
		newProviderHealthChecker("generation", generator),
	)
	return nil
}

// Close releases the cache connection and flushes the logger.
func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
	_ = a.logger.Sync()
}

// providerHealthChecker adapts an optional domain.HealthChecker to health.ProviderChecker.
type providerHealthChecker struct {
	name     string
	provider any
}

func newProviderHealthChecker(name string, provider any) *providerHealthChecker {
	return &providerHealthChecker{name: name, provider: provider}
}

func (h *providerHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.provider.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s health check: %w", h.name, err)
		}
	}
	return nil
}

// budgetChecker is satisfied by both instrumented decorators' budget interfaces.
type budgetChecker interface {
	Check(ctx context.Context) error
	Record(tokens int64)
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented -> Instruction
func buildEmbedder(
	prov config.ProviderConfig,
	instruction string,
	store db.Store,
	cacheCfg config.CacheConfig,
	budget budgetChecker,
	logger *zap.Logger,
) domain.Embedder {
	// Base provider (with transport metrics built-in)
	base := openaiProv.NewEmbedder(&openaiProv.Config{
		APIKey:     prov.APIKey,
		BaseURL:    prov.BaseURL,
		Model:      prov.EmbeddingModel,
		Dimensions: prov.EmbeddingDimensions,
		Provider:   prov.Name,
		Timeout:    time.Duration(prov.TimeoutSec) * time.Second,
		Logger:     logger,
	})

	// Cached
	var embedder domain.Embedder = base
	if store != nil {
		embedder = embcache.New(
			base, store, prov.EmbeddingModel,
			time.Duration(cacheCfg.TTLHours)*time.Hour,
			metrics.EmbeddingCacheTotal, logger,
		)
	}

	// Instrumented (budget + request usage); cache hits cost 0 tokens
	embedder = embeddinguc.NewInstrumentedEmbedder(embedder, prov.Name, prov.EmbeddingModel, logger).
		WithBudget(budget)

	// Instruction prefix is outermost, so the cache key includes it
	if instruction != "" {
		return domain.NewInstructionEmbedder(embedder, instruction)
	}

	return embedder
}

// buildGenerator assembles OpenAI -> Instrumented (metrics, usage, rate limit, budget).
func buildGenerator(prov config.ProviderConfig, budget budgetChecker, logger *zap.Logger) domain.Generator {
	temperature := float32(openaiProv.DefaultTemperature)
	if prov.Temperature != nil {
		temperature = *prov.Temperature
	}
	base := openaiProv.NewGenerator(&openaiProv.GeneratorConfig{
		Config: openaiProv.Config{
			APIKey:   prov.APIKey,
			BaseURL:  prov.BaseURL,
			Model:    prov.GenerationModel,
			Provider: prov.Name,
			Timeout:  time.Duration(prov.TimeoutSec) * time.Second,
			Logger:   logger,
		},
		Temperature: temperature,
		MaxTokens:   prov.MaxTokens,
	})
	return generationuc.NewInstrumentedGenerator(base, prov.Name, prov.GenerationModel, prov.GenerationRPM, logger).
		WithBudget(budget)
}
