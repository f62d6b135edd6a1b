package docqa

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/chunker"
	"github.com/kailas-cloud/docqa/internal/db"
	dbRedis "github.com/kailas-cloud/docqa/internal/db/redis"
	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/extract"
	"github.com/kailas-cloud/docqa/internal/index"
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

const (
	defaultIndexDir         = "data/vector_store"
	defaultReadinessTimeout = 10 * time.Second
	defaultCacheTTL         = 7 * 24 * time.Hour
	sdkProviderName         = "sdk"
)

// Внутренние интерфейсы для подмены в тестах.
type engine interface {
	AddDocument(ctx context.Context, text string, meta domain.DocumentMeta) (rag.AddResult, error)
	Query(ctx context.Context, question string, topK int) ([]rag.Context, error)
	Ask(ctx context.Context, question string, topK int) (rag.Answer, error)
	Clear(ctx context.Context) error
	Stats() rag.Stats
	Documents() []domain.DocumentRecord
}

type textExtractor interface {
	Extract(ctx context.Context, path, fileType string) (string, error)
}

// Client is the docqa SDK entry point.
type Client struct {
	store     db.Store // nil without a cache
	engine    engine
	extractor textExtractor
	healthSvc healthUseCase
	usageSvc  usageUseCase
	obs       *observer
}

// New opens (or creates) the index and wires the providers.
// The provided context is used for the cache readiness check and for loading the index.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		indexDir: defaultIndexDir,
		cacheTTL: defaultCacheTTL,
	}
	for _, o := range opts {
		o.apply(cfg)
	}

	emb, gen, err := resolveProviders(cfg)
	if err != nil {
		return nil, err
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	var store db.Store
	if cfg.cacheDriver != "" {
		store, err = createStore(cfg)
		if err != nil {
			return nil, err
		}
		if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
			store.Close()
			return nil, fmt.Errorf("docqa: cache not ready: %w", err)
		}
	}

	c, err := wireClient(ctx, cfg, store, emb, gen, obs)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, err
	}
	return c, nil
}

// resolveProviders picks explicit providers first, then the OpenAI-compatible endpoint.
func resolveProviders(cfg *clientConfig) (domain.Embedder, domain.Generator, error) {
	var (
		emb domain.Embedder
		gen domain.Generator
	)
	if cfg.embedder != nil {
		emb = adaptEmbedder(cfg.embedder)
	}
	if cfg.generator != nil {
		gen = &generatorAdapter{inner: cfg.generator}
	}
	if oa := cfg.openAI; oa != nil {
		base := openaiProv.Config{
			APIKey:   oa.apiKey,
			BaseURL:  oa.baseURL,
			Provider: "openai",
			Timeout:  oa.timeout,
		}
		if emb == nil {
			ec := base
			ec.Model = oa.embeddingModel
			emb = openaiProv.NewEmbedder(&ec)
		}
		if gen == nil {
			gc := base
			gc.Model = oa.generationModel
			gen = openaiProv.NewGenerator(&openaiProv.GeneratorConfig{
				Config:      gc,
				Temperature: openaiProv.DefaultTemperature,
			})
		}
	}
	if emb == nil {
		return nil, nil, errors.New("docqa: embedder required (use WithEmbedder or WithOpenAI)")
	}
	if gen == nil {
		return nil, nil, errors.New("docqa: generator required (use WithGenerator or WithOpenAI)")
	}
	return emb, gen, nil
}

func createStore(cfg *clientConfig) (db.Store, error) {
	switch cfg.cacheDriver {
	case "valkey", "redis":
		// rueidis speaks RESP to both
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.cacheAddrs,
			Password: cfg.cachePassword,
		})
		if err != nil {
			return nil, fmt.Errorf("docqa: create %s store: %w", cfg.cacheDriver, err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("docqa: unknown cache driver %q", cfg.cacheDriver)
	}
}

func wireClient(
	ctx context.Context,
	cfg *clientConfig,
	store db.Store,
	emb domain.Embedder,
	gen domain.Generator,
	obs *observer,
) (*Client, error) {
	logger := zap.NewNop()
	embModel, genModel := modelName(cfg.openAI, true), modelName(cfg.openAI, false)

	// Cached -> Instrumented -> Instruction, same order as the server
	var chain domain.Embedder = emb
	if store != nil {
		chain = embcache.New(chain, store, embModel, cfg.cacheTTL, metrics.EmbeddingCacheTotal, logger)
	}
	var tracker *budgetuc.Tracker
	if cfg.dailyTokenLimit > 0 || cfg.monthlyTokenLimit > 0 {
		action := budgetuc.ActionWarn
		if cfg.rejectOverBudget {
			action = budgetuc.ActionReject
		}
		tracker = budgetuc.NewTracker(sdkProviderName, cfg.dailyTokenLimit, cfg.monthlyTokenLimit, action, logger)
		if store != nil {
			tracker.WithStore(ctx, budgetrepo.New(store, 0, 0))
		}
	}
	var (
		embBudget embeddinguc.BudgetChecker
		genBudget generationuc.BudgetChecker
		reader    usageuc.BudgetReader
	)
	if tracker != nil {
		embBudget, genBudget, reader = tracker, tracker, tracker
	}

	chain = embeddinguc.NewInstrumentedEmbedder(chain, sdkProviderName, embModel, logger).WithBudget(embBudget)
	docEmb, queryEmb := chain, chain
	if cfg.documentInstruction != "" {
		docEmb = domain.NewInstructionEmbedder(chain, cfg.documentInstruction)
	}
	if cfg.queryInstruction != "" {
		queryEmb = domain.NewInstructionEmbedder(chain, cfg.queryInstruction)
	}
	instGen := generationuc.NewInstrumentedGenerator(gen, sdkProviderName, genModel, 0, logger).WithBudget(genBudget)

	var chunkOpts []chunker.Option
	if cfg.chunkSize > 0 {
		chunkOpts = append(chunkOpts,
			chunker.WithChunkSize(cfg.chunkSize),
			chunker.WithOverlap(cfg.chunkOverlap),
		)
	}

	eng, err := rag.Open(ctx, rag.Config{
		IndexDir:         cfg.indexDir,
		DefaultTopK:      cfg.defaultTopK,
		MaxTopK:          cfg.maxTopK,
		EmbedConcurrency: cfg.embedConcurrency,
		PromptTemplate:   cfg.promptTemplate,
		EmbeddingModel:   embModel,
		GenerationModel:  genModel,
	}, rag.Deps{
		Splitter:      chunker.New(chunkOpts...),
		DocEmbedder:   docEmb,
		QueryEmbedder: queryEmb,
		Generator:     instGen,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("docqa: open index: %w", err)
	}

	var cache healthuc.DBPinger
	if store != nil {
		cache = store
	}
	return &Client{
		store:     store,
		engine:    eng,
		extractor: extract.New(cfg.maxFileBytes),
		healthSvc: healthuc.New(index.Dir(cfg.indexDir), cache, providerProbe(emb), providerProbe(gen)),
		usageSvc:  usageuc.New(reader),
		obs:       obs,
	}, nil
}

func modelName(oa *openAIConfig, embedding bool) string {
	switch {
	case oa == nil:
		return "custom"
	case embedding:
		return oa.embeddingModel
	default:
		return oa.generationModel
	}
}

// Close releases the cache connection.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// AddText chunks, embeds and indexes text.
func (c *Client) AddText(ctx context.Context, text string, info DocumentInfo) (res AddResult, err error) {
	start := time.Now()
	ctx, usage := domain.NewContextWithUsage(ctx)
	defer func() { c.obs.observe("add_text", start, usage, err) }()

	r, err := c.engine.AddDocument(ctx, text, domain.DocumentMeta{
		Filename: info.Filename,
		FileType: info.FileType,
		Extra:    domain.ExtraCopy(info.Extra),
	})
	if err != nil {
		return AddResult{}, fmt.Errorf("add text: %w", err)
	}
	return AddResult{DocumentID: r.DocumentID, Chunks: r.Chunks}, nil
}

// AddFile extracts text from the file at path and indexes it.
// The file type is taken from the extension.
func (c *Client) AddFile(ctx context.Context, path string) (res AddResult, err error) {
	start := time.Now()
	ctx, usage := domain.NewContextWithUsage(ctx)
	defer func() { c.obs.observe("add_file", start, usage, err) }()

	ext := extract.FileExtension(path)
	if !extract.Supported(ext) {
		return AddResult{}, fmt.Errorf("add file: %w: %q", domain.ErrUnsupportedFileType, ext)
	}
	text, err := c.extractor.Extract(ctx, path, ext)
	if err != nil {
		return AddResult{}, fmt.Errorf("add file: %w", err)
	}
	r, err := c.engine.AddDocument(ctx, text, domain.DocumentMeta{
		Filename: filepath.Base(path),
		FileType: ext,
	})
	if err != nil {
		return AddResult{}, fmt.Errorf("add file: %w", err)
	}
	return AddResult{DocumentID: r.DocumentID, Chunks: r.Chunks}, nil
}

// Query returns the topK chunks closest to text. topK 0 uses the default.
func (c *Client) Query(ctx context.Context, text string, topK int) (res []Context, err error) {
	start := time.Now()
	ctx, usage := domain.NewContextWithUsage(ctx)
	defer func() { c.obs.observe("query", start, usage, err) }()

	contexts, err := c.engine.Query(ctx, text, topK)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return contextsFromRAG(contexts), nil
}

// Ask answers question from the indexed documents.
// Generation failures come back as an Answer, not an error.
func (c *Client) Ask(ctx context.Context, question string, topK int) (res Answer, err error) {
	start := time.Now()
	ctx, usage := domain.NewContextWithUsage(ctx)
	defer func() { c.obs.observe("ask", start, usage, err) }()

	ans, err := c.engine.Ask(ctx, question, topK)
	if err != nil {
		return Answer{}, fmt.Errorf("ask: %w", err)
	}
	return Answer{
		Answer:     ans.Answer,
		Contexts:   contextsFromRAG(ans.Contexts),
		HasContext: ans.HasContext,
	}, nil
}

// Clear deletes the persisted index and all documents.
func (c *Client) Clear(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("clear", start, nil, err) }()

	if err = c.engine.Clear(ctx); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	return nil
}

// Stats describes the index.
func (c *Client) Stats() Stats {
	return statsFromRAG(c.engine.Stats())
}

// Documents lists ingested documents in ingestion order.
func (c *Client) Documents() []Document {
	return documentsFromRAG(c.engine.Documents())
}
