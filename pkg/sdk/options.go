package docqa

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	indexDir string

	embedder  Embedder
	generator Generator
	openAI    *openAIConfig

	cacheDriver   string // "valkey" or "redis"
	cacheAddrs    []string
	cachePassword string
	cacheTTL      time.Duration

	chunkSize        int
	chunkOverlap     int
	defaultTopK      int
	maxTopK          int
	embedConcurrency int
	maxFileBytes     int64

	documentInstruction string
	queryInstruction    string
	promptTemplate      string

	dailyTokenLimit   int64
	monthlyTokenLimit int64
	rejectOverBudget  bool

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

type openAIConfig struct {
	baseURL         string
	apiKey          string
	embeddingModel  string
	generationModel string
	timeout         time.Duration
}

// WithIndexDir sets the directory holding the persisted index.
// Defaults to data/vector_store.
func WithIndexDir(dir string) Option {
	return optionFunc(func(c *clientConfig) {
		c.indexDir = dir
	})
}

// WithOpenAI uses an OpenAI-compatible endpoint (OpenAI, Ollama, vLLM, ...)
// for both embeddings and generation. Explicit WithEmbedder / WithGenerator win.
func WithOpenAI(baseURL, apiKey, embeddingModel, generationModel string) Option {
	return optionFunc(func(c *clientConfig) {
		c.openAI = &openAIConfig{
			baseURL:         baseURL,
			apiKey:          apiKey,
			embeddingModel:  embeddingModel,
			generationModel: generationModel,
			timeout:         2 * time.Minute,
		}
	})
}

// WithEmbedder sets the text embedding provider.
func WithEmbedder(e Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
	})
}

// WithGenerator sets the answer generation provider.
func WithGenerator(g Generator) Option {
	return optionFunc(func(c *clientConfig) {
		c.generator = g
	})
}

// WithValkey caches embeddings in a Valkey instance.
func WithValkey(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.cacheDriver = "valkey"
		c.cacheAddrs = []string{addr}
		c.cachePassword = password
	})
}

// WithRedis caches embeddings in a Redis instance.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.cacheDriver = "redis"
		c.cacheAddrs = []string{addr}
		c.cachePassword = password
	})
}

// WithCacheTTL sets how long cached embeddings live. Default: 7 days.
func WithCacheTTL(ttl time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.cacheTTL = ttl
	})
}

// WithChunking sets the chunk size and overlap in characters.
// Defaults: 1000 and 150.
func WithChunking(size, overlap int) Option {
	return optionFunc(func(c *clientConfig) {
		c.chunkSize = size
		c.chunkOverlap = overlap
	})
}

// WithTopK sets the default and maximum number of retrieved chunks.
// Defaults: 3 and 20.
func WithTopK(defaultK, maxK int) Option {
	return optionFunc(func(c *clientConfig) {
		c.defaultTopK = defaultK
		c.maxTopK = maxK
	})
}

// WithEmbedConcurrency limits parallel embedding calls during ingestion.
func WithEmbedConcurrency(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedConcurrency = n
	})
}

// WithMaxFileSize limits the size of files passed to AddFile. Default: 50 MiB.
func WithMaxFileSize(bytes int64) Option {
	return optionFunc(func(c *clientConfig) {
		c.maxFileBytes = bytes
	})
}

// WithInstructions sets prefixes prepended to document and query texts
// before embedding (e.g. "search_document: " / "search_query: ").
func WithInstructions(document, query string) Option {
	return optionFunc(func(c *clientConfig) {
		c.documentInstruction = document
		c.queryInstruction = query
	})
}

// WithPromptTemplate overrides the answer prompt.
// The template must contain {context} and {question}.
func WithPromptTemplate(tmpl string) Option {
	return optionFunc(func(c *clientConfig) {
		c.promptTemplate = tmpl
	})
}

// WithTokenBudget limits provider tokens per UTC day and month (0 = unlimited).
// With reject=false an exhausted budget is only logged.
func WithTokenBudget(daily, monthly int64, reject bool) Option {
	return optionFunc(func(c *clientConfig) {
		c.dailyTokenLimit = daily
		c.monthlyTokenLimit = monthly
		c.rejectOverBudget = reject
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
