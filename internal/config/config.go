package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the docqa configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
	Index    IndexConfig    `yaml:"index"`
	Provider ProviderConfig `yaml:"provider"`
	Cache    CacheConfig    `yaml:"cache"`
	Upload   UploadConfig   `yaml:"upload"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
	MaxUploadMB     int `yaml:"max_upload_mb"`
}

// IndexConfig holds chunking, retrieval and persistence settings.
type IndexConfig struct {
	Dir              string `yaml:"dir"`
	ChunkSize        int    `yaml:"chunk_size"`
	ChunkOverlap     int    `yaml:"chunk_overlap"`
	DefaultTopK      int    `yaml:"default_top_k"`
	MaxTopK          int    `yaml:"max_top_k"`
	EmbedConcurrency int    `yaml:"embed_concurrency"`
}

// ProviderConfig holds the OpenAI-compatible endpoint used for embeddings and generation.
type ProviderConfig struct {
	Name                string   `yaml:"name"` // metrics label
	BaseURL             string   `yaml:"base_url"`
	APIKey              string   `yaml:"api_key"`
	TimeoutSec          int      `yaml:"timeout_sec"`
	EmbeddingModel      string   `yaml:"embedding_model"`
	EmbeddingDimensions int      `yaml:"embedding_dimensions"` // 0 = model default
	GenerationModel     string   `yaml:"generation_model"`
	Temperature         *float32 `yaml:"temperature"`
	MaxTokens           int      `yaml:"max_tokens"`     // 0 = provider default
	GenerationRPM       int      `yaml:"generation_rpm"` // 0 = unlimited
	DocumentInstruction string   `yaml:"document_instruction"`
	QueryInstruction    string   `yaml:"query_instruction"`

	Budget BudgetConfig `yaml:"budget"`
}

// BudgetConfig limits provider tokens (embedding + generation) per UTC day and month.
type BudgetConfig struct {
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`   // 0 = unlimited
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"` // 0 = unlimited
	Action            string `yaml:"action"`              // warn, reject (default: warn)
}

// Enabled reports whether any limit is set.
func (b BudgetConfig) Enabled() bool {
	return b.DailyTokenLimit > 0 || b.MonthlyTokenLimit > 0
}

// CacheConfig holds the embedding cache store settings.
type CacheConfig struct {
	Driver           string   `yaml:"driver"` // none, redis, valkey (default: none)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	TTLHours         int      `yaml:"ttl_hours"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// Enabled reports whether an external cache store is configured.
func (c CacheConfig) Enabled() bool {
	return c.Driver != "none"
}

// UploadConfig holds upload settings.
type UploadConfig struct {
	AllowedExtensions []string `yaml:"allowed_extensions"`
	TempDir           string   `yaml:"temp_dir"` // "" = os.TempDir()
}

// Defaults that match the reference Ollama setup.
const (
	DefaultBaseURL         = "http://localhost:11434/v1"
	DefaultEmbeddingModel  = "nomic-embed-text"
	DefaultGenerationModel = "llama3.2"
	DefaultTemperature     = float32(0.7)
)

var defaultExtensions = []string{"pdf", "docx", "doc", "png", "jpg", "jpeg", "bmp", "tiff", "txt", "md"}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit YAML path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadDotEnv loads variables from .env files into the process environment
// without overriding existing ones. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 30
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 120 // генерация на CPU бывает долгой
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.MaxUploadMB <= 0 {
		c.HTTP.MaxUploadMB = 50
	}
	if c.Index.Dir == "" {
		c.Index.Dir = filepath.Join("data", "vector_store")
	}
	if c.Index.ChunkSize <= 0 {
		c.Index.ChunkSize = 1000
	}
	if c.Index.ChunkOverlap < 0 {
		c.Index.ChunkOverlap = 0
	}
	if c.Index.DefaultTopK <= 0 {
		c.Index.DefaultTopK = 3
	}
	if c.Index.MaxTopK <= 0 {
		c.Index.MaxTopK = 20
	}
	if c.Index.EmbedConcurrency <= 0 {
		c.Index.EmbedConcurrency = 4
	}
	if c.Provider.Name == "" {
		c.Provider.Name = "ollama"
	}
	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = DefaultBaseURL
	}
	if c.Provider.TimeoutSec <= 0 {
		c.Provider.TimeoutSec = 120
	}
	if c.Provider.EmbeddingModel == "" {
		c.Provider.EmbeddingModel = DefaultEmbeddingModel
	}
	if c.Provider.GenerationModel == "" {
		c.Provider.GenerationModel = DefaultGenerationModel
	}
	if c.Provider.Temperature == nil {
		t := DefaultTemperature
		c.Provider.Temperature = &t
	}
	if c.Provider.Budget.Action == "" {
		c.Provider.Budget.Action = "warn"
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = "none"
	}
	if c.Cache.TTLHours <= 0 {
		c.Cache.TTLHours = 24 * 7
	}
	if c.Cache.ReadinessTimeout <= 0 {
		c.Cache.ReadinessTimeout = 10
	}
	if len(c.Upload.AllowedExtensions) == 0 {
		c.Upload.AllowedExtensions = append([]string(nil), defaultExtensions...)
	}
	for i, ext := range c.Upload.AllowedExtensions {
		c.Upload.AllowedExtensions[i] = strings.ToLower(strings.TrimPrefix(ext, "."))
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Index.ChunkOverlap >= c.Index.ChunkSize {
		return fmt.Errorf("index.chunk_overlap (%d) must be less than index.chunk_size (%d)",
			c.Index.ChunkOverlap, c.Index.ChunkSize)
	}
	if c.Index.MaxTopK < c.Index.DefaultTopK {
		return fmt.Errorf("index.max_top_k (%d) must be at least index.default_top_k (%d)",
			c.Index.MaxTopK, c.Index.DefaultTopK)
	}
	if t := c.Provider.Temperature; t != nil && (*t < 0 || *t > 2) {
		return fmt.Errorf("provider.temperature must be between 0 and 2, got %v", *t)
	}
	if c.Provider.GenerationRPM < 0 {
		return fmt.Errorf("provider.generation_rpm must not be negative, got %d", c.Provider.GenerationRPM)
	}
	if b := c.Provider.Budget; b.DailyTokenLimit < 0 || b.MonthlyTokenLimit < 0 {
		return fmt.Errorf("provider.budget limits must not be negative")
	}
	if a := c.Provider.Budget.Action; a != "warn" && a != "reject" {
		return fmt.Errorf("provider.budget.action must be \"warn\" or \"reject\", got %q", a)
	}
	switch c.Cache.Driver {
	case "none":
	case "redis", "valkey":
		if len(c.Cache.Addrs) == 0 {
			return fmt.Errorf("cache.addrs is required for driver %q", c.Cache.Driver)
		}
	default:
		return fmt.Errorf("cache.driver must be \"none\", \"redis\" or \"valkey\", got %q", c.Cache.Driver)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
