package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validConfig() Config {
	cfg := Config{HTTP: HTTPConfig{Port: 8000}}
	cfg.ApplyDefaults()
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 30 {
		t.Errorf("expected ReadTimeoutSec=30, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 120 {
		t.Errorf("expected WriteTimeoutSec=120, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.HTTP.MaxUploadMB != 50 {
		t.Errorf("expected MaxUploadMB=50, got %d", cfg.HTTP.MaxUploadMB)
	}
	if cfg.Index.ChunkSize != 1000 || cfg.Index.ChunkOverlap != 0 {
		t.Errorf("expected chunk 1000/0, got %d/%d", cfg.Index.ChunkSize, cfg.Index.ChunkOverlap)
	}
	if cfg.Index.DefaultTopK != 3 || cfg.Index.MaxTopK != 20 {
		t.Errorf("expected top_k 3/20, got %d/%d", cfg.Index.DefaultTopK, cfg.Index.MaxTopK)
	}
	if cfg.Index.Dir != filepath.Join("data", "vector_store") {
		t.Errorf("unexpected index dir %q", cfg.Index.Dir)
	}
	if cfg.Provider.BaseURL != DefaultBaseURL {
		t.Errorf("expected BaseURL=%q, got %q", DefaultBaseURL, cfg.Provider.BaseURL)
	}
	if cfg.Provider.EmbeddingModel != DefaultEmbeddingModel || cfg.Provider.GenerationModel != DefaultGenerationModel {
		t.Errorf("unexpected models %q/%q", cfg.Provider.EmbeddingModel, cfg.Provider.GenerationModel)
	}
	if cfg.Provider.Temperature == nil || *cfg.Provider.Temperature != DefaultTemperature {
		t.Errorf("expected temperature %v, got %v", DefaultTemperature, cfg.Provider.Temperature)
	}
	if cfg.Cache.Driver != "none" || cfg.Cache.Enabled() {
		t.Errorf("expected cache disabled, got driver %q", cfg.Cache.Driver)
	}
	if cfg.Provider.Budget.Action != "warn" || cfg.Provider.Budget.Enabled() {
		t.Errorf("expected unlimited warn budget, got %+v", cfg.Provider.Budget)
	}
	if cfg.Cache.TTLHours != 168 {
		t.Errorf("expected TTLHours=168, got %d", cfg.Cache.TTLHours)
	}
	if len(cfg.Upload.AllowedExtensions) != 10 {
		t.Errorf("expected 10 default extensions, got %v", cfg.Upload.AllowedExtensions)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	zero := float32(0)
	cfg := Config{
		HTTP:     HTTPConfig{ReadTimeoutSec: 5, WriteTimeoutSec: 60, ShutdownSec: 5},
		Index:    IndexConfig{Dir: "/var/lib/docqa", ChunkSize: 500, ChunkOverlap: 50, DefaultTopK: 5, MaxTopK: 10},
		Provider: ProviderConfig{BaseURL: "https://api.openai.com/v1", Temperature: &zero},
		Cache:    CacheConfig{Driver: "redis", TTLHours: 1},
		Upload:   UploadConfig{AllowedExtensions: []string{".TXT", "md"}},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 5 || cfg.HTTP.WriteTimeoutSec != 60 {
		t.Errorf("timeouts overridden: %+v", cfg.HTTP)
	}
	if cfg.Index.Dir != "/var/lib/docqa" || cfg.Index.ChunkSize != 500 || cfg.Index.ChunkOverlap != 50 {
		t.Errorf("index overridden: %+v", cfg.Index)
	}
	if *cfg.Provider.Temperature != 0 {
		t.Errorf("explicit zero temperature overridden: %v", *cfg.Provider.Temperature)
	}
	if cfg.Cache.TTLHours != 1 {
		t.Errorf("expected TTLHours=1, got %d", cfg.Cache.TTLHours)
	}
	if strings.Join(cfg.Upload.AllowedExtensions, ",") != "txt,md" {
		t.Errorf("expected normalized extensions, got %v", cfg.Upload.AllowedExtensions)
	}
}

func TestValidate(t *testing.T) {
	hot := float32(3)
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"port", func(c *Config) { c.HTTP.Port = 0 }, "http.port"},
		{"overlap", func(c *Config) { c.Index.ChunkOverlap = c.Index.ChunkSize }, "index.chunk_overlap"},
		{"top k", func(c *Config) { c.Index.MaxTopK = 1 }, "index.max_top_k"},
		{"temperature", func(c *Config) { c.Provider.Temperature = &hot }, "provider.temperature"},
		{"rpm", func(c *Config) { c.Provider.GenerationRPM = -1 }, "provider.generation_rpm"},
		{"budget action", func(c *Config) { c.Provider.Budget.Action = "block" }, "provider.budget.action"},
		{"budget negative", func(c *Config) { c.Provider.Budget.DailyTokenLimit = -1 }, "provider.budget"},
		{"cache driver", func(c *Config) { c.Cache.Driver = "memcached" }, "cache.driver"},
		{"cache addrs", func(c *Config) { c.Cache.Driver = "valkey" }, "cache.addrs"},
		{"cache ok", func(c *Config) {
			c.Cache.Driver = "redis"
			c.Cache.Addrs = []string{"localhost:6379"}
		}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadFile_ExpandsEnv(t *testing.T) {
	t.Setenv("DOCQA_TEST_PORT", "9090")
	t.Setenv("DOCQA_TEST_KEY", "")

	path := filepath.Join(t.TempDir(), "test.yaml")
	yaml := `
http:
  port: ${DOCQA_TEST_PORT}
provider:
  api_key: ${DOCQA_TEST_KEY:-ollama}
  generation_model: ${DOCQA_TEST_MISSING:-mistral}
index:
  chunk_size: 800
  chunk_overlap: 100
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.HTTP.Port)
	}
	if cfg.Provider.APIKey != "ollama" {
		t.Errorf("expected default api key, got %q", cfg.Provider.APIKey)
	}
	if cfg.Provider.GenerationModel != "mistral" {
		t.Errorf("expected mistral, got %q", cfg.Provider.GenerationModel)
	}
	if cfg.Index.ChunkSize != 800 || cfg.Index.ChunkOverlap != 100 {
		t.Errorf("unexpected chunking %d/%d", cfg.Index.ChunkSize, cfg.Index.ChunkOverlap)
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("http:\n  port: 0\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("DOCQA_DOTENV_VALUE=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DOCQA_DOTENV_VALUE", "")
	os.Unsetenv("DOCQA_DOTENV_VALUE")

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("DOCQA_DOTENV_VALUE"); got != "from-file" {
		t.Errorf("expected from-file, got %q", got)
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("ENV", "")
	if got := GetEnv(); got != "local" {
		t.Errorf("expected local, got %q", got)
	}
	t.Setenv("ENV", "prod")
	if got := GetEnv(); got != "prod" {
		t.Errorf("expected prod, got %q", got)
	}
}
