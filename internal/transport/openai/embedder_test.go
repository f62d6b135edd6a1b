package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterEmbeddingMetrics()
	os.Exit(m.Run())
}

type embeddingItem struct {
	Object    string    `json:"object"`
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

// openaiEmbeddingResponse mirrors the OpenAI-compatible API embedding response.
type openaiEmbeddingResponse struct {
	Object string          `json:"object"`
	Data   []embeddingItem `json:"data"`
	Model  string          `json:"model"`
	Usage  struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

func embeddingServer(t *testing.T, tokens int, items ...embeddingItem) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		resp := openaiEmbeddingResponse{Object: "list", Model: "test-model", Data: items}
		resp.Usage.PromptTokens = tokens
		resp.Usage.TotalTokens = tokens
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testEmbedder(baseURL string) *Embedder {
	return NewEmbedder(&Config{
		APIKey:   "test-key",
		BaseURL:  baseURL,
		Model:    "test-model",
		Provider: "test",
		Logger:   zap.NewNop(),
	})
}

func TestEmbedder_Embed(t *testing.T) {
	expectedVec := []float32{0.1, 0.2, 0.3, 0.4}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}
		var req struct {
			Input      []string `json:"input"`
			Model      string   `json:"model"`
			Dimensions int      `json:"dimensions"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Input) != 1 || req.Input[0] != "hello world" || req.Model != "test-model" || req.Dimensions != 4 {
			t.Errorf("unexpected request: %+v", req)
		}

		resp := openaiEmbeddingResponse{Object: "list", Model: "test-model",
			Data: []embeddingItem{{Object: "embedding", Embedding: expectedVec}}}
		resp.Usage.PromptTokens = 42
		resp.Usage.TotalTokens = 42
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	emb := NewEmbedder(&Config{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		Model:      "test-model",
		Dimensions: 4,
		Provider:   "test",
	})

	result, err := emb.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(result.Embedding) != len(expectedVec) {
		t.Fatalf("expected %d dimensions, got %d", len(expectedVec), len(result.Embedding))
	}
	for i, v := range result.Embedding {
		if v != expectedVec[i] {
			t.Errorf("vec[%d] = %f, expected %f", i, v, expectedVec[i])
		}
	}
	if result.PromptTokens != 42 || result.TotalTokens != 42 {
		t.Errorf("usage = %d/%d, expected 42/42", result.PromptTokens, result.TotalTokens)
	}
	if emb.Model() != "test-model" {
		t.Errorf("Model() = %q", emb.Model())
	}
}

func TestEmbedder_BatchEmbed(t *testing.T) {
	// Возвращаем векторы в обратном порядке, проверяем сортировку по Index
	server := embeddingServer(t, 20,
		embeddingItem{Object: "embedding", Embedding: []float32{0.3, 0.4}, Index: 1},
		embeddingItem{Object: "embedding", Embedding: []float32{0.1, 0.2}, Index: 0},
	)

	result, err := testEmbedder(server.URL).BatchEmbed(context.Background(), []string{"hello", "world"})
	if err != nil {
		t.Fatalf("BatchEmbed failed: %v", err)
	}
	if len(result.Embeddings) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(result.Embeddings))
	}
	if result.Embeddings[0][0] != 0.1 || result.Embeddings[1][0] != 0.3 {
		t.Errorf("order not restored by index: %v", result.Embeddings)
	}
	if result.TotalTokens != 20 {
		t.Errorf("expected TotalTokens=20, got %d", result.TotalTokens)
	}
}

func TestEmbedder_BatchEmbed_Empty(t *testing.T) {
	result, err := testEmbedder("http://unused").BatchEmbed(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Embeddings != nil {
		t.Errorf("expected nil embeddings for empty input, got %v", result.Embeddings)
	}
}

func TestEmbedder_BatchEmbed_CountMismatch(t *testing.T) {
	server := embeddingServer(t, 5, embeddingItem{Object: "embedding", Embedding: []float32{0.1}})

	_, err := testEmbedder(server.URL).BatchEmbed(context.Background(), []string{"a", "b"})
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected ErrEmbeddingProviderError for count mismatch, got %v", err)
	}
}

func TestEmbedder_EmptyVector(t *testing.T) {
	server := embeddingServer(t, 1, embeddingItem{Object: "embedding"})

	_, err := testEmbedder(server.URL).Embed(context.Background(), "a")
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected ErrEmbeddingProviderError for empty vector, got %v", err)
	}
}

func TestEmbedder_APIError(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        any
		rateLimited bool
	}{
		{
			name:   "openai rate limit",
			status: http.StatusTooManyRequests,
			body: map[string]any{"error": map[string]any{
				"message": "rate limit exceeded",
				"type":    "rate_limit_error",
			}},
			rateLimited: true,
		},
		{
			name:   "ollama model missing",
			status: http.StatusNotFound,
			body:   map[string]any{"error": `model "nomic-embed-text" not found, try pulling it first`},
		},
		{
			name:   "detail body",
			status: http.StatusBadRequest,
			body:   map[string]any{"detail": "input too long"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_ = json.NewEncoder(w).Encode(tt.body)
			}))
			defer server.Close()

			_, err := testEmbedder(server.URL).Embed(context.Background(), "hello")
			if !errors.Is(err, domain.ErrEmbeddingProviderError) {
				t.Fatalf("expected ErrEmbeddingProviderError, got %v", err)
			}
			if got := errors.Is(err, domain.ErrRateLimited); got != tt.rateLimited {
				t.Errorf("ErrRateLimited = %v, want %v (%v)", got, tt.rateLimited, err)
			}
		})
	}
}

func TestEmbedder_HealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": []any{}})
	}))
	defer server.Close()

	if err := testEmbedder(server.URL).HealthCheck(context.Background()); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
}

func TestExtractDetail(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"detail":"bad input"}`, "bad input"},
		{`{"error":"model not found"}`, "model not found"},
		{`{"error":{"message":"x"}}`, ""},
		{`not json`, ""},
	}
	for _, tt := range tests {
		if got := extractDetail([]byte(tt.body)); got != tt.want {
			t.Errorf("extractDetail(%s) = %q, want %q", tt.body, got, tt.want)
		}
	}
}
