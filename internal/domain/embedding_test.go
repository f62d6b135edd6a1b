package domain

import (
	"context"
	"errors"
	"testing"
)

type stubEmbedder struct {
	result EmbeddingResult
	err    error
	got    string
}

func (s *stubEmbedder) Embed(_ context.Context, text string) (EmbeddingResult, error) {
	s.got = text
	return s.result, s.err
}

func TestInstructionEmbedder_PrependsInstruction(t *testing.T) {
	inner := &stubEmbedder{result: EmbeddingResult{Embedding: []float32{0.1, 0.2, 0.3}}}
	emb := NewInstructionEmbedder(inner, "search_document: ")

	result, err := emb.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.got != "search_document: hello world" {
		t.Errorf("expected prepended text, got %q", inner.got)
	}
	if len(result.Embedding) != 3 {
		t.Errorf("expected 3-element vector, got %d", len(result.Embedding))
	}
}

func TestInstructionEmbedder_ErrorPropagation(t *testing.T) {
	innerErr := errors.New("provider down")
	inner := &stubEmbedder{err: innerErr}
	emb := NewInstructionEmbedder(inner, "search_document: ")

	_, err := emb.Embed(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, innerErr) {
		t.Errorf("expected wrapped inner error, got %v", err)
	}
}

func TestInstructionEmbedder_EmptyInstruction(t *testing.T) {
	inner := &stubEmbedder{result: EmbeddingResult{Embedding: []float32{0.5}}}
	emb := NewInstructionEmbedder(inner, "")

	_, err := emb.Embed(context.Background(), "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.got != "test" {
		t.Errorf("expected 'test', got %q", inner.got)
	}
}

// --- BatchEmbed tests ---

type stubBatchEmbedder struct {
	stubEmbedder
	batchResult BatchEmbeddingResult
	batchErr    error
	batchTexts  []string
}

func (s *stubBatchEmbedder) BatchEmbed(_ context.Context, texts []string) (BatchEmbeddingResult, error) {
	s.batchTexts = texts
	return s.batchResult, s.batchErr
}

func TestBatchFallback_Success(t *testing.T) {
	inner := &stubEmbedder{result: EmbeddingResult{
		Embedding:    []float32{0.1, 0.2},
		PromptTokens: 5,
		TotalTokens:  5,
	}}
	res, err := BatchFallback(context.Background(), inner, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 3 {
		t.Fatalf("expected 3 embeddings, got %d", len(res.Embeddings))
	}
	if res.TotalTokens != 15 {
		t.Errorf("expected TotalTokens=15, got %d", res.TotalTokens)
	}
	if res.PromptTokens != 15 {
		t.Errorf("expected PromptTokens=15, got %d", res.PromptTokens)
	}
}

func TestBatchFallback_Error(t *testing.T) {
	innerErr := errors.New("fail")
	inner := &stubEmbedder{err: innerErr}
	_, err := BatchFallback(context.Background(), inner, []string{"a"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, innerErr) {
		t.Errorf("expected wrapped inner error, got %v", err)
	}
}

func TestBatchFallback_Empty(t *testing.T) {
	inner := &stubEmbedder{}
	res, err := BatchFallback(context.Background(), inner, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 0 {
		t.Errorf("expected 0 embeddings, got %d", len(res.Embeddings))
	}
}

func TestInstructionEmbedder_BatchEmbed_WithBatchInner(t *testing.T) {
	inner := &stubBatchEmbedder{
		batchResult: BatchEmbeddingResult{
			Embeddings:   [][]float32{{0.1}, {0.2}},
			PromptTokens: 20,
			TotalTokens:  20,
		},
	}
	emb := NewInstructionEmbedder(inner, "search: ")

	res, err := emb.BatchEmbed(context.Background(), []string{"hello", "world"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(res.Embeddings))
	}
	if inner.batchTexts[0] != "search: hello" || inner.batchTexts[1] != "search: world" {
		t.Errorf("expected prefixed texts, got %v", inner.batchTexts)
	}
}

func TestInstructionEmbedder_BatchEmbed_FallbackToSingle(t *testing.T) {
	inner := &stubEmbedder{result: EmbeddingResult{
		Embedding:    []float32{0.5},
		PromptTokens: 3,
		TotalTokens:  3,
	}}
	emb := NewInstructionEmbedder(inner, "q: ")

	res, err := emb.BatchEmbed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(res.Embeddings))
	}
	if res.TotalTokens != 6 {
		t.Errorf("expected TotalTokens=6, got %d", res.TotalTokens)
	}
}

func TestInstructionEmbedder_BatchEmbed_Error(t *testing.T) {
	innerErr := errors.New("batch fail")
	inner := &stubBatchEmbedder{batchErr: innerErr}
	emb := NewInstructionEmbedder(inner, "x: ")

	_, err := emb.BatchEmbed(context.Background(), []string{"a"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, innerErr) {
		t.Errorf("expected wrapped error, got %v", err)
	}
}

type stubHealthEmbedder struct {
	stubEmbedder
	healthErr error
}

func (s *stubHealthEmbedder) HealthCheck(_ context.Context) error { return s.healthErr }

func TestInstructionEmbedder_HealthCheckDelegates(t *testing.T) {
	down := errors.New("down")
	emb := NewInstructionEmbedder(&stubHealthEmbedder{healthErr: down}, "q: ")
	if err := emb.HealthCheck(context.Background()); !errors.Is(err, down) {
		t.Errorf("expected inner health error, got %v", err)
	}

	plain := NewInstructionEmbedder(&stubEmbedder{}, "q: ")
	if err := plain.HealthCheck(context.Background()); err != nil {
		t.Errorf("expected nil for embedder without health check, got %v", err)
	}
}

func TestRequestUsage(t *testing.T) {
	if UsageFromContext(context.Background()) != nil {
		t.Fatal("expected nil usage on bare context")
	}
	var nilUsage *RequestUsage
	nilUsage.AddEmbeddingTokens(5) // must not panic

	ctx, u := NewContextWithUsage(context.Background())
	UsageFromContext(ctx).AddEmbeddingTokens(0)
	UsageFromContext(ctx).AddEmbeddingTokens(7)
	UsageFromContext(ctx).AddGenerationTokens(11)

	if !u.Embedded {
		t.Error("expected Embedded=true after a zero-token cache hit")
	}
	if u.EmbeddingTokens != 7 || u.GenerationTokens != 11 {
		t.Errorf("usage = %d embedding / %d generation, want 7 / 11", u.EmbeddingTokens, u.GenerationTokens)
	}
}

func TestExtraCopy(t *testing.T) {
	if ExtraCopy(map[string]string{}) != nil {
		t.Error("expected nil for empty map")
	}
	src := map[string]string{"lang": "en"}
	cp := ExtraCopy(src)
	src["lang"] = "fr"
	if cp["lang"] != "en" {
		t.Errorf("copy aliased source: %v", cp)
	}
}
