package docqa

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/docqa/internal/domain"
)

// Embedder converts text to vector embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// BatchEmbedder vectorizes multiple texts in a single API call.
// Optional: if the provided Embedder also implements BatchEmbedder,
// ingestion uses it instead of one call per chunk.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error)
}

// Generator produces answer text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (GenerationResult, error)
}

// EmbeddingResult carries the embedding vector and token counts.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// BatchEmbeddingResult carries multiple embedding vectors and aggregate token usage.
type BatchEmbeddingResult struct {
	Embeddings   [][]float32
	PromptTokens int
	TotalTokens  int
}

// GenerationResult carries the generated text and token counts.
type GenerationResult struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// embedderAdapter wraps public Embedder to satisfy internal domain.Embedder.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r, err := a.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("%w: %w", domain.ErrEmbeddingProviderError, err)
	}
	return domain.EmbeddingResult{
		Embedding:    r.Embedding,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}

// batchEmbedderAdapter additionally forwards BatchEmbed.
type batchEmbedderAdapter struct {
	embedderAdapter
	batch BatchEmbedder
}

func (a *batchEmbedderAdapter) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	r, err := a.batch.BatchEmbed(ctx, texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("%w: %w", domain.ErrEmbeddingProviderError, err)
	}
	return domain.BatchEmbeddingResult{
		Embeddings:   r.Embeddings,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}

func adaptEmbedder(e Embedder) domain.Embedder {
	if b, ok := e.(BatchEmbedder); ok {
		return &batchEmbedderAdapter{embedderAdapter: embedderAdapter{inner: e}, batch: b}
	}
	return &embedderAdapter{inner: e}
}

// generatorAdapter wraps public Generator to satisfy internal domain.Generator.
type generatorAdapter struct {
	inner Generator
}

func (a *generatorAdapter) Generate(ctx context.Context, prompt string) (domain.GenerationResult, error) {
	r, err := a.inner.Generate(ctx, prompt)
	if err != nil {
		return domain.GenerationResult{}, fmt.Errorf("%w: %w", domain.ErrGenerationFailed, err)
	}
	return domain.GenerationResult{
		Text:             r.Text,
		PromptTokens:     r.PromptTokens,
		CompletionTokens: r.CompletionTokens,
	}, nil
}
