package domain

import (
	"context"
	"fmt"
)

// InstructionEmbedder prepends a fixed instruction to every text before embedding.
// Models like nomic-embed-text expect "search_document: " / "search_query: " prefixes.
type InstructionEmbedder struct {
	inner       Embedder
	instruction string
}

// NewInstructionEmbedder creates a decorator that prepends instruction text.
func NewInstructionEmbedder(inner Embedder, instruction string) *InstructionEmbedder {
	return &InstructionEmbedder{inner: inner, instruction: instruction}
}

// Embed prepends the instruction and delegates.
func (e *InstructionEmbedder) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	result, err := e.inner.Embed(ctx, e.instruction+text)
	if err != nil {
		return EmbeddingResult{}, fmt.Errorf("instruction embed: %w", err)
	}
	return result, nil
}

// BatchEmbed prepends the instruction to each text. Если inner не умеет batch, идём по одному.
func (e *InstructionEmbedder) BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error) {
	prefixed := make([]string, len(texts))
	for i, t := range texts {
		prefixed[i] = e.instruction + t
	}

	if be, ok := e.inner.(BatchEmbedder); ok {
		res, err := be.BatchEmbed(ctx, prefixed)
		if err != nil {
			return BatchEmbeddingResult{}, fmt.Errorf("instruction batch embed: %w", err)
		}
		return res, nil
	}

	res, err := BatchFallback(ctx, e.inner, prefixed)
	if err != nil {
		return BatchEmbeddingResult{}, fmt.Errorf("instruction batch embed fallback: %w", err)
	}
	return res, nil
}

// HealthCheck delegates when the inner embedder supports it.
func (e *InstructionEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := e.inner.(HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}
