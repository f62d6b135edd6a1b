package rag

import (
	"context"

	"github.com/kailas-cloud/docqa/internal/domain"
)

// Splitter cuts document text into chunks.
type Splitter interface {
	Split(text string) []string
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Generator produces answer text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (domain.GenerationResult, error)
}
