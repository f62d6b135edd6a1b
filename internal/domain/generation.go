package domain

import "context"

// Generator turns a prompt into answer text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (GenerationResult, error)
}

// GenerationResult carries generated text and token usage.
type GenerationResult struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}
