package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
)

// DefaultTemperature matches the sampling temperature used for answers.
const DefaultTemperature = 0.7

// GeneratorConfig holds chat completion settings on top of the connection Config.
type GeneratorConfig struct {
	Config
	Temperature float32
	MaxTokens   int
}

// Generator answers prompts via the chat completions endpoint.
type Generator struct {
	client      *openai.Client
	model       string
	provider    string
	temperature float32
	maxTokens   int
	logger      *zap.Logger
}

// NewGenerator creates an OpenAI-compatible text generator.
func NewGenerator(cfg *GeneratorConfig) *Generator {
	return &Generator{
		client:      newClient(&cfg.Config),
		model:       cfg.Model,
		provider:    cfg.Provider,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      loggerOrNop(cfg.Logger),
	}
}

// Model returns the configured generation model id.
func (g *Generator) Model() string { return g.model }

// Generate implements domain.Generator. The prompt is sent as a single user message.
func (g *Generator) Generate(ctx context.Context, prompt string) (domain.GenerationResult, error) {
	req := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	}

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return domain.GenerationResult{}, parseAPIError("generation", err, domain.ErrGenerationFailed)
	}
	if len(resp.Choices) == 0 {
		return domain.GenerationResult{}, fmt.Errorf("empty completion response: %w", domain.ErrGenerationFailed)
	}

	g.logger.Debug("generated answer",
		zap.String("model", g.model),
		zap.String("finish_reason", string(resp.Choices[0].FinishReason)),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("duration", time.Since(start)),
	)

	return domain.GenerationResult{
		Text:             strings.TrimSpace(resp.Choices[0].Message.Content),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// HealthCheck verifies API availability via ListModels.
func (g *Generator) HealthCheck(ctx context.Context) error {
	if _, err := g.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}
