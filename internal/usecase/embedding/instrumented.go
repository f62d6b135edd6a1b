package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
)

// DefaultMaxAPIBatchSize: максимальный размер батча для одного API-запроса.
const DefaultMaxAPIBatchSize = 256

// BudgetChecker is the local interface for token budget enforcement.
type BudgetChecker interface {
	Check(ctx context.Context) error
	Record(tokens int64)
}

// InstrumentedEmbedder wraps Embedder with budget enforcement, logging, sub-batching
// and per-request usage accounting. Transport metrics (requests, duration, tokens)
// are recorded in transport/openai.
type InstrumentedEmbedder struct {
	inner        domain.Embedder
	provider     string
	model        string
	maxBatchSize int
	budget       BudgetChecker
	logger       *zap.Logger
}

// NewInstrumentedEmbedder wraps an embedder with observability.
func NewInstrumentedEmbedder(inner domain.Embedder, provider, model string, logger *zap.Logger) *InstrumentedEmbedder {
	return &InstrumentedEmbedder{
		inner:        inner,
		provider:     provider,
		model:        model,
		maxBatchSize: DefaultMaxAPIBatchSize,
		logger:       logger,
	}
}

// WithMaxBatchSize overrides the per-call batch limit.
func (p *InstrumentedEmbedder) WithMaxBatchSize(n int) *InstrumentedEmbedder {
	if n > 0 {
		p.maxBatchSize = n
	}
	return p
}

// WithBudget enables token budget enforcement. A nil checker disables it.
func (p *InstrumentedEmbedder) WithBudget(b BudgetChecker) *InstrumentedEmbedder {
	p.budget = b
	return p
}

func (p *InstrumentedEmbedder) checkBudget(ctx context.Context) error {
	if p.budget == nil {
		return nil
	}
	if err := p.budget.Check(ctx); err != nil {
		p.logger.Warn("Token budget exceeded",
			zap.String("provider", p.provider),
			zap.String("model", p.model),
		)
		return err
	}
	return nil
}

func (p *InstrumentedEmbedder) record(ctx context.Context, tokens int) {
	domain.UsageFromContext(ctx).AddEmbeddingTokens(tokens)
	if p.budget != nil {
		p.budget.Record(int64(tokens))
	}
}

// Embed checks the budget, delegates to the inner embedder and records usage.
func (p *InstrumentedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := p.checkBudget(ctx); err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	start := time.Now()
	result, err := p.inner.Embed(ctx, text)
	duration := time.Since(start)

	if err != nil {
		p.logger.Error("Embedding request failed",
			zap.String("provider", p.provider),
			zap.String("model", p.model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	p.record(ctx, result.TotalTokens)

	p.logger.Debug("Embedding request completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("total_tokens", result.TotalTokens),
	)

	return result, nil
}

// BatchEmbed splits texts into sub-batches of maxBatchSize and delegates each.
func (p *InstrumentedEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}
	if err := p.checkBudget(ctx); err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
	}

	start := time.Now()
	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, 0, len(texts))}

	for offset := 0; offset < len(texts); offset += p.maxBatchSize {
		end := min(offset+p.maxBatchSize, len(texts))
		part := texts[offset:end]

		res, err := p.embedInner(ctx, part)
		if err != nil {
			p.logger.Error("Batch embedding request failed",
				zap.String("provider", p.provider),
				zap.String("model", p.model),
				zap.Int("chunk_offset", offset),
				zap.Int("chunk_size", len(part)),
				zap.Error(err),
			)
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
		}
		if len(res.Embeddings) != len(part) {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: got %d vectors for %d texts: %w",
				len(res.Embeddings), len(part), domain.ErrEmbeddingProviderError)
		}

		out.Embeddings = append(out.Embeddings, res.Embeddings...)
		out.PromptTokens += res.PromptTokens
		out.TotalTokens += res.TotalTokens
	}

	p.record(ctx, out.TotalTokens)

	p.logger.Debug("Batch embedding completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Duration("duration", time.Since(start)),
		zap.Int("batch_size", len(texts)),
		zap.Int("total_tokens", out.TotalTokens),
	)

	return out, nil
}

func (p *InstrumentedEmbedder) embedInner(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if be, ok := p.inner.(domain.BatchEmbedder); ok {
		res, err := be.BatchEmbed(ctx, texts)
		if err != nil {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("inner batch embed: %w", err)
		}
		return res, nil
	}
	res, err := domain.BatchFallback(ctx, p.inner, texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("inner batch fallback: %w", err)
	}
	return res, nil
}

// HealthCheck delegates when the inner embedder supports it.
func (p *InstrumentedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := p.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}
