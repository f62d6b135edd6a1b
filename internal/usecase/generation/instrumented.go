// Package generation decorates a domain.Generator with rate limiting,
// metrics and per-request usage accounting.
package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/metrics"
)

// BudgetChecker is the local interface for token budget enforcement.
type BudgetChecker interface {
	Check(ctx context.Context) error
	Record(tokens int64)
}

// InstrumentedGenerator wraps a Generator. A nil limiter means unlimited.
type InstrumentedGenerator struct {
	inner    domain.Generator
	provider string
	model    string
	limiter  *rate.Limiter
	budget   BudgetChecker
	logger   *zap.Logger
}

// NewInstrumentedGenerator wraps inner. requestsPerMinute <= 0 disables rate limiting.
func NewInstrumentedGenerator(
	inner domain.Generator, provider, model string, requestsPerMinute int, logger *zap.Logger,
) *InstrumentedGenerator {
	var limiter *rate.Limiter
	if requestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60), max(1, requestsPerMinute/10))
	}
	return &InstrumentedGenerator{
		inner:    inner,
		provider: provider,
		model:    model,
		limiter:  limiter,
		logger:   logger,
	}
}

// WithBudget enables token budget enforcement. A nil checker disables it.
func (g *InstrumentedGenerator) WithBudget(b BudgetChecker) *InstrumentedGenerator {
	g.budget = b
	return g
}

// Generate checks the budget, waits for a rate-limit token, delegates, and records metrics and usage.
func (g *InstrumentedGenerator) Generate(ctx context.Context, prompt string) (domain.GenerationResult, error) {
	if g.budget != nil {
		if err := g.budget.Check(ctx); err != nil {
			metrics.GenerationErrorsTotal.WithLabelValues(g.provider, g.model, "budget_exceeded").Inc()
			return domain.GenerationResult{}, fmt.Errorf("generate: %w", err)
		}
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			metrics.GenerationErrorsTotal.WithLabelValues(g.provider, g.model, "rate_limited").Inc()
			return domain.GenerationResult{}, fmt.Errorf("generation rate limit: %w: %w", domain.ErrRateLimited, err)
		}
	}

	start := time.Now()
	res, err := g.inner.Generate(ctx, prompt)
	duration := time.Since(start)

	metrics.GenerationRequestsTotal.WithLabelValues(g.provider, g.model, metrics.Status(err)).Inc()
	if err != nil {
		errType := "api_error"
		if errors.Is(err, domain.ErrRateLimited) {
			errType = "rate_limited"
		}
		metrics.GenerationErrorsTotal.WithLabelValues(g.provider, g.model, errType).Inc()
		g.logger.Error("Generation request failed",
			zap.String("provider", g.provider),
			zap.String("model", g.model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.GenerationResult{}, fmt.Errorf("generate: %w", err)
	}

	metrics.GenerationRequestDuration.WithLabelValues(g.provider, g.model).Observe(duration.Seconds())
	metrics.GenerationTokensTotal.WithLabelValues(g.provider, g.model, "prompt").Add(float64(res.PromptTokens))
	metrics.GenerationTokensTotal.WithLabelValues(g.provider, g.model, "completion").Add(float64(res.CompletionTokens))
	domain.UsageFromContext(ctx).AddGenerationTokens(res.PromptTokens + res.CompletionTokens)
	if g.budget != nil {
		g.budget.Record(int64(res.PromptTokens + res.CompletionTokens))
	}

	g.logger.Debug("Generation request completed",
		zap.String("provider", g.provider),
		zap.String("model", g.model),
		zap.Duration("duration", duration),
		zap.Int("prompt_tokens", res.PromptTokens),
		zap.Int("completion_tokens", res.CompletionTokens),
	)
	return res, nil
}

// HealthCheck delegates when the inner generator supports it.
func (g *InstrumentedGenerator) HealthCheck(ctx context.Context) error {
	if hc, ok := g.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}
