package logger

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey struct{}

// ContextWithLogger stores a request-scoped logger in the context.
func ContextWithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext extracts the logger, or zap.NewNop() if none was stored.
func FromContext(ctx context.Context) *zap.Logger {
	return FromContextOr(ctx, zap.NewNop())
}

// FromContextOr extracts the logger, or returns fallback.
// CLI commands run the engine without a request logger, so the engine falls back to its own.
func FromContextOr(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return fallback
}

// WithFields returns a context whose logger carries the extra fields.
func WithFields(ctx context.Context, fields ...zap.Field) context.Context {
	l, ok := ctx.Value(ctxKey{}).(*zap.Logger)
	if !ok || l == nil {
		return ctx
	}
	return ContextWithLogger(ctx, l.With(fields...))
}
