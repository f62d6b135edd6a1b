package domain

import (
	"context"
	"sync"
)

type usageKey struct{}

// RequestUsage collects token usage for a single request.
// The handler puts a mutable pointer into the context before calling the engine,
// decorators add to it, and the handler reads it for response headers.
// Add methods are safe for concurrent use; read fields once the request's work is done.
type RequestUsage struct {
	mu sync.Mutex

	EmbeddingTokens  int
	GenerationTokens int
	Embedded         bool // true even on a cache hit with 0 tokens
}

// NewContextWithUsage returns a context with an attached usage collector.
func NewContextWithUsage(ctx context.Context) (context.Context, *RequestUsage) {
	u := &RequestUsage{}
	return context.WithValue(ctx, usageKey{}, u), u
}

// UsageFromContext extracts the usage collector. Returns nil if not set.
func UsageFromContext(ctx context.Context) *RequestUsage {
	u, _ := ctx.Value(usageKey{}).(*RequestUsage)
	return u
}

// AddEmbeddingTokens records consumed embedding tokens.
func (u *RequestUsage) AddEmbeddingTokens(n int) {
	if u != nil {
		u.mu.Lock()
		defer u.mu.Unlock()
		u.EmbeddingTokens += n
		u.Embedded = true
	}
}

// AddGenerationTokens records consumed generation tokens.
func (u *RequestUsage) AddGenerationTokens(n int) {
	if u != nil {
		u.mu.Lock()
		defer u.mu.Unlock()
		u.GenerationTokens += n
	}
}
