package chi

import (
	"context"

	"github.com/kailas-cloud/docqa/internal/domain"
	domusage "github.com/kailas-cloud/docqa/internal/domain/usage"
	"github.com/kailas-cloud/docqa/internal/usecase/health"
	"github.com/kailas-cloud/docqa/internal/usecase/rag"
)

// Engine is the retrieval engine surface the HTTP layer needs.
type Engine interface {
	AddDocument(ctx context.Context, text string, meta domain.DocumentMeta) (rag.AddResult, error)
	Query(ctx context.Context, question string, topK int) ([]rag.Context, error)
	Ask(ctx context.Context, question string, topK int) (rag.Answer, error)
	Clear(ctx context.Context) error
	Stats() rag.Stats
	Documents() []domain.DocumentRecord
}

// TextExtractor turns an uploaded file into text.
type TextExtractor interface {
	Extract(ctx context.Context, path, fileType string) (string, error)
}

// HealthChecker aggregates component checks.
type HealthChecker interface {
	Check(ctx context.Context) health.Report
}

// UsageReporter reports provider token usage against the budget.
type UsageReporter interface {
	GetReport(ctx context.Context, period domusage.Period) domusage.Report
}
