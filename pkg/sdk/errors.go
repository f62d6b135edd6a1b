package docqa

import "github.com/kailas-cloud/docqa/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrEmptyInput             = domain.ErrEmptyInput
	ErrUnsupportedFileType    = domain.ErrUnsupportedFileType
	ErrExtractionFailed       = domain.ErrExtractionFailed
	ErrDimensionMismatch      = domain.ErrDimensionMismatch
	ErrPersistence            = domain.ErrPersistence
	ErrCorruptIndex           = domain.ErrCorruptIndex
	ErrRateLimited            = domain.ErrRateLimited
	ErrTokenBudgetExceeded    = domain.ErrTokenBudgetExceeded
	ErrEmbeddingProviderError = domain.ErrEmbeddingProviderError
	ErrGenerationFailed       = domain.ErrGenerationFailed
)
