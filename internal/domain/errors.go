package domain

import "errors"

var (
	// ErrEmptyInput signals empty or whitespace-only text or question.
	ErrEmptyInput = errors.New("empty input")
	// ErrUnsupportedFileType signals a file type the extractor cannot handle.
	ErrUnsupportedFileType = errors.New("unsupported file type")

	// ErrDimensionMismatch signals a vector whose length differs from the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrPersistence signals a failure to read or write the persisted index.
	ErrPersistence = errors.New("index persistence failed")
	// ErrCorruptIndex signals a persisted index that exists but cannot be decoded.
	ErrCorruptIndex = errors.New("persisted index is corrupt")

	// ErrExtractionFailed signals a text extraction failure.
	ErrExtractionFailed = errors.New("text extraction failed")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrGenerationFailed signals a text generation failure.
	ErrGenerationFailed = errors.New("generation failed")
	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrTokenBudgetExceeded signals an exhausted daily or monthly provider token budget.
	ErrTokenBudgetExceeded = errors.New("token budget exceeded")
)
