package chi

import (
	"time"

	"github.com/kailas-cloud/docqa/internal/domain"
	domusage "github.com/kailas-cloud/docqa/internal/domain/usage"
	"github.com/kailas-cloud/docqa/internal/usecase/rag"
)

// Error codes returned in ErrorResponse.Code.
const (
	codeBadRequest          = "bad_request"
	codeUnauthorized        = "unauthorized"
	codeValidationFailed    = "validation_failed"
	codeUnsupportedFileType = "unsupported_file_type"
	codeEmptyDocument       = "empty_document"
	codePayloadTooLarge     = "payload_too_large"
	codeExtractionFailed    = "extraction_failed"
	codeDimensionMismatch   = "dimension_mismatch"
	codeRateLimited         = "rate_limited"
	codeBudgetExceeded      = "token_budget_exceeded"
	codeEmbeddingProvider   = "embedding_provider_error"
	codeGenerationFailed    = "generation_failed"
	codePersistenceFailed   = "persistence_failed"
	codeInternalError       = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// UploadResponse is returned by POST /api/upload.
type UploadResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	Filename    string `json:"filename"`
	FileType    string `json:"file_type"`
	TextLength  int    `json:"text_length"`
	ChunksAdded int    `json:"chunks_added"`
	DocumentID  string `json:"document_id"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Question string `json:"question"`
	TopK     *int   `json:"top_k,omitempty"`
}

// ChatResponse is returned by POST /api/chat.
type ChatResponse struct {
	Success    bool          `json:"success"`
	Question   string        `json:"question"`
	Answer     string        `json:"answer"`
	Contexts   []ContextItem `json:"contexts"`
	HasContext bool          `json:"has_context"`
}

// SearchRequest is the body of POST /api/search.
type SearchRequest struct {
	Query string `json:"query"`
	TopK  *int   `json:"top_k,omitempty"`
}

// SearchResponse is returned by POST /api/search.
type SearchResponse struct {
	Success bool          `json:"success"`
	Query   string        `json:"query"`
	Results []ContextItem `json:"results"`
}

// ContextItem is a retrieved chunk. Lower score is closer.
type ContextItem struct {
	Content  string               `json:"content"`
	Metadata domain.ChunkMetadata `json:"metadata"`
	Score    float32              `json:"score"`
}

// StatusResponse is returned by GET /api/status.
type StatusResponse struct {
	Status         string `json:"status"`
	State          string `json:"state"`
	LLMModel       string `json:"llm_model"`
	EmbeddingModel string `json:"embedding_model"`
	VectorDB       string `json:"vector_db"`
	ProviderURL    string `json:"provider_url"`
	HasDocuments   bool   `json:"has_documents"`
	DocumentCount  int    `json:"document_count"`
	ChunkCount     int    `json:"chunk_count"`
	Dimension      int    `json:"dimension"`
}

// DocumentsResponse is returned by GET /api/documents.
type DocumentsResponse struct {
	Items []domain.DocumentRecord `json:"items"`
	Count int                     `json:"count"`
}

// MessageResponse is a plain success acknowledgement.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// UsageResponse is returned by GET /api/usage.
type UsageResponse struct {
	Period      string      `json:"period"`
	Provider    string      `json:"provider,omitempty"`
	PeriodStart string      `json:"period_start"`
	PeriodEnd   string      `json:"period_end"`
	Budget      UsageBudget `json:"budget"`
}

// UsageBudget is the budget part of UsageResponse. Limit 0 and Remaining -1 mean unlimited.
type UsageBudget struct {
	TokensLimit     int64  `json:"tokens_limit"`
	TokensUsed      int64  `json:"tokens_used"`
	TokensRemaining int64  `json:"tokens_remaining"`
	IsExhausted     bool   `json:"is_exhausted"`
	ResetsAt        string `json:"resets_at"`
}

func usageToDTO(r domusage.Report) UsageResponse {
	iso := func(ms int64) string { return time.UnixMilli(ms).UTC().Format(time.RFC3339) }
	return UsageResponse{
		Period:      string(r.Period),
		Provider:    r.Provider,
		PeriodStart: iso(r.PeriodStart),
		PeriodEnd:   iso(r.PeriodEnd),
		Budget: UsageBudget{
			TokensLimit:     r.Budget.Limit,
			TokensUsed:      r.Budget.Used,
			TokensRemaining: r.Budget.Remaining,
			IsExhausted:     r.Budget.Exhausted,
			ResetsAt:        iso(r.PeriodEnd),
		},
	}
}

func contextsToDTO(cs []rag.Context) []ContextItem {
	out := make([]ContextItem, len(cs))
	for i, c := range cs {
		out[i] = ContextItem{Content: c.Content, Metadata: c.Metadata, Score: c.Score}
	}
	return out
}

func statsToDTO(st rag.Stats) StatusResponse {
	return StatusResponse{
		Status:         "running",
		State:          st.State.String(),
		LLMModel:       st.GenerationModel,
		EmbeddingModel: st.EmbeddingModel,
		VectorDB:       st.VectorDB,
		ProviderURL:    st.ProviderURL,
		HasDocuments:   st.HasDocuments,
		DocumentCount:  st.DocumentCount,
		ChunkCount:     st.ChunkCount,
		Dimension:      st.Dimension,
	}
}
