package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	gochi "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
	domusage "github.com/kailas-cloud/docqa/internal/domain/usage"
	"github.com/kailas-cloud/docqa/internal/extract"
	"github.com/kailas-cloud/docqa/internal/logger"
	"github.com/kailas-cloud/docqa/internal/usecase/health"
)

const (
	maxJSONBodyBytes = 1 << 20
	multipartMemory  = 8 << 20
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Options configures request limits.
type Options struct {
	AllowedExtensions []string
	MaxUploadBytes    int64
	TempDir           string // "" = os.TempDir()
}

// Server serves the document QA HTTP API.
type Server struct {
	engine        Engine
	extractor     TextExtractor
	health        HealthChecker
	usage         UsageReporter
	opts          Options
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(engine Engine, extractor TextExtractor, hc HealthChecker, opts Options, logger *zap.Logger) *Server {
	if len(opts.AllowedExtensions) == 0 {
		opts.AllowedExtensions = extract.SupportedExtensions
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 50 << 20
	}
	s := &Server{
		engine:    engine,
		extractor: extractor,
		health:    hc,
		opts:      opts,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		maxBytesHandler,
		sentinelHandler(domain.ErrEmptyInput, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrUnsupportedFileType, http.StatusBadRequest, codeUnsupportedFileType),
		sentinelHandler(domain.ErrExtractionFailed, http.StatusUnprocessableEntity, codeExtractionFailed),
		sentinelHandler(domain.ErrDimensionMismatch, http.StatusConflict, codeDimensionMismatch),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, codeRateLimited),
		sentinelHandler(domain.ErrTokenBudgetExceeded, http.StatusTooManyRequests, codeBudgetExceeded),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeEmbeddingProvider),
		sentinelHandler(domain.ErrGenerationFailed, http.StatusBadGateway, codeGenerationFailed),
		sentinelHandler(domain.ErrPersistence, http.StatusInternalServerError, codePersistenceFailed),
		sentinelHandler(domain.ErrCorruptIndex, http.StatusInternalServerError, codePersistenceFailed),
	}
	return s
}

// WithUsage enables GET /api/usage.
func (s *Server) WithUsage(u UsageReporter) *Server {
	s.usage = u
	return s
}

// Mount registers all routes on r.
func (s *Server) Mount(r gochi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Route("/api", func(r gochi.Router) {
		r.Post("/upload", s.Upload)
		r.Post("/chat", s.Chat)
		r.Post("/search", s.Search)
		r.Get("/status", s.Status)
		r.Get("/documents", s.ListDocuments)
		r.Delete("/clear", s.Clear)
		if s.usage != nil {
			r.Get("/usage", s.Usage)
		}
	})
}

// Upload handles POST /api/upload: multipart field "file" is extracted, chunked and indexed.
func (s *Server) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			s.handleDomainError(w, r, err)
			return
		}
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "no file uploaded")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "no file selected")
		return
	}
	if header.Size > s.opts.MaxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, codePayloadTooLarge,
			fmt.Sprintf("file exceeds %d bytes", s.opts.MaxUploadBytes))
		return
	}

	ext := extract.FileExtension(header.Filename)
	if !slices.Contains(s.opts.AllowedExtensions, ext) {
		writeError(w, http.StatusBadRequest, codeUnsupportedFileType,
			fmt.Sprintf("unsupported file type %q, allowed: %s", ext, strings.Join(s.opts.AllowedExtensions, ", ")))
		return
	}

	tmpPath, err := s.spool(file, ext)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	defer func() { _ = os.Remove(tmpPath) }()

	ctx, usage := domain.NewContextWithUsage(r.Context())
	ctx = logger.WithFields(ctx, zap.String("filename", header.Filename), zap.String("file_type", ext))

	text, err := s.extractor.Extract(ctx, tmpPath, ext)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if strings.TrimSpace(text) == "" {
		writeError(w, http.StatusBadRequest, codeEmptyDocument, "could not extract any text from the file")
		return
	}

	res, err := s.engine.AddDocument(ctx, text, domain.DocumentMeta{
		Filename: header.Filename,
		FileType: ext,
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	setUsageHeaders(w, usage)
	writeJSON(w, http.StatusOK, UploadResponse{
		Success:     true,
		Message:     "file processed successfully",
		Filename:    header.Filename,
		FileType:    ext,
		TextLength:  utf8.RuneCountInString(text),
		ChunksAdded: res.Chunks,
		DocumentID:  res.DocumentID,
	})
}

// spool copies the upload into a temp file, since extractors work on paths.
func (s *Server) spool(src io.Reader, ext string) (string, error) {
	tmp, err := os.CreateTemp(s.opts.TempDir, "docqa-upload-*."+ext)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, src); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("spool upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return tmp.Name(), nil
}

// Chat handles POST /api/chat.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "question is required")
		return
	}
	topK, ok := parseTopK(w, req.TopK)
	if !ok {
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	ans, err := s.engine.Ask(ctx, req.Question, topK)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	setUsageHeaders(w, usage)
	writeJSON(w, http.StatusOK, ChatResponse{
		Success:    true,
		Question:   req.Question,
		Answer:     ans.Answer,
		Contexts:   contextsToDTO(ans.Contexts),
		HasContext: ans.HasContext,
	})
}

// Search handles POST /api/search: retrieval only, no generation.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "query is required")
		return
	}
	topK, ok := parseTopK(w, req.TopK)
	if !ok {
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	results, err := s.engine.Query(ctx, req.Query, topK)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	setUsageHeaders(w, usage)
	writeJSON(w, http.StatusOK, SearchResponse{
		Success: true,
		Query:   req.Query,
		Results: contextsToDTO(results),
	})
}

// Status handles GET /api/status.
func (s *Server) Status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statsToDTO(s.engine.Stats()))
}

// ListDocuments handles GET /api/documents.
func (s *Server) ListDocuments(w http.ResponseWriter, _ *http.Request) {
	docs := s.engine.Documents()
	writeJSON(w, http.StatusOK, DocumentsResponse{Items: docs, Count: len(docs)})
}

// Clear handles DELETE /api/clear.
func (s *Server) Clear(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Clear(r.Context()); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "all documents cleared"})
}

// Usage handles GET /api/usage?period=day|month.
func (s *Server) Usage(w http.ResponseWriter, r *http.Request) {
	period, err := domusage.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "period must be day or month")
		return
	}
	writeJSON(w, http.StatusOK, usageToDTO(s.usage.GetReport(r.Context(), period)))
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != health.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// parseTopK returns 0 (engine default) when p is nil.
func parseTopK(w http.ResponseWriter, p *int) (int, bool) {
	if p == nil {
		return 0, true
	}
	if *p <= 0 {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "top_k must be positive")
		return 0, false
	}
	return *p, true
}

func setUsageHeaders(w http.ResponseWriter, u *domain.RequestUsage) {
	if u == nil {
		return
	}
	if u.Embedded {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(u.EmbeddingTokens))
	}
	if u.GenerationTokens > 0 {
		w.Header().Set("X-Generation-Tokens", strconv.Itoa(u.GenerationTokens))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a client-facing message without exposing internals.
// Validation errors keep their full text, capability and storage errors only the sentinel.
func safeDomainMessage(err error) string {
	for _, s := range []error{domain.ErrEmptyInput, domain.ErrUnsupportedFileType} {
		if errors.Is(err, s) {
			return err.Error()
		}
	}
	sentinels := []error{
		domain.ErrExtractionFailed,
		domain.ErrDimensionMismatch,
		domain.ErrRateLimited,
		domain.ErrTokenBudgetExceeded,
		domain.ErrEmbeddingProviderError,
		domain.ErrGenerationFailed,
		domain.ErrPersistence,
		domain.ErrCorruptIndex,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func maxBytesHandler(w http.ResponseWriter, err error, _ string) bool {
	var mbe *http.MaxBytesError
	if !errors.As(err, &mbe) {
		return false
	}
	writeError(w, http.StatusRequestEntityTooLarge, codePayloadTooLarge,
		fmt.Sprintf("request body exceeds %d bytes", mbe.Limit))
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err), zap.String("path", r.URL.Path))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
