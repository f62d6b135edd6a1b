// Package rag implements the retrieval engine: document ingestion into the
// vector index, similarity search and retrieval-augmented answers.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/docqa/internal/chunker"
	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/index"
	"github.com/kailas-cloud/docqa/internal/logger"
	"github.com/kailas-cloud/docqa/internal/metrics"
)

// State is the lifecycle state of the engine's index.
type State int

// Engine states.
const (
	StateAbsent State = iota
	StateEmpty
	StatePopulated
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StatePopulated:
		return "populated"
	default:
		return "absent"
	}
}

// Config holds engine settings. Zero values take defaults.
type Config struct {
	IndexDir         string
	DefaultTopK      int
	MaxTopK          int
	EmbedConcurrency int
	PromptTemplate   string

	// Reported by Stats and recorded in snapshots.
	EmbeddingModel  string
	GenerationModel string
	ProviderURL     string
}

// Deps are the capabilities the engine consumes.
// QueryEmbedder defaults to DocEmbedder, Splitter to chunker.New().
type Deps struct {
	Splitter      Splitter
	DocEmbedder   Embedder
	QueryEmbedder Embedder
	Generator     Generator
	Logger        *zap.Logger
	Now           func() time.Time
	NewID         func() string
}

// AddResult describes an ingested document.
type AddResult struct {
	DocumentID string
	Chunks     int
}

// Context is a retrieved chunk. Score is the squared L2 distance, lower is closer.
type Context struct {
	Content  string
	Metadata domain.ChunkMetadata
	Score    float32
}

// Answer is the result of Ask.
type Answer struct {
	Answer     string
	Contexts   []Context
	HasContext bool
}

// Stats describes the engine for status output.
type Stats struct {
	State           State
	DocumentCount   int
	ChunkCount      int
	HasDocuments    bool
	Dimension       int
	EmbeddingModel  string
	GenerationModel string
	VectorDB        string
	ProviderURL     string
	IndexDir        string
}

const (
	defaultTopK             = 3
	defaultMaxTopK          = 20
	defaultEmbedConcurrency = 4
)

// Engine owns the vector index. One per process, safe for concurrent use.
type Engine struct {
	cfg           Config
	splitter      Splitter
	docEmbedder   Embedder
	queryEmbedder Embedder
	generator     Generator
	logger        *zap.Logger
	now           func() time.Time
	newID         func() string
	writeSnapshot func(dir string, snap *index.Snapshot) error

	// mu guards idx and docs. idx is never mutated after publication:
	// writers insert into a clone and swap the pointer.
	mu   sync.RWMutex
	idx  *index.Index
	docs []domain.DocumentRecord
}

// Open builds the engine and restores the persisted index from cfg.IndexDir.
// A missing snapshot starts the engine Absent. A corrupt one is renamed aside
// (best effort) and the engine starts Absent. Other I/O failures are returned.
func Open(ctx context.Context, cfg Config, deps Deps) (*Engine, error) {
	if cfg.IndexDir == "" {
		return nil, errors.New("index dir is required")
	}
	if deps.DocEmbedder == nil || deps.Generator == nil {
		return nil, errors.New("embedder and generator are required")
	}

	e := &Engine{
		cfg:           withDefaults(cfg),
		splitter:      deps.Splitter,
		docEmbedder:   deps.DocEmbedder,
		queryEmbedder: deps.QueryEmbedder,
		generator:     deps.Generator,
		logger:        deps.Logger,
		now:           deps.Now,
		newID:         deps.NewID,
		writeSnapshot: index.Save,
	}
	if e.splitter == nil {
		e.splitter = chunker.New()
	}
	if e.queryEmbedder == nil {
		e.queryEmbedder = e.docEmbedder
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newID == nil {
		e.newID = func() string { return uuid.NewString() }
	}

	if err := e.restore(ctx); err != nil {
		return nil, err
	}
	e.publishGauges()
	return e, nil
}

func withDefaults(cfg Config) Config {
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = defaultTopK
	}
	if cfg.MaxTopK <= 0 {
		cfg.MaxTopK = defaultMaxTopK
	}
	if cfg.MaxTopK < cfg.DefaultTopK {
		cfg.MaxTopK = cfg.DefaultTopK
	}
	if cfg.EmbedConcurrency <= 0 {
		cfg.EmbedConcurrency = defaultEmbedConcurrency
	}
	if cfg.PromptTemplate == "" {
		cfg.PromptTemplate = DefaultPromptTemplate
	}
	return cfg
}

func (e *Engine) restore(ctx context.Context) error {
	log := e.log(ctx).With(zap.String("index_dir", e.cfg.IndexDir))

	snap, err := index.Load(e.cfg.IndexDir)
	if err == nil && snap == nil {
		log.Info("no persisted index, starting without documents")
		return nil
	}

	var idx *index.Index
	if err == nil {
		idx, err = index.FromEntries(snap.Dimension, snap.Entries)
		if err != nil {
			err = fmt.Errorf("%w: %w", domain.ErrCorruptIndex, err)
		}
	}
	switch {
	case errors.Is(err, domain.ErrCorruptIndex):
		log.Warn("persisted index is unreadable, previously ingested documents are lost", zap.Error(err))
		dst, qerr := index.Quarantine(e.cfg.IndexDir, e.now())
		if qerr != nil {
			// файл останется на месте до следующего Save
			log.Warn("could not move corrupt index aside, it will be overwritten by the next save", zap.Error(qerr))
			return nil
		}
		log.Warn("corrupt index moved aside", zap.String("path", dst))
		return nil
	case err != nil:
		return fmt.Errorf("load index: %w", err)
	}

	if snap.EmbeddingModel != "" && e.cfg.EmbeddingModel != "" && snap.EmbeddingModel != e.cfg.EmbeddingModel {
		log.Warn("index was built with a different embedding model",
			zap.String("index_model", snap.EmbeddingModel),
			zap.String("configured_model", e.cfg.EmbeddingModel),
		)
	}

	e.idx = idx
	e.docs = snap.Documents
	log.Info("index restored",
		zap.Int("chunks", idx.Size()),
		zap.Int("documents", len(snap.Documents)),
		zap.Int("dimension", idx.Dimension()),
	)
	return nil
}

// AddDocument chunks, embeds and indexes text, then persists the index.
// The in-memory index changes only after the snapshot is durable.
func (e *Engine) AddDocument(ctx context.Context, text string, meta domain.DocumentMeta) (AddResult, error) {
	start := time.Now()
	res, err := e.addDocument(ctx, text, meta)
	e.observe("add_document", start, err)
	return res, err
}

func (e *Engine) addDocument(ctx context.Context, text string, meta domain.DocumentMeta) (AddResult, error) {
	if strings.TrimSpace(text) == "" {
		return AddResult{}, fmt.Errorf("document text: %w", domain.ErrEmptyInput)
	}
	chunks := e.splitter.Split(text)
	if len(chunks) == 0 {
		return AddResult{}, fmt.Errorf("document produced no chunks: %w", domain.ErrEmptyInput)
	}

	vectors, err := e.embedChunks(ctx, chunks)
	if err != nil {
		return AddResult{}, fmt.Errorf("embed chunks: %w", err)
	}

	docID := e.newID()
	entries := make([]index.Entry, len(chunks))
	for i, chunk := range chunks {
		entries[i] = index.Entry{
			Vector: vectors[i],
			Text:   chunk,
			Metadata: domain.ChunkMetadata{
				DocumentID:  docID,
				Filename:    meta.Filename,
				FileType:    meta.FileType,
				ChunkIndex:  i,
				TotalChunks: len(chunks),
				Extra:       domain.ExtraCopy(meta.Extra),
			},
		}
	}
	record := domain.DocumentRecord{
		DocumentID: docID,
		Filename:   meta.Filename,
		FileType:   meta.FileType,
		Chunks:     len(chunks),
		AddedAt:    e.now().UnixMilli(),
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	candidate := index.New()
	if e.idx != nil {
		candidate = e.idx.Clone()
	}
	if err := candidate.Insert(entries); err != nil {
		return AddResult{}, fmt.Errorf("insert chunks: %w", err)
	}
	docs := make([]domain.DocumentRecord, 0, len(e.docs)+1)
	docs = append(docs, e.docs...)
	docs = append(docs, record)

	if err := e.save(ctx, candidate, docs); err != nil {
		return AddResult{}, err
	}
	e.idx, e.docs = candidate, docs
	e.publishGaugesLocked()

	e.log(ctx).Info("document indexed",
		zap.String("document_id", docID),
		zap.String("filename", meta.Filename),
		zap.Int("chunks", len(chunks)),
		zap.Int("total_chunks", candidate.Size()),
	)
	return AddResult{DocumentID: docID, Chunks: len(chunks)}, nil
}

// save persists idx and docs. Caller holds e.mu.
// A snapshot renamed into place without a directory fsync counts as saved.
func (e *Engine) save(ctx context.Context, idx *index.Index, docs []domain.DocumentRecord) error {
	start := time.Now()
	err := e.writeSnapshot(e.cfg.IndexDir, &index.Snapshot{
		Dimension:      idx.Dimension(),
		EmbeddingModel: e.cfg.EmbeddingModel,
		SavedAt:        e.now(),
		Entries:        idx.Entries(),
		Documents:      docs,
	})
	metrics.IndexSaveDuration.Observe(time.Since(start).Seconds())
	if errors.Is(err, index.ErrNotDurable) {
		e.log(ctx).Warn("index saved without directory fsync", zap.Error(err))
		return nil
	}
	if err != nil {
		return fmt.Errorf("save index: %w", err)
	}
	return nil
}

// embedChunks returns one vector per chunk, in order. Batch embedders get a
// single call; otherwise chunks are embedded in parallel with bounded concurrency.
func (e *Engine) embedChunks(ctx context.Context, chunks []string) ([][]float32, error) {
	var vectors [][]float32
	if be, ok := e.docEmbedder.(domain.BatchEmbedder); ok {
		res, err := be.BatchEmbed(ctx, chunks)
		if err != nil {
			return nil, err
		}
		vectors = res.Embeddings
	} else {
		vectors = make([][]float32, len(chunks))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.cfg.EmbedConcurrency)
		for i, chunk := range chunks {
			g.Go(func() error {
				res, err := e.docEmbedder.Embed(gctx, chunk)
				if err != nil {
					return fmt.Errorf("chunk %d: %w", i, err)
				}
				vectors[i] = res.Embedding
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d chunks",
			domain.ErrEmbeddingProviderError, len(vectors), len(chunks))
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: empty embedding for chunk %d", domain.ErrEmbeddingProviderError, i)
		}
	}
	return vectors, nil
}

// Query returns up to topK chunks closest to question. topK <= 0 means the default.
// An engine without documents returns an empty slice without embedding.
func (e *Engine) Query(ctx context.Context, question string, topK int) ([]Context, error) {
	start := time.Now()
	res, err := e.query(ctx, question, topK)
	e.observe("query", start, err)
	return res, err
}

func (e *Engine) query(ctx context.Context, question string, topK int) ([]Context, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("question: %w", domain.ErrEmptyInput)
	}
	if e.State() != StatePopulated {
		return []Context{}, nil
	}

	qv, err := e.queryEmbedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	e.mu.RLock()
	idx := e.idx
	var hits []index.Hit
	if idx != nil {
		hits, err = idx.Search(qv.Embedding, e.clampTopK(topK))
	}
	e.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	out := make([]Context, len(hits))
	for i, h := range hits {
		out[i] = Context{
			Content:  h.Entry.Text,
			Metadata: h.Entry.Metadata,
			Score:    h.Distance,
		}
	}
	return out, nil
}

func (e *Engine) clampTopK(k int) int {
	if k <= 0 {
		return e.cfg.DefaultTopK
	}
	return min(k, e.cfg.MaxTopK)
}

// Ask answers question from the retrieved chunks. Generator failures are
// reported inside the answer text, not as an error.
func (e *Engine) Ask(ctx context.Context, question string, topK int) (Answer, error) {
	start := time.Now()
	res, err := e.ask(ctx, question, topK)
	e.observe("ask", start, err)
	return res, err
}

func (e *Engine) ask(ctx context.Context, question string, topK int) (Answer, error) {
	if strings.TrimSpace(question) == "" {
		return Answer{}, fmt.Errorf("question: %w", domain.ErrEmptyInput)
	}
	if e.State() != StatePopulated {
		return Answer{Answer: NoDocumentsAnswer, Contexts: []Context{}}, nil
	}

	contexts, err := e.query(ctx, question, topK)
	if err != nil {
		return Answer{}, err
	}
	if len(contexts) == 0 {
		return Answer{Answer: NoRelevantAnswer, Contexts: contexts}, nil
	}

	prompt := BuildPrompt(e.cfg.PromptTemplate, contexts, question)
	res, err := e.generator.Generate(ctx, prompt)
	if err != nil {
		e.log(ctx).Warn("answer generation failed", zap.Error(err))
		return Answer{
			Answer:     failedAnswerPrefix + err.Error(),
			Contexts:   contexts,
			HasContext: true,
		}, nil
	}
	return Answer{Answer: res.Text, Contexts: contexts, HasContext: true}, nil
}

// Clear drops the index and removes the persisted directory. Idempotent.
// If removal fails the in-memory index is kept.
func (e *Engine) Clear(ctx context.Context) error {
	start := time.Now()

	e.mu.Lock()
	err := index.Remove(e.cfg.IndexDir)
	if err == nil {
		e.idx, e.docs = nil, nil
		e.publishGaugesLocked()
	}
	e.mu.Unlock()

	e.observe("clear", start, err)
	if err != nil {
		return fmt.Errorf("clear index: %w", err)
	}
	e.log(ctx).Info("index cleared", zap.String("index_dir", e.cfg.IndexDir))
	return nil
}

// State reports whether the engine has an index and whether it holds entries.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return stateOf(e.idx)
}

func stateOf(idx *index.Index) State {
	switch {
	case idx == nil:
		return StateAbsent
	case idx.Size() == 0:
		return StateEmpty
	default:
		return StatePopulated
	}
}

// Stats reports counts and the configured models.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := Stats{
		State:           stateOf(e.idx),
		DocumentCount:   len(e.docs),
		EmbeddingModel:  e.cfg.EmbeddingModel,
		GenerationModel: e.cfg.GenerationModel,
		VectorDB:        index.Metric,
		ProviderURL:     e.cfg.ProviderURL,
		IndexDir:        e.cfg.IndexDir,
	}
	if e.idx != nil {
		s.ChunkCount = e.idx.Size()
		s.Dimension = e.idx.Dimension()
	}
	s.HasDocuments = s.ChunkCount > 0
	return s
}

// Documents returns the registered documents in ingestion order.
func (e *Engine) Documents() []domain.DocumentRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]domain.DocumentRecord, len(e.docs))
	copy(out, e.docs)
	return out
}

func (e *Engine) log(ctx context.Context) *zap.Logger {
	return logger.FromContextOr(ctx, e.logger)
}

func (e *Engine) observe(op string, start time.Time, err error) {
	metrics.EngineOperationsTotal.WithLabelValues(op, metrics.Status(err)).Inc()
	metrics.EngineOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (e *Engine) publishGauges() {
	e.mu.RLock()
	defer e.mu.RUnlock()
	e.publishGaugesLocked()
}

func (e *Engine) publishGaugesLocked() {
	entries := 0
	if e.idx != nil {
		entries = e.idx.Size()
	}
	metrics.IndexEntries.Set(float64(entries))
	metrics.IndexDocuments.Set(float64(len(e.docs)))
}
