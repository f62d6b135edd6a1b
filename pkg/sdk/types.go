package docqa

import (
	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/usecase/rag"
)

// IndexState reports whether the index exists and holds chunks.
type IndexState string

// Index state constants.
const (
	StateAbsent    IndexState = "absent"
	StateEmpty     IndexState = "empty"
	StatePopulated IndexState = "populated"
)

// DocumentInfo describes a document at ingestion time.
type DocumentInfo struct {
	Filename string
	FileType string
	Extra    map[string]string
}

// AddResult is returned after a document has been indexed.
type AddResult struct {
	DocumentID string
	Chunks     int
}

// ChunkMetadata is stored with every chunk.
type ChunkMetadata struct {
	DocumentID  string
	Filename    string
	FileType    string
	ChunkIndex  int
	TotalChunks int
	Extra       map[string]string
}

// Context is a retrieved chunk. Lower Score means closer.
type Context struct {
	Content  string
	Score    float32
	Metadata ChunkMetadata
}

// Answer is the result of Ask.
type Answer struct {
	Answer     string
	Contexts   []Context
	HasContext bool
}

// Stats describes the index.
type Stats struct {
	State           IndexState
	DocumentCount   int
	ChunkCount      int
	Dimension       int
	EmbeddingModel  string
	GenerationModel string
	IndexDir        string
}

// Document is a registry entry for an ingested document.
type Document struct {
	ID       string
	Filename string
	FileType string
	Chunks   int
	AddedAt  int64 // unix millis
}

func contextsFromRAG(in []rag.Context) []Context {
	out := make([]Context, len(in))
	for i, c := range in {
		m := c.Metadata
		out[i] = Context{
			Content: c.Content,
			Score:   c.Score,
			Metadata: ChunkMetadata{
				DocumentID:  m.DocumentID,
				Filename:    m.Filename,
				FileType:    m.FileType,
				ChunkIndex:  m.ChunkIndex,
				TotalChunks: m.TotalChunks,
				Extra:       domain.ExtraCopy(m.Extra),
			},
		}
	}
	return out
}

func statsFromRAG(s rag.Stats) Stats {
	return Stats{
		State:           IndexState(s.State.String()),
		DocumentCount:   s.DocumentCount,
		ChunkCount:      s.ChunkCount,
		Dimension:       s.Dimension,
		EmbeddingModel:  s.EmbeddingModel,
		GenerationModel: s.GenerationModel,
		IndexDir:        s.IndexDir,
	}
}

func documentsFromRAG(in []domain.DocumentRecord) []Document {
	out := make([]Document, len(in))
	for i, d := range in {
		out[i] = Document{
			ID:       d.DocumentID,
			Filename: d.Filename,
			FileType: d.FileType,
			Chunks:   d.Chunks,
			AddedAt:  d.AddedAt,
		}
	}
	return out
}
