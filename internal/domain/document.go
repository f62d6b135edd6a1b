package domain

// ChunkMetadata is the fixed per-chunk schema stored with every index entry.
// Extra carries caller-supplied keys that have no fixed slot.
type ChunkMetadata struct {
	DocumentID  string            `json:"document_id"`
	Filename    string            `json:"filename,omitempty"`
	FileType    string            `json:"file_type,omitempty"`
	ChunkIndex  int               `json:"chunk_index"`
	TotalChunks int               `json:"total_chunks"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// DocumentMeta is what the caller knows about a document at ingestion time.
type DocumentMeta struct {
	Filename string
	FileType string
	Extra    map[string]string
}

// DocumentRecord registers an ingested document so the document count survives restarts.
type DocumentRecord struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename,omitempty"`
	FileType   string `json:"file_type,omitempty"`
	Chunks     int    `json:"chunks"`
	AddedAt    int64  `json:"added_at"` // unix millis
}

// ExtraCopy returns a copy of m, nil for an empty map.
func ExtraCopy(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
