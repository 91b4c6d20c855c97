// Package models defines the core data structures shared across ingestion,
// retrieval, memory, and chat.
package models

import "time"

// Metadata keys written by ingestion.
const (
	MetaSource      = "source"
	MetaSourcePath  = "source_path"
	MetaModTime     = "source_mtime"
	MetaSize        = "source_size"
	MetaKeywords    = "excerpt_keywords"
	MetaChunkIndex  = "chunk_index"
	MetaStartOffset = "start_offset"
)

// Document is immutable source text plus its metadata.
type Document struct {
	ID        string                 `json:"id" db:"id"`
	Title     string                 `json:"title" db:"title"`
	Content   string                 `json:"content" db:"content"`
	Metadata  map[string]interface{} `json:"metadata" db:"metadata"`
	CreatedAt time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt time.Time              `json:"updated_at" db:"updated_at"`
}

// Chunk is a window of a Document. It carries its own copy of the document
// metadata and the rune offset at which it starts.
type Chunk struct {
	ID          string                 `json:"id" db:"id"`
	DocumentID  string                 `json:"document_id" db:"document_id"`
	Content     string                 `json:"content" db:"content"`
	ChunkIndex  int                    `json:"chunk_index" db:"chunk_index"`
	StartOffset int                    `json:"start_offset" db:"start_offset"`
	Metadata    map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	Embedding   []float32              `json:"-" db:"-"`
	CreatedAt   time.Time              `json:"created_at" db:"created_at"`
}

// Span is a half-open rune range [Start, End) of a text.
type Span struct {
	Start int
	End   int
}

// Len returns the number of runes covered by the span.
func (s Span) Len() int { return s.End - s.Start }

// DocumentInput is the input for ingesting an inline document.
type DocumentInput struct {
	ID       string                 `json:"id,omitempty"`
	Title    string                 `json:"title,omitempty"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// CopyMetadata returns a shallow copy of m. A nil map yields an empty map.
func CopyMetadata(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
