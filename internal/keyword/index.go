// Package keyword indexes chunk text and metadata in bleve so that filter
// expressions can restrict which chunks a similarity search may return.
package keyword

import (
	"context"
	"errors"

	"github.com/hyperjump/hanashi/internal/models"
)

// ErrInvalidFilter is returned when a filter expression cannot be parsed.
var ErrInvalidFilter = errors.New("invalid filter expression")

// FilterIndex evaluates filter expressions over indexed chunks.
type FilterIndex interface {
	IndexChunks(ctx context.Context, chunks []*models.Chunk) error
	// Match returns the ids of every chunk matching expr.
	Match(ctx context.Context, expr string) (map[string]struct{}, error)
	// Search runs a plain full-text query over chunk content and returns up to limit hits.
	Search(ctx context.Context, query string, limit int) ([]*KeywordResult, error)
	DeleteDocument(ctx context.Context, docID string) error
	DocCount() (uint64, error)
	Close() error
}

// KeywordResult is a single keyword search hit.
type KeywordResult struct {
	ID    string
	Score float64
}
