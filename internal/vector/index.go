// Package vector provides the similarity index over chunk embeddings.
package vector

import "context"

// AcceptFunc reports whether a candidate id may appear in search results.
// A nil AcceptFunc accepts everything.
type AcceptFunc func(id string) bool

// VectorIndex defines vector storage and similarity search.
type VectorIndex interface {
	// Add inserts or replaces the vectors for ids.
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	// Search returns up to k accepted results ordered by descending score.
	Search(ctx context.Context, query []float32, k int, accept AcceptFunc) ([]*VectorResult, error)
	Remove(ctx context.Context, ids []string) error
	Save(path string) error
	Load(path string) error
	Size() int
	Close() error
}

// VectorResult is a single search hit. ID is the chunk id; Score is the cosine
// similarity, which lies in [-1, 1] and is in [0, 1] for typical text embeddings.
type VectorResult struct {
	ID    string
	Score float64
}
