package vector

import (
	"context"
	"fmt"
	"runtime"

	chromem "github.com/philippgille/chromem-go"
)

const chromemCollection = "chunks"

// ChromemIndex stores chunk embeddings in an embedded chromem-go database.
// With a path the database persists itself on every write; Save and Load are no-ops.
type ChromemIndex struct {
	db         *chromem.DB
	col        *chromem.Collection
	dimensions int
}

// NewChromemIndex opens a persistent database at path, or an in-memory one when path is empty.
func NewChromemIndex(path string, dimensions int, compress bool) (*ChromemIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(path, compress)
		if err != nil {
			return nil, fmt.Errorf("open chromem db: %w", err)
		}
	}
	// Embeddings are always supplied by the caller, so no embedding func is needed.
	col, err := db.GetOrCreateCollection(chromemCollection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return &ChromemIndex{db: db, col: col, dimensions: dimensions}, nil
}

// Type returns the index type identifier.
func (c *ChromemIndex) Type() string {
	return string(IndexTypeChromem)
}

// Add inserts or replaces the vectors for ids.
func (c *ChromemIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch")
	}
	docs := make([]chromem.Document, len(ids))
	for i, id := range ids {
		if len(vectors[i]) != c.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vectors[i]), c.dimensions)
		}
		vec := make([]float32, c.dimensions)
		copy(vec, vectors[i])
		docs[i] = chromem.Document{ID: id, Embedding: vec}
	}
	// chromem overwrites documents with an existing id.
	if err := c.col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("add documents: %w", err)
	}
	return nil
}

// Search returns up to k accepted results. chromem cannot filter on an id set,
// so with an accept func every document is scored and the filter applied after.
func (c *ChromemIndex) Search(ctx context.Context, query []float32, k int, accept AcceptFunc) ([]*VectorResult, error) {
	if len(query) != c.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), c.dimensions)
	}
	count := c.col.Count()
	if k <= 0 || count == 0 {
		return nil, nil
	}
	n := k
	if accept != nil || n > count {
		n = count
	}
	results, err := c.col.QueryEmbedding(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}
	out := make([]*VectorResult, 0, k)
	for _, r := range results {
		if accept != nil && !accept(r.ID) {
			continue
		}
		out = append(out, &VectorResult{ID: r.ID, Score: float64(r.Similarity)})
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// Remove deletes vectors by ID.
func (c *ChromemIndex) Remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("delete documents: %w", err)
	}
	return nil
}

// Save is a no-op; a persistent chromem database writes through.
func (c *ChromemIndex) Save(string) error { return nil }

// Load is a no-op; a persistent chromem database is loaded when opened.
func (c *ChromemIndex) Load(string) error { return nil }

// Size returns the number of vectors in the index.
func (c *ChromemIndex) Size() int { return c.col.Count() }

// Close is a no-op; chromem holds no open handles between writes.
func (c *ChromemIndex) Close() error { return nil }
