package embedding

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/dgraph-io/ristretto"
)

// CachedEmbedder memoizes embeddings by text in front of another Embedder.
// Repeated queries and re-ingested chunks skip the model entirely.
type CachedEmbedder struct {
	inner  Embedder
	cache  *ristretto.Cache
	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachedEmbedder wraps inner with a cache holding about capacity embeddings.
func NewCachedEmbedder(inner Embedder, capacity int) (*CachedEmbedder, error) {
	if capacity <= 0 {
		capacity = 1
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: int64(capacity) * 10,
		MaxCost:     int64(capacity),
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return &CachedEmbedder{inner: inner, cache: cache}, nil
}

// Embed returns the cached embedding for text, computing it on a miss.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		c.hits.Add(1)
		return v.([]float32), nil
	}
	c.misses.Add(1)
	emb, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, emb, 1)
	return emb, nil
}

// EmbedBatch serves hits from the cache and sends only the misses to the inner embedder in one batch.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		if v, ok := c.cache.Get(text); ok {
			c.hits.Add(1)
			out[i] = v.([]float32)
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out, nil
	}
	c.misses.Add(int64(len(missTexts)))
	embs, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(embs) != len(missTexts) {
		return nil, fmt.Errorf("embedder returned %d embeddings for %d texts", len(embs), len(missTexts))
	}
	for j, i := range missIdx {
		out[i] = embs[j]
		c.cache.Set(missTexts[j], embs[j], 1)
	}
	return out, nil
}

// Dimensions returns the inner embedder's dimension.
func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

// Stats returns the number of cache hits and misses so far.
func (c *CachedEmbedder) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Wait blocks until pending cache writes are applied.
func (c *CachedEmbedder) Wait() { c.cache.Wait() }

// Close releases the cache and closes the inner embedder.
func (c *CachedEmbedder) Close() error {
	c.cache.Close()
	return c.inner.Close()
}
