// Package retrieval finds the chunks most similar to a query and turns them
// into the context section of a prompt.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/hyperjump/hanashi/internal/apperr"
	"github.com/hyperjump/hanashi/internal/config"
	"github.com/hyperjump/hanashi/internal/embedding"
	"github.com/hyperjump/hanashi/internal/keyword"
	"github.com/hyperjump/hanashi/internal/models"
	"github.com/hyperjump/hanashi/internal/vector"
	"github.com/hyperjump/hanashi/pkg/utils"
	"go.uber.org/zap"
)

// ChunkStore loads chunks by id.
type ChunkStore interface {
	GetChunks(ctx context.Context, ids []string) (map[string]*models.Chunk, error)
}

// Options are the augmentation defaults applied to every query.
type Options struct {
	SimilarityThreshold float64
	TopK                int
	// AllowEmptyContext keeps generation going with an empty context section when
	// nothing qualifies. When false the query is replaced by an out-of-scope notice.
	AllowEmptyContext bool
	// OnError is config.OnErrorFail (default) or config.OnErrorEmpty.
	OnError string
}

// OptionsFromConfig maps the retrieval config section onto Options.
func OptionsFromConfig(cfg *config.RetrievalConfig) Options {
	return Options{
		SimilarityThreshold: cfg.ThresholdOrDefault(),
		TopK:                cfg.TopK,
		AllowEmptyContext:   cfg.AllowEmptyContextOrDefault(),
		OnError:             cfg.OnError,
	}
}

// Augmenter runs similarity retrieval. Threshold, ordering and top-K are
// enforced here and not delegated to the vector index.
type Augmenter struct {
	embedder embedding.Embedder
	vectors  vector.VectorIndex
	filter   keyword.FilterIndex
	chunks   ChunkStore
	opts     Options
	logger   *zap.Logger
}

// NewAugmenter wires the collaborators. filter may be nil, in which case
// queries with a filter expression are rejected.
func NewAugmenter(
	embedder embedding.Embedder,
	vectors vector.VectorIndex,
	filter keyword.FilterIndex,
	chunks ChunkStore,
	opts Options,
	logger *zap.Logger,
) *Augmenter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.TopK <= 0 {
		opts.TopK = 3
	}
	opts.SimilarityThreshold = utils.Clamp01(opts.SimilarityThreshold)
	if opts.OnError == "" {
		opts.OnError = config.OnErrorFail
	}
	return &Augmenter{embedder: embedder, vectors: vectors, filter: filter, chunks: chunks, opts: opts, logger: logger}
}

// Options returns the effective defaults.
func (a *Augmenter) Options() Options { return a.opts }

// Query builds a RetrievalQuery for text with the augmenter defaults.
func (a *Augmenter) Query(text, filterExpression string) *models.RetrievalQuery {
	return &models.RetrievalQuery{
		Text:             text,
		FilterExpression: filterExpression,
		Threshold:        a.opts.SimilarityThreshold,
		TopK:             a.opts.TopK,
	}
}

// Retrieve returns the chunks most similar to q.Text, best first. Every score
// is at least q.Threshold and at most q.TopK chunks are returned. Equal scores
// are ordered by chunk id.
func (a *Augmenter) Retrieve(ctx context.Context, q *models.RetrievalQuery) (*models.RetrievalResult, error) {
	if err := q.Validate(); err != nil {
		return nil, apperr.InvalidRequest("retrieve", err)
	}
	result := &models.RetrievalResult{Query: q.Text, Chunks: []*models.ScoredChunk{}}

	var accept vector.AcceptFunc
	if q.HasFilter() {
		if a.filter == nil {
			return nil, apperr.InvalidRequest("retrieve", fmt.Errorf("filter expressions are not supported"))
		}
		ids, err := a.filter.Match(ctx, q.FilterExpression)
		if err != nil {
			if errors.Is(err, keyword.ErrInvalidFilter) {
				return nil, apperr.InvalidRequest("retrieve", err)
			}
			return nil, apperr.Retrieval("filter", err)
		}
		if len(ids) == 0 {
			return result, nil
		}
		accept = func(id string) bool {
			_, ok := ids[id]
			return ok
		}
	}

	emb, err := a.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, apperr.Retrieval("embed query", err)
	}
	hits, err := a.vectors.Search(ctx, emb, q.TopK, accept)
	if err != nil {
		return nil, apperr.Retrieval("similarity search", err)
	}

	scores := make(map[string]float64, len(hits))
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		// The index may return anything; only qualifying candidates are kept.
		s := utils.Clamp01(h.Score)
		if s < q.Threshold {
			continue
		}
		if accept != nil && !accept(h.ID) {
			continue
		}
		if _, dup := scores[h.ID]; dup {
			continue
		}
		scores[h.ID] = s
		ids = append(ids, h.ID)
	}
	if len(ids) == 0 {
		return result, nil
	}

	loaded, err := a.chunks.GetChunks(ctx, ids)
	if err != nil {
		return nil, apperr.Retrieval("load chunks", err)
	}
	for _, id := range ids {
		ch, ok := loaded[id]
		if !ok {
			a.logger.Debug("retrieval skipping vector without chunk", zap.String("chunk_id", id))
			continue
		}
		result.Chunks = append(result.Chunks, &models.ScoredChunk{Chunk: ch, Score: scores[id]})
	}
	sort.SliceStable(result.Chunks, func(i, j int) bool {
		if result.Chunks[i].Score != result.Chunks[j].Score {
			return result.Chunks[i].Score > result.Chunks[j].Score
		}
		return result.Chunks[i].Chunk.ID < result.Chunks[j].Chunk.ID
	})
	if len(result.Chunks) > q.TopK {
		result.Chunks = result.Chunks[:q.TopK]
	}
	return result, nil
}

// Augmentation is the outcome of augmenting one user query.
type Augmentation struct {
	// Query is the text that replaces the user message.
	Query  string
	Result *models.RetrievalResult
	Status models.ContextStatus
	// Degraded is set when retrieval failed and the empty-context fallback was used.
	Degraded bool
}

// Augment retrieves context for userQuery and rewrites it into the prompt text.
// A retrieval failure is returned unless OnError is "empty", in which case it
// is treated like a search with no hits.
func (a *Augmenter) Augment(ctx context.Context, userQuery, filterExpression string) (*Augmentation, error) {
	res, err := a.Retrieve(ctx, a.Query(userQuery, filterExpression))
	aug := &Augmentation{Result: res}
	if err != nil {
		if apperr.KindOf(err) != apperr.KindRetrieval || a.opts.OnError != config.OnErrorEmpty {
			return nil, err
		}
		a.logger.Warn("retrieval failed, continuing with empty context", zap.Error(err))
		aug.Result = &models.RetrievalResult{Query: userQuery, Chunks: []*models.ScoredChunk{}}
		aug.Degraded = true
	}

	switch {
	case !aug.Result.Empty():
		aug.Status = models.ContextPresent
		aug.Query = fmt.Sprintf(contextTemplate, BuildContext(aug.Result), userQuery)
	case a.opts.AllowEmptyContext:
		aug.Status = models.ContextEmpty
		aug.Query = fmt.Sprintf(contextTemplate, "", userQuery)
	default:
		aug.Status = models.ContextAbsent
		aug.Query = emptyContextTemplate
	}
	a.logger.Debug("retrieval augmented query",
		zap.String("context_status", string(aug.Status)),
		zap.Int("chunks", len(aug.Result.Chunks)),
		zap.Bool("degraded", aug.Degraded))
	return aug, nil
}
