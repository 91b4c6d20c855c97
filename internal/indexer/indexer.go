package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/hanashi/internal/embedding"
	"github.com/hyperjump/hanashi/internal/extract"
	"github.com/hyperjump/hanashi/internal/fileid"
	"github.com/hyperjump/hanashi/internal/keyword"
	"github.com/hyperjump/hanashi/internal/models"
	"github.com/hyperjump/hanashi/internal/storage"
	"github.com/hyperjump/hanashi/internal/vector"
	"go.uber.org/zap"
)

// Indexer runs the ingestion pipeline: read a source, normalize and chunk it,
// enrich the chunks with keywords, embed them, then write the document, its
// chunks, their vectors and their filterable fields.
type Indexer struct {
	storage     storage.Storage
	embedder    embedding.Embedder
	vectorIndex vector.VectorIndex
	filterIndex keyword.FilterIndex
	chunker     *Chunker
	extractor   *extract.Extractor
	enricher    *KeywordEnricher
	normalize   bool
	extensions  []string
	logger      *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output (file indexed, document deleted, etc.).
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithExtractor sets the document reader. Defaults to extract.NewExtractor().
func WithExtractor(e *extract.Extractor) IndexerOption {
	return func(idx *Indexer) { idx.extractor = e }
}

// WithEnricher enables keyword enrichment of every chunk.
func WithEnricher(e *KeywordEnricher) IndexerOption {
	return func(idx *Indexer) { idx.enricher = e }
}

// WithNormalize toggles whitespace normalization before chunking. Defaults to true.
func WithNormalize(on bool) IndexerOption {
	return func(idx *Indexer) { idx.normalize = on }
}

// WithExtensions limits pattern ingestion to the given file extensions.
func WithExtensions(exts []string) IndexerOption {
	return func(idx *Indexer) { idx.extensions = exts }
}

// NewIndexer creates an indexer with the given dependencies.
func NewIndexer(
	store storage.Storage,
	embedder embedding.Embedder,
	vectorIndex vector.VectorIndex,
	filterIndex keyword.FilterIndex,
	chunker *Chunker,
	opts ...IndexerOption,
) *Indexer {
	idx := &Indexer{
		storage:     store,
		embedder:    embedder,
		vectorIndex: vectorIndex,
		filterIndex: filterIndex,
		chunker:     chunker,
		normalize:   true,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	if idx.extractor == nil {
		idx.extractor = extract.NewExtractor()
	}
	return idx
}

// Transform turns a document into enriched chunks. doc is not modified.
func (idx *Indexer) Transform(ctx context.Context, doc *models.Document) ([]*models.Chunk, error) {
	d := *doc
	if idx.normalize {
		d.Content = Normalize(d.Content)
	}
	chunks := idx.chunker.Chunk(&d)
	if idx.enricher != nil && len(chunks) > 0 {
		if err := idx.enricher.Enrich(ctx, chunks); err != nil {
			return nil, err
		}
	}
	return chunks, nil
}

// Write embeds chunks and persists doc and chunks into storage, the vector index
// and the filter index. Embeddings are computed before anything is stored.
func (idx *Indexer) Write(ctx context.Context, doc *models.Document, chunks []*models.Chunk) error {
	ids := make([]string, len(chunks))
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		ids[i] = ch.ID
		texts[i] = ch.Content
	}
	var embeddings [][]float32
	if len(chunks) > 0 {
		var err error
		embeddings, err = idx.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to generate embeddings: %w", err)
		}
		for i := range chunks {
			chunks[i].Embedding = embeddings[i]
		}
	}
	if err := idx.storage.CreateDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to store document: %w", err)
	}
	if len(chunks) == 0 {
		return nil
	}
	if err := idx.storage.BatchCreateChunks(ctx, chunks); err != nil {
		return fmt.Errorf("failed to store chunks: %w", err)
	}
	if err := idx.vectorIndex.Add(ctx, ids, embeddings); err != nil {
		return fmt.Errorf("failed to index vectors: %w", err)
	}
	if err := idx.filterIndex.IndexChunks(ctx, chunks); err != nil {
		return fmt.Errorf("failed to index chunk fields: %w", err)
	}
	return nil
}

// IndexDocument ingests an inline document, replacing any document with the same id.
// A missing id gets a random one.
func (idx *Indexer) IndexDocument(ctx context.Context, input *models.DocumentInput) (*models.Document, []*models.Chunk, error) {
	if strings.TrimSpace(input.Content) == "" {
		return nil, nil, fmt.Errorf("document content cannot be empty")
	}
	id := input.ID
	if id == "" {
		id = fileid.New()
	}
	meta := models.CopyMetadata(input.Metadata)
	if _, ok := meta[models.MetaSource]; !ok && input.Title != "" {
		meta[models.MetaSource] = input.Title
	}
	doc := &models.Document{ID: id, Title: input.Title, Content: input.Content, Metadata: meta}
	chunks, err := idx.replace(ctx, doc)
	if err != nil {
		return nil, nil, err
	}
	return doc, chunks, nil
}

func (idx *Indexer) replace(ctx context.Context, doc *models.Document) ([]*models.Chunk, error) {
	chunks, err := idx.Transform(ctx, doc)
	if err != nil {
		return nil, err
	}
	if err := idx.DeleteDocument(ctx, doc.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	if err := idx.Write(ctx, doc, chunks); err != nil {
		return nil, err
	}
	idx.logger.Debug("indexer document written",
		zap.String("doc_id", doc.ID), zap.String("title", doc.Title), zap.Int("chunks", len(chunks)))
	return chunks, nil
}

// FileResult describes the outcome of ingesting one file.
type FileResult struct {
	Path       string          `json:"path"`
	DocumentID string          `json:"document_id"`
	Skipped    bool            `json:"skipped"`
	Chunks     []*models.Chunk `json:"chunks,omitempty"`
}

// IndexFile reads and ingests one file. The document id is derived from the absolute
// path so re-indexing replaces the previous chunks. An unchanged file (same path,
// mtime and size) is skipped.
func (idx *Indexer) IndexFile(ctx context.Context, path string) (*FileResult, error) {
	idx.logger.Debug("indexer indexing file", zap.String("path", path))
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", absPath)
	}
	docID := fileid.ForPath(absPath)
	res := &FileResult{Path: absPath, DocumentID: docID}
	if idx.unchanged(ctx, absPath, docID, info) {
		idx.logger.Debug("indexer skipping unchanged file", zap.String("path", absPath))
		res.Skipped = true
		return res, nil
	}
	doc, err := ReadFile(idx.extractor, absPath)
	if err != nil {
		return nil, err
	}
	chunks, err := idx.replace(ctx, doc)
	if err != nil {
		return nil, err
	}
	res.Chunks = chunks
	idx.logger.Debug("indexer file indexed", zap.String("path", absPath), zap.String("doc_id", docID))
	return res, nil
}

func (idx *Indexer) unchanged(ctx context.Context, absPath, docID string, info os.FileInfo) bool {
	doc, err := idx.storage.GetDocument(ctx, docID)
	if err != nil || doc.Metadata == nil {
		return false
	}
	return doc.Metadata[models.MetaSourcePath] == absPath &&
		metadataInt64(doc.Metadata, models.MetaModTime) == info.ModTime().UnixNano() &&
		metadataInt64(doc.Metadata, models.MetaSize) == info.Size()
}

// Report summarizes a pattern ingestion.
type Report struct {
	Files   []*FileResult     `json:"files"`
	Indexed int               `json:"indexed"`
	Skipped int               `json:"skipped"`
	Chunks  int               `json:"chunks"`
	Failed  map[string]string `json:"failed,omitempty"`
}

// IndexPattern ingests every file matched by a document location pattern. A file
// that fails is recorded in the report and does not stop the others; errors
// resolving the pattern or a canceled context are returned.
func (idx *Indexer) IndexPattern(ctx context.Context, pattern string) (*Report, error) {
	paths, err := ResolvePattern(pattern, idx.extensions)
	if err != nil {
		return nil, err
	}
	rep := &Report{Files: make([]*FileResult, 0, len(paths))}
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		res, err := idx.IndexFile(ctx, p)
		if err != nil {
			if rep.Failed == nil {
				rep.Failed = map[string]string{}
			}
			rep.Failed[p] = err.Error()
			idx.logger.Warn("indexer failed to index file", zap.String("path", p), zap.Error(err))
			continue
		}
		rep.Files = append(rep.Files, res)
		if res.Skipped {
			rep.Skipped++
			continue
		}
		rep.Indexed++
		rep.Chunks += len(res.Chunks)
	}
	idx.logger.Info("ingestion finished",
		zap.String("pattern", pattern),
		zap.Int("indexed", rep.Indexed),
		zap.Int("skipped", rep.Skipped),
		zap.Int("failed", len(rep.Failed)),
		zap.Int("chunks", rep.Chunks))
	return rep, nil
}

// Accepts reports whether path has an extension the indexer ingests.
func (idx *Indexer) Accepts(path string) bool {
	return len(idx.extensions) == 0 || extensionAllowed(filepath.Ext(path), idx.extensions)
}

// DeleteFile removes the document ingested from path, if any.
func (idx *Indexer) DeleteFile(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("absolute path: %w", err)
	}
	return idx.DeleteDocument(ctx, fileid.ForPath(absPath))
}

// DeleteDocument removes a document from all indices and storage. It returns
// storage.ErrNotFound when no such document exists.
func (idx *Indexer) DeleteDocument(ctx context.Context, id string) error {
	if _, err := idx.storage.GetDocument(ctx, id); err != nil {
		return err
	}
	idx.logger.Debug("indexer deleting document", zap.String("id", id))
	if err := idx.filterIndex.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("failed to delete from filter index: %w", err)
	}
	chunks, err := idx.storage.GetChunksByDocumentID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get chunks: %w", err)
	}
	chunkIDs := make([]string, len(chunks))
	for i, ch := range chunks {
		chunkIDs[i] = ch.ID
	}
	if err := idx.vectorIndex.Remove(ctx, chunkIDs); err != nil {
		return fmt.Errorf("failed to delete from vector index: %w", err)
	}
	if err := idx.storage.DeleteChunksByDocumentID(ctx, id); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if err := idx.storage.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	idx.logger.Debug("indexer document deleted", zap.String("id", id))
	return nil
}

// Rebuild re-embeds every stored chunk into the vector index. The index is
// in-memory or file-backed, so it can be lost while storage survives; unchanged
// files would then be skipped on ingest without ever getting vectors back.
func (idx *Indexer) Rebuild(ctx context.Context) (int, error) {
	const page = 100
	total := 0
	for offset := 0; ; offset += page {
		docs, err := idx.storage.ListDocuments(ctx, offset, page)
		if err != nil {
			return total, fmt.Errorf("failed to list documents: %w", err)
		}
		for _, doc := range docs {
			chunks, err := idx.storage.GetChunksByDocumentID(ctx, doc.ID)
			if err != nil {
				return total, fmt.Errorf("failed to get chunks: %w", err)
			}
			if len(chunks) == 0 {
				continue
			}
			ids := make([]string, len(chunks))
			texts := make([]string, len(chunks))
			for i, ch := range chunks {
				ids[i] = ch.ID
				texts[i] = ch.Content
			}
			embeddings, err := idx.embedder.EmbedBatch(ctx, texts)
			if err != nil {
				return total, fmt.Errorf("failed to generate embeddings: %w", err)
			}
			if err := idx.vectorIndex.Add(ctx, ids, embeddings); err != nil {
				return total, fmt.Errorf("failed to index vectors: %w", err)
			}
			total += len(chunks)
		}
		if len(docs) < page {
			break
		}
	}
	idx.logger.Info("vector index rebuilt", zap.Int("chunks", total))
	return total, nil
}
