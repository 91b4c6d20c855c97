package keyword

import (
	"context"
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	kwanalyzer "github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/hyperjump/hanashi/internal/models"
)

// Field names of an indexed chunk. Any other metadata key is indexed under its own name.
const (
	FieldContent    = "content"
	FieldTitle      = "title"
	FieldDocumentID = "document_id"
	FieldKeywords   = models.MetaKeywords
	FieldSource     = models.MetaSource
)

// BleveIndex implements FilterIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve index at path. An empty path creates an in-memory index.
// If you change the index mapping in code, remove the index directory to force a full re-index.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im := bleve.NewIndexMapping()

	chunkMapping := bleve.NewDocumentMapping()
	textField := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so "refund" matches exactly "refund".
	textField.Analyzer = standard.Name
	chunkMapping.AddFieldMappingsAt(FieldContent, textField)
	chunkMapping.AddFieldMappingsAt(FieldTitle, textField)
	chunkMapping.AddFieldMappingsAt(FieldKeywords, textField)
	exactField := bleve.NewTextFieldMapping()
	exactField.Analyzer = kwanalyzer.Name
	chunkMapping.AddFieldMappingsAt(FieldDocumentID, exactField)
	chunkMapping.AddFieldMappingsAt(FieldSource, exactField)
	chunkMapping.AddFieldMappingsAt(models.MetaSourcePath, exactField)
	im.AddDocumentMapping("chunk", chunkMapping)
	im.DefaultType = "chunk"
	im.DefaultMapping = chunkMapping
	im.DefaultField = FieldContent

	if path == "" {
		index, err := bleve.NewMemOnly(im)
		if err != nil {
			return nil, fmt.Errorf("failed to create Bleve index: %w", err)
		}
		return &BleveIndex{index: index}, nil
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// chunkDocument flattens a chunk into the field map bleve indexes.
func chunkDocument(ch *models.Chunk) map[string]interface{} {
	doc := make(map[string]interface{}, len(ch.Metadata)+3)
	for k, v := range ch.Metadata {
		doc[k] = v
	}
	doc[FieldContent] = ch.Content
	doc[FieldDocumentID] = ch.DocumentID
	if src, ok := ch.Metadata[models.MetaSource].(string); ok {
		doc[FieldTitle] = src
	}
	return doc
}

// IndexChunks indexes chunks in one batch, replacing any chunk with the same id.
func (b *BleveIndex) IndexChunks(ctx context.Context, chunks []*models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	batch := b.index.NewBatch()
	for _, ch := range chunks {
		if err := batch.Index(ch.ID, chunkDocument(ch)); err != nil {
			return fmt.Errorf("index chunk %s: %w", ch.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("Bleve batch failed: %w", err)
	}
	return nil
}

// Match evaluates expr in bleve query-string syntax (e.g. "source:handbook.pdf",
// "+excerpt_keywords:refund -title:draft") and returns the ids of all matching chunks.
func (b *BleveIndex) Match(ctx context.Context, expr string) (map[string]struct{}, error) {
	qs := bleve.NewQueryStringQuery(expr)
	if _, err := qs.Parse(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	count, err := b.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}
	ids := make(map[string]struct{})
	if count == 0 {
		return ids, nil
	}
	req := bleve.NewSearchRequest(qs)
	req.Size = int(count)
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve filter search failed: %w", err)
	}
	for _, hit := range results.Hits {
		ids[hit.ID] = struct{}{}
	}
	return ids, nil
}

// Search runs a match query over chunk content and title.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int) ([]*KeywordResult, error) {
	if limit <= 0 {
		limit = 10
	}
	req := bleve.NewSearchRequest(bleve.NewMatchQuery(query))
	req.Size = limit
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*KeywordResult, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = &KeywordResult{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// DeleteDocument removes every chunk belonging to docID.
func (b *BleveIndex) DeleteDocument(ctx context.Context, docID string) error {
	tq := bleve.NewTermQuery(docID)
	tq.SetField(FieldDocumentID)
	count, err := b.index.DocCount()
	if err != nil || count == 0 {
		return err
	}
	req := bleve.NewSearchRequest(tq)
	req.Size = int(count)
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return fmt.Errorf("Bleve search failed: %w", err)
	}
	if len(results.Hits) == 0 {
		return nil
	}
	batch := b.index.NewBatch()
	for _, hit := range results.Hits {
		batch.Delete(hit.ID)
	}
	return b.index.Batch(batch)
}

// DocCount returns the number of indexed chunks.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
