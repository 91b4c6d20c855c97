// Package indexer provides document chunking and the ingestion pipeline.
package indexer

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hyperjump/hanashi/internal/apperr"
	"github.com/hyperjump/hanashi/internal/models"
)

// Split returns the rune windows of text: each at most chunkSize runes long and
// starting overlap runes before the previous window ended. The final window may
// be shorter. Blank text yields no windows; text no longer than overlap yields
// one window covering all of it.
//
// When overlap >= chunkSize the next window would not move forward, so the
// cursor jumps to the end of the current one instead. The text is still fully
// covered and the loop always terminates.
func Split(text string, chunkSize, overlap int) []models.Span {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	n := utf8.RuneCountInString(text)
	if n <= overlap {
		return []models.Span{{Start: 0, End: n}}
	}
	if chunkSize <= 0 {
		return nil
	}
	spans := make([]models.Span, 0, n/chunkSize+1)
	cursor := 0
	for {
		end := cursor + chunkSize
		if end > n {
			end = n
		}
		spans = append(spans, models.Span{Start: cursor, End: end})
		if end == n {
			break
		}
		next := end - overlap
		if next <= cursor {
			next = end
		}
		cursor = next
	}
	return spans
}

// Chunker splits documents into overlapping rune windows.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker creates a chunker with the given size and overlap (in characters).
// Returns a chunking error if size is not positive or overlap is negative.
func NewChunker(chunkSize, chunkOverlap int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, apperr.Errorf(apperr.KindChunking, "new chunker", "chunk size must be positive, got %d", chunkSize)
	}
	if chunkOverlap < 0 {
		return nil, apperr.Errorf(apperr.KindChunking, "new chunker", "chunk overlap must not be negative, got %d", chunkOverlap)
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}, nil
}

// Size returns the configured chunk size.
func (c *Chunker) Size() int { return c.chunkSize }

// Overlap returns the configured chunk overlap.
func (c *Chunker) Overlap() int { return c.chunkOverlap }

// Chunk splits doc into chunks. Each chunk inherits a copy of the document
// metadata plus its index and start offset. Chunk ids are derived from the
// document id and index, so re-chunking the same document yields the same ids.
func (c *Chunker) Chunk(doc *models.Document) []*models.Chunk {
	spans := Split(doc.Content, c.chunkSize, c.chunkOverlap)
	if len(spans) == 0 {
		return nil
	}
	runes := []rune(doc.Content)
	now := time.Now()
	chunks := make([]*models.Chunk, 0, len(spans))
	for i, sp := range spans {
		meta := models.CopyMetadata(doc.Metadata)
		meta[models.MetaChunkIndex] = i
		meta[models.MetaStartOffset] = sp.Start
		chunks = append(chunks, &models.Chunk{
			ID:          ChunkID(doc.ID, i),
			DocumentID:  doc.ID,
			Content:     string(runes[sp.Start:sp.End]),
			ChunkIndex:  i,
			StartOffset: sp.Start,
			Metadata:    meta,
			CreatedAt:   now,
		})
	}
	return chunks
}

// ChunkID returns the stable id of the index-th chunk of a document.
func ChunkID(docID string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(docID+"#"+strconv.Itoa(index))).String()
}
