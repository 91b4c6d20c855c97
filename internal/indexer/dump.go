package indexer

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/hyperjump/hanashi/internal/models"
)

// WriteJSON writes chunks to w as an indented JSON array, framed by banner lines.
func WriteJSON(w io.Writer, chunks []*models.Chunk) error {
	fmt.Fprintln(w, "===== writing chunks =====")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if chunks == nil {
		chunks = []*models.Chunk{}
	}
	if err := enc.Encode(chunks); err != nil {
		return fmt.Errorf("encode chunks: %w", err)
	}
	fmt.Fprintf(w, "===== %d chunks written =====\n", len(chunks))
	return nil
}
