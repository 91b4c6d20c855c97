package retrieval

import (
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/hanashi/internal/models"
)

const rule = "================================================"

// Print writes the retrieved chunks for a console user: a numbered header with
// the score, then the chunk text between rules.
func Print(w io.Writer, res *models.RetrievalResult) {
	if res.Empty() {
		fmt.Fprintln(w, "No documents found")
		return
	}
	for i, sc := range res.Chunks {
		fmt.Fprintf(w, "%d Document, Score: %.2f\n", i+1, sc.Score)
		fmt.Fprintln(w, rule)
		for _, line := range strings.Split(sc.Chunk.Content, "\n") {
			fmt.Fprintln(w, line)
		}
		fmt.Fprintln(w, rule)
	}
}
