package retrieval

import (
	"fmt"
	"strings"

	"github.com/hyperjump/hanashi/internal/models"
)

const contextTemplate = `Context information is below.

---------------------
%s
---------------------

Given the context information and no prior knowledge, answer the query.

Follow these rules:

1. If the answer is not in the context, just say that you don't know.
2. Avoid statements like "Based on the context..." or "The provided information...".

Query: %s

Answer:
`

const emptyContextTemplate = `The user query is outside your knowledge base.
Politely inform the user that you can't answer it.
`

// BuildContext renders the chunks of res, best first, each under a sequence
// number starting at 1. An empty result renders as "".
func BuildContext(res *models.RetrievalResult) string {
	if res.Empty() {
		return ""
	}
	var b strings.Builder
	for i, sc := range res.Chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d]", i+1)
		if src, ok := sc.Chunk.Metadata[models.MetaSource].(string); ok && src != "" {
			fmt.Fprintf(&b, " %s", src)
		}
		fmt.Fprintf(&b, " (score %.2f)\n%s", sc.Score, sc.Chunk.Content)
	}
	return b.String()
}
