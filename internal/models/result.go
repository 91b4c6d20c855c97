package models

// ScoredChunk is a retrieved chunk with its similarity score in [0, 1].
type ScoredChunk struct {
	Chunk *Chunk  `json:"chunk"`
	Score float64 `json:"score"`
}

// RetrievalResult is ordered by descending score, holds at most top-K entries,
// and every score is at or above the query threshold.
type RetrievalResult struct {
	Query  string         `json:"query"`
	Chunks []*ScoredChunk `json:"chunks"`
}

// Empty reports whether no chunk qualified.
func (r *RetrievalResult) Empty() bool { return r == nil || len(r.Chunks) == 0 }

// ContextStatus describes what the prompt carried as retrieved context.
type ContextStatus string

const (
	// ContextPresent means at least one chunk was injected.
	ContextPresent ContextStatus = "present"
	// ContextEmpty means retrieval ran and the context section is explicitly empty.
	ContextEmpty ContextStatus = "empty"
	// ContextAbsent means no context section was attached at all.
	ContextAbsent ContextStatus = "absent"
)
