package models

import (
	"fmt"
	"strings"
)

// RetrievalQuery is one similarity lookup. Threshold is in [0, 1].
type RetrievalQuery struct {
	Text             string  `json:"text"`
	FilterExpression string  `json:"filter_expression,omitempty"`
	Threshold        float64 `json:"threshold"`
	TopK             int     `json:"top_k"`
}

// HasFilter reports whether a non-blank filter expression was supplied.
func (q *RetrievalQuery) HasFilter() bool {
	return strings.TrimSpace(q.FilterExpression) != ""
}

// Validate ensures the query is usable and normalizes its bounds.
// Returns an error if the text is empty; clamps threshold to [0, 1] and top-K to [1, 100].
func (q *RetrievalQuery) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("query text cannot be empty")
	}
	if q.TopK <= 0 {
		q.TopK = 3
	}
	if q.TopK > 100 {
		q.TopK = 100
	}
	if q.Threshold < 0 {
		q.Threshold = 0
	}
	if q.Threshold > 1 {
		q.Threshold = 1
	}
	if !q.HasFilter() {
		q.FilterExpression = ""
	}
	return nil
}
