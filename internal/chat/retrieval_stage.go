package chat

import (
	"context"

	"github.com/hyperjump/hanashi/internal/models"
	"github.com/hyperjump/hanashi/internal/retrieval"
)

// RetrievalStage rewrites the user message with retrieved context.
type RetrievalStage struct {
	augmenter *retrieval.Augmenter
	onResult  func(*models.RetrievalResult)
}

// NewRetrievalStage returns a stage using augmenter. onResult, when not nil, is
// called with every retrieval result before the model is invoked.
func NewRetrievalStage(augmenter *retrieval.Augmenter, onResult func(*models.RetrievalResult)) *RetrievalStage {
	return &RetrievalStage{augmenter: augmenter, onResult: onResult}
}

func (s *RetrievalStage) Name() string { return "retrieval" }

func (s *RetrievalStage) Before(ctx context.Context, t *Turn) error {
	aug, err := s.augmenter.Augment(ctx, t.UserText, t.Request.FilterExpression)
	if err != nil {
		return err
	}
	t.Retrieval = aug
	t.UserText = aug.Query
	if s.onResult != nil {
		s.onResult(aug.Result)
	}
	return nil
}

func (s *RetrievalStage) After(context.Context, *Turn) error { return nil }
