package chat

import (
	"context"

	"github.com/hyperjump/hanashi/internal/memory"
	"github.com/hyperjump/hanashi/internal/models"
)

// MemoryStage injects the conversation history and records completed turns.
type MemoryStage struct {
	store *memory.Store
}

// NewMemoryStage returns a stage backed by store.
func NewMemoryStage(store *memory.Store) *MemoryStage {
	return &MemoryStage{store: store}
}

func (s *MemoryStage) Name() string { return "memory" }

// Before copies the current window into the turn.
func (s *MemoryStage) Before(_ context.Context, t *Turn) error {
	t.History = s.store.Snapshot(t.Request.ConversationID)
	return nil
}

// After appends the user prompt and the answer, only for a turn that succeeded.
func (s *MemoryStage) After(_ context.Context, t *Turn) error {
	if !t.Succeeded() {
		return nil
	}
	return s.store.Append(t.Request.ConversationID,
		models.UserMessage(t.Request.UserPrompt),
		models.AssistantMessage(t.Completion.Text))
}
