// Package chat runs one conversational turn through a fixed sequence of stages
// around a single model invocation.
package chat

import (
	"context"
	"time"

	"github.com/hyperjump/hanashi/internal/llm"
	"github.com/hyperjump/hanashi/internal/models"
	"github.com/hyperjump/hanashi/internal/retrieval"
)

// Mode is how the model is invoked for a turn.
type Mode string

const (
	ModeCall       Mode = "call"
	ModeStream     Mode = "stream"
	ModeStructured Mode = "structured"
)

// Turn is the state of one request as it moves through the stages. Stages
// mutate it; the orchestrator assembles the prompt from it after every Before
// hook has run.
type Turn struct {
	Mode    Mode
	Request *models.ChatRequest
	Started time.Time

	// History is the conversation snapshot taken before the turn.
	History []models.Message
	// UserText is the user message sent to the model, possibly rewritten by retrieval.
	UserText string
	// Instructions are appended to the user message (structured output format).
	Instructions string
	Retrieval    *retrieval.Augmentation

	Prompt     *llm.Prompt
	Completion *llm.Completion
	// Err is the failure of the turn, if any. After hooks see it.
	Err error
}

// Succeeded reports whether the model answered and nothing failed.
func (t *Turn) Succeeded() bool { return t.Err == nil && t.Completion != nil }

// Stage observes or mutates a turn. Before hooks run in registration order
// ahead of the model call; After hooks run in reverse order once the turn has
// an outcome, including when it failed.
type Stage interface {
	Name() string
	Before(ctx context.Context, t *Turn) error
	After(ctx context.Context, t *Turn) error
}

// Observer marks a stage whose failures are reported but never fail the turn.
type Observer interface {
	Observer() bool
}

func isObserver(s Stage) bool {
	o, ok := s.(Observer)
	return ok && o.Observer()
}
