// Package llm defines the chat model collaborator and its adapters.
package llm

import (
	"context"
	"strings"

	"github.com/hyperjump/hanashi/internal/models"
)

// Options tune a single model invocation. Zero values mean "use the model default"
// except Temperature, which is always sent.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
	// JSON asks the model for a JSON object. Providers without a JSON mode ignore it.
	JSON bool
}

// Prompt is the fully assembled model input.
type Prompt struct {
	System   string
	Messages []models.Message
	Options  Options
}

// Clone returns a copy of p whose Messages can be modified independently.
func (p *Prompt) Clone() *Prompt {
	out := *p
	out.Messages = append([]models.Message(nil), p.Messages...)
	return &out
}

// LastUser returns the content of the last user message, or "".
func (p *Prompt) LastUser() string {
	for i := len(p.Messages) - 1; i >= 0; i-- {
		if p.Messages[i].Role == models.RoleUser {
			return p.Messages[i].Content
		}
	}
	return ""
}

// SetLastUser replaces the content of the last user message.
func (p *Prompt) SetLastUser(content string) {
	for i := len(p.Messages) - 1; i >= 0; i-- {
		if p.Messages[i].Role == models.RoleUser {
			p.Messages[i].Content = content
			return
		}
	}
	p.Messages = append(p.Messages, models.UserMessage(content))
}

// systemText merges p.System with any system-role messages, for providers that
// take the system prompt out of band.
func (p *Prompt) systemText() (string, []models.Message) {
	parts := []string{}
	if strings.TrimSpace(p.System) != "" {
		parts = append(parts, p.System)
	}
	rest := make([]models.Message, 0, len(p.Messages))
	for _, m := range p.Messages {
		if m.Role == models.RoleSystem {
			parts = append(parts, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(parts, "\n\n"), rest
}

// Completion is a finished model answer plus provider metadata (model, usage, stop reason).
type Completion struct {
	Text     string
	Metadata map[string]interface{}
}

// YieldFunc receives streamed text fragments in arrival order. Returning an
// error stops the stream and Stream returns that error.
type YieldFunc func(fragment string) error

// ChatModel is the model collaborator.
type ChatModel interface {
	Name() string
	// Call blocks until the full answer is available.
	Call(ctx context.Context, p *Prompt) (*Completion, error)
	// Stream delivers fragments to yield as they arrive and returns the accumulated
	// completion once the model is done.
	Stream(ctx context.Context, p *Prompt, yield YieldFunc) (*Completion, error)
}
