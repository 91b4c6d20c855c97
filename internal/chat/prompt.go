package chat

import (
	"strings"

	"github.com/hyperjump/hanashi/internal/llm"
	"github.com/hyperjump/hanashi/internal/models"
)

// assemble builds the model prompt: system prompt, history, then the user message.
func assemble(t *Turn, opts llm.Options) *llm.Prompt {
	user := t.UserText
	if t.Instructions != "" {
		user = strings.TrimRight(user, "\n") + "\n\n" + t.Instructions
	}
	msgs := make([]models.Message, 0, len(t.History)+1)
	msgs = append(msgs, t.History...)
	msgs = append(msgs, models.UserMessage(user))
	return &llm.Prompt{
		System:   strings.TrimSpace(t.Request.SystemPrompt),
		Messages: msgs,
		Options:  opts,
	}
}

// options merges per-request chat options over the defaults.
func options(defaults llm.Options, o *models.ChatOptions) llm.Options {
	out := defaults
	if o == nil {
		return out
	}
	if o.Temperature != nil {
		out.Temperature = *o.Temperature
	}
	if o.MaxTokens > 0 {
		out.MaxTokens = o.MaxTokens
	}
	if o.Model != "" {
		out.Model = o.Model
	}
	return out
}
