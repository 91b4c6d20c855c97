package models

import (
	"fmt"
	"strings"
)

// DefaultConversationID is used when a request carries no conversation id.
const DefaultConversationID = "default"

// ChatOptions override model defaults for a single request.
type ChatOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Model       string   `json:"model,omitempty"`
}

// ChatRequest is a single inbound turn.
type ChatRequest struct {
	ConversationID   string       `json:"conversation_id,omitempty"`
	UserPrompt       string       `json:"user_prompt"`
	SystemPrompt     string       `json:"system_prompt,omitempty"`
	FilterExpression string       `json:"filter_expression,omitempty"`
	ChatOptions      *ChatOptions `json:"chat_options,omitempty"`
}

// Validate requires a user prompt and defaults the conversation id.
func (r *ChatRequest) Validate() error {
	if strings.TrimSpace(r.UserPrompt) == "" {
		return fmt.Errorf("user prompt cannot be empty")
	}
	if strings.TrimSpace(r.ConversationID) == "" {
		r.ConversationID = DefaultConversationID
	}
	return nil
}

// ChatResponse is the result of a blocking call.
type ChatResponse struct {
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata"`
}

// StreamEvent is one element of a streamed answer. Exactly one of Text, Err or
// Done is meaningful; Err and Done are terminal.
type StreamEvent struct {
	Text     string
	Err      error
	Done     bool
	Metadata map[string]interface{}
}
