package models

import "fmt"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Message is a single immutable conversation entry.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func (m Message) String() string {
	return fmt.Sprintf("%s: %s", m.Role, m.Content)
}

// UserMessage returns a message authored by the user.
func UserMessage(content string) Message { return Message{Role: RoleUser, Content: content} }

// AssistantMessage returns a message authored by the model.
func AssistantMessage(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// SystemMessage returns a system instruction.
func SystemMessage(content string) Message { return Message{Role: RoleSystem, Content: content} }
