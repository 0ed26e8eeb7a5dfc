package model

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single transcript entry. Messages are immutable once
// appended; a transcript only ever grows, except for the single system
// message prepended when a provider is (re)activated.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// Attachments holds display names only. Resolved attachment content is
	// transient and never stored, so transcripts stay compact and
	// re-exportable.
	Attachments []string `json:"attachments,omitempty"`

	CreatedAt time.Time `json:"timestamp"`
}

// NewUserMessage constructs a user message with attachment names.
func NewUserMessage(content string, attachments []string) Message {
	return Message{
		Role:        RoleUser,
		Content:     content,
		Attachments: attachments,
		CreatedAt:   time.Now().UTC(),
	}
}

// NewAssistantMessage constructs an assistant message.
func NewAssistantMessage(content string) Message {
	return Message{
		Role:      RoleAssistant,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// NewSystemMessage constructs a system message.
func NewSystemMessage(content string) Message {
	return Message{
		Role:      RoleSystem,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}
