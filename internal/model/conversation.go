// Package model defines data structures for the chat session engine.
package model

import (
	"time"
)

// DefaultTitle is the sentinel title of a conversation that has never been
// meaningfully named. A title is "locked" the moment it differs from this
// sentinel: automatic derivation must never overwrite a locked title, only
// an explicit user rename may.
const DefaultTitle = "New Chat"

// Conversation is one stored chat thread. ID is assigned exactly once, at
// first persistence, and is stable for the conversation's lifetime.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	UpdatedAt time.Time `json:"timestamp"`
}

// TitleLocked reports whether automatic title derivation must leave the
// conversation's title alone.
func (c *Conversation) TitleLocked() bool {
	return c.Title != "" && c.Title != DefaultTitle
}

// Clone returns a deep copy safe to hand outside the store's lock.
func (c *Conversation) Clone() Conversation {
	out := *c
	out.Messages = append([]Message(nil), c.Messages...)
	return out
}

// HistorySnapshot is an externally supplied set of conversations, as
// produced by export and consumed by import/merge.
type HistorySnapshot struct {
	User       string         `json:"user,omitempty"`
	ExportedAt time.Time      `json:"exported_at"`
	Chats      []Conversation `json:"chats"`
}
