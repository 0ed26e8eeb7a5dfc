// Package bus provides the subscribe/notify mechanism the presentation
// layer uses to react to transcript and history changes.
package bus

import (
	"sync"
	"time"
)

// EventType represents the kind of session change being announced.
type EventType string

const (
	EventTranscriptChanged   EventType = "transcript_changed"
	EventHistoryChanged      EventType = "history_changed"
	EventConversationRenamed EventType = "conversation_renamed"
	EventConversationDeleted EventType = "conversation_deleted"
	EventSyncFailed          EventType = "sync_failed"
)

// Event is one session change notification.
type Event struct {
	Type           EventType `json:"type"`
	UserID         string    `json:"user_id,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Notifier fans out session events to interested subscribers. Publish must
// never block session mutation paths for long; implementations are expected
// to be cheap or asynchronous.
type Notifier interface {
	Publish(ev Event)
}

// Subscription cancels a subscriber when called.
type Subscription func()

// Memory is the in-process Notifier used when no broker is configured.
// Delivery is synchronous; subscriber order is unspecified.
type Memory struct {
	mu   sync.RWMutex
	next int
	subs map[int]func(Event)
}

// NewMemory creates an in-process notifier.
func NewMemory() *Memory {
	return &Memory{subs: make(map[int]func(Event))}
}

// Subscribe registers a callback for all events.
func (m *Memory) Subscribe(fn func(Event)) Subscription {
	m.mu.Lock()
	id := m.next
	m.next++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// Publish delivers the event to every subscriber.
func (m *Memory) Publish(ev Event) {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	m.mu.RLock()
	fns := make([]func(Event), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}
