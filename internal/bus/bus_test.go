package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemoryPublishSubscribe(t *testing.T) {
	m := NewMemory()

	var got []Event
	unsubscribe := m.Subscribe(func(ev Event) { got = append(got, ev) })

	m.Publish(Event{Type: EventTranscriptChanged, UserID: "u1"})
	m.Publish(Event{Type: EventHistoryChanged, UserID: "u1"})
	assert.Len(t, got, 2)
	assert.Equal(t, EventTranscriptChanged, got[0].Type)

	unsubscribe()
	m.Publish(Event{Type: EventConversationDeleted, UserID: "u1"})
	assert.Len(t, got, 2)
}

func TestMemoryMultipleSubscribers(t *testing.T) {
	m := NewMemory()

	var a, b int
	m.Subscribe(func(Event) { a++ })
	m.Subscribe(func(Event) { b++ })

	m.Publish(Event{Type: EventSyncFailed})
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)
}

func TestEventSubject(t *testing.T) {
	assert.Equal(t, "chat.u1.c1.transcript_changed",
		EventSubject("u1", "c1", EventTranscriptChanged))
	assert.Equal(t, "chat.guest._.history_changed",
		EventSubject("", "", EventHistoryChanged))
}
