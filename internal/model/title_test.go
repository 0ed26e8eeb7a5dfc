package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name     string
		messages []Message
		want     string
	}{
		{
			name: "empty transcript",
			want: DefaultTitle,
		},
		{
			name:     "no user messages",
			messages: []Message{NewSystemMessage("setup"), NewAssistantMessage("hi")},
			want:     DefaultTitle,
		},
		{
			name:     "short first user message",
			messages: []Message{NewUserMessage("hello world", nil)},
			want:     "hello world",
		},
		{
			name: "first user message wins over later ones",
			messages: []Message{
				NewSystemMessage("setup"),
				NewUserMessage("the opener", nil),
				NewAssistantMessage("sure"),
				NewUserMessage("a follow-up", nil),
			},
			want: "the opener",
		},
		{
			name:     "long message truncated with ellipsis",
			messages: []Message{NewUserMessage(strings.Repeat("a", 40), nil)},
			want:     strings.Repeat("a", 30) + "...",
		},
		{
			name:     "exactly thirty characters untouched",
			messages: []Message{NewUserMessage(strings.Repeat("b", 30), nil)},
			want:     strings.Repeat("b", 30),
		},
		{
			name:     "multibyte rune at the boundary stays whole",
			messages: []Message{NewUserMessage(strings.Repeat("é", 40), nil)},
			want:     strings.Repeat("é", 30) + "...",
		},
		{
			name:     "short multibyte message untouched",
			messages: []Message{NewUserMessage("héllo wörld", nil)},
			want:     "héllo wörld",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveTitle(tt.messages))
		})
	}
}

func TestTitleLocked(t *testing.T) {
	assert.False(t, (&Conversation{Title: ""}).TitleLocked())
	assert.False(t, (&Conversation{Title: DefaultTitle}).TitleLocked())
	assert.True(t, (&Conversation{Title: "my chat"}).TitleLocked())
}
