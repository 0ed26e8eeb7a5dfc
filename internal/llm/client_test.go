package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggufchat/chat-engine/internal/model"
)

func TestFactoryRequiresCredentials(t *testing.T) {
	f := Factory{LocalURL: "http://127.0.0.1:5001"}

	_, err := f.New(model.ProviderOpenAI)
	assert.True(t, errors.Is(err, model.ErrMissingCredential))

	_, err = f.New(model.ProviderAnthropic)
	assert.True(t, errors.Is(err, model.ErrMissingCredential))

	local, err := f.New(model.ProviderLocal)
	require.NoError(t, err)
	assert.Equal(t, "local", local.Name())

	_, err = f.New(model.ProviderNone)
	assert.True(t, errors.Is(err, model.ErrPrecondition))
}

func TestOpenAIRangeValidation(t *testing.T) {
	tests := []struct {
		name string
		req  CompletionRequest
		ok   bool
	}{
		{"valid", CompletionRequest{Temperature: 0.7, TopP: 0.9, MaxTokens: 512}, true},
		{"temperature high", CompletionRequest{Temperature: 2.5, TopP: 0.9, MaxTokens: 512}, false},
		{"temperature negative", CompletionRequest{Temperature: -0.1, TopP: 0.9, MaxTokens: 512}, false},
		{"top_p high", CompletionRequest{Temperature: 1, TopP: 1.5, MaxTokens: 512}, false},
		{"max_tokens zero", CompletionRequest{Temperature: 1, TopP: 0.5, MaxTokens: 0}, false},
		{"max_tokens over cap", CompletionRequest{Temperature: 1, TopP: 0.5, MaxTokens: 20000}, false},
		{"boundaries", CompletionRequest{Temperature: 2, TopP: 1, MaxTokens: 16384}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateOpenAIRequest(&tt.req)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, model.ErrValidation))
			}
		})
	}
}

func TestAnthropicRangeValidation(t *testing.T) {
	tests := []struct {
		name string
		req  CompletionRequest
		ok   bool
	}{
		{"valid", CompletionRequest{Temperature: 0.7, MaxTokens: 512}, true},
		{"temperature over one", CompletionRequest{Temperature: 1.5, MaxTokens: 512}, false},
		{"max_tokens zero", CompletionRequest{Temperature: 0.5, MaxTokens: 0}, false},
		{"max_tokens over cap", CompletionRequest{Temperature: 0.5, MaxTokens: 9000}, false},
		{"boundaries", CompletionRequest{Temperature: 1, MaxTokens: 8192}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAnthropicRequest(&tt.req)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, model.ErrValidation))
			}
		})
	}
}

func TestFromTranscriptStripsSystemMessages(t *testing.T) {
	transcript := []model.Message{
		model.NewSystemMessage("provider note"),
		model.NewUserMessage("hello", nil),
		model.NewAssistantMessage("hi"),
		model.NewUserMessage("final question", nil),
	}

	stripped := FromTranscript(transcript, "", false)
	require.Len(t, stripped, 3)
	for _, msg := range stripped {
		assert.NotEqual(t, string(model.RoleSystem), msg.Role)
	}

	kept := FromTranscript(transcript, "", true)
	assert.Len(t, kept, 4)
}

func TestFromTranscriptReplacesFinalUserContent(t *testing.T) {
	transcript := []model.Message{
		model.NewUserMessage("first", nil),
		model.NewAssistantMessage("reply"),
		model.NewUserMessage("second", nil),
	}

	out := FromTranscript(transcript, "second\n\n--- Attached Files (1) ---", true)
	assert.Equal(t, "first", out[0].Content)
	assert.Contains(t, out[2].Content, "Attached Files")
}
