// Package llm provides chat completion clients for the supported
// providers: the local model server and the hosted OpenAI and Anthropic
// APIs.
package llm

import (
	"context"
	"time"

	"github.com/ggufchat/chat-engine/internal/model"
)

// ChatMessage is a provider-facing chat message.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest carries one completion call. Settings that a provider
// does not support are ignored by that provider's adapter.
type CompletionRequest struct {
	Model       string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
	TopP        float64
}

// CompletionResponse is the normalized result of a completion call.
type CompletionResponse struct {
	Content    string
	Model      string
	TokensIn   int
	TokensOut  int
	StopReason string
	LatencyMs  int64
}

// Client is the interface all provider adapters implement. Adapters
// validate settings before issuing any network call and never retry.
type Client interface {
	// Precheck rejects a request the adapter could never serve: settings
	// outside the provider's ranges, or for the local adapter no loaded
	// model. Callers run it before mutating any state on the turn's
	// behalf; Complete repeats the same checks.
	Precheck(req *CompletionRequest) error

	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name.
	Name() string

	// Models returns available models.
	Models() []string
}

// Factory builds the adapter for a provider. Cloud providers fail fast
// with MissingCredentialError when their key is absent.
type Factory struct {
	LocalURL        string
	LocalTimeout    time.Duration
	OpenAIAPIKey    string
	AnthropicAPIKey string
}

// New returns the client for the given provider.
func (f Factory) New(provider model.Provider) (Client, error) {
	switch provider {
	case model.ProviderLocal:
		return NewLocalClient(f.LocalURL, f.LocalTimeout), nil
	case model.ProviderOpenAI:
		return NewOpenAIClient(f.OpenAIAPIKey)
	case model.ProviderAnthropic:
		return NewAnthropicClient(f.AnthropicAPIKey)
	default:
		return nil, &model.PreconditionError{Message: "no provider selected"}
	}
}

// toProviderMessages converts transcript messages, optionally dropping
// system messages for providers that reject the role.
func toProviderMessages(messages []model.Message, includeSystem bool) []ChatMessage {
	out := make([]ChatMessage, 0, len(messages))
	for _, msg := range messages {
		if !includeSystem && msg.Role == model.RoleSystem {
			continue
		}
		out = append(out, ChatMessage{Role: string(msg.Role), Content: msg.Content})
	}
	return out
}

// FromTranscript builds provider messages from a transcript, replacing
// the content of the final user message when the caller has resolved
// attachments into it. System messages survive only for providers that
// accept them.
func FromTranscript(messages []model.Message, finalUserContent string, includeSystem bool) []ChatMessage {
	out := toProviderMessages(messages, includeSystem)
	if finalUserContent != "" {
		for i := len(out) - 1; i >= 0; i-- {
			if out[i].Role == string(model.RoleUser) {
				out[i].Content = finalUserContent
				break
			}
		}
	}
	return out
}
