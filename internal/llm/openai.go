package llm

import (
	"context"
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/sashabaranov/go-openai"

	"github.com/ggufchat/chat-engine/internal/model"
)

// OpenAIClient is the hosted OpenAI adapter. System messages are stripped
// by the caller via FromTranscript; settings are validated against the
// provider's documented ranges before any network call.
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(apiKey string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, &model.MissingCredentialError{Provider: model.ProviderOpenAI}
	}
	return &OpenAIClient{client: openai.NewClient(apiKey)}, nil
}

// Name returns the provider name.
func (c *OpenAIClient) Name() string {
	return string(model.ProviderOpenAI)
}

// Models returns available models.
func (c *OpenAIClient) Models() []string {
	return []string{
		"gpt-4o",
		"gpt-4o-mini",
		"gpt-4-turbo",
		"gpt-3.5-turbo",
	}
}

func validateOpenAIRequest(req *CompletionRequest) error {
	err := validation.Errors{
		"temperature": validation.Validate(req.Temperature, validation.Min(0.0), validation.Max(2.0)),
		"top_p":       validation.Validate(req.TopP, validation.Min(0.0), validation.Max(1.0)),
		// Required keeps the zero value from slipping past Min's zero-skip.
		"max_tokens": validation.Validate(req.MaxTokens, validation.Required, validation.Min(1), validation.Max(16384)),
	}.Filter()
	if err != nil {
		return &model.ValidationError{Message: err.Error()}
	}
	return nil
}

// Precheck validates the request against the provider's ranges.
func (c *OpenAIClient) Precheck(req *CompletionRequest) error {
	return validateOpenAIRequest(req)
}

// Complete sends a completion request.
func (c *OpenAIClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	if err := validateOpenAIRequest(req); err != nil {
		return nil, err
	}

	start := time.Now()

	name := req.Model
	if name == "" {
		name = "gpt-4o-mini"
	}

	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       name,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
		TopP:        float32(req.TopP),
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, &model.ProviderError{Status: apiErr.HTTPStatusCode, Message: apiErr.Message}
		}
		return nil, &model.NetworkError{Op: "openai completion", Cause: err}
	}

	var content, stopReason string
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
		stopReason = string(resp.Choices[0].FinishReason)
	}

	return &CompletionResponse{
		Content:    content,
		Model:      resp.Model,
		TokensIn:   resp.Usage.PromptTokens,
		TokensOut:  resp.Usage.CompletionTokens,
		StopReason: stopReason,
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}
