package llm

import (
	"context"
	"errors"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/ggufchat/chat-engine/internal/model"
)

// AnthropicClient is the hosted Anthropic adapter. The Messages API
// rejects the system role inside the transcript, so callers strip system
// messages via FromTranscript before dispatch.
type AnthropicClient struct {
	client *anthropic.Client
}

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(apiKey string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, &model.MissingCredentialError{Provider: model.ProviderAnthropic}
	}
	return &AnthropicClient{client: anthropic.NewClient(option.WithAPIKey(apiKey))}, nil
}

// Name returns the provider name.
func (c *AnthropicClient) Name() string {
	return string(model.ProviderAnthropic)
}

// Models returns available models.
func (c *AnthropicClient) Models() []string {
	return []string{
		"claude-3-5-sonnet-20241022",
		"claude-3-5-haiku-20241022",
		"claude-3-haiku-20240307",
	}
}

func validateAnthropicRequest(req *CompletionRequest) error {
	err := validation.Errors{
		"temperature": validation.Validate(req.Temperature, validation.Min(0.0), validation.Max(1.0)),
		// Required keeps the zero value from slipping past Min's zero-skip.
		"max_tokens": validation.Validate(req.MaxTokens, validation.Required, validation.Min(1), validation.Max(8192)),
	}.Filter()
	if err != nil {
		return &model.ValidationError{Message: err.Error()}
	}
	return nil
}

// Precheck validates the request against the provider's ranges.
func (c *AnthropicClient) Precheck(req *CompletionRequest) error {
	return validateAnthropicRequest(req)
}

// Complete sends a completion request.
func (c *AnthropicClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	if err := validateAnthropicRequest(req); err != nil {
		return nil, err
	}

	start := time.Now()

	name := req.Model
	if name == "" {
		name = "claude-3-5-sonnet-20241022"
	}

	messages := make([]anthropic.MessageParam, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = anthropic.MessageParam{
			Role: anthropic.F(anthropic.MessageParamRole(msg.Role)),
			Content: anthropic.F([]anthropic.ContentBlockParamUnion{
				anthropic.TextBlockParam{
					Type: anthropic.F(anthropic.TextBlockParamTypeText),
					Text: anthropic.F(msg.Content),
				},
			}),
		}
	}

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.F(name),
		MaxTokens:   anthropic.F(int64(req.MaxTokens)),
		Temperature: anthropic.F(req.Temperature),
		Messages:    anthropic.F(messages),
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, &model.ProviderError{Status: apiErr.StatusCode, Message: apiErr.Error()}
		}
		return nil, &model.NetworkError{Op: "anthropic completion", Cause: err}
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			content += block.Text
		}
	}

	return &CompletionResponse{
		Content:    content,
		Model:      resp.Model,
		TokensIn:   int(resp.Usage.InputTokens),
		TokensOut:  int(resp.Usage.OutputTokens),
		StopReason: string(resp.StopReason),
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}
