package remote

import (
	"context"
	"net/url"
	"time"

	"github.com/ggufchat/chat-engine/internal/model"
)

// HistoryClient talks to the remote persistence service. Every method is
// a single request; retry policy belongs to the caller (and the sync
// engine deliberately has none).
type HistoryClient struct {
	transport
}

// NewHistoryClient creates a history client for the given base URL.
func NewHistoryClient(baseURL string, timeout time.Duration) *HistoryClient {
	return &HistoryClient{transport: newTransport(baseURL, timeout)}
}

type saveRequest struct {
	UserID         string          `json:"user_id"`
	ConversationID string          `json:"chat_id"`
	Title          string          `json:"title"`
	Messages       []model.Message `json:"messages"`
}

// Save upserts one conversation.
func (c *HistoryClient) Save(ctx context.Context, userID, conversationID, title string, messages []model.Message) error {
	return c.doJSON(ctx, "POST", "/api/history/save", saveRequest{
		UserID:         userID,
		ConversationID: conversationID,
		Title:          title,
		Messages:       messages,
	}, nil)
}

type listResponse struct {
	Chats []model.Conversation `json:"chats"`
}

// List fetches the user's full history, most recently updated first.
func (c *HistoryClient) List(ctx context.Context, userID string) ([]model.Conversation, error) {
	var out listResponse
	path := "/api/history/list?user_id=" + url.QueryEscape(userID)
	if err := c.doJSON(ctx, "GET", path, nil, &out); err != nil {
		return nil, err
	}
	return out.Chats, nil
}

type deleteRequest struct {
	UserID         string `json:"user_id"`
	ConversationID string `json:"chat_id"`
}

// Delete removes one conversation.
func (c *HistoryClient) Delete(ctx context.Context, userID, conversationID string) error {
	return c.doJSON(ctx, "POST", "/api/history/delete", deleteRequest{
		UserID:         userID,
		ConversationID: conversationID,
	}, nil)
}

type renameRequest struct {
	UserID         string `json:"user_id"`
	ConversationID string `json:"chat_id"`
	Title          string `json:"title"`
}

// Rename updates one conversation's title.
func (c *HistoryClient) Rename(ctx context.Context, userID, conversationID, title string) error {
	return c.doJSON(ctx, "POST", "/api/history/rename", renameRequest{
		UserID:         userID,
		ConversationID: conversationID,
		Title:          title,
	}, nil)
}

type clearRequest struct {
	UserID string `json:"user_id"`
}

// Clear removes the user's entire history.
func (c *HistoryClient) Clear(ctx context.Context, userID string) error {
	return c.doJSON(ctx, "POST", "/api/history/clear", clearRequest{UserID: userID}, nil)
}

// Ping checks that the persistence service answers its health endpoint.
func (c *HistoryClient) Ping(ctx context.Context) error {
	return c.doJSON(ctx, "GET", "/api/health", nil, nil)
}
