package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggufchat/chat-engine/internal/model"
)

func TestHistorySave(t *testing.T) {
	var got saveRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/history/save", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	c := NewHistoryClient(srv.URL, time.Second)
	messages := []model.Message{model.NewUserMessage("hi", nil)}
	require.NoError(t, c.Save(context.Background(), "u1", "c1", "greeting", messages))

	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "c1", got.ConversationID)
	assert.Equal(t, "greeting", got.Title)
	assert.Len(t, got.Messages, 1)
}

func TestHistoryList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/history/list", r.URL.Path)
		assert.Equal(t, "u1", r.URL.Query().Get("user_id"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"chats": []model.Conversation{{ID: "c1", Title: "greeting"}},
		})
	}))
	t.Cleanup(srv.Close)

	c := NewHistoryClient(srv.URL, time.Second)
	chats, err := c.List(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "c1", chats[0].ID)
}

func TestHistoryRenameAndDelete(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	c := NewHistoryClient(srv.URL, time.Second)
	require.NoError(t, c.Rename(context.Background(), "u1", "c1", "new name"))
	require.NoError(t, c.Delete(context.Background(), "u1", "c1"))
	assert.Equal(t, []string{"/api/history/rename", "/api/history/delete"}, paths)
}

func TestHistoryErrorMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"user not found"}`, http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	c := NewHistoryClient(srv.URL, time.Second)
	err := c.Save(context.Background(), "u1", "c1", "t", nil)
	require.Error(t, err)

	var provErr *model.ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.Equal(t, http.StatusNotFound, provErr.Status)
	assert.Equal(t, "user not found", provErr.Message)
}

func TestHistoryTransportFailure(t *testing.T) {
	c := NewHistoryClient("http://127.0.0.1:1", 100*time.Millisecond)
	err := c.Save(context.Background(), "u1", "c1", "t", nil)
	assert.True(t, errors.Is(err, model.ErrNetwork))
}
