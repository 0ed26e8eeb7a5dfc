package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggufchat/chat-engine/internal/model"
)

func newLocalServer(t *testing.T) (*httptest.Server, *struct {
	loaded    bool
	modelName string
	chats     int
}) {
	t.Helper()
	state := &struct {
		loaded    bool
		modelName string
		chats     int
	}{}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/model/status", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"loaded": state.loaded,
			"model":  state.modelName,
		})
	})
	mux.HandleFunc("/api/model/load", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		state.loaded = true
		state.modelName = req["model"]
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/model/unload", func(w http.ResponseWriter, r *http.Request) {
		state.loaded = false
		state.modelName = ""
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		state.chats++
		var req localChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"content": "generated reply",
			"model":   state.modelName,
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, state
}

func TestLocalCompleteRequiresLoadedModel(t *testing.T) {
	srv, state := newLocalServer(t)
	c := NewLocalClient(srv.URL, 0)

	_, err := c.Complete(context.Background(), &CompletionRequest{
		Messages: []ChatMessage{{Role: "user", Content: "hi"}},
	})
	assert.True(t, errors.Is(err, model.ErrModelNotLoaded))
	assert.Zero(t, state.chats)
}

func TestLocalLoadLifecycle(t *testing.T) {
	srv, _ := newLocalServer(t)
	c := NewLocalClient(srv.URL, 0)

	state, _ := c.State()
	assert.Equal(t, LoadStateUnloaded, state)

	require.NoError(t, c.Load(context.Background(), "tiny.gguf"))
	state, name := c.State()
	assert.Equal(t, LoadStateLoaded, state)
	assert.Equal(t, "tiny.gguf", name)

	resp, err := c.Complete(context.Background(), &CompletionRequest{
		Messages:    []ChatMessage{{Role: "user", Content: "hi"}},
		MaxTokens:   64,
		Temperature: 0.7,
		TopP:        0.9,
	})
	require.NoError(t, err)
	assert.Equal(t, "generated reply", resp.Content)

	require.NoError(t, c.Unload(context.Background()))
	state, _ = c.State()
	assert.Equal(t, LoadStateUnloaded, state)
}

func TestLocalLoadFailureResetsState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model file corrupt"}`, http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c := NewLocalClient(srv.URL, 0)
	err := c.Load(context.Background(), "corrupt.gguf")
	require.Error(t, err)

	var provErr *model.ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.Equal(t, "model file corrupt", provErr.Message)

	state, _ := c.State()
	assert.Equal(t, LoadStateUnloaded, state)
}

func TestLocalRefreshStatus(t *testing.T) {
	srv, serverState := newLocalServer(t)
	serverState.loaded = true
	serverState.modelName = "preloaded.gguf"

	c := NewLocalClient(srv.URL, 0)
	state, name, err := c.RefreshStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, LoadStateLoaded, state)
	assert.Equal(t, "preloaded.gguf", name)
}

func TestLocalTransportFailure(t *testing.T) {
	c := NewLocalClient("http://127.0.0.1:1", 0)

	_, _, err := c.RefreshStatus(context.Background())
	assert.True(t, errors.Is(err, model.ErrNetwork))
}
