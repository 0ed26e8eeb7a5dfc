package chat

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

	"github.com/ggufchat/chat-engine/internal/attach"
	"github.com/ggufchat/chat-engine/internal/bus"
	"github.com/ggufchat/chat-engine/internal/llm"
	"github.com/ggufchat/chat-engine/internal/model"
	"github.com/ggufchat/chat-engine/internal/remote"
	"github.com/ggufchat/chat-engine/internal/store"
	"github.com/ggufchat/chat-engine/internal/syncer"
)

type localServerState struct {
	failChat  bool
	lastChat  map[string]interface{}
	chatCalls int
}

func newModelServer(t *testing.T) (*httptest.Server, *localServerState) {
	t.Helper()
	state := &localServerState{}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/model/load", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		state.chatCalls++
		if state.failChat {
			http.Error(w, `{"error":"inference crashed"}`, http.StatusInternalServerError)
			return
		}
		json.NewDecoder(r.Body).Decode(&state.lastChat)
		json.NewEncoder(w).Encode(map[string]interface{}{"content": "assistant says hi"})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, state
}

func newTestSession(t *testing.T, localURL string) *Session {
	t.Helper()
	s := store.New(model.Identity{UserID: "u1"}, bus.NewMemory())
	engine := syncer.New(s, nil, bus.NewMemory(), nil, syncer.WithDebounce(10*time.Millisecond))
	t.Cleanup(engine.Close)
	resolver := attach.New(nil, 0, nil)
	orch := NewOrchestrator(s, engine, resolver, llm.Factory{LocalURL: localURL}, nil)
	return &Session{Store: s, Engine: engine, Orchestrator: orch}
}

func loadLocal(t *testing.T, sess *Session) {
	t.Helper()
	require.NoError(t, sess.SetProvider(model.ProviderLocal))
	local, err := sess.Orchestrator.LocalClient()
	require.NoError(t, err)
	require.NoError(t, local.Load(context.Background(), "test.gguf"))
}

func TestSendTurnRequiresProvider(t *testing.T) {
	sess := newTestSession(t, "http://127.0.0.1:1")

	_, err := sess.Orchestrator.SendTurn(context.Background(), "hello", nil)
	assert.True(t, errors.Is(err, model.ErrPrecondition))
}

func TestSendTurnLocalProvider(t *testing.T) {
	srv, state := newModelServer(t)
	sess := newTestSession(t, srv.URL)
	loadLocal(t, sess)

	reply, err := sess.Orchestrator.SendTurn(context.Background(), "hello there", nil)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAssistant, reply.Role)
	assert.Equal(t, "assistant says hi", reply.Content)

	// system activation note + user + assistant
	transcript := sess.Store.Transcript()
	require.Len(t, transcript, 3)
	assert.Equal(t, model.RoleSystem, transcript[0].Role)

	// Local provider receives the system message too.
	msgs := state.lastChat["messages"].([]interface{})
	first := msgs[0].(map[string]interface{})
	assert.Equal(t, "system", first["role"])

	assert.False(t, sess.Orchestrator.Generating())
}

func TestSendTurnNoModelLoadedLeavesTranscript(t *testing.T) {
	sess := newTestSession(t, "http://127.0.0.1:1")
	require.NoError(t, sess.SetProvider(model.ProviderLocal))
	before := len(sess.Store.Transcript())

	_, err := sess.Orchestrator.SendTurn(context.Background(), "hello", nil)
	assert.True(t, errors.Is(err, model.ErrModelNotLoaded))
	assert.Len(t, sess.Store.Transcript(), before)
	assert.False(t, sess.Orchestrator.Generating())
}

func TestSendTurnEmptyTurnRejected(t *testing.T) {
	srv, state := newModelServer(t)
	sess := newTestSession(t, srv.URL)
	loadLocal(t, sess)
	before := len(sess.Store.Transcript())

	_, err := sess.Orchestrator.SendTurn(context.Background(), "   ", nil)
	assert.True(t, errors.Is(err, model.ErrValidation))
	assert.Len(t, sess.Store.Transcript(), before)
	assert.Zero(t, state.chatCalls)
	assert.False(t, sess.Orchestrator.Generating())
}

// blockingExtractor parks the first turn inside attachment resolution so a
// second turn can be issued while it is still running.
type blockingExtractor struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingExtractor) Extract(_ context.Context, h model.AttachmentHandle) (string, error) {
	b.entered <- struct{}{}
	<-b.release
	return string(h.Data), nil
}

func TestSendTurnBusyWhileTurnInFlight(t *testing.T) {
	srv, _ := newModelServer(t)
	sess := newTestSession(t, srv.URL)
	loadLocal(t, sess)

	ext := &blockingExtractor{entered: make(chan struct{}), release: make(chan struct{})}
	sess.Orchestrator.resolver = attach.New(ext, 0, nil)

	first := make(chan error, 1)
	go func() {
		_, err := sess.Orchestrator.SendTurn(context.Background(), "slow turn", []model.AttachmentHandle{
			{Name: "a.txt", Size: 5, Data: []byte("hello")},
		})
		first <- err
	}()

	<-ext.entered
	_, err := sess.Orchestrator.SendTurn(context.Background(), "impatient", nil)
	assert.True(t, errors.Is(err, model.ErrBusy))

	close(ext.release)
	require.NoError(t, <-first)

	users := 0
	for _, msg := range sess.Store.Transcript() {
		if msg.Role == model.RoleUser {
			users++
		}
	}
	assert.Equal(t, 1, users)
}

func TestSendTurnProviderFailureBecomesSystemMessage(t *testing.T) {
	srv, state := newModelServer(t)
	state.failChat = true
	sess := newTestSession(t, srv.URL)
	loadLocal(t, sess)

	reply, err := sess.Orchestrator.SendTurn(context.Background(), "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, model.RoleSystem, reply.Role)
	assert.Contains(t, reply.Content, "Error:")
	assert.Contains(t, reply.Content, "inference crashed")

	// The user's message survives the failure.
	transcript := sess.Store.Transcript()
	assert.Equal(t, model.RoleUser, transcript[len(transcript)-2].Role)
	assert.False(t, sess.Orchestrator.Generating())
}

func TestSendTurnAttachmentsStayOutOfTranscript(t *testing.T) {
	srv, state := newModelServer(t)
	sess := newTestSession(t, srv.URL)
	loadLocal(t, sess)

	sess.AddAttachments(model.AttachmentHandle{
		Name: "notes.txt",
		Size: 12,
		Data: []byte("SECRET NOTES"),
	})

	_, err := sess.Orchestrator.SendTurn(context.Background(), "summarize this", nil)
	require.NoError(t, err)

	// Stored message keeps the name only.
	var userMsg model.Message
	for _, msg := range sess.Store.Transcript() {
		if msg.Role == model.RoleUser {
			userMsg = msg
		}
	}
	assert.Equal(t, "summarize this", userMsg.Content)
	assert.Equal(t, []string{"notes.txt"}, userMsg.Attachments)

	// Provider payload carries the resolved block.
	msgs := state.lastChat["messages"].([]interface{})
	last := msgs[len(msgs)-1].(map[string]interface{})
	assert.Contains(t, last["content"], "SECRET NOTES")
	assert.Contains(t, last["content"], "--- Attached Files (1) ---")

	// Pending queue was consumed.
	assert.Empty(t, sess.Store.PendingAttachments())
}

func TestSendTurnRejectsOversizedAttachments(t *testing.T) {
	srv, state := newModelServer(t)
	sess := newTestSession(t, srv.URL)
	loadLocal(t, sess)

	big := make([]byte, 64)
	resolver := attach.New(nil, 32, nil)
	sess.Orchestrator.resolver = resolver

	_, err := sess.Orchestrator.SendTurn(context.Background(), "too big", []model.AttachmentHandle{
		{Name: "big.txt", Size: int64(len(big)), Data: big},
	})
	assert.True(t, errors.Is(err, model.ErrQuotaExceeded))
	assert.Zero(t, state.chatCalls)
}

func TestModelsRequiresProvider(t *testing.T) {
	sess := newTestSession(t, "http://127.0.0.1:1")

	_, err := sess.Orchestrator.Models()
	assert.True(t, errors.Is(err, model.ErrPrecondition))
}

func TestSetProviderRejectsUnknown(t *testing.T) {
	sess := newTestSession(t, "http://127.0.0.1:1")
	err := sess.SetProvider(model.Provider("grok"))
	assert.True(t, errors.Is(err, model.ErrValidation))
}

func TestManagerUpdateProfileRefreshesIdentity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"user_id": "u1", "email": "new@example.com"})
	}))
	t.Cleanup(srv.Close)

	m := NewManager(ManagerConfig{
		Factory: llm.Factory{LocalURL: "http://127.0.0.1:1"},
		Auth:    remote.NewAuthClient(srv.URL, time.Second),
	})
	t.Cleanup(m.Close)

	identity := model.Identity{UserID: "u1", Email: "old@example.com"}
	updated, err := m.UpdateProfile(context.Background(), identity, "new@example.com")
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", updated.Email)
	assert.Equal(t, "new@example.com", m.Session(updated).Store.Identity().Email)

	_, err = m.UpdateProfile(context.Background(), model.GuestIdentity(), "x@example.com")
	assert.True(t, errors.Is(err, model.ErrPrecondition))
}

func TestManagerSessionsPerIdentity(t *testing.T) {
	m := NewManager(ManagerConfig{Factory: llm.Factory{LocalURL: "http://127.0.0.1:1"}})
	t.Cleanup(m.Close)

	alice := m.Session(model.Identity{UserID: "alice"})
	sameAlice := m.Session(model.Identity{UserID: "alice"})
	bob := m.Session(model.Identity{UserID: "bob"})
	guest := m.Session(model.GuestIdentity())

	assert.Same(t, alice, sameAlice)
	assert.NotSame(t, alice, bob)
	assert.True(t, guest.Store.Identity().Guest)
}
