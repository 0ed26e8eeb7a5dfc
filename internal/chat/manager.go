package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ggufchat/chat-engine/internal/attach"
	"github.com/ggufchat/chat-engine/internal/bus"
	"github.com/ggufchat/chat-engine/internal/llm"
	"github.com/ggufchat/chat-engine/internal/model"
	"github.com/ggufchat/chat-engine/internal/remote"
	"github.com/ggufchat/chat-engine/internal/store"
	"github.com/ggufchat/chat-engine/internal/syncer"
	"github.com/ggufchat/chat-engine/pkg/logger"
)

// Session bundles the per-user pieces: store, sync engine and
// orchestrator. All session mutations go through it so timer cancellation
// and sync notification cannot be skipped.
type Session struct {
	Store        *store.SessionStore
	Engine       *syncer.Engine
	Orchestrator *Orchestrator
}

// NewSession abandons the active transcript into local History and starts
// a fresh one. Any pending debounce timer for the old transcript is
// cancelled first.
func (s *Session) NewSession() {
	s.Engine.CancelActive()
	s.Store.StartNewSession()
}

// Load switches the active transcript to a stored conversation.
func (s *Session) Load(id string) error {
	s.Engine.CancelActive()
	return s.Store.LoadConversation(id)
}

// Delete removes a conversation locally and remotely.
func (s *Session) Delete(ctx context.Context, id string) {
	s.Engine.Delete(ctx, id)
}

// Rename renames a conversation with rollback on remote failure.
func (s *Session) Rename(ctx context.Context, id, title string) error {
	return s.Engine.Rename(ctx, id, title)
}

// Import merges an exported history snapshot into local History.
func (s *Session) Import(snapshot model.HistorySnapshot) {
	s.Engine.Import(snapshot)
}

// ClearHistory wipes local and remote History.
func (s *Session) ClearHistory(ctx context.Context) {
	s.Engine.ClearHistory(ctx)
}

// Export returns the full local History as a snapshot.
func (s *Session) Export() model.HistorySnapshot {
	return s.Store.Export()
}

// SetProvider activates a provider and records the switch as the
// transcript's leading system message.
func (s *Session) SetProvider(p model.Provider) error {
	switch p {
	case model.ProviderLocal, model.ProviderOpenAI, model.ProviderAnthropic:
	default:
		return &model.ValidationError{Message: fmt.Sprintf("unknown provider %q", p)}
	}
	s.Store.ActivateProvider(p, fmt.Sprintf("Provider switched to %s.", p))
	s.Engine.TranscriptChanged()
	return nil
}

// SetSettings replaces the generation settings. Range checks happen in
// the provider adapters at dispatch time, where the provider is known.
func (s *Session) SetSettings(settings model.GenerationSettings) {
	s.Store.SetSettings(settings)
}

// AddAttachments stages files for the next turn.
func (s *Session) AddAttachments(handles ...model.AttachmentHandle) {
	s.Store.AddPendingAttachments(handles...)
}

// Close stops the session's sync timers.
func (s *Session) Close() {
	s.Engine.Close()
}

// ManagerConfig carries the shared collaborators every session is built
// from.
type ManagerConfig struct {
	Factory            llm.Factory
	History            *remote.HistoryClient
	Auth               *remote.AuthClient
	Extractor          attach.Extractor
	AttachmentMaxBytes int64
	Debounce           time.Duration
	Notifier           bus.Notifier
	Logger             *logger.Logger
}

// Manager owns one Session per user identity. The zero identity (guest)
// maps to a shared guest session that never touches the remote services.
type Manager struct {
	cfg ManagerConfig

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = bus.NewMemory()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = syncer.DefaultDebounce
	}
	return &Manager{cfg: cfg, sessions: make(map[string]*Session)}
}

func sessionKey(identity model.Identity) string {
	if identity.Guest || identity.UserID == "" {
		return "guest"
	}
	return identity.UserID
}

// Session returns the session for an identity, creating it on first use.
func (m *Manager) Session(identity model.Identity) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := sessionKey(identity)
	if s, ok := m.sessions[key]; ok {
		return s
	}
	s := m.build(identity)
	m.sessions[key] = s
	return s
}

func (m *Manager) build(identity model.Identity) *Session {
	sessionStore := store.New(identity, m.cfg.Notifier)

	var remoteStore syncer.RemoteStore
	if m.cfg.History != nil {
		remoteStore = m.cfg.History
	}
	log := m.cfg.Logger.WithSession(identity.UserID, "")
	engine := syncer.New(sessionStore, remoteStore, m.cfg.Notifier, log,
		syncer.WithDebounce(m.cfg.Debounce))

	resolver := attach.New(m.cfg.Extractor, m.cfg.AttachmentMaxBytes, log)
	orch := NewOrchestrator(sessionStore, engine, resolver, m.cfg.Factory, log)

	return &Session{Store: sessionStore, Engine: engine, Orchestrator: orch}
}

// Login authenticates against the remote auth service and returns the
// user's session with remote History loaded. Local guest drafts are
// discarded, not merged.
func (m *Manager) Login(ctx context.Context, email, password string) (*Session, model.Identity, error) {
	if m.cfg.Auth == nil {
		return nil, model.Identity{}, &model.PreconditionError{Message: "auth service not configured"}
	}
	identity, err := m.cfg.Auth.Login(ctx, email, password)
	if err != nil {
		return nil, model.Identity{}, err
	}
	s, err := m.attach(ctx, identity)
	return s, identity, err
}

// Signup registers a new account and returns its fresh session.
func (m *Manager) Signup(ctx context.Context, email, password string) (*Session, model.Identity, error) {
	if m.cfg.Auth == nil {
		return nil, model.Identity{}, &model.PreconditionError{Message: "auth service not configured"}
	}
	identity, err := m.cfg.Auth.Signup(ctx, email, password)
	if err != nil {
		return nil, model.Identity{}, err
	}
	s, err := m.attach(ctx, identity)
	return s, identity, err
}

func (m *Manager) attach(ctx context.Context, identity model.Identity) (*Session, error) {
	s := m.Session(identity)
	s.Store.SetIdentity(identity)

	if m.cfg.History != nil {
		chats, err := m.cfg.History.List(ctx, identity.UserID)
		if err != nil {
			// Offline-ledger mode: the session works from local state
			// until the service comes back.
			m.cfg.Logger.Warn("failed to load remote history",
				zap.String("user_id", identity.UserID), zap.Error(err))
		} else {
			s.Store.ReplaceHistory(chats)
		}
	}
	return s, nil
}

// UpdateProfile changes the account email through the remote auth service
// and refreshes the session's identity to match.
func (m *Manager) UpdateProfile(ctx context.Context, identity model.Identity, email string) (model.Identity, error) {
	if m.cfg.Auth == nil {
		return model.Identity{}, &model.PreconditionError{Message: "auth service not configured"}
	}
	if identity.Guest {
		return model.Identity{}, &model.PreconditionError{Message: "login required"}
	}
	updated, err := m.cfg.Auth.UpdateProfile(ctx, identity.UserID, email)
	if err != nil {
		return model.Identity{}, err
	}
	m.Session(updated).Store.SetIdentity(updated)
	return updated, nil
}

// Logout drops a user's session and stops its timers.
func (m *Manager) Logout(identity model.Identity) {
	m.mu.Lock()
	s, ok := m.sessions[sessionKey(identity)]
	if ok {
		delete(m.sessions, sessionKey(identity))
	}
	m.mu.Unlock()
	if ok {
		s.Close()
	}
}

// Close stops every session.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}
