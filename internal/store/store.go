// Package store owns the in-memory session state: the active transcript and
// the per-user conversation history. All mutation goes through its methods;
// the sync engine only ever reads snapshots.
package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ggufchat/chat-engine/internal/bus"
	"github.com/ggufchat/chat-engine/internal/model"
)

// SessionStore holds one user session's state. Methods are safe for
// concurrent use; mutation is serialized by a single mutex per store as
// mandated by the single-writer-per-session model.
type SessionStore struct {
	mu sync.Mutex

	identity model.Identity
	provider model.Provider
	settings model.GenerationSettings

	activeID   string
	transcript []model.Message
	pending    []model.AttachmentHandle

	history map[string]*model.Conversation

	notifier bus.Notifier
}

// New creates a session store for the given identity.
func New(identity model.Identity, notifier bus.Notifier) *SessionStore {
	if notifier == nil {
		notifier = bus.NewMemory()
	}
	return &SessionStore{
		identity: identity,
		settings: model.DefaultGenerationSettings(),
		history:  make(map[string]*model.Conversation),
		notifier: notifier,
	}
}

// Snapshot is a read-only copy of the state the sync engine needs.
type Snapshot struct {
	Identity       model.Identity
	Provider       model.Provider
	ConversationID string
	Title          string
	Messages       []model.Message
}

// Snapshot returns a copy of the active session state.
func (s *SessionStore) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Identity:       s.identity,
		Provider:       s.provider,
		ConversationID: s.activeID,
		Messages:       append([]model.Message(nil), s.transcript...),
	}
	if conv, ok := s.history[s.activeID]; ok {
		snap.Title = conv.Title
	}
	return snap
}

// StartNewSession archives a non-empty, not-yet-persisted transcript into
// History (best effort, never blocking the new session), then clears the
// active transcript, conversation id and pending attachments.
func (s *SessionStore) StartNewSession() {
	s.mu.Lock()

	archived := false
	if len(s.transcript) > 0 && s.activeID == "" {
		id := uuid.Must(uuid.NewV7()).String()
		s.history[id] = &model.Conversation{
			ID:        id,
			Title:     model.DeriveTitle(s.transcript),
			Messages:  append([]model.Message(nil), s.transcript...),
			UpdatedAt: time.Now().UTC(),
		}
		archived = true
	}

	userID := s.identity.UserID
	s.transcript = nil
	s.activeID = ""
	s.pending = nil
	s.mu.Unlock()

	if archived {
		s.notifier.Publish(bus.Event{Type: bus.EventHistoryChanged, UserID: userID})
	}
	s.notifier.Publish(bus.Event{Type: bus.EventTranscriptChanged, UserID: userID})
}

// AppendUserTurn appends a user message carrying attachment names. Fails
// with a ValidationError when both text and attachments are empty.
func (s *SessionStore) AppendUserTurn(text string, attachments []model.AttachmentHandle) (model.Message, error) {
	if strings.TrimSpace(text) == "" && len(attachments) == 0 {
		return model.Message{}, &model.ValidationError{Message: "message text or attachments required"}
	}

	names := make([]string, 0, len(attachments))
	for _, a := range attachments {
		names = append(names, a.Name)
	}
	if len(names) == 0 {
		names = nil
	}

	msg := model.NewUserMessage(text, names)
	s.appendMessage(msg)
	return msg, nil
}

// AppendAssistantTurn appends an assistant message.
func (s *SessionStore) AppendAssistantTurn(text string) model.Message {
	msg := model.NewAssistantMessage(text)
	s.appendMessage(msg)
	return msg
}

// AppendSystemTurn appends a system message.
func (s *SessionStore) AppendSystemTurn(text string) model.Message {
	msg := model.NewSystemMessage(text)
	s.appendMessage(msg)
	return msg
}

func (s *SessionStore) appendMessage(msg model.Message) {
	s.mu.Lock()
	s.transcript = append(s.transcript, msg)
	userID, convID := s.identity.UserID, s.activeID
	s.mu.Unlock()

	s.notifier.Publish(bus.Event{
		Type:           bus.EventTranscriptChanged,
		UserID:         userID,
		ConversationID: convID,
	})
}

// LoadConversation replaces the active transcript with a stored
// conversation's messages. Any unsaved active transcript is discarded; the
// caller is responsible for archiving first if it wants that.
func (s *SessionStore) LoadConversation(id string) error {
	s.mu.Lock()
	conv, ok := s.history[id]
	if !ok {
		s.mu.Unlock()
		return &model.NotFoundError{ID: id}
	}
	s.activeID = id
	s.transcript = append([]model.Message(nil), conv.Messages...)
	userID := s.identity.UserID
	s.mu.Unlock()

	s.notifier.Publish(bus.Event{
		Type:           bus.EventTranscriptChanged,
		UserID:         userID,
		ConversationID: id,
	})
	return nil
}

// DeleteConversation removes a conversation from History. Deleting a
// missing id is a no-op. When the deleted conversation was active, the
// active transcript and id are cleared as well.
func (s *SessionStore) DeleteConversation(id string) {
	s.mu.Lock()
	_, existed := s.history[id]
	delete(s.history, id)
	if s.activeID == id {
		s.activeID = ""
		s.transcript = nil
	}
	userID := s.identity.UserID
	s.mu.Unlock()

	if existed {
		s.notifier.Publish(bus.Event{
			Type:           bus.EventConversationDeleted,
			UserID:         userID,
			ConversationID: id,
		})
		s.notifier.Publish(bus.Event{Type: bus.EventHistoryChanged, UserID: userID})
	}
}

// RenameConversation sets a conversation's title, locking it against
// automatic derivation. The previous title is returned so a failed remote
// commit can roll back.
func (s *SessionStore) RenameConversation(id, newTitle string) (string, error) {
	if strings.TrimSpace(newTitle) == "" {
		return "", &model.ValidationError{Message: "title must not be empty"}
	}

	s.mu.Lock()
	conv, ok := s.history[id]
	if !ok {
		s.mu.Unlock()
		return "", &model.NotFoundError{ID: id}
	}
	prev := conv.Title
	conv.Title = strings.TrimSpace(newTitle)
	userID := s.identity.UserID
	s.mu.Unlock()

	s.notifier.Publish(bus.Event{
		Type:           bus.EventConversationRenamed,
		UserID:         userID,
		ConversationID: id,
	})
	return prev, nil
}

// RestoreTitle puts a conversation's title back after a failed rename
// commit. Missing ids are ignored: the conversation may have been deleted
// while the rename was in flight.
func (s *SessionStore) RestoreTitle(id, title string) {
	s.mu.Lock()
	conv, ok := s.history[id]
	if ok {
		conv.Title = title
	}
	userID := s.identity.UserID
	s.mu.Unlock()

	if ok {
		s.notifier.Publish(bus.Event{
			Type:           bus.EventConversationRenamed,
			UserID:         userID,
			ConversationID: id,
		})
	}
}

// Commit records the active transcript under the given conversation id,
// assigning the id to the active session when it had none. Called by the
// sync engine at persistence time; the id must never change once assigned.
func (s *SessionStore) Commit(id, title string, messages []model.Message) model.Conversation {
	s.mu.Lock()
	if s.activeID == "" {
		s.activeID = id
	}
	conv, ok := s.history[id]
	if !ok {
		conv = &model.Conversation{ID: id}
		s.history[id] = conv
	}
	conv.Title = title
	conv.Messages = append([]model.Message(nil), messages...)
	conv.UpdatedAt = time.Now().UTC()
	out := conv.Clone()
	userID := s.identity.UserID
	s.mu.Unlock()

	s.notifier.Publish(bus.Event{
		Type:           bus.EventHistoryChanged,
		UserID:         userID,
		ConversationID: id,
	})
	return out
}

// BindActive assigns the active transcript its conversation id if it has
// none yet. An already bound transcript keeps its id.
func (s *SessionStore) BindActive(id string) {
	s.mu.Lock()
	if s.activeID == "" {
		s.activeID = id
	}
	s.mu.Unlock()
}

// Contains reports whether a conversation id is present in History.
func (s *SessionStore) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.history[id]
	return ok
}

// Get returns a copy of a stored conversation.
func (s *SessionStore) Get(id string) (model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.history[id]
	if !ok {
		return model.Conversation{}, &model.NotFoundError{ID: id}
	}
	return conv.Clone(), nil
}

// History returns all conversations in reverse-chronological order.
func (s *SessionStore) History() []model.Conversation {
	s.mu.Lock()
	out := make([]model.Conversation, 0, len(s.history))
	for _, conv := range s.history {
		out = append(out, conv.Clone())
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// MergeHistory unions an imported snapshot into History keyed by
// conversation id. On collision the imported record wins wholesale, so
// importing the same snapshot twice is idempotent.
func (s *SessionStore) MergeHistory(chats []model.Conversation) {
	s.mu.Lock()
	for _, conv := range chats {
		if conv.ID == "" {
			continue
		}
		imported := conv.Clone()
		s.history[conv.ID] = &imported
	}
	userID := s.identity.UserID
	s.mu.Unlock()

	s.notifier.Publish(bus.Event{Type: bus.EventHistoryChanged, UserID: userID})
}

// ReplaceHistory throws away local History in favor of the given records.
// Used on login, where the remote listing is authoritative.
func (s *SessionStore) ReplaceHistory(chats []model.Conversation) {
	s.mu.Lock()
	s.history = make(map[string]*model.Conversation, len(chats))
	for _, conv := range chats {
		if conv.ID == "" {
			continue
		}
		imported := conv.Clone()
		s.history[conv.ID] = &imported
	}
	if _, ok := s.history[s.activeID]; !ok {
		s.activeID = ""
		s.transcript = nil
	}
	userID := s.identity.UserID
	s.mu.Unlock()

	s.notifier.Publish(bus.Event{Type: bus.EventHistoryChanged, UserID: userID})
}

// ClearHistory removes every stored conversation.
func (s *SessionStore) ClearHistory() {
	s.ReplaceHistory(nil)
}

// Export produces a history snapshot suitable for download and re-import.
func (s *SessionStore) Export() model.HistorySnapshot {
	s.mu.Lock()
	email := s.identity.Email
	s.mu.Unlock()

	return model.HistorySnapshot{
		User:       email,
		ExportedAt: time.Now().UTC(),
		Chats:      s.History(),
	}
}

// Identity returns the session's identity.
func (s *SessionStore) Identity() model.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// SetIdentity switches the session's identity.
func (s *SessionStore) SetIdentity(identity model.Identity) {
	s.mu.Lock()
	s.identity = identity
	s.mu.Unlock()
}

// Provider returns the active completion provider.
func (s *SessionStore) Provider() model.Provider {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.provider
}

// ActivateProvider switches the active provider and prepends a single
// system message announcing it, replacing any earlier activation notice.
func (s *SessionStore) ActivateProvider(p model.Provider, note string) {
	s.mu.Lock()
	s.provider = p
	if note != "" {
		msg := model.NewSystemMessage(note)
		if len(s.transcript) > 0 && s.transcript[0].Role == model.RoleSystem {
			s.transcript[0] = msg
		} else {
			s.transcript = append([]model.Message{msg}, s.transcript...)
		}
	}
	userID, convID := s.identity.UserID, s.activeID
	s.mu.Unlock()

	s.notifier.Publish(bus.Event{
		Type:           bus.EventTranscriptChanged,
		UserID:         userID,
		ConversationID: convID,
	})
}

// Settings returns the session's generation settings.
func (s *SessionStore) Settings() model.GenerationSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// SetSettings replaces the session's generation settings.
func (s *SessionStore) SetSettings(settings model.GenerationSettings) {
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
}

// AddPendingAttachments queues attachments for the next user turn.
func (s *SessionStore) AddPendingAttachments(handles ...model.AttachmentHandle) {
	s.mu.Lock()
	s.pending = append(s.pending, handles...)
	s.mu.Unlock()
}

// PendingAttachments returns a copy of the queued attachments.
func (s *SessionStore) PendingAttachments() []model.AttachmentHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.AttachmentHandle(nil), s.pending...)
}

// ClearPendingAttachments drops the queued attachments.
func (s *SessionStore) ClearPendingAttachments() {
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
}

// Transcript returns a copy of the active transcript.
func (s *SessionStore) Transcript() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Message(nil), s.transcript...)
}

// ActiveConversationID returns the active conversation id, empty when the
// transcript has not been persisted yet.
func (s *SessionStore) ActiveConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}
