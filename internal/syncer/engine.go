// Package syncer keeps the remote persistence service eventually consistent
// with the session store's active transcript. Writes are debounced and
// coalesced per conversation, with at most one outstanding write per
// conversation id at any time.
package syncer

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ggufchat/chat-engine/internal/bus"
	"github.com/ggufchat/chat-engine/internal/model"
	"github.com/ggufchat/chat-engine/internal/store"
	"github.com/ggufchat/chat-engine/pkg/logger"
	"github.com/ggufchat/chat-engine/pkg/metrics"
)

// RemoteStore is the remote persistence service contract the engine writes
// through. A nil RemoteStore switches the engine into offline-ledger mode:
// conversations are committed to local History only.
type RemoteStore interface {
	Save(ctx context.Context, userID, conversationID, title string, messages []model.Message) error
	Delete(ctx context.Context, userID, conversationID string) error
	Rename(ctx context.Context, userID, conversationID, title string) error
	Clear(ctx context.Context, userID string) error
}

// DefaultDebounce is the quiet period a burst of transcript mutations must
// survive before a persistence write is issued.
const DefaultDebounce = time.Second

type syncState int

const (
	stateIdle syncState = iota
	statePending
	stateInFlight
)

// entry tracks the debounce state of one conversation. The empty key
// stands for the active transcript before it has been assigned an id.
type entry struct {
	state     syncState
	timer     *time.Timer
	dirty     bool
	cancelled bool
}

// Engine debounces and reconciles session-store mutations with the remote
// persistence service.
type Engine struct {
	store    *store.SessionStore
	remote   RemoteStore
	notifier bus.Notifier
	logger   *logger.Logger

	delay        time.Duration
	writeTimeout time.Duration

	mu         sync.Mutex
	entries    map[string]*entry
	generating bool
	closed     bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithDebounce overrides the debounce delay.
func WithDebounce(d time.Duration) Option {
	return func(e *Engine) { e.delay = d }
}

// WithWriteTimeout overrides the per-write context timeout.
func WithWriteTimeout(d time.Duration) Option {
	return func(e *Engine) { e.writeTimeout = d }
}

// New creates a sync engine for one session store.
func New(sessionStore *store.SessionStore, remote RemoteStore, notifier bus.Notifier, log *logger.Logger, opts ...Option) *Engine {
	if notifier == nil {
		notifier = bus.NewMemory()
	}
	if log == nil {
		log = logger.NewNop()
	}
	e := &Engine{
		store:        sessionStore,
		remote:       remote,
		notifier:     notifier,
		logger:       log,
		delay:        DefaultDebounce,
		writeTimeout: 10 * time.Second,
		entries:      make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetGenerating marks whether an assistant turn is being generated. Sync is
// suppressed for the whole window; the flag is re-checked when a debounce
// timer fires, not only when it is armed.
func (e *Engine) SetGenerating(on bool) {
	e.mu.Lock()
	e.generating = on
	e.mu.Unlock()
}

// TranscriptChanged records a mutation of the active transcript. Bursts
// within the debounce window collapse into a single write; a mutation that
// lands while a write is in flight schedules exactly one follow-up write.
func (e *Engine) TranscriptChanged() {
	key := e.store.ActiveConversationID()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}

	ent := e.entries[key]
	if ent == nil {
		ent = &entry{}
		e.entries[key] = ent
	}

	switch ent.state {
	case stateIdle:
		ent.state = statePending
		k := key
		ent.timer = time.AfterFunc(e.delay, func() { e.flush(k) })
	case statePending:
		ent.timer.Reset(e.delay)
		metrics.SyncCoalescedTotal.Inc()
	case stateInFlight:
		ent.dirty = true
	}
}

// flush runs in the debounce timer goroutine. It loops so that a dirty
// conversation gets its single follow-up write once the in-flight request
// resolves, without ever holding two outstanding writes.
func (e *Engine) flush(key string) {
	for {
		snap, id, title, ent, ok := e.prepare(key)
		if !ok {
			return
		}

		conv := e.store.Commit(id, title, snap.Messages)

		if e.remote != nil {
			ctx, cancel := context.WithTimeout(context.Background(), e.writeTimeout)
			err := e.remote.Save(ctx, snap.Identity.UserID, id, title, conv.Messages)
			cancel()
			if err != nil {
				// Best effort: the next mutation carries the full state again.
				metrics.SyncWritesTotal.WithLabelValues("error").Inc()
				e.logger.Warn("failed to persist conversation",
					zap.String("conversation_id", id), zap.Error(err))
				e.notifier.Publish(bus.Event{
					Type:           bus.EventSyncFailed,
					UserID:         snap.Identity.UserID,
					ConversationID: id,
					Reason:         err.Error(),
				})
			} else {
				metrics.SyncWritesTotal.WithLabelValues("ok").Inc()
			}
		} else {
			metrics.SyncWritesTotal.WithLabelValues("offline").Inc()
		}

		e.mu.Lock()
		if ent.cancelled {
			delete(e.entries, id)
			e.mu.Unlock()
			return
		}
		if !ent.dirty {
			ent.state = stateIdle
			e.mu.Unlock()
			return
		}
		ent.dirty = false
		ent.state = statePending
		e.mu.Unlock()
		key = id
	}
}

// prepare re-checks suppression at fire time, assigns the conversation id
// on first persistence and moves the entry to InFlight. Returns ok=false
// when the write must not happen.
func (e *Engine) prepare(key string) (store.Snapshot, string, string, *entry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent := e.entries[key]
	if ent == nil || ent.cancelled || ent.state != statePending || e.closed {
		if ent != nil && ent.cancelled {
			delete(e.entries, key)
		}
		return store.Snapshot{}, "", "", nil, false
	}

	snap := e.store.Snapshot()

	// Login state and generation can change mid-debounce; both are checked
	// here, at the moment the timer fires.
	if e.generating || snap.Identity.Guest || !hasUserMessage(snap.Messages) {
		ent.state = stateIdle
		return store.Snapshot{}, "", "", nil, false
	}

	// A session switch between arming and firing means this timer belongs
	// to a transcript that is no longer active.
	if key != snap.ConversationID && key != "" {
		ent.state = stateIdle
		return store.Snapshot{}, "", "", nil, false
	}

	id := snap.ConversationID
	if id == "" {
		id = uuid.Must(uuid.NewV7()).String()
		delete(e.entries, key)
		e.entries[id] = ent
		// Bind before the engine lock is released so a concurrent
		// TranscriptChanged keys on the id, not on a second "" entry.
		e.store.BindActive(id)
	}

	title := snap.Title
	if title == "" || title == model.DefaultTitle {
		title = model.DeriveTitle(snap.Messages)
	}

	ent.state = stateInFlight
	ent.dirty = false
	return snap, id, title, ent, true
}

// CancelActive cancels any pending debounce timer for the active
// transcript. Called before a session switch so a stale timer cannot write
// an abandoned transcript.
func (e *Engine) CancelActive() {
	e.cancel(e.store.ActiveConversationID())
}

func (e *Engine) cancel(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent := e.entries[key]
	if ent == nil {
		return
	}
	ent.cancelled = true
	if ent.timer != nil {
		ent.timer.Stop()
	}
	if ent.state != stateInFlight {
		delete(e.entries, key)
	}
	metrics.SyncCancelledTotal.Inc()
}

// Delete removes a conversation locally and remotely, cancelling any
// pending or in-flight write for the id first so a stale write cannot
// resurrect it.
func (e *Engine) Delete(ctx context.Context, id string) {
	e.cancel(id)

	identity := e.store.Identity()
	e.store.DeleteConversation(id)

	if e.remote == nil || identity.Guest {
		return
	}
	if err := e.remote.Delete(ctx, identity.UserID, id); err != nil {
		e.logger.Warn("failed to delete conversation remotely",
			zap.String("conversation_id", id), zap.Error(err))
	}
}

// Rename applies a rename optimistically to local History, then commits it
// remotely. On remote failure the local title is rolled back and the error
// returned; rename is the one operation with transactional semantics.
func (e *Engine) Rename(ctx context.Context, id, newTitle string) error {
	newTitle = strings.TrimSpace(newTitle)
	prev, err := e.store.RenameConversation(id, newTitle)
	if err != nil {
		return err
	}

	identity := e.store.Identity()
	if e.remote == nil || identity.Guest {
		return nil
	}

	if err := e.remote.Rename(ctx, identity.UserID, id, newTitle); err != nil {
		e.store.RestoreTitle(id, prev)
		e.logger.Warn("rename rolled back after remote failure",
			zap.String("conversation_id", id), zap.Error(err))
		return err
	}
	return nil
}

// ClearHistory wipes the whole local History and, for logged-in users,
// the remote copy. All timers are cancelled first so nothing gets
// re-saved afterwards.
func (e *Engine) ClearHistory(ctx context.Context) {
	e.mu.Lock()
	for key, ent := range e.entries {
		ent.cancelled = true
		if ent.timer != nil {
			ent.timer.Stop()
		}
		if ent.state != stateInFlight {
			delete(e.entries, key)
		}
	}
	e.mu.Unlock()

	identity := e.store.Identity()
	e.store.ClearHistory()

	if e.remote == nil || identity.Guest {
		return
	}
	if err := e.remote.Clear(ctx, identity.UserID); err != nil {
		e.logger.Warn("failed to clear remote history", zap.Error(err))
	}
}

// Import merges an externally supplied history snapshot into local History.
// Imported records win on id collision; the operation is idempotent.
func (e *Engine) Import(snapshot model.HistorySnapshot) {
	e.store.MergeHistory(snapshot.Chats)
}

// Close cancels all timers. Pending writes are dropped, not flushed; a
// debounced save is recoverable, a blocked shutdown is not.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	for key, ent := range e.entries {
		ent.cancelled = true
		if ent.timer != nil {
			ent.timer.Stop()
		}
		if ent.state != stateInFlight {
			delete(e.entries, key)
		}
	}
}

func hasUserMessage(messages []model.Message) bool {
	for _, msg := range messages {
		if msg.Role == model.RoleUser {
			return true
		}
	}
	return false
}
