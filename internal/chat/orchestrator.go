// Package chat coordinates one user turn end to end: attachment
// resolution, provider dispatch and transcript mutation, with the sync
// engine notified after every change.
package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ggufchat/chat-engine/internal/attach"
	"github.com/ggufchat/chat-engine/internal/llm"
	"github.com/ggufchat/chat-engine/internal/model"
	"github.com/ggufchat/chat-engine/internal/store"
	"github.com/ggufchat/chat-engine/internal/syncer"
	"github.com/ggufchat/chat-engine/pkg/logger"
	"github.com/ggufchat/chat-engine/pkg/metrics"
)

// Orchestrator runs turns for one session. A session has a single writer:
// while a turn is generating, further turns are rejected with BusyError
// and the sync engine holds its writes.
type Orchestrator struct {
	store    *store.SessionStore
	engine   *syncer.Engine
	resolver *attach.Resolver
	factory  llm.Factory
	logger   *logger.Logger

	mu         sync.Mutex
	generating bool
	clients    map[model.Provider]llm.Client
}

// NewOrchestrator wires a turn orchestrator over one session's store and
// sync engine.
func NewOrchestrator(sessionStore *store.SessionStore, engine *syncer.Engine, resolver *attach.Resolver, factory llm.Factory, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.NewNop()
	}
	return &Orchestrator{
		store:    sessionStore,
		engine:   engine,
		resolver: resolver,
		factory:  factory,
		logger:   log,
		clients:  make(map[model.Provider]llm.Client),
	}
}

// client returns the cached adapter for a provider. Caching keeps the
// local adapter's load state machine alive across turns.
func (o *Orchestrator) client(provider model.Provider) (llm.Client, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if c, ok := o.clients[provider]; ok {
		return c, nil
	}
	c, err := o.factory.New(provider)
	if err != nil {
		return nil, err
	}
	o.clients[provider] = c
	return c, nil
}

// Generating reports whether a turn is in flight.
func (o *Orchestrator) Generating() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.generating
}

func (o *Orchestrator) setGenerating(on bool) {
	o.mu.Lock()
	o.generating = on
	o.mu.Unlock()
	o.engine.SetGenerating(on)
}

// SendTurn runs one user turn. The stored user message keeps the original
// text and attachment names; the resolved attachment block exists only in
// the outgoing provider payload. Provider and network failures surface as
// a system message in the transcript, not as a returned error.
func (o *Orchestrator) SendTurn(ctx context.Context, text string, handles []model.AttachmentHandle) (model.Message, error) {
	// The generating flag is claimed in the same critical section as the
	// busy check; a concurrent turn can never slip between the two.
	o.mu.Lock()
	if o.generating {
		o.mu.Unlock()
		return model.Message{}, &model.BusyError{}
	}
	o.generating = true
	o.mu.Unlock()
	o.engine.SetGenerating(true)

	appended := false
	defer func() {
		o.setGenerating(false)
		if appended {
			o.engine.TranscriptChanged()
		}
	}()

	provider := o.store.Provider()
	if provider == model.ProviderNone {
		return model.Message{}, &model.PreconditionError{Message: "no provider selected"}
	}

	client, err := o.client(provider)
	if err != nil {
		return model.Message{}, err
	}

	// Everything the adapter would reject outright fails here, before the
	// user message reaches the transcript.
	settings := o.store.Settings()
	req := &llm.CompletionRequest{
		Model:       settings.Model,
		MaxTokens:   settings.MaxTokens,
		Temperature: settings.Temperature,
		TopP:        settings.TopP,
	}
	if err := client.Precheck(req); err != nil {
		return model.Message{}, err
	}

	handles = append(o.store.PendingAttachments(), handles...)
	block, err := o.resolver.Resolve(ctx, handles)
	if err != nil {
		return model.Message{}, err
	}

	if _, err := o.store.AppendUserTurn(text, handles); err != nil {
		return model.Message{}, err
	}
	o.store.ClearPendingAttachments()
	appended = true
	o.engine.TranscriptChanged()

	req.Messages = llm.FromTranscript(o.store.Transcript(), text+block, provider == model.ProviderLocal)

	start := time.Now()
	resp, err := client.Complete(ctx, req)
	if err != nil {
		// Settings and model-state problems are the caller's to fix;
		// provider and network failures land in the transcript instead.
		if errors.Is(err, model.ErrValidation) ||
			errors.Is(err, model.ErrModelNotLoaded) ||
			errors.Is(err, model.ErrMissingCredential) {
			return model.Message{}, err
		}
		metrics.RecordCompletion(string(provider), "error", time.Since(start).Seconds(), 0, 0)
		o.logger.Warn("completion failed", zap.String("provider", string(provider)), zap.Error(err))
		return o.store.AppendSystemTurn("Error: " + err.Error()), nil
	}

	metrics.RecordCompletion(string(provider), "ok", time.Since(start).Seconds(), resp.TokensIn, resp.TokensOut)
	return o.store.AppendAssistantTurn(resp.Content), nil
}

// Models lists the models the active provider offers.
func (o *Orchestrator) Models() ([]string, error) {
	provider := o.store.Provider()
	if provider == model.ProviderNone {
		return nil, &model.PreconditionError{Message: "no provider selected"}
	}
	client, err := o.client(provider)
	if err != nil {
		return nil, err
	}
	return client.Models(), nil
}

// LocalClient exposes the cached local adapter for model management
// endpoints. It instantiates the adapter on first use.
func (o *Orchestrator) LocalClient() (*llm.LocalClient, error) {
	client, err := o.client(model.ProviderLocal)
	if err != nil {
		return nil, err
	}
	local, ok := client.(*llm.LocalClient)
	if !ok {
		return nil, &model.PreconditionError{Message: "local provider unavailable"}
	}
	return local, nil
}
