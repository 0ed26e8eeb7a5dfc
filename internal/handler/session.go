package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/ggufchat/chat-engine/internal/chat"
	"github.com/ggufchat/chat-engine/internal/middleware"
	"github.com/ggufchat/chat-engine/internal/model"
	"github.com/ggufchat/chat-engine/pkg/logger"
)

// SessionHandler handles the active session: turns, provider and
// settings selection, attachments.
type SessionHandler struct {
	manager *chat.Manager
	logger  *logger.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(manager *chat.Manager, log *logger.Logger) *SessionHandler {
	return &SessionHandler{manager: manager, logger: log}
}

func (h *SessionHandler) session(r *http.Request) *chat.Session {
	return h.manager.Session(middleware.GetIdentity(r.Context()))
}

type sessionResponse struct {
	Provider       model.Provider           `json:"provider"`
	ConversationID string                   `json:"conversation_id,omitempty"`
	Messages       []model.Message          `json:"messages"`
	Settings       model.GenerationSettings `json:"settings"`
	Generating     bool                     `json:"generating"`
	Guest          bool                     `json:"guest"`
}

// Get handles GET /api/session
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	s := h.session(r)
	writeJSON(w, http.StatusOK, sessionResponse{
		Provider:       s.Store.Provider(),
		ConversationID: s.Store.ActiveConversationID(),
		Messages:       s.Store.Transcript(),
		Settings:       s.Store.Settings(),
		Generating:     s.Orchestrator.Generating(),
		Guest:          s.Store.Identity().Guest,
	})
}

// New handles POST /api/session/new
func (h *SessionHandler) New(w http.ResponseWriter, r *http.Request) {
	s := h.session(r)
	s.NewSession()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type sendRequest struct {
	Content string `json:"content"`
}

// Send handles POST /api/session/messages
func (h *SessionHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s := h.session(r)
	reply, err := s.Orchestrator.SendTurn(r.Context(), req.Content, nil)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reply":    reply,
		"messages": s.Store.Transcript(),
	})
}

type providerRequest struct {
	Provider string `json:"provider"`
}

// SetProvider handles POST /api/session/provider
func (h *SessionHandler) SetProvider(w http.ResponseWriter, r *http.Request) {
	var req providerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s := h.session(r)
	p := model.Provider(strings.ToLower(strings.TrimSpace(req.Provider)))
	if err := s.SetProvider(p); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"provider": string(p)})
}

// SetSettings handles PUT /api/session/settings
func (h *SessionHandler) SetSettings(w http.ResponseWriter, r *http.Request) {
	var settings model.GenerationSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s := h.session(r)
	s.SetSettings(settings)
	writeJSON(w, http.StatusOK, settings)
}

// maxAttachmentMemory bounds multipart parsing buffers, not attachment
// size; the resolver enforces the batch ceiling.
const maxAttachmentMemory = 8 << 20

// Attach handles POST /api/session/attachments
func (h *SessionHandler) Attach(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxAttachmentMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}

	s := h.session(r)
	var names []string
	for _, fh := range r.MultipartForm.File["files"] {
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable file "+fh.Filename)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable file "+fh.Filename)
			return
		}
		s.AddAttachments(model.AttachmentHandle{
			Name: fh.Filename,
			Size: fh.Size,
			Data: data,
		})
		names = append(names, fh.Filename)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"attached": names})
}

// Models handles GET /api/session/models
func (h *SessionHandler) Models(w http.ResponseWriter, r *http.Request) {
	s := h.session(r)
	models, err := s.Orchestrator.Models()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"models": models})
}
