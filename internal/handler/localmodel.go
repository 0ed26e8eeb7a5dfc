package handler

import (
	"encoding/json"
	"net/http"

	"github.com/ggufchat/chat-engine/internal/chat"
	"github.com/ggufchat/chat-engine/internal/middleware"
	"github.com/ggufchat/chat-engine/pkg/logger"
)

// LocalModelHandler manages the local model server's load lifecycle.
type LocalModelHandler struct {
	manager *chat.Manager
	logger  *logger.Logger
}

// NewLocalModelHandler creates a new local model handler.
func NewLocalModelHandler(manager *chat.Manager, log *logger.Logger) *LocalModelHandler {
	return &LocalModelHandler{manager: manager, logger: log}
}

func (h *LocalModelHandler) session(r *http.Request) *chat.Session {
	return h.manager.Session(middleware.GetIdentity(r.Context()))
}

// Status handles GET /api/model/status
func (h *LocalModelHandler) Status(w http.ResponseWriter, r *http.Request) {
	local, err := h.session(r).Orchestrator.LocalClient()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	state, name, err := local.RefreshStatus(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"state": string(state),
		"model": name,
	})
}

type loadRequest struct {
	Model string `json:"model"`
}

// Load handles POST /api/model/load
func (h *LocalModelHandler) Load(w http.ResponseWriter, r *http.Request) {
	var req loadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Model == "" {
		writeError(w, http.StatusBadRequest, "model name is required")
		return
	}

	local, err := h.session(r).Orchestrator.LocalClient()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := local.Load(r.Context(), req.Model); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": "loaded", "model": req.Model})
}

// Unload handles POST /api/model/unload
func (h *LocalModelHandler) Unload(w http.ResponseWriter, r *http.Request) {
	local, err := h.session(r).Orchestrator.LocalClient()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := local.Unload(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": "unloaded"})
}

// Upload handles POST /api/model/upload
func (h *LocalModelHandler) Upload(w http.ResponseWriter, r *http.Request) {
	f, fh, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "model file is required")
		return
	}
	defer f.Close()

	local, err := h.session(r).Orchestrator.LocalClient()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := local.Upload(r.Context(), fh.Filename, f); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"uploaded": fh.Filename})
}
