package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ggufchat/chat-engine/internal/chat"
	"github.com/ggufchat/chat-engine/internal/middleware"
	"github.com/ggufchat/chat-engine/internal/model"
	"github.com/ggufchat/chat-engine/pkg/logger"
)

// HistoryHandler handles the conversation sidebar: list, load, rename,
// delete, export and import.
type HistoryHandler struct {
	manager *chat.Manager
	logger  *logger.Logger
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(manager *chat.Manager, log *logger.Logger) *HistoryHandler {
	return &HistoryHandler{manager: manager, logger: log}
}

func (h *HistoryHandler) session(r *http.Request) *chat.Session {
	return h.manager.Session(middleware.GetIdentity(r.Context()))
}

// List handles GET /api/history
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	s := h.session(r)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"chats": s.Store.History(),
	})
}

// Load handles POST /api/history/{id}/load
func (h *HistoryHandler) Load(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s := h.session(r)
	if err := s.Load(id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversation_id": id,
		"messages":        s.Store.Transcript(),
	})
}

type renameRequest struct {
	Title string `json:"title"`
}

// Rename handles PUT /api/history/{id}/title
func (h *HistoryHandler) Rename(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateTitle(req.Title); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s := h.session(r)
	if err := s.Rename(r.Context(), id, req.Title); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "title": req.Title})
}

// Delete handles DELETE /api/history/{id}
func (h *HistoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s := h.session(r)
	s.Delete(r.Context(), id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Clear handles DELETE /api/history
func (h *HistoryHandler) Clear(w http.ResponseWriter, r *http.Request) {
	s := h.session(r)
	s.ClearHistory(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// Export handles GET /api/history/export
func (h *HistoryHandler) Export(w http.ResponseWriter, r *http.Request) {
	s := h.session(r)
	writeJSON(w, http.StatusOK, s.Export())
}

// Import handles POST /api/history/import. The payload is the export
// shape; merging is idempotent and imported records win on collision.
func (h *HistoryHandler) Import(w http.ResponseWriter, r *http.Request) {
	var snapshot model.HistorySnapshot
	if err := json.NewDecoder(r.Body).Decode(&snapshot); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s := h.session(r)
	s.Import(snapshot)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"imported": len(snapshot.Chats),
		"chats":    s.Store.History(),
	})
}
