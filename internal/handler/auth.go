package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ggufchat/chat-engine/internal/chat"
	"github.com/ggufchat/chat-engine/internal/middleware"
	"github.com/ggufchat/chat-engine/internal/model"
	"github.com/ggufchat/chat-engine/pkg/logger"
)

// AuthHandler handles login, signup and logout. The remote auth service
// owns credentials; this handler only mints the bearer token carried by
// subsequent requests.
type AuthHandler struct {
	manager   *chat.Manager
	jwtSecret string
	tokenTTL  time.Duration
	logger    *logger.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(manager *chat.Manager, jwtSecret string, log *logger.Logger) *AuthHandler {
	return &AuthHandler{
		manager:   manager,
		jwtSecret: jwtSecret,
		tokenTTL:  24 * time.Hour,
		logger:    log,
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

func (h *AuthHandler) issueToken(identity model.Identity) (string, error) {
	claims := middleware.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(h.tokenTTL)),
		},
		Email: identity.Email,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.jwtSecret))
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	_, identity, err := h.manager.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	token, err := h.issueToken(identity)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: token, UserID: identity.UserID, Email: identity.Email})
}

// Signup handles POST /api/auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	_, identity, err := h.manager.Signup(r.Context(), req.Email, req.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	token, err := h.issueToken(identity)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{Token: token, UserID: identity.UserID, Email: identity.Email})
}

type profileRequest struct {
	Email string `json:"email"`
}

// UpdateProfile handles POST /api/auth/profile. The bearer token carries
// the email claim, so a successful update re-mints the token.
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity.Guest {
		writeError(w, http.StatusUnauthorized, "login required")
		return
	}

	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := h.manager.UpdateProfile(r.Context(), identity, req.Email)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	token, err := h.issueToken(updated)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: token, UserID: updated.UserID, Email: updated.Email})
}

// Logout handles POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if !identity.Guest {
		h.manager.Logout(identity)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}
