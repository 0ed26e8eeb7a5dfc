// Package handler provides HTTP handlers for the API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ggufchat/chat-engine/internal/model"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeDomainError maps a domain error to its HTTP status. Errors that
// don't carry a status fall back to 500.
func writeDomainError(w http.ResponseWriter, err error) {
	var httpErr model.HTTPError
	if errors.As(err, &httpErr) {
		writeError(w, httpErr.StatusCode(), err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
