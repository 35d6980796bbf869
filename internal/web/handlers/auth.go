package handlers

import (
	"encoding/json"
	"net/http"
)

type loginRequest struct {
	Password string `json:"password"`
}

// Login establishes an operator session from the admin password.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.sessions.Login(w, r, req.Password); err != nil {
		h.log.Warn().Str("remote", r.RemoteAddr).Msg("failed login attempt")
		respondError(w, http.StatusUnauthorized, "invalid password")
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Logout clears the operator session.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(w, r); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to log out")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
