package session

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/udoglabs/wager-engine/internal/identity"
)

// Handler exposes the login/logout/me surface over HTTP.
type Handler struct {
	provider identity.Provider
	binder   *Binder
}

func NewHandler(provider identity.Provider, binder *Binder) *Handler {
	return &Handler{provider: provider, binder: binder}
}

// Login authenticates with the identity provider and binds the resulting
// principal to a user record.
//
//	POST /api/v1/session/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	principal, err := h.provider.Login(r.Context())
	if err != nil {
		slog.Error("identity login failed", "error", err)
		writeError(w, "login failed", http.StatusBadGateway)
		return
	}

	user, err := h.binder.Bind(r.Context(), principal)
	if err != nil {
		slog.Error("session bind failed", "identity_id", principal.ID, "error", err)
		writeError(w, "login failed", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// Logout clears both the identity session and the bound user. The two are
// always dropped together.
//
//	POST /api/v1/session/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.binder.Clear(r.Context()); err != nil {
		writeError(w, "logout failed", http.StatusInternalServerError)
		return
	}
	if err := h.provider.Logout(r.Context()); err != nil {
		writeError(w, "logout failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the bound user record.
//
//	GET /api/v1/session/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.binder.Current()
	if errors.Is(err, ErrNoUser) {
		writeError(w, "not authenticated", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
