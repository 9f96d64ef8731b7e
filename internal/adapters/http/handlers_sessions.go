package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/shopmesh/auth/internal/application"
)

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	verified, ok := verifiedFromContext(r)
	if !ok {
		writeMissingBearerError(r.Context(), w, "list_sessions")
		return
	}
	items, err := h.service.ListSessions(r.Context(), verified)
	if err != nil {
		writeMappedError(r.Context(), w, "list_sessions", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"sessions": items})
}

func (h *Handler) revokeSession(w http.ResponseWriter, r *http.Request) {
	verified, ok := verifiedFromContext(r)
	if !ok {
		writeMissingBearerError(r.Context(), w, "revoke_session")
		return
	}
	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid session id")
		return
	}
	if err := h.service.RevokeSessionByID(r.Context(), verified, sessionID); err != nil {
		writeMappedError(r.Context(), w, "revoke_session", err)
		return
	}
	writeMessage(w, http.StatusOK, "Session revoked successfully")
}

// sessionActive is the unauthenticated liveness probe other services
// poll as a cache-miss fallback. The response is flat on purpose: the
// field names are part of the cross-service contract.
func (h *Handler) sessionActive(w http.ResponseWriter, r *http.Request) {
	jti, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid jti")
		return
	}
	active, found, err := h.service.SessionActive(r.Context(), jti)
	if err != nil {
		writeMappedError(r.Context(), w, "session_active", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{
		"active": active,
		"found":  found,
	})
}

func (h *Handler) loginHistory(w http.ResponseWriter, r *http.Request) {
	verified, ok := verifiedFromContext(r)
	if !ok {
		writeMissingBearerError(r.Context(), w, "login_history")
		return
	}

	query := application.LoginHistoryQuery{
		Page:  parseIntDefault(r.URL.Query().Get("page"), 1),
		Limit: parseIntDefault(r.URL.Query().Get("limit"), 20),
	}
	items, err := h.service.ListLoginHistory(r.Context(), verified, query)
	if err != nil {
		writeMappedError(r.Context(), w, "login_history", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"attempts": items})
}
