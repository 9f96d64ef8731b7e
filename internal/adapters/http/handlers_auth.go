package http

import (
	"net/http"

	"github.com/shopmesh/auth/internal/application"
)

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req application.LoginRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "login", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeValidationError(r.Context(), w, "login", err)
		return
	}

	req.IPAddress = readIP(r)
	req.UserAgent = r.UserAgent()

	res, err := h.service.Login(r.Context(), req)
	if err != nil {
		writeMappedError(r.Context(), w, "login", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req application.RefreshRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "refresh", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeValidationError(r.Context(), w, "refresh", err)
		return
	}

	req.IPAddress = readIP(r)
	req.UserAgent = r.UserAgent()

	res, err := h.service.Refresh(r.Context(), req)
	if err != nil {
		writeMappedError(r.Context(), w, "refresh", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	verified, ok := verifiedFromContext(r)
	if !ok {
		writeMissingBearerError(r.Context(), w, "logout")
		return
	}
	if err := h.service.Logout(r.Context(), verified); err != nil {
		writeMappedError(r.Context(), w, "logout", err)
		return
	}
	writeMessage(w, http.StatusOK, "Logged out successfully")
}

func (h *Handler) logoutOthers(w http.ResponseWriter, r *http.Request) {
	verified, ok := verifiedFromContext(r)
	if !ok {
		writeMissingBearerError(r.Context(), w, "logout_others")
		return
	}
	count, err := h.service.LogoutOthers(r.Context(), verified)
	if err != nil {
		writeMappedError(r.Context(), w, "logout_others", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"revoked_sessions": count})
}
