package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/shopmesh/auth/internal/domain"
)

// token is the OAuth client_credentials exchange. It speaks the RFC 6749
// wire dialect on both success and failure: form-encoded request, flat
// JSON response, snake_case error codes.
func (h *Handler) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeTokenError(r, w, domain.ErrInvalidInput, "malformed form body")
		return
	}

	grantType := strings.TrimSpace(r.PostFormValue("grant_type"))
	if grantType != "client_credentials" {
		h.writeTokenError(r, w, domain.ErrUnsupportedGrant, "")
		return
	}

	clientID := strings.TrimSpace(r.PostFormValue("client_id"))
	clientSecret := r.PostFormValue("client_secret")
	if clientID == "" {
		// RFC 6749 2.3.1 also allows HTTP Basic client authentication.
		basicID, basicSecret, ok := r.BasicAuth()
		if !ok {
			h.writeTokenError(r, w, domain.ErrInvalidInput, "missing client credentials")
			return
		}
		clientID, clientSecret = basicID, basicSecret
	}

	res, err := h.service.IssueServiceToken(r.Context(), clientID, clientSecret)
	if err != nil {
		h.writeTokenError(r, w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) writeTokenError(r *http.Request, w http.ResponseWriter, err error, description string) {
	status, code := http.StatusInternalServerError, "server_error"
	switch {
	case errors.Is(err, domain.ErrUnsupportedGrant):
		status, code = http.StatusBadRequest, "unsupported_grant_type"
	case errors.Is(err, domain.ErrInvalidInput):
		status, code = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, domain.ErrInvalidCredentials):
		status, code = http.StatusUnauthorized, "invalid_client"
	}
	logHTTPOperationError(r.Context(), "token", status, code, description, err)
	writeOAuthError(w, status, code, description)
}

// jwks publishes the signer's public keys. Shared-secret deployments
// serve an empty key set rather than a 404 so clients can poll.
func (h *Handler) jwks(w http.ResponseWriter, r *http.Request) {
	keys, err := h.service.PublicJWKs()
	if err != nil {
		writeMappedError(r.Context(), w, "jwks", err)
		return
	}
	if keys == nil {
		keys = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
}
