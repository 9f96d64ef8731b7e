package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/shopmesh/auth/internal/application"
)

// Handler is the HTTP adapter entrypoint. It holds only the application
// service and request validation; everything else is middleware.
type Handler struct {
	service  *application.Service
	validate *validator.Validate
}

func NewHandler(service *application.Service) *Handler {
	return &Handler{
		service:  service,
		validate: validator.New(),
	}
}

// NewRouter wires all routes and the middleware stack. Token liveness
// and the JWKS document stay public: downstream verifiers call them
// without credentials.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)
	r.Get("/.well-known/jwks.json", handler.jwks)

	r.Route("/auth/v1", func(r chi.Router) {
		r.Post("/login", handler.login)
		r.Post("/refresh", handler.refresh)
		r.Post("/token", handler.token)
		// Same placeholder as the revoke route below: chi wants one
		// wildcard name per tree position. The segment is a jti here
		// and a session id there.
		r.Get("/sessions/{id}/active", handler.sessionActive)

		r.Group(func(r chi.Router) {
			r.Use(handler.authMiddleware)
			r.Post("/logout", handler.logout)
			r.Post("/logout-others", handler.logoutOthers)
			r.Get("/sessions", handler.listSessions)
			r.Delete("/sessions/{id}", handler.revokeSession)
			r.Get("/login-history", handler.loginHistory)
		})
	})

	return r
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "ok")
}

func (h *Handler) readyz(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "ready")
}
