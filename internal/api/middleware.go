// Package api implements the NoteForest REST API using chi.
package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/noteforest/noteforest/internal/auth"
)

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header, or returns "".
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(h, "Bearer ")
}

// AuthMiddleware returns middleware that validates a Bearer token against
// the session manager. Until a password has been configured the app is
// open and all requests pass through; the setup endpoint is how it gets
// locked.
func AuthMiddleware(mgr *auth.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			set, err := mgr.PasswordSet(r.Context())
			if err != nil {
				slog.Error("auth check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
				return
			}
			if !set {
				next.ServeHTTP(w, r)
				return
			}
			if !mgr.Validate(bearerToken(r)) {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
