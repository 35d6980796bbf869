package middleware

import (
	"net/http"

	"github.com/bskyshare/bskyshare/internal/auth"
)

// RequireAuth rejects requests that do not carry a valid login session.
func RequireAuth(sessions *auth.Manager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !sessions.LoggedIn(r) {
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
