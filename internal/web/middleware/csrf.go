package middleware

import (
	"net/http"

	"github.com/gorilla/csrf"
)

// CSRFProtection creates CSRF protection using gorilla/csrf. Safe requests
// get the current token echoed in the X-CSRF-Token response header so API
// clients can pick it up before their first unsafe request.
func CSRFProtection(secret []byte, secure bool) func(http.Handler) http.Handler {
	csrfMiddleware := csrf.Protect(
		secret,
		csrf.Secure(secure),
		csrf.FieldName("csrf_token"),
		csrf.RequestHeader("X-CSRF-Token"),
		csrf.ErrorHandler(http.HandlerFunc(csrfFailureHandler)),
	)

	return func(next http.Handler) http.Handler {
		return csrfMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				w.Header().Set("X-CSRF-Token", csrf.Token(r))
			}
			next.ServeHTTP(w, r)
		}))
	}
}

func csrfFailureHandler(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "CSRF token validation failed", http.StatusForbidden)
}
