package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bskyshare/bskyshare/internal/auth"
)

func TestRequireAuth(t *testing.T) {
	sessions := auth.InitSessions("0123456789abcdef0123456789abcdef", "secret-admin-pass", 3600, false)

	called := false
	handler := RequireAuth(sessions)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/settings", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if called {
		t.Error("handler reached without a session")
	}

	// Establish a session and replay the cookie.
	loginW := httptest.NewRecorder()
	loginR := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	if err := sessions.Login(loginW, loginR, "secret-admin-pass"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	r := httptest.NewRequest(http.MethodGet, "/api/settings", nil)
	for _, cookie := range loginW.Result().Cookies() {
		r.AddCookie(cookie)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if !called {
		t.Error("handler not reached with a valid session")
	}
}

func TestMaxBytes(t *testing.T) {
	handler := MaxBytes(16)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			http.Error(w, "body too large", http.StatusRequestEntityTooLarge)
			return
		}
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 64))))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", w.Code)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("short")))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}
