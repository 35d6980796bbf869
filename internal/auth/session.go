package auth

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	"github.com/gorilla/sessions"
)

const (
	sessionName        = "bskyshare-session"
	sessionKeyLoggedIn = "logged_in"
)

// Manager handles operator login sessions. The service is single-operator:
// a correct admin password sets a logged-in cookie session, nothing else is
// tracked.
type Manager struct {
	store         *sessions.CookieStore
	adminPassword string
}

// InitSessions creates a session manager with HTTP-only cookies.
func InitSessions(secret, adminPassword string, maxAge int, secure bool) *Manager {
	store := sessions.NewCookieStore([]byte(secret))

	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true, // Prevent JavaScript access
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}

	return &Manager{
		store:         store,
		adminPassword: adminPassword,
	}
}

// Login checks the password and, if correct, establishes a session cookie.
func (m *Manager) Login(w http.ResponseWriter, r *http.Request, password string) error {
	if subtle.ConstantTimeCompare([]byte(password), []byte(m.adminPassword)) != 1 {
		return fmt.Errorf("invalid password")
	}

	session, err := m.store.Get(r, sessionName)
	if err != nil {
		// A stale or tampered cookie decodes to an error; start fresh.
		session, _ = m.store.New(r, sessionName)
	}

	session.Values[sessionKeyLoggedIn] = true
	if err := session.Save(r, w); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	return nil
}

// LoggedIn reports whether the request carries a valid login session.
func (m *Manager) LoggedIn(r *http.Request) bool {
	session, err := m.store.Get(r, sessionName)
	if err != nil {
		return false
	}
	loggedIn, ok := session.Values[sessionKeyLoggedIn].(bool)
	return ok && loggedIn
}

// Logout clears the login session.
func (m *Manager) Logout(w http.ResponseWriter, r *http.Request) error {
	session, err := m.store.Get(r, sessionName)
	if err != nil {
		return nil
	}

	session.Options.MaxAge = -1
	if err := session.Save(r, w); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}

	return nil
}
