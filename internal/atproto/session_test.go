package atproto

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/bskyshare/bskyshare/internal/storage"
)

// fakePDS is a scriptable XRPC server that counts calls per method.
type fakePDS struct {
	t *testing.T

	mu       sync.Mutex
	calls    map[string]int
	handlers map[string]http.HandlerFunc

	server *httptest.Server
}

func newFakePDS(t *testing.T) *fakePDS {
	t.Helper()

	pds := &fakePDS{
		t:        t,
		calls:    make(map[string]int),
		handlers: make(map[string]http.HandlerFunc),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/xrpc/", func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Path[len("/xrpc/"):]

		pds.mu.Lock()
		pds.calls[method]++
		handler := pds.handlers[method]
		pds.mu.Unlock()

		if handler == nil {
			t.Errorf("unexpected XRPC call: %s", method)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		handler(w, r)
	})

	pds.server = httptest.NewServer(mux)
	t.Cleanup(pds.server.Close)
	return pds
}

func (p *fakePDS) handle(method string, handler http.HandlerFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[method] = handler
}

func (p *fakePDS) count(method string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[method]
}

func (p *fakePDS) URL() string {
	return p.server.URL
}

// respondSession writes a 200 createSession/refreshSession response.
func respondSession(w http.ResponseWriter, access, refresh string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"accessJwt":  access,
		"refreshJwt": refresh,
	})
}

func respondXRPCError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": code,
	})
}

func TestAuthenticatePersistsTokens(t *testing.T) {
	db := setupTestDB(t)
	pds := newFakePDS(t)
	client := newTestClient(t, db, pds.URL())

	pds.handle(methodCreateSession, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}
		if req["identifier"] != testDID || req["password"] != "app-pass-1234" {
			respondXRPCError(w, http.StatusUnauthorized, "AuthenticationRequired")
			return
		}
		respondSession(w, testAccessJwt, testRefreshJwt)
	})

	session, err := client.Authenticate(context.Background(), testDID, "app-pass-1234")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	if session.AccessJwt != testAccessJwt || session.RefreshJwt != testRefreshJwt {
		t.Errorf("unexpected session: %+v", session)
	}
	if got := getSetting(t, db, storage.SettingAccessToken); got != testAccessJwt {
		t.Errorf("stored access token = %q, want %q", got, testAccessJwt)
	}
	if got := getSetting(t, db, storage.SettingRefreshToken); got != testRefreshJwt {
		t.Errorf("stored refresh token = %q, want %q", got, testRefreshJwt)
	}
}

func TestAuthenticateRejected(t *testing.T) {
	db := setupTestDB(t)
	pds := newFakePDS(t)
	client := newTestClient(t, db, pds.URL())

	pds.handle(methodCreateSession, func(w http.ResponseWriter, r *http.Request) {
		respondXRPCError(w, http.StatusUnauthorized, "AuthenticationRequired")
	})

	_, err := client.Authenticate(context.Background(), testDID, "wrong")
	if !IsKind(err, KindAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}

	if got := getSetting(t, db, storage.SettingAccessToken); got != "" {
		t.Errorf("access token persisted after failed auth: %q", got)
	}
}

func TestAuthenticateInvalidTokens(t *testing.T) {
	db := setupTestDB(t)
	pds := newFakePDS(t)
	client := newTestClient(t, db, pds.URL())

	pds.handle(methodCreateSession, func(w http.ResponseWriter, r *http.Request) {
		respondSession(w, "not a jwt", testRefreshJwt)
	})

	_, err := client.Authenticate(context.Background(), testDID, "app-pass-1234")
	if !IsKind(err, KindInvalidToken) {
		t.Fatalf("expected invalid token error, got %v", err)
	}

	if got := getSetting(t, db, storage.SettingAccessToken); got != "" {
		t.Errorf("malformed token persisted: %q", got)
	}
}

func TestRefreshReplacesSession(t *testing.T) {
	db := setupTestDB(t)
	pds := newFakePDS(t)
	client := newTestClient(t, db, pds.URL())
	mustSetSetting(t, db, storage.SettingAccessToken, testAccessJwt)
	mustSetSetting(t, db, storage.SettingRefreshToken, testRefreshJwt)

	pds.handle(methodRefreshSession, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer "+testRefreshJwt {
			t.Errorf("refresh used wrong bearer: %q", got)
		}
		respondSession(w, testAccessJwt2, testRefreshJwt2)
	})

	session, err := client.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	if session.AccessJwt != testAccessJwt2 {
		t.Errorf("access token not replaced")
	}
	if got := getSetting(t, db, storage.SettingRefreshToken); got != testRefreshJwt2 {
		t.Errorf("stored refresh token = %q, want %q", got, testRefreshJwt2)
	}
}

func TestRefreshFallsBackToAuthenticate(t *testing.T) {
	db := setupTestDB(t)
	pds := newFakePDS(t)
	client := newTestClient(t, db, pds.URL())
	mustSetSetting(t, db, storage.SettingDID, testDID)
	mustSetSetting(t, db, storage.SettingRefreshToken, testRefreshJwt)

	pds.handle(methodRefreshSession, func(w http.ResponseWriter, r *http.Request) {
		respondXRPCError(w, http.StatusBadRequest, "ExpiredToken")
	})
	pds.handle(methodCreateSession, func(w http.ResponseWriter, r *http.Request) {
		respondSession(w, testAccessJwt2, testRefreshJwt2)
	})

	session, err := client.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh with fallback failed: %v", err)
	}

	if pds.count(methodCreateSession) != 1 {
		t.Errorf("createSession called %d times, want 1", pds.count(methodCreateSession))
	}
	if session.AccessJwt != testAccessJwt2 {
		t.Errorf("fallback did not establish a new session")
	}
}

func TestRefreshFallbackAuthFailure(t *testing.T) {
	db := setupTestDB(t)
	pds := newFakePDS(t)
	client := newTestClient(t, db, pds.URL())
	mustSetSetting(t, db, storage.SettingDID, testDID)
	mustSetSetting(t, db, storage.SettingRefreshToken, testRefreshJwt)

	pds.handle(methodRefreshSession, func(w http.ResponseWriter, r *http.Request) {
		respondXRPCError(w, http.StatusBadRequest, "ExpiredToken")
	})
	pds.handle(methodCreateSession, func(w http.ResponseWriter, r *http.Request) {
		respondXRPCError(w, http.StatusUnauthorized, "AuthenticationRequired")
	})

	_, err := client.EnsureSession(context.Background())
	if !IsKind(err, KindAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}

	if pds.count(methodCreateSession) != 1 {
		t.Errorf("createSession called %d times, want 1", pds.count(methodCreateSession))
	}
	if got := getSetting(t, db, storage.SettingRefreshToken); got != "" {
		t.Errorf("refresh token not cleared after failed fallback: %q", got)
	}
	if got := getSetting(t, db, storage.SettingAccessToken); got != "" {
		t.Errorf("access token persisted after failed fallback: %q", got)
	}
}

func TestRefreshInvalidTokensFallsBack(t *testing.T) {
	db := setupTestDB(t)
	pds := newFakePDS(t)
	client := newTestClient(t, db, pds.URL())
	mustSetSetting(t, db, storage.SettingDID, testDID)
	mustSetSetting(t, db, storage.SettingRefreshToken, testRefreshJwt)

	pds.handle(methodRefreshSession, func(w http.ResponseWriter, r *http.Request) {
		respondSession(w, "garbage", "also garbage")
	})
	pds.handle(methodCreateSession, func(w http.ResponseWriter, r *http.Request) {
		respondSession(w, testAccessJwt2, testRefreshJwt2)
	})

	session, err := client.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if session.AccessJwt != testAccessJwt2 {
		t.Errorf("fallback did not establish a new session")
	}
	if pds.count(methodCreateSession) != 1 {
		t.Errorf("createSession called %d times, want 1", pds.count(methodCreateSession))
	}
}

func TestEnsureSessionResolvesDID(t *testing.T) {
	db := setupTestDB(t)
	pds := newFakePDS(t)
	client := newTestClient(t, db, pds.URL())

	pds.handle(methodResolveHandle, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("handle"); got != testHandle {
			t.Errorf("resolveHandle called with %q, want %q", got, testHandle)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"did":%q}`, testDID)
	})
	pds.handle(methodCreateSession, func(w http.ResponseWriter, r *http.Request) {
		respondSession(w, testAccessJwt, testRefreshJwt)
	})

	session, err := client.EnsureSession(context.Background())
	if err != nil {
		t.Fatalf("EnsureSession failed: %v", err)
	}
	if !session.Present() {
		t.Errorf("session not fully populated: %+v", session)
	}
	if got := getSetting(t, db, storage.SettingDID); got != testDID {
		t.Errorf("stored did = %q, want %q", got, testDID)
	}
	if pds.count(methodRefreshSession) != 0 {
		t.Errorf("refreshSession called with no stored refresh token")
	}
}

func TestEnsureSessionPrefersRefresh(t *testing.T) {
	db := setupTestDB(t)
	pds := newFakePDS(t)
	client := newTestClient(t, db, pds.URL())
	mustSetSetting(t, db, storage.SettingRefreshToken, testRefreshJwt)

	pds.handle(methodRefreshSession, func(w http.ResponseWriter, r *http.Request) {
		respondSession(w, testAccessJwt2, testRefreshJwt2)
	})

	if _, err := client.EnsureSession(context.Background()); err != nil {
		t.Fatalf("EnsureSession failed: %v", err)
	}
	if pds.count(methodCreateSession) != 0 {
		t.Errorf("createSession called despite stored refresh token")
	}
}
