package atproto

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/bskyshare/bskyshare/internal/models"
	"github.com/bskyshare/bskyshare/internal/storage"
)

const (
	methodCreateSession  = "com.atproto.server.createSession"
	methodRefreshSession = "com.atproto.server.refreshSession"
)

type sessionResponse struct {
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
}

// Authenticate establishes a new session with the app password and persists
// both tokens. Prefer EnsureSession, which goes through the refresh token
// when one is stored so the password is transmitted as rarely as possible.
func (c *Client) Authenticate(ctx context.Context, did, appPassword string) (*models.Session, error) {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	return c.authenticate(ctx, did, appPassword)
}

func (c *Client) authenticate(ctx context.Context, did, appPassword string) (*models.Session, error) {
	payload := map[string]string{
		"identifier": did,
		"password":   appPassword,
	}

	status, body, err := c.postJSON(ctx, methodCreateSession, payload, "")
	if err != nil {
		c.log.Error().Err(err).Msg("create session failed")
		return nil, err
	}

	if status != http.StatusOK {
		c.log.Error().Int("status", status).Str("body", string(body)).Msg("create session rejected")
		return nil, &Error{
			Kind:   KindAuth,
			Op:     methodCreateSession,
			Status: status,
			Err:    fmt.Errorf("authentication rejected"),
		}
	}

	session, err := c.decodeSession(methodCreateSession, status, body)
	if err != nil {
		return nil, err
	}

	if err := c.persistSession(session); err != nil {
		return nil, err
	}

	c.log.Info().Msg("session established")
	return session, nil
}

// Refresh exchanges the stored refresh token for a new session. A failed or
// invalid refresh clears the refresh token and falls back to full
// authentication, so a stale token can never wedge the client.
func (c *Client) Refresh(ctx context.Context) (*models.Session, error) {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	return c.refresh(ctx)
}

func (c *Client) refresh(ctx context.Context) (*models.Session, error) {
	refreshToken, err := storage.GetSetting(c.db, storage.SettingRefreshToken)
	if err != nil {
		return nil, err
	}
	if refreshToken == "" {
		return c.fullAuth(ctx)
	}

	payload := map[string]string{
		"refreshJwt": refreshToken,
	}

	status, body, err := c.postJSON(ctx, methodRefreshSession, payload, refreshToken)
	if err != nil {
		c.log.Error().Err(err).Msg("refresh session failed")
		return nil, err
	}

	if status != http.StatusOK {
		c.log.Info().Int("status", status).Msg("refresh rejected, falling back to full authentication")
		if err := storage.DeleteSetting(c.db, storage.SettingRefreshToken); err != nil {
			return nil, err
		}
		return c.fullAuth(ctx)
	}

	session, err := c.decodeSession(methodRefreshSession, status, body)
	if err != nil {
		c.log.Warn().Err(err).Msg("refresh returned invalid tokens, falling back to full authentication")
		if derr := storage.DeleteSetting(c.db, storage.SettingRefreshToken); derr != nil {
			return nil, derr
		}
		return c.fullAuth(ctx)
	}

	if err := c.persistSession(session); err != nil {
		return nil, err
	}

	c.log.Debug().Msg("session refreshed")
	return session, nil
}

// EnsureSession returns a usable session, refreshing when a refresh token is
// stored and authenticating from scratch otherwise.
func (c *Client) EnsureSession(ctx context.Context) (*models.Session, error) {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()

	refreshToken, err := storage.GetSetting(c.db, storage.SettingRefreshToken)
	if err != nil {
		return nil, err
	}
	if refreshToken != "" {
		return c.refresh(ctx)
	}
	return c.fullAuth(ctx)
}

// fullAuth resolves the DID if needed and authenticates with the stored
// handle and app password. Callers hold sessionMu.
func (c *Client) fullAuth(ctx context.Context) (*models.Session, error) {
	did, err := c.ensureDID(ctx)
	if err != nil {
		return nil, err
	}

	appPassword, err := storage.GetSetting(c.db, storage.SettingAppPassword)
	if err != nil {
		return nil, err
	}
	if appPassword == "" {
		return nil, fmt.Errorf("no app password configured")
	}

	return c.authenticate(ctx, did, appPassword)
}

// decodeSession decodes a session response and validates both tokens.
// Anything failing validation is treated the same as a failed call; the
// server's behavior on malformed tokens is unspecified and must not be
// allowed to corrupt stored credentials.
func (c *Client) decodeSession(op string, status int, body []byte) (*models.Session, error) {
	var resp sessionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &Error{Kind: KindInvalidResponse, Op: op, Status: status, Err: err}
	}

	if !ValidateJWT(resp.AccessJwt) || !ValidateJWT(resp.RefreshJwt) {
		return nil, &Error{
			Kind:   KindInvalidToken,
			Op:     op,
			Status: status,
			Err:    fmt.Errorf("response tokens are missing or malformed"),
		}
	}

	return &models.Session{
		AccessJwt:  resp.AccessJwt,
		RefreshJwt: resp.RefreshJwt,
	}, nil
}

// persistSession stores both tokens. The session is replaced wholesale;
// it is never left half-populated.
func (c *Client) persistSession(session *models.Session) error {
	if err := storage.SetSetting(c.db, storage.SettingAccessToken, session.AccessJwt); err != nil {
		return err
	}
	if err := storage.SetSetting(c.db, storage.SettingRefreshToken, session.RefreshJwt); err != nil {
		return err
	}
	return nil
}

// accessToken returns the stored access token, or "" when no session exists.
func (c *Client) accessToken() (string, error) {
	return storage.GetSetting(c.db, storage.SettingAccessToken)
}

// clearAccessToken drops the access token so the next caller is forced
// through a refresh.
func (c *Client) clearAccessToken() error {
	return storage.DeleteSetting(c.db, storage.SettingAccessToken)
}
