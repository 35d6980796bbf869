package atproto

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/bskyshare/bskyshare/internal/storage"
)

const methodResolveHandle = "com.atproto.identity.resolveHandle"

type resolveHandleResponse struct {
	DID string `json:"did"`
}

// ResolveHandle resolves a handle to its DID and persists the result to the
// settings store. Every call performs a network request; callers avoid
// repeat resolution by checking the stored DID first.
func (c *Client) ResolveHandle(ctx context.Context, handle string) (string, error) {
	endpoint, err := c.xrpcURL(methodResolveHandle)
	if err != nil {
		return "", &Error{Kind: KindTransport, Op: methodResolveHandle, Err: err}
	}

	status, body, err := c.getJSON(ctx, methodResolveHandle, endpoint+"?handle="+url.QueryEscape(handle))
	if err != nil {
		c.log.Error().Err(err).Str("handle", handle).Msg("handle resolution failed")
		return "", err
	}

	if status != http.StatusOK {
		c.log.Error().Int("status", status).Str("body", string(body)).Msg("handle resolution rejected")
		return "", &Error{
			Kind:   KindInvalidResponse,
			Op:     methodResolveHandle,
			Status: status,
			Err:    fmt.Errorf("unexpected status"),
		}
	}

	var resp resolveHandleResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.log.Error().Err(err).Str("body", string(body)).Msg("handle resolution returned malformed JSON")
		return "", &Error{Kind: KindInvalidResponse, Op: methodResolveHandle, Status: status, Err: err}
	}

	if !ValidateDID(resp.DID) {
		c.log.Error().Str("body", string(body)).Msg("handle resolution returned invalid DID")
		return "", &Error{
			Kind:   KindInvalidResponse,
			Op:     methodResolveHandle,
			Status: status,
			Err:    fmt.Errorf("response did is missing or invalid"),
		}
	}

	if err := storage.SetSetting(c.db, storage.SettingDID, resp.DID); err != nil {
		return "", err
	}

	c.log.Info().Str("handle", handle).Str("did", resp.DID).Msg("resolved handle")
	return resp.DID, nil
}

// ensureDID returns the cached DID, resolving the stored handle when no DID
// has been cached yet.
func (c *Client) ensureDID(ctx context.Context) (string, error) {
	did, err := storage.GetSetting(c.db, storage.SettingDID)
	if err != nil {
		return "", err
	}
	if did != "" {
		return did, nil
	}

	handle, err := storage.GetSetting(c.db, storage.SettingHandle)
	if err != nil {
		return "", err
	}
	if handle == "" {
		return "", fmt.Errorf("no handle configured")
	}

	return c.ResolveHandle(ctx, handle)
}
