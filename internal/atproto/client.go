package atproto

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bskyshare/bskyshare/internal/storage"
)

const defaultTimeout = 30 * time.Second

// Client talks XRPC to the configured PDS. Credentials, the resolved DID and
// the current session tokens live in the settings store; the client is the
// only component that reads or writes them.
type Client struct {
	db   *sql.DB
	http *http.Client
	log  zerolog.Logger

	// Serializes session-mutating operations so concurrent refreshes cannot
	// clobber each other's persisted tokens.
	sessionMu sync.Mutex
}

// NewClient creates a client backed by the given settings store.
func NewClient(db *sql.DB, logger zerolog.Logger) *Client {
	return &Client{
		db: db,
		http: &http.Client{
			Timeout: defaultTimeout,
		},
		log: logger.With().Str("component", "atproto").Logger(),
	}
}

// xrpcURL builds the endpoint URL for an XRPC method from the stored
// service URL, normalized to end with a path separator.
func (c *Client) xrpcURL(method string) (string, error) {
	base, err := storage.GetSetting(c.db, storage.SettingServiceURL)
	if err != nil {
		return "", err
	}
	if base == "" {
		return "", fmt.Errorf("service URL is not configured")
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + "xrpc/" + method, nil
}

// xrpcError is the error envelope the PDS returns on non-200 responses.
type xrpcError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// errorCode extracts the error code from a non-200 response body. Returns ""
// when the body is not a recognizable error envelope.
func errorCode(body []byte) string {
	var xe xrpcError
	if err := json.Unmarshal(body, &xe); err != nil {
		return ""
	}
	return xe.Error
}

// getJSON issues an unauthenticated GET and returns status and body.
// Transport-level failures come back as a KindTransport error.
func (c *Client) getJSON(ctx context.Context, method, rawURL string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, nil, &Error{Kind: KindTransport, Op: method, Err: err}
	}
	return c.do(method, req)
}

// postJSON issues a POST with a JSON body. A non-empty bearer adds an
// Authorization header.
func (c *Client) postJSON(ctx context.Context, method string, payload any, bearer string) (int, []byte, error) {
	rawURL, err := c.xrpcURL(method)
	if err != nil {
		return 0, nil, &Error{Kind: KindTransport, Op: method, Err: err}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, &Error{Kind: KindTransport, Op: method, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return 0, nil, &Error{Kind: KindTransport, Op: method, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return c.do(method, req)
}

// postRaw issues a POST with an opaque body, used for blob uploads.
func (c *Client) postRaw(ctx context.Context, method string, body []byte, contentType, bearer string) (int, []byte, error) {
	rawURL, err := c.xrpcURL(method)
	if err != nil {
		return 0, nil, &Error{Kind: KindTransport, Op: method, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return 0, nil, &Error{Kind: KindTransport, Op: method, Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+bearer)
	return c.do(method, req)
}

func (c *Client) do(method string, req *http.Request) (int, []byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, &Error{Kind: KindTransport, Op: method, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, &Error{Kind: KindTransport, Op: method, Err: err}
	}

	return resp.StatusCode, body, nil
}
