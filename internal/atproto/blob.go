package atproto

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
)

const methodUploadBlob = "com.atproto.repo.uploadBlob"

// MaxBlobSize is the upload ceiling in bytes. Larger thumbnails are skipped
// rather than risk exceeding server limits.
const MaxBlobSize = 1_000_000

type uploadBlobResponse struct {
	Blob json.RawMessage `json:"blob"`
}

// UploadBlob uploads the file at path and returns the server's opaque blob
// reference, for embedding verbatim as the external thumb.
//
// A missing path, missing file or oversized file yields (nil, nil): a
// missing thumbnail is not fatal to publishing, so these are logged at WARN
// and skipped. A non-200 response is interpreted as an expired or invalid
// access token: the token is cleared, the session refreshed, and the upload
// retried exactly once.
func (c *Client) UploadBlob(ctx context.Context, path string) (json.RawMessage, error) {
	if path == "" {
		c.log.Warn().Msg("no thumbnail path, skipping upload")
		return nil, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		c.log.Warn().Err(err).Str("path", path).Msg("thumbnail not found, skipping upload")
		return nil, nil
	}
	if info.Size() > MaxBlobSize {
		c.log.Warn().Int64("size", info.Size()).Str("path", path).Msg("thumbnail exceeds size ceiling, skipping upload")
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		c.log.Warn().Err(err).Str("path", path).Msg("failed to read thumbnail, skipping upload")
		return nil, nil
	}

	retried := false
	for {
		token, err := c.accessToken()
		if err != nil {
			return nil, err
		}

		status, body, err := c.postRaw(ctx, methodUploadBlob, data, "image/*", token)
		if err != nil {
			return nil, err
		}

		if status != http.StatusOK {
			if retried {
				c.log.Error().Int("status", status).Str("body", string(body)).Msg("blob upload failed after refresh")
				return nil, &Error{Kind: KindAuth, Op: methodUploadBlob, Status: status}
			}
			retried = true
			c.log.Info().Int("status", status).Msg("blob upload rejected, refreshing session and retrying")
			if err := c.clearAccessToken(); err != nil {
				return nil, err
			}
			if _, err := c.Refresh(ctx); err != nil {
				return nil, err
			}
			continue
		}

		var resp uploadBlobResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			c.log.Error().Err(err).Msg("blob upload returned malformed JSON")
			return nil, &Error{Kind: KindInvalidResponse, Op: methodUploadBlob, Status: status, Err: err}
		}
		if len(resp.Blob) == 0 {
			c.log.Error().Str("body", string(body)).Msg("blob upload response missing blob")
			return nil, &Error{Kind: KindInvalidResponse, Op: methodUploadBlob, Status: status}
		}

		c.log.Debug().Str("path", path).Msg("uploaded thumbnail")
		return resp.Blob, nil
	}
}
