package atproto

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

const (
	methodCreateRecord = "com.atproto.repo.createRecord"
	methodGetRecord    = "com.atproto.repo.getRecord"

	// PostCollection is the repo collection cross-posts are written to.
	PostCollection = "app.bsky.feed.post"
)

// externalEmbed is the link card attached to every cross-post, pointing back
// at the source blog entry.
type externalEmbed struct {
	URI         string          `json:"uri"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Thumb       json.RawMessage `json:"thumb,omitempty"`
}

type postEmbed struct {
	Type     string        `json:"$type"`
	External externalEmbed `json:"external"`
}

// feedPost is the record body submitted to the post collection.
type feedPost struct {
	Text      string     `json:"text"`
	CreatedAt string     `json:"createdAt"`
	Embed     *postEmbed `json:"embed,omitempty"`
	Langs     []string   `json:"langs,omitempty"`
}

type createRecordRequest struct {
	Collection string   `json:"collection"`
	Repo       string   `json:"repo"`
	Record     feedPost `json:"record"`
}

type createRecordResponse struct {
	URI string `json:"uri"`
}

type getRecordResponse struct {
	URI   string          `json:"uri"`
	Value json.RawMessage `json:"value"`
}

// createRecord submits the record under the given access token and returns
// the raw status, body and any transport error. Retry policy is the
// caller's concern.
func (c *Client) createRecord(ctx context.Context, did string, record feedPost, bearer string) (int, []byte, error) {
	req := createRecordRequest{
		Collection: PostCollection,
		Repo:       did,
		Record:     record,
	}
	return c.postJSON(ctx, methodCreateRecord, req, bearer)
}

// GetRecord fetches an existing record from the account's post collection by
// record key. Used to link a blog post to a record that was published out of
// band.
func (c *Client) GetRecord(ctx context.Context, rkey string) (string, error) {
	did, err := c.ensureDID(ctx)
	if err != nil {
		return "", err
	}

	endpoint, err := c.xrpcURL(methodGetRecord)
	if err != nil {
		return "", &Error{Kind: KindTransport, Op: methodGetRecord, Err: err}
	}

	params := url.Values{}
	params.Set("repo", did)
	params.Set("collection", PostCollection)
	params.Set("rkey", rkey)

	status, body, err := c.getJSON(ctx, methodGetRecord, endpoint+"?"+params.Encode())
	if err != nil {
		c.log.Error().Err(err).Str("rkey", rkey).Msg("get record failed")
		return "", err
	}

	if status != http.StatusOK {
		c.log.Error().Int("status", status).Str("body", string(body)).Msg("get record rejected")
		return "", &Error{
			Kind:   KindInvalidResponse,
			Op:     methodGetRecord,
			Status: status,
			Err:    fmt.Errorf("unexpected status"),
		}
	}

	var resp getRecordResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &Error{Kind: KindInvalidResponse, Op: methodGetRecord, Status: status, Err: err}
	}

	if !ValidateATUri(resp.URI) {
		c.log.Error().Str("body", string(body)).Msg("get record returned invalid uri")
		return "", &Error{
			Kind:   KindInvalidResponse,
			Op:     methodGetRecord,
			Status: status,
			Err:    fmt.Errorf("response uri is missing or invalid"),
		}
	}

	return resp.URI, nil
}
