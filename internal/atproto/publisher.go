package atproto

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bluesky-social/indigo/atproto/syntax"
	"github.com/rs/zerolog"

	"github.com/bskyshare/bskyshare/internal/models"
	"github.com/bskyshare/bskyshare/internal/storage"
)

// errorCodeExpiredToken is the server-side signal that the access token has
// lapsed and a refresh should be attempted.
const errorCodeExpiredToken = "ExpiredToken"

// Text formats for deriving the status text when no override is set.
const (
	FormatTitle           = "post_title"
	FormatExcerpt         = "post_excerpt"
	FormatTitleAndExcerpt = "post_title_and_excerpt"
)

// Publisher composes and submits cross-post records. Entry point for both
// the manual publish action and the periodic sweep.
type Publisher struct {
	db     *sql.DB
	client *Client
	locale string
	log    zerolog.Logger

	// Advisory per-post locks: overlapping manual and scheduled publish
	// attempts must not both pass the idempotence check.
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewPublisher creates a publisher using the given client. locale is the
// site locale ("en_US" style); it is normalized into the record's langs.
func NewPublisher(db *sql.DB, client *Client, locale string, logger zerolog.Logger) *Publisher {
	return &Publisher{
		db:     db,
		client: client,
		locale: locale,
		log:    logger.With().Str("component", "publisher").Logger(),
		locks:  make(map[int64]*sync.Mutex),
	}
}

func (p *Publisher) lockPost(id int64) func() {
	p.mu.Lock()
	lock, ok := p.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[id] = lock
	}
	p.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// Publish cross-posts the blog entry and stores the resulting remote
// reference. A post that already has a stored reference is returned as-is
// with no network activity. An expired-token response triggers exactly one
// session refresh and one retried submission; every other failure is
// terminal for this invocation, leaving the post eligible for the next
// sweep.
func (p *Publisher) Publish(ctx context.Context, post *models.Post) (*models.RemoteReference, error) {
	unlock := p.lockPost(post.ID)
	defer unlock()

	// Idempotence guard.
	existing, err := p.storedReference(post.ID)
	if err != nil {
		return nil, err
	}
	if existing.Published() {
		p.log.Debug().Int64("post", post.ID).Str("uri", existing.ATUri).Msg("already published")
		return existing, nil
	}

	did, err := p.client.ensureDID(ctx)
	if err != nil {
		return nil, err
	}

	token, err := p.client.accessToken()
	if err != nil {
		return nil, err
	}
	if token == "" {
		session, err := p.client.EnsureSession(ctx)
		if err != nil {
			return nil, err
		}
		token = session.AccessJwt
	}

	// Thumbnail upload is best-effort: the post still goes out without one.
	var thumb []byte
	if post.ThumbnailPath != "" {
		thumb, err = p.client.UploadBlob(ctx, post.ThumbnailPath)
		if err != nil {
			p.log.Warn().Err(err).Int64("post", post.ID).Msg("thumbnail upload failed, publishing without it")
			thumb = nil
		}
	}

	text, err := p.composeText(post)
	if err != nil {
		return nil, err
	}

	record := feedPost{
		Text:      text,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Embed: &postEmbed{
			Type: "app.bsky.embed.external",
			External: externalEmbed{
				URI:         post.Permalink,
				Title:       post.Title,
				Description: post.Excerpt,
				Thumb:       thumb,
			},
		},
		Langs: []string{strings.ReplaceAll(p.locale, "_", "-")},
	}

	retried := false
	for {
		status, body, err := p.client.createRecord(ctx, did, record, token)
		if err != nil {
			return nil, err
		}

		if status != http.StatusOK {
			if errorCode(body) == errorCodeExpiredToken && !retried {
				retried = true
				p.log.Info().Int64("post", post.ID).Msg("access token expired, refreshing and retrying")
				if err := p.client.clearAccessToken(); err != nil {
					return nil, err
				}
				session, err := p.client.Refresh(ctx)
				if err != nil {
					return nil, err
				}
				token = session.AccessJwt
				continue
			}
			p.log.Error().Int("status", status).Str("body", string(body)).Int64("post", post.ID).Msg("create record failed")
			return nil, &Error{
				Kind:   KindPublish,
				Op:     methodCreateRecord,
				Status: status,
				Err:    fmt.Errorf("create record rejected"),
			}
		}

		return p.storeReference(post.ID, status, body)
	}
}

// storeReference validates the created record's URI and persists the remote
// reference. A 200 response with a malformed URI is not success; treating it
// as one would store unusable state.
func (p *Publisher) storeReference(postID int64, status int, body []byte) (*models.RemoteReference, error) {
	var resp createRecordResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		p.log.Error().Err(err).Str("body", string(body)).Msg("create record returned malformed JSON")
		return nil, &Error{Kind: KindInvalidResponse, Op: methodCreateRecord, Status: status, Err: err}
	}

	if !ValidateATUri(resp.URI) {
		p.log.Error().Str("body", string(body)).Msg("create record returned invalid uri")
		return nil, &Error{
			Kind:   KindInvalidResponse,
			Op:     methodCreateRecord,
			Status: status,
			Err:    fmt.Errorf("response uri is missing or invalid"),
		}
	}

	httpURI, err := p.DeriveHTTPURI(resp.URI)
	if err != nil {
		return nil, &Error{Kind: KindInvalidResponse, Op: methodCreateRecord, Status: status, Err: err}
	}

	if err := storage.SetPostMeta(p.db, postID, storage.MetaURI, resp.URI); err != nil {
		return nil, err
	}
	if err := storage.SetPostMeta(p.db, postID, storage.MetaHTTPURI, httpURI); err != nil {
		return nil, err
	}

	p.log.Info().Int64("post", postID).Str("uri", resp.URI).Msg("published")
	return &models.RemoteReference{ATUri: resp.URI, HTTPUri: httpURI}, nil
}

// Link associates a blog post with a record that already exists in the
// account's post collection, identified by its record key.
func (p *Publisher) Link(ctx context.Context, postID int64, rkey string) (*models.RemoteReference, error) {
	unlock := p.lockPost(postID)
	defer unlock()

	atURI, err := p.client.GetRecord(ctx, rkey)
	if err != nil {
		return nil, err
	}

	httpURI, err := p.DeriveHTTPURI(atURI)
	if err != nil {
		return nil, err
	}

	if err := storage.SetPostMeta(p.db, postID, storage.MetaURI, atURI); err != nil {
		return nil, err
	}
	if err := storage.SetPostMeta(p.db, postID, storage.MetaHTTPURI, httpURI); err != nil {
		return nil, err
	}

	p.log.Info().Int64("post", postID).Str("uri", atURI).Msg("linked to existing record")
	return &models.RemoteReference{ATUri: atURI, HTTPUri: httpURI}, nil
}

// Disassociate clears the stored remote reference, making the post eligible
// for publishing again.
func (p *Publisher) Disassociate(postID int64) error {
	unlock := p.lockPost(postID)
	defer unlock()

	if err := storage.DeletePostMeta(p.db, postID, storage.MetaURI); err != nil {
		return err
	}
	if err := storage.DeletePostMeta(p.db, postID, storage.MetaHTTPURI); err != nil {
		return err
	}

	p.log.Info().Int64("post", postID).Msg("disassociated from remote record")
	return nil
}

// storedReference reads the persisted reference for a post. When only the
// AT-URI is stored the display URL is derived and backfilled.
func (p *Publisher) storedReference(postID int64) (*models.RemoteReference, error) {
	atURI, err := storage.GetPostMeta(p.db, postID, storage.MetaURI)
	if err != nil {
		return nil, err
	}

	ref := &models.RemoteReference{ATUri: atURI}
	if atURI == "" {
		return ref, nil
	}

	ref.HTTPUri, err = storage.GetPostMeta(p.db, postID, storage.MetaHTTPURI)
	if err != nil {
		return nil, err
	}
	if ref.HTTPUri == "" {
		httpURI, err := p.DeriveHTTPURI(atURI)
		if err != nil {
			return ref, nil
		}
		if err := storage.SetPostMeta(p.db, postID, storage.MetaHTTPURI, httpURI); err != nil {
			return nil, err
		}
		ref.HTTPUri = httpURI
	}

	return ref, nil
}

// DeriveHTTPURI builds the public display URL for a stored record:
// https://bsky.app/profile/{handle}/post/{rkey}.
func (p *Publisher) DeriveHTTPURI(atURI string) (string, error) {
	parsed, err := syntax.ParseATURI(atURI)
	if err != nil {
		return "", fmt.Errorf("failed to parse at-uri: %w", err)
	}

	rkey := parsed.RecordKey().String()
	if rkey == "" {
		return "", fmt.Errorf("at-uri has no record key: %s", atURI)
	}

	handle, err := storage.GetSetting(p.db, storage.SettingHandle)
	if err != nil {
		return "", err
	}
	if handle == "" {
		return "", fmt.Errorf("no handle configured")
	}

	return "https://bsky.app/profile/" + handle + "/post/" + rkey, nil
}

// composeText derives the status text: the per-post override wins, then the
// configured format, then an optional hashtag suffix built from the post's
// tags.
func (p *Publisher) composeText(post *models.Post) (string, error) {
	text, err := storage.GetPostMeta(p.db, post.ID, storage.MetaTextToPublish)
	if err != nil {
		return "", err
	}

	if text == "" {
		format, err := storage.GetSetting(p.db, storage.SettingTextFormat)
		if err != nil {
			return "", err
		}

		switch format {
		case FormatExcerpt:
			text = post.Excerpt
		case FormatTitleAndExcerpt:
			text = post.Title + ": " + post.Excerpt
		default:
			text = post.Title
		}
	}

	includeTags, err := storage.GetSetting(p.db, storage.SettingIncludeTags)
	if err != nil {
		return "", err
	}
	if includeTags == "1" && len(post.Tags) > 0 {
		tags := make([]string, 0, len(post.Tags))
		for _, tag := range post.Tags {
			if tag == "" {
				continue
			}
			tags = append(tags, "#"+strings.ReplaceAll(tag, " ", ""))
		}
		if len(tags) > 0 {
			text += " " + strings.Join(tags, " ")
		}
	}

	return text, nil
}
