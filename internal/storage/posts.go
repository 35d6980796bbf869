package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/bskyshare/bskyshare/internal/models"
)

// SavePost inserts or updates a post in the database
func SavePost(db *sql.DB, post *models.Post) error {
	if err := post.Validate(); err != nil {
		return fmt.Errorf("invalid post: %w", err)
	}

	tags, err := json.Marshal(post.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	query := `
		INSERT INTO posts (id, title, excerpt, permalink, status, thumbnail_path, tags, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			excerpt = excluded.excerpt,
			permalink = excluded.permalink,
			status = excluded.status,
			thumbnail_path = excluded.thumbnail_path,
			tags = excluded.tags
	`

	_, err = db.Exec(query,
		post.ID, post.Title, post.Excerpt, post.Permalink,
		post.Status, post.ThumbnailPath, tags, post.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save post: %w", err)
	}

	return nil
}

// GetPost retrieves a post by its ID
func GetPost(db *sql.DB, id int64) (*models.Post, error) {
	query := `
		SELECT id, title, excerpt, permalink, status, thumbnail_path, tags, created_at
		FROM posts
		WHERE id = ?
	`

	var post models.Post
	var tags []byte

	err := db.QueryRow(query, id).Scan(
		&post.ID, &post.Title, &post.Excerpt, &post.Permalink,
		&post.Status, &post.ThumbnailPath, &tags, &post.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("post %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get post: %w", err)
	}

	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &post.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	}

	return &post, nil
}

// ListEligiblePosts returns published posts flagged for publishing that do
// not yet have a stored remote reference. This is the work list for the
// periodic sweep.
func ListEligiblePosts(db *sql.DB) ([]*models.Post, error) {
	query := `
		SELECT p.id, p.title, p.excerpt, p.permalink, p.status, p.thumbnail_path, p.tags, p.created_at
		FROM posts p
		JOIN post_meta flag
			ON flag.post_id = p.id AND flag.key = ? AND flag.value = '1'
		LEFT JOIN post_meta uri
			ON uri.post_id = p.id AND uri.key = ? AND uri.value != ''
		WHERE p.status = ? AND uri.post_id IS NULL
		ORDER BY p.created_at ASC
	`

	rows, err := db.Query(query, MetaShouldPublish, MetaURI, models.PostStatusPublished)
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible posts: %w", err)
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		var post models.Post
		var tags []byte
		if err := rows.Scan(
			&post.ID, &post.Title, &post.Excerpt, &post.Permalink,
			&post.Status, &post.ThumbnailPath, &tags, &post.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		if len(tags) > 0 {
			if err := json.Unmarshal(tags, &post.Tags); err != nil {
				return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
			}
		}
		posts = append(posts, &post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate posts: %w", err)
	}

	return posts, nil
}

// GetShareState assembles the per-post publish controls and remote reference.
func GetShareState(db *sql.DB, postID int64) (*models.ShareState, error) {
	state := &models.ShareState{PostID: postID}

	flag, err := GetPostMeta(db, postID, MetaShouldPublish)
	if err != nil {
		return nil, err
	}
	state.ShouldPublish = flag == "1"

	if state.TextOverride, err = GetPostMeta(db, postID, MetaTextToPublish); err != nil {
		return nil, err
	}
	if state.ATUri, err = GetPostMeta(db, postID, MetaURI); err != nil {
		return nil, err
	}
	if state.HTTPUri, err = GetPostMeta(db, postID, MetaHTTPURI); err != nil {
		return nil, err
	}

	return state, nil
}
