package storage

import (
	"database/sql"
	"fmt"
)

// Post meta keys.
const (
	MetaShouldPublish = "should-publish"
	MetaTextToPublish = "text-to-publish"
	MetaURI           = "uri"
	MetaHTTPURI       = "http-uri"
)

// GetPostMeta returns the value for the post's key, or "" if absent.
func GetPostMeta(db *sql.DB, postID int64, key string) (string, error) {
	var value string
	err := db.QueryRow(
		"SELECT value FROM post_meta WHERE post_id = ? AND key = ?",
		postID, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get post meta %s for post %d: %w", key, postID, err)
	}
	return value, nil
}

// SetPostMeta inserts or updates a post meta value
func SetPostMeta(db *sql.DB, postID int64, key, value string) error {
	query := `
		INSERT INTO post_meta (post_id, key, value)
		VALUES (?, ?, ?)
		ON CONFLICT(post_id, key) DO UPDATE SET
			value = excluded.value
	`
	if _, err := db.Exec(query, postID, key, value); err != nil {
		return fmt.Errorf("failed to set post meta %s for post %d: %w", key, postID, err)
	}
	return nil
}

// DeletePostMeta removes a post meta value; deleting an absent key is not an
// error.
func DeletePostMeta(db *sql.DB, postID int64, key string) error {
	if _, err := db.Exec(
		"DELETE FROM post_meta WHERE post_id = ? AND key = ?",
		postID, key,
	); err != nil {
		return fmt.Errorf("failed to delete post meta %s for post %d: %w", key, postID, err)
	}
	return nil
}
