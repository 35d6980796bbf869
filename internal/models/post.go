package models

import (
	"fmt"
	"time"
)

// Post statuses mirror the source blog's lifecycle. Only published posts are
// eligible for cross-posting.
const (
	PostStatusDraft     = "draft"
	PostStatusPublished = "publish"
)

// Post is a blog entry as seen by the cross-poster: enough of the source
// post to derive status text, build the external embed, and locate the
// thumbnail on disk.
type Post struct {
	ID            int64     `json:"id" db:"id"`
	Title         string    `json:"title" db:"title"`
	Excerpt       string    `json:"excerpt" db:"excerpt"`
	Permalink     string    `json:"permalink" db:"permalink"`
	Status        string    `json:"status" db:"status"`
	ThumbnailPath string    `json:"thumbnail_path,omitempty" db:"thumbnail_path"`
	Tags          []string  `json:"tags,omitempty" db:"tags"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// Validate checks if the post fields are valid
func (p *Post) Validate() error {
	if p.ID <= 0 {
		return fmt.Errorf("id is required")
	}

	if p.Title == "" {
		return fmt.Errorf("title is required")
	}

	if p.Permalink == "" {
		return fmt.Errorf("permalink is required")
	}

	switch p.Status {
	case PostStatusDraft, PostStatusPublished:
	default:
		return fmt.Errorf("invalid status: %s", p.Status)
	}

	if p.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}

	return nil
}

// IsPublished reports whether the post is live on the source blog.
func (p *Post) IsPublished() bool {
	return p.Status == PostStatusPublished
}
