package models

// RemoteReference links a blog post to the record it was cross-posted as.
// Once ATUri is non-empty the post counts as published and will not be
// published again until the reference is disassociated.
type RemoteReference struct {
	ATUri   string `json:"at_uri"`
	HTTPUri string `json:"http_uri"`
}

// Published reports whether the post already has a remote record.
func (r *RemoteReference) Published() bool {
	return r.ATUri != ""
}

// ShareState is the per-post view served to the operator UI: the remote
// reference plus the publish controls stored in post meta.
type ShareState struct {
	PostID        int64  `json:"post_id"`
	ShouldPublish bool   `json:"should_publish"`
	TextOverride  string `json:"text_override,omitempty"`
	ATUri         string `json:"at_uri,omitempty"`
	HTTPUri       string `json:"http_uri,omitempty"`
}
