package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/bskyshare/bskyshare/internal/models"
	"github.com/bskyshare/bskyshare/internal/storage"
)

// UpsertPost ingests a blog post. The first time a post is seen its publish
// flag is seeded from the default-publish setting, the way the source blog
// would pre-check the share box on new posts; later saves leave the flag as
// the operator set it.
func (h *Handlers) UpsertPost(w http.ResponseWriter, r *http.Request) {
	postID, ok := h.postID(w, r)
	if !ok {
		return
	}

	var post models.Post
	if err := json.NewDecoder(r.Body).Decode(&post); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	post.ID = postID

	if err := post.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	flag, err := storage.GetPostMeta(h.db, postID, storage.MetaShouldPublish)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read share state")
		return
	}

	if err := storage.SavePost(h.db, &post); err != nil {
		h.log.Error().Err(err).Int64("post", postID).Msg("failed to save post")
		respondError(w, http.StatusInternalServerError, "failed to save post")
		return
	}

	if flag == "" {
		defaultPublish, err := storage.GetSetting(h.db, storage.SettingDefaultPublish)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to read settings")
			return
		}
		seed := "0"
		if defaultPublish == "1" {
			seed = "1"
		}
		if err := storage.SetPostMeta(h.db, postID, storage.MetaShouldPublish, seed); err != nil {
			respondError(w, http.StatusInternalServerError, "failed to seed publish flag")
			return
		}
	}

	h.shareState(w, postID)
}
