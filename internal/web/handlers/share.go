package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bskyshare/bskyshare/internal/storage"
)

type publishRequest struct {
	ShouldPublish bool   `json:"should_publish"`
	Text          string `json:"text"`
	// SkipPublish updates the publish controls without triggering an
	// immediate publish attempt.
	SkipPublish bool `json:"skip_publish"`
}

type linkRequest struct {
	RKey string `json:"rkey"`
}

func (h *Handlers) postID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid post id")
		return 0, false
	}
	return id, true
}

// PublishNow updates the per-post publish controls and, unless deferred,
// publishes the post immediately. Returns an explicit success or failure
// with a reason.
func (h *Handlers) PublishNow(w http.ResponseWriter, r *http.Request) {
	postID, ok := h.postID(w, r)
	if !ok {
		return
	}

	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	flag := "0"
	if req.ShouldPublish {
		flag = "1"
	}
	if err := storage.SetPostMeta(h.db, postID, storage.MetaShouldPublish, flag); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update publish flag")
		return
	}
	if err := storage.SetPostMeta(h.db, postID, storage.MetaTextToPublish, req.Text); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update text override")
		return
	}

	post, err := storage.GetPost(h.db, postID)
	if err != nil {
		respondError(w, http.StatusNotFound, "post not found")
		return
	}

	if req.SkipPublish || !req.ShouldPublish || !post.IsPublished() {
		h.shareState(w, postID)
		return
	}

	if _, err := h.publisher.Publish(r.Context(), post); err != nil {
		h.log.Error().Err(err).Int64("post", postID).Msg("manual publish failed")
		respondError(w, http.StatusBadGateway, "failed to publish: "+err.Error())
		return
	}

	h.shareState(w, postID)
}

// LinkPost associates a post with an existing remote record by record key.
func (h *Handlers) LinkPost(w http.ResponseWriter, r *http.Request) {
	postID, ok := h.postID(w, r)
	if !ok {
		return
	}

	var req linkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RKey == "" {
		respondError(w, http.StatusBadRequest, "rkey is required")
		return
	}

	if _, err := storage.GetPost(h.db, postID); err != nil {
		respondError(w, http.StatusNotFound, "post not found")
		return
	}

	if _, err := h.publisher.Link(r.Context(), postID, req.RKey); err != nil {
		h.log.Error().Err(err).Int64("post", postID).Str("rkey", req.RKey).Msg("link failed")
		respondError(w, http.StatusBadGateway, "failed to link to existing post: "+err.Error())
		return
	}

	h.shareState(w, postID)
}

// Disassociate clears the stored remote reference for a post.
func (h *Handlers) Disassociate(w http.ResponseWriter, r *http.Request) {
	postID, ok := h.postID(w, r)
	if !ok {
		return
	}

	if err := h.publisher.Disassociate(postID); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to disassociate")
		return
	}

	h.shareState(w, postID)
}

// ShareState returns the current publish controls and remote reference.
func (h *Handlers) ShareState(w http.ResponseWriter, r *http.Request) {
	postID, ok := h.postID(w, r)
	if !ok {
		return
	}
	h.shareState(w, postID)
}

func (h *Handlers) shareState(w http.ResponseWriter, postID int64) {
	state, err := storage.GetShareState(h.db, postID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load share state")
		return
	}
	respondJSON(w, http.StatusOK, state)
}
