package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/bskyshare/bskyshare/internal/atproto"
	"github.com/bskyshare/bskyshare/internal/storage"
)

// settingsPayload is the API view of the settings store. AppPassword is
// write-only; reads report only whether one is set.
type settingsPayload struct {
	ServiceURL     string `json:"service_url"`
	Handle         string `json:"handle"`
	AppPassword    string `json:"app_password,omitempty"`
	AppPasswordSet bool   `json:"app_password_set"`
	DID            string `json:"did,omitempty"`
	TextFormat     string `json:"text_format"`
	IncludeTags    bool   `json:"include_tags"`
	DefaultPublish bool   `json:"default_publish"`
	UseSweep       bool   `json:"use_sweep"`
	DebugLevel     string `json:"debug_level"`
}

// GetSettings returns the current settings, with secrets masked.
func (h *Handlers) GetSettings(w http.ResponseWriter, r *http.Request) {
	get := func(key string) string {
		value, err := storage.GetSetting(h.db, key)
		if err != nil {
			h.log.Error().Err(err).Str("key", key).Msg("failed to read setting")
		}
		return value
	}

	payload := settingsPayload{
		ServiceURL:     get(storage.SettingServiceURL),
		Handle:         get(storage.SettingHandle),
		AppPasswordSet: get(storage.SettingAppPassword) != "",
		DID:            get(storage.SettingDID),
		TextFormat:     get(storage.SettingTextFormat),
		IncludeTags:    get(storage.SettingIncludeTags) == "1",
		DefaultPublish: get(storage.SettingDefaultPublish) == "1",
		UseSweep:       get(storage.SettingUseSweep) == "1",
		DebugLevel:     get(storage.SettingDebugLevel),
	}

	respondJSON(w, http.StatusOK, payload)
}

// UpdateSettings replaces the settings store with the submitted values.
// Changing the handle invalidates the cached DID and the stored session,
// since they belong to the previous account.
func (h *Handlers) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch req.TextFormat {
	case atproto.FormatTitle, atproto.FormatExcerpt, atproto.FormatTitleAndExcerpt:
	default:
		respondError(w, http.StatusBadRequest, "invalid text_format")
		return
	}

	previousHandle, err := storage.GetSetting(h.db, storage.SettingHandle)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read settings")
		return
	}

	bool2s := func(b bool) string {
		if b {
			return "1"
		}
		return "0"
	}

	updates := map[string]string{
		storage.SettingServiceURL:     req.ServiceURL,
		storage.SettingHandle:         req.Handle,
		storage.SettingTextFormat:     req.TextFormat,
		storage.SettingIncludeTags:    bool2s(req.IncludeTags),
		storage.SettingDefaultPublish: bool2s(req.DefaultPublish),
		storage.SettingUseSweep:       bool2s(req.UseSweep),
		storage.SettingDebugLevel:     req.DebugLevel,
	}
	if req.AppPassword != "" {
		updates[storage.SettingAppPassword] = req.AppPassword
	}

	for key, value := range updates {
		if err := storage.SetSetting(h.db, key, value); err != nil {
			respondError(w, http.StatusInternalServerError, "failed to save settings")
			return
		}
	}

	if req.Handle != previousHandle {
		for _, key := range []string{
			storage.SettingDID,
			storage.SettingAccessToken,
			storage.SettingRefreshToken,
		} {
			if err := storage.DeleteSetting(h.db, key); err != nil {
				respondError(w, http.StatusInternalServerError, "failed to reset account state")
				return
			}
		}
		h.log.Info().Str("handle", req.Handle).Msg("handle changed, cleared cached DID and session")
	}

	if level, err := zerolog.ParseLevel(req.DebugLevel); err == nil && req.DebugLevel != "" {
		zerolog.SetGlobalLevel(level)
	}

	h.GetSettings(w, r)
}
