package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/bskyshare/bskyshare/internal/atproto"
	"github.com/bskyshare/bskyshare/internal/auth"
)

// Handlers holds dependencies for all HTTP handlers
type Handlers struct {
	db        *sql.DB
	sessions  *auth.Manager
	publisher *atproto.Publisher
	client    *atproto.Client
	log       zerolog.Logger
}

// New creates a new Handlers instance
func New(db *sql.DB, sessions *auth.Manager, publisher *atproto.Publisher, client *atproto.Client, logger zerolog.Logger) *Handlers {
	return &Handlers{
		db:        db,
		sessions:  sessions,
		publisher: publisher,
		client:    client,
		log:       logger.With().Str("component", "web").Logger(),
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
