package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/bskyshare/bskyshare/internal/atproto"
	"github.com/bskyshare/bskyshare/internal/auth"
	"github.com/bskyshare/bskyshare/internal/config"
	"github.com/bskyshare/bskyshare/internal/storage"
	"github.com/bskyshare/bskyshare/internal/sweeper"
	"github.com/bskyshare/bskyshare/internal/version"
	"github.com/bskyshare/bskyshare/internal/web/handlers"
	webmiddleware "github.com/bskyshare/bskyshare/internal/web/middleware"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	applyLogLevel(cfg.Logging.Level, logger)
	logger.Info().Str("version", version.Get()).Msg("starting bskyshare")

	db, err := storage.InitDB(cfg.Store.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer db.Close()
	logger.Info().Str("path", cfg.Store.DBPath).Msg("database initialized")

	if err := seedSettings(cfg, db); err != nil {
		logger.Fatal().Err(err).Msg("failed to seed settings")
	}

	// The stored debug level wins over the config file once one is set.
	if level, err := storage.GetSetting(db, storage.SettingDebugLevel); err == nil && level != "" {
		applyLogLevel(level, logger)
	}

	client := atproto.NewClient(db, logger)
	publisher := atproto.NewPublisher(db, client, cfg.Publish.Locale, logger)

	worker := sweeper.NewWorker(db, publisher, cfg.Sweep.Interval, logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	sessions := auth.InitSessions(cfg.Server.SessionSecret, cfg.Server.AdminPassword, 7*24*3600, false)
	h := handlers.New(db, sessions, publisher, client, logger)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(webmiddleware.Logging(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(webmiddleware.MaxBytes(cfg.Server.MaxRequestBytes))
	if cfg.Server.CSRFEnabled {
		r.Use(webmiddleware.CSRFProtection([]byte(cfg.Server.SessionSecret), false))
	}

	r.Get("/healthz", h.Healthz)
	r.Get("/version", h.Version)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(webmiddleware.RequireAuth(sessions))
		r.Get("/settings", h.GetSettings)
		r.Put("/settings", h.UpdateSettings)
		r.Route("/posts/{id}", func(r chi.Router) {
			r.Put("/", h.UpsertPost)
			r.Get("/share", h.ShareState)
			r.Post("/publish", h.PublishNow)
			r.Post("/link", h.LinkPost)
			r.Post("/disassociate", h.Disassociate)
		})
	})

	srv := &http.Server{
		Addr:         cfg.GetAddr(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info().Str("addr", cfg.GetAddr()).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	cancel()
	worker.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("forced shutdown")
	}

	logger.Info().Msg("server exited")
}

// applyLogLevel maps the configured level onto the global zerolog level.
// Anything unparseable disables logging, matching the default of staying
// silent unless debugging is explicitly enabled.
func applyLogLevel(level string, logger zerolog.Logger) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		logger.Warn().Str("level", level).Msg("unknown log level, disabling logging")
		parsed = zerolog.Disabled
	}
	zerolog.SetGlobalLevel(parsed)
}

// seedSettings bootstraps the settings store from the config file. Existing
// values are left alone so runtime changes survive restarts.
func seedSettings(cfg *config.Config, db *sql.DB) error {
	bool2s := func(b bool) string {
		if b {
			return "1"
		}
		return "0"
	}

	seeds := map[string]string{
		storage.SettingServiceURL:     cfg.Account.ServiceURL,
		storage.SettingHandle:         cfg.Account.Handle,
		storage.SettingAppPassword:    cfg.Account.AppPassword,
		storage.SettingTextFormat:     cfg.Publish.TextFormat,
		storage.SettingIncludeTags:    bool2s(cfg.Publish.IncludeTags),
		storage.SettingDefaultPublish: bool2s(cfg.Publish.DefaultPublish),
		storage.SettingUseSweep:       bool2s(cfg.Sweep.Enabled),
		storage.SettingDebugLevel:     cfg.Logging.Level,
	}

	for key, value := range seeds {
		if err := storage.SeedSetting(db, key, value); err != nil {
			return err
		}
	}
	return nil
}
