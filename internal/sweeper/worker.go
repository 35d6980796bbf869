package sweeper

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bskyshare/bskyshare/internal/atproto"
	"github.com/bskyshare/bskyshare/internal/storage"
)

// Worker periodically publishes every eligible unpublished post. It is the
// scheduled counterpart to the manual publish action: no user-visible output,
// failures are logged and the post stays eligible for the next cycle.
type Worker struct {
	db        *sql.DB
	publisher *atproto.Publisher
	interval  time.Duration
	log       zerolog.Logger

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewWorker creates a sweep worker. interval is the time between sweeps.
func NewWorker(db *sql.DB, publisher *atproto.Publisher, interval time.Duration, logger zerolog.Logger) *Worker {
	return &Worker{
		db:        db,
		publisher: publisher,
		interval:  interval,
		log:       logger.With().Str("component", "sweeper").Logger(),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the sweep loop in a background goroutine.
func (w *Worker) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop signals the loop to exit and waits for the in-flight sweep to finish.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
	<-w.done
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info().Dur("interval", w.interval).Msg("sweep worker started")

	for {
		select {
		case <-ticker.C:
			w.Sweep(ctx)
		case <-w.stop:
			w.log.Info().Msg("sweep worker stopping")
			return
		case <-ctx.Done():
			w.log.Info().Msg("sweep worker context canceled")
			return
		}
	}
}

// Sweep publishes all eligible unpublished posts sequentially. Respects the
// use-sweep setting so sweeping can be disabled at runtime without a
// restart.
func (w *Worker) Sweep(ctx context.Context) {
	enabled, err := storage.GetSetting(w.db, storage.SettingUseSweep)
	if err != nil {
		w.log.Error().Err(err).Msg("failed to read sweep setting")
		return
	}
	if enabled != "1" {
		return
	}

	runID := uuid.New().String()
	log := w.log.With().Str("run", runID).Logger()

	posts, err := storage.ListEligiblePosts(w.db)
	if err != nil {
		log.Error().Err(err).Msg("failed to list eligible posts")
		return
	}
	if len(posts) == 0 {
		return
	}

	log.Info().Int("posts", len(posts)).Msg("sweep started")

	published := 0
	for _, post := range posts {
		select {
		case <-w.stop:
			log.Info().Msg("sweep interrupted by shutdown")
			return
		case <-ctx.Done():
			return
		default:
		}

		if _, err := w.publisher.Publish(ctx, post); err != nil {
			// Terminal for this cycle only; the post stays eligible.
			log.Error().Err(err).Int64("post", post.ID).Msg("publish failed")
			continue
		}
		published++
	}

	log.Info().Int("published", published).Int("posts", len(posts)).Msg("sweep finished")
}
