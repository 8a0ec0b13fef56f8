package registry

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/modeld/modeld/pkg/model"
)

// Watcher reconciles the registry when peer processes create instance
// folders under the shared storage root.
type Watcher struct {
	registry *Registry
	watcher  *fsnotify.Watcher
	log      zerolog.Logger

	// debounce batches bursts of filesystem events into one reconcile.
	debounce time.Duration
}

// NewWatcher creates a watcher over the registry's storage root.
func NewWatcher(r *Registry, log zerolog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, model.NewIOFailure("failed to create filesystem watcher", err)
	}
	if err := fsw.Add(r.Root()); err != nil {
		_ = fsw.Close()
		return nil, model.NewIOFailure("failed to watch storage root", err)
	}

	return &Watcher{
		registry: r,
		watcher:  fsw,
		log:      log.With().Str("component", "registry-watcher").Logger(),
		debounce: 250 * time.Millisecond,
	}, nil
}

// Run processes filesystem events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	var timer *time.Timer
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			if err := w.registry.Reconcile(); err != nil {
				w.log.Warn().Err(err).Msg("reconcile after filesystem event failed")
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("filesystem watcher error")
		}
	}
}

// Close releases the underlying filesystem watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
