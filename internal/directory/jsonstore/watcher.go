package jsonstore

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reloads the store when its files change. Bursts of events (an
// editor writing a file in several steps) collapse into one reload after
// the debounce interval.
type Watcher struct {
	store    *Store
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onReload func()
	logger   zerolog.Logger

	mu      sync.Mutex
	pending time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher watches the store directory and its photo folder. onReload runs
// after every successful reload and may be nil.
func NewWatcher(store *Store, debounce time.Duration, onReload func(), logger zerolog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		store:    store,
		watcher:  fw,
		debounce: debounce,
		onReload: onReload,
		logger:   logger.With().Str("component", "directory_watcher").Logger(),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Watch starts watching. The photo folder is created if missing so new
// photos are seen.
func (w *Watcher) Watch() error {
	if err := w.watcher.Add(w.store.Dir()); err != nil {
		return err
	}
	photos := filepath.Join(w.store.Dir(), PhotosDir)
	if err := os.MkdirAll(photos, 0o755); err == nil {
		if err := w.watcher.Add(photos); err != nil {
			w.logger.Warn().Err(err).Str("dir", photos).Msg("Cannot watch photo folder")
		}
	}

	w.wg.Add(2)
	go w.processEvents()
	go w.processPending()

	w.logger.Info().Str("dir", w.store.Dir()).Dur("debounce", w.debounce).Msg("Watching directory for changes")
	return nil
}

func (w *Watcher) Close() error {
	w.cancel()
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func relevant(name string) bool {
	if filepath.Base(filepath.Dir(name)) == PhotosDir {
		return true
	}
	switch filepath.Base(name) {
	case UsersFile, RoomsFile, CamerasFile, AccessRulesFile:
		return true
	}
	return false
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error().Interface("panic", r).Msg("Directory watcher panic recovered")
		}
	}()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op == fsnotify.Chmod || !relevant(event.Name) {
				continue
			}
			w.mu.Lock()
			w.pending = time.Now()
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("Directory watcher error")
		}
	}
}

func (w *Watcher) processPending() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.debounce / 4)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case now := <-ticker.C:
			w.mu.Lock()
			due := !w.pending.IsZero() && now.Sub(w.pending) >= w.debounce
			if due {
				w.pending = time.Time{}
			}
			w.mu.Unlock()

			if !due {
				continue
			}
			if err := w.store.Reload(w.ctx); err != nil {
				w.logger.Error().Err(err).Msg("Directory reload failed, keeping previous contents")
				continue
			}
			if w.onReload != nil {
				w.onReload()
			}
		}
	}
}
