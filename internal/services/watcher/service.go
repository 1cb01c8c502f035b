// Package watcher triggers backups when watch-listed files change.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fgeck/art-assistant/internal/services/watchlist"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Trigger is called once per quiet period with the paths that changed.
type Trigger func(ctx context.Context, changed []string) error

// Impl watches the parent directories of watch-listed files.
type Impl struct {
	watchlist watchlist.Service
	debounce  time.Duration
	trigger   Trigger
	logger    zerolog.Logger

	ready     chan struct{}
	readyOnce sync.Once
}

// New creates a watcher that calls trigger after debounce of inactivity.
func New(logger zerolog.Logger, wl watchlist.Service, debounce time.Duration, trigger Trigger) *Impl {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Impl{
		watchlist: wl,
		debounce:  debounce,
		trigger:   trigger,
		logger:    logger,
		ready:     make(chan struct{}),
	}
}

// Ready is closed once the watches are in place.
func (w *Impl) Ready() <-chan struct{} {
	return w.ready
}

// Run watches until ctx is cancelled. The watchlist is read once at start.
func (w *Impl) Run(ctx context.Context) error {
	entries, err := w.watchlist.List()
	if err != nil {
		return fmt.Errorf("failed to load watchlist: %w", err)
	}
	if len(entries) == 0 {
		return errors.New("watchlist is empty, nothing to watch")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	watched := make(map[string]bool, len(entries))
	dirs := map[string]bool{}
	for _, e := range entries {
		clean := filepath.Clean(e)
		watched[clean] = true
		dirs[filepath.Dir(clean)] = true
	}

	added := 0
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			w.logger.Warn().Err(err).Str("dir", dir).Msg("cannot watch directory")
			continue
		}
		added++
	}
	if added == 0 {
		return errors.New("none of the watch-listed directories could be watched")
	}

	w.logger.Info().
		Int("files", len(watched)).
		Int("directories", added).
		Dur("debounce", w.debounce).
		Msg("watching for changes")
	w.readyOnce.Do(func() { close(w.ready) })

	changes := make(chan string, 64)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.processEvents(gctx, fw, watched, changes) })
	g.Go(func() error { return w.debounceLoop(gctx, changes) })

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		w.logger.Info().Msg("watcher stopped")
		return nil
	}
	return err
}

func (w *Impl) processEvents(ctx context.Context, fw *fsnotify.Watcher, watched map[string]bool, changes chan<- string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fw.Events:
			if !ok {
				return errors.New("file watcher closed")
			}
			path := filepath.Clean(event.Name)
			if !watched[path] || event.Op == fsnotify.Chmod {
				continue
			}

			w.logger.Debug().Str("path", path).Str("op", event.Op.String()).Msg("change detected")

			select {
			case changes <- path:
			case <-ctx.Done():
				return ctx.Err()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return errors.New("file watcher closed")
			}
			w.logger.Warn().Err(err).Msg("file watcher error")
		}
	}
}

// debounceLoop collects changes and fires the trigger once no change has
// arrived for w.debounce.
func (w *Impl) debounceLoop(ctx context.Context, changes <-chan string) error {
	pending := map[string]bool{}
	var timer *time.Timer
	var timerC <-chan time.Time

	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case path := <-changes:
			pending[path] = true
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			timerC = timer.C
		case <-timerC:
			timerC = nil

			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			pending = map[string]bool{}

			w.logger.Info().Strs("paths", changed).Msg("changes settled, triggering backup")
			if err := w.trigger(ctx, changed); err != nil {
				w.logger.Error().Err(err).Msg("triggered backup failed")
			}
		}
	}
}
