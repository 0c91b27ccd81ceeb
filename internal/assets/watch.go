package assets

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce coalesces bursts of file events into one rescan.
const DefaultDebounce = 200 * time.Millisecond

// Watch rescans dir whenever its content changes and calls fn with the new
// manifest. It returns when ctx is cancelled.
func Watch(ctx context.Context, dir string, debounce time.Duration, log zerolog.Logger, fn func(Manifest)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	log.Info().Str("dir", dir).Msg("watcher started")

	var timer *time.Timer
	var fire <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			fire = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			log.Info().Msg("watcher stopped")
			return nil

		case <-fire:
			m, err := ScanDir(dir)
			if err != nil {
				log.Warn().Err(err).Str("dir", dir).Msg("rescan failed")
				continue
			}
			fn(m)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			log.Debug().Str("path", ev.Name).Str("op", ev.Op.String()).Msg("asset changed")
			schedule()

		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(werr).Msg("watcher error")
		}
	}
}
