package specs

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce is the quiet period after the last filesystem event before
// the listing is re-read.
const DefaultDebounce = 200 * time.Millisecond

// Watcher calls onChange with the fresh listing whenever specs are added,
// removed or renamed.
type Watcher struct {
	logger   zerolog.Logger
	catalog  Catalog
	debounce time.Duration
	onChange func([]string)
}

func NewWatcher(logger zerolog.Logger, catalog Catalog, debounce time.Duration, onChange func([]string)) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		logger:   logger,
		catalog:  catalog,
		debounce: debounce,
		onChange: onChange,
	}
}

// Run watches until ctx is done. A directory that cannot be watched is logged
// and the watcher idles; the listing is still re-read per request.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create spec watcher: %w", err)
	}
	defer fw.Close()

	dir := w.catalog.AbsDir()
	if err := fw.Add(dir); err != nil {
		w.logger.Warn().Err(err).Str("dir", dir).Msg("Cannot watch spec directory")
		<-ctx.Done()
		return nil
	}
	w.logger.Debug().Str("dir", dir).Msg("Watching spec directory")

	last, _ := w.catalog.List()
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("Spec watcher error")

		case <-timer.C:
			current, err := w.catalog.List()
			if err != nil {
				w.logger.Warn().Err(err).Msg("Failed to refresh spec listing")
				continue
			}
			if slices.Equal(current, last) {
				continue
			}
			last = current
			w.logger.Debug().Int("specs", len(current)).Msg("Spec listing changed")
			if w.onChange != nil {
				w.onChange(current)
			}
		}
	}
}
