package source

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher signals when one of the watched source files is written or
// created. Wakeups coalesce: any number of events between two receives on C
// yields a single value.
type Watcher struct {
	fsw    *fsnotify.Watcher
	files  map[string]bool
	wake   chan struct{}
	logger *slog.Logger
}

// NewWatcher watches the parent directories of paths. Files need not exist yet.
func NewWatcher(paths []string, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsw:    fsw,
		files:  make(map[string]bool, len(paths)),
		wake:   make(chan struct{}, 1),
		logger: logger,
	}

	dirs := make(map[string]bool)
	for _, p := range paths {
		w.files[filepath.Clean(p)] = true
		dirs[filepath.Dir(filepath.Clean(p))] = true
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			logger.Warn("failed to watch directory", "dir", dir, "error", err)
		}
	}
	return w, nil
}

// C delivers a value after a watched file changed.
func (w *Watcher) C() <-chan struct{} {
	return w.wake
}

// Run forwards filesystem events until ctx is cancelled or the watcher closes.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !w.files[filepath.Clean(event.Name)] {
				continue
			}
			select {
			case w.wake <- struct{}{}:
			default:
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("fsnotify error", "error", err)
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
