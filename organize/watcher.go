package organize

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceInterval = 300 * time.Millisecond

// Watcher monitors the input directory in watch mode and feeds new
// basenames into the work queue. Events are debounced so a file still
// being written (downloads, scanner output) is picked up once, after
// it settles.
type Watcher struct {
	root    string
	queue   *WorkQueue
	watcher *fsnotify.Watcher
}

// NewWatcher creates a watcher over the input root. Only the root
// itself is watched; the pipeline never descends into subdirectories.
func NewWatcher(root string, queue *WorkQueue) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(root); err != nil {
		w.Close()
		return nil, err
	}
	return &Watcher{root: root, queue: queue, watcher: w}, nil
}

// Run consumes and debounces events. Blocks until ctx is cancelled or
// the underlying watcher closes.
func (w *Watcher) Run(ctx context.Context) {
	l := sub("watcher")
	l.Info("watching", "dir", w.root)

	pending := make(map[string]struct{})
	timer := time.NewTimer(debounceInterval)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			// Arrivals always carry Create or Write. Rename fires on the
			// old path when a file leaves the directory, which is what
			// every placement does, so it must not queue anything.
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}

			base := filepath.Base(event.Name)
			if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "._") {
				continue
			}
			if !SupportedExtension(base) {
				continue
			}

			pending[base] = struct{}{}
			timer.Reset(debounceInterval)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			l.Warn("watch error", "err", err)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			names := make([]string, 0, len(pending))
			for name := range pending {
				names = append(names, name)
			}
			w.queue.PushMany(names)
			l.Debug("flushed", "count", len(names))
			pending = make(map[string]struct{})
		}
	}
}

// Close closes the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
