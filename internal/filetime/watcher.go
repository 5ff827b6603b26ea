package filetime

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watcher is an optional accelerator on top of State: it watches the
// directories passed to WatchDir (no others are added automatically) and
// forgets a path's cached read-time the instant fsnotify reports it
// changed, so a concurrent-edit is visible to the very next tool call
// rather than only the next AssertNotModified. Per SPEC_FULL.md §11,
// correctness never depends on this: AssertNotModified always re-stats
// the file itself.
type Watcher struct {
	fsw    *fsnotify.Watcher
	state  *State
	logger *slog.Logger
	done   chan struct{}
}

// NewWatcher starts an fsnotify watcher bound to state. Call Close to stop
// it.
func NewWatcher(state *State, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{fsw: fsw, state: state, logger: logger, done: make(chan struct{})}
	go w.run()
	return w, nil
}

// WatchDir adds dir (non-recursively, matching fsnotify's own model) to the
// watch set.
func (w *Watcher) WatchDir(dir string) error {
	return w.fsw.Add(dir)
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.state.ForgetPath(ev.Name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("filetime: watcher error", "err", err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
