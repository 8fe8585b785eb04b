package mcpserver

import (
	"fmt"
	"path/filepath"
	"time"

	"agentmux/pkg/logging"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces the burst of events editors emit on save.
const watchDebounce = 250 * time.Millisecond

// Watcher reloads a config file into a store whenever it changes and
// invokes a callback with the freshly parsed configs. It watches the
// containing directory rather than the file itself so atomic
// rename-based saves keep working.
type Watcher struct {
	path     string
	store    *Store
	onReload func([]*ServerConfig)

	fsw  *fsnotify.Watcher
	done chan struct{}
}

// NewWatcher creates a watcher for the given config file. onReload may
// be nil.
func NewWatcher(path string, store *Store, onReload func([]*ServerConfig)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w := &Watcher{
		path:     path,
		store:    store,
		onReload: onReload,
		fsw:      fsw,
		done:     make(chan struct{}),
	}
	go w.run()

	logging.Info("ConfigWatcher", "Watching %s for changes", path)
	return w, nil
}

func (w *Watcher) run() {
	var timer *time.Timer
	var timerC <-chan time.Time

	target := filepath.Clean(w.path)
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
				timerC = timer.C
			} else {
				timer.Reset(watchDebounce)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			w.reload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.Warn("ConfigWatcher", "Watch error: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	configs, err := w.store.LoadFile(w.path)
	if err != nil {
		// Keep serving the last good config.
		logging.Error("ConfigWatcher", err, "Failed to reload %s", w.path)
		return
	}
	logging.Info("ConfigWatcher", "Reloaded %d server configs from %s", len(configs), w.path)
	if w.onReload != nil {
		w.onReload(configs)
	}
}

// Close stops watching. Safe to call once.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
