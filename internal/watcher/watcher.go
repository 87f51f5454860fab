// Package watcher reloads configuration when the config file changes on
// disk, so catalog and rate-limit updates roll out without a restart.
package watcher

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// debounceInterval coalesces the burst of events editors and atomic-rename
// writers emit for a single save.
const debounceInterval = 200 * time.Millisecond

// Watcher triggers a reload callback when the watched file changes.
type Watcher struct {
	path   string
	reload func() error

	mu       sync.Mutex
	debounce *time.Timer
}

// New constructs a watcher for the given file.
func New(path string, reload func() error) *Watcher {
	return &Watcher{path: path, reload: reload}
}

// Start begins watching until ctx is cancelled. The parent directory is
// watched rather than the file itself so atomic renames keep working.
func (w *Watcher) Start(ctx context.Context) error {
	fsWatcher, errNew := fsnotify.NewWatcher()
	if errNew != nil {
		return errNew
	}

	dir := filepath.Dir(w.path)
	if errAdd := fsWatcher.Add(dir); errAdd != nil {
		_ = fsWatcher.Close()
		return errAdd
	}

	go func() {
		defer func() { _ = fsWatcher.Close() }()
		base := filepath.Base(w.path)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-fsWatcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != base {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				w.scheduleReload()
			case errWatch, ok := <-fsWatcher.Errors:
				if !ok {
					return
				}
				log.Warnf("watcher: %v", errWatch)
			}
		}
	}()

	log.Infof("watcher: watching %s", w.path)
	return nil
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(debounceInterval, func() {
		if errReload := w.reload(); errReload != nil {
			log.Warnf("watcher: reload failed, keeping previous state: %v", errReload)
			return
		}
		log.Infof("watcher: configuration reloaded")
	})
}
