// Package watch reloads LexMap state when the policy file changes on disk.
package watch

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// OnChangeFunc is invoked after every observed modification of the watched
// policy file. Debouncing happens downstream in the rebuild coordinators,
// so the watcher reports raw changes.
type OnChangeFunc func(path string)

// PolicyWatcher watches a single policy file through its parent directory.
// Editors that replace files via rename (vim, most IDEs) drop inode-level
// watches, so watching the directory and filtering by name is the only
// reliable shape.
type PolicyWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onChange OnChangeFunc
	logger   *zap.Logger

	mu      sync.Mutex
	stopped bool
	done    chan struct{}
}

// New starts watching the policy file at path. onChange fires on the
// watcher goroutine for every write, create, or rename that touches the
// file. Close must be called to release the watcher.
func New(path string, onChange OnChangeFunc, logger *zap.Logger) (*PolicyWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve %s: %w", path, err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch: add %s: %w", filepath.Dir(abs), err)
	}

	w := &PolicyWatcher{
		path:     abs,
		watcher:  fsw,
		onChange: onChange,
		logger:   logger,
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *PolicyWatcher) loop() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("policy file changed",
				zap.String("path", event.Name),
				zap.String("op", event.Op.String()))
			w.onChange(w.path)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("policy watcher error", zap.Error(err))
		}
	}
}

// relevant filters directory events down to mutations of the watched file.
func (w *PolicyWatcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.path {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

// Path returns the absolute path of the watched policy file.
func (w *PolicyWatcher) Path() string {
	return w.path
}

// Close stops the watcher and waits for the event loop to drain.
func (w *PolicyWatcher) Close() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	w.mu.Unlock()

	err := w.watcher.Close()
	<-w.done
	return err
}
