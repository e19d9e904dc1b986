// Package watcher watches template source files and reports changes with
// debouncing, so a burst of editor writes triggers one recompilation.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/crucible/internal/logging"
)

// DefaultDebounce groups rapid successive writes into one change event.
const DefaultDebounce = 150 * time.Millisecond

// watchedExtensions are the source file extensions that trigger a change.
var watchedExtensions = map[string]bool{
	".tsx": true,
	".jsx": true,
	".ts":  true,
	".js":  true,
}

// ChangeHandler receives the set of changed paths after debouncing.
type ChangeHandler func(paths []string)

// TemplateWatcher watches template files with debouncing.
type TemplateWatcher struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration
	handler  ChangeHandler
	logger   logging.Logger

	mutex   sync.Mutex
	pending map[string]bool
	timer   *time.Timer
}

// New creates a watcher that calls handler with changed template paths.
func New(debounce time.Duration, handler ChangeHandler, logger logging.Logger) (*TemplateWatcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = logging.NewDiscard()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	return &TemplateWatcher{
		watcher:  fsw,
		debounce: debounce,
		handler:  handler,
		logger:   logger.WithComponent("watcher"),
		pending:  make(map[string]bool),
	}, nil
}

// Add registers a file or directory to watch.
func (w *TemplateWatcher) Add(path string) error {
	clean := filepath.Clean(path)
	if err := w.watcher.Add(clean); err != nil {
		return fmt.Errorf("watching %s: %w", clean, err)
	}

	return nil
}

// Run processes change events until the context is canceled.
func (w *TemplateWatcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			w.record(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn(ctx, err, "file watcher error")
		}
	}
}

func (w *TemplateWatcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}

	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") {
		return false
	}

	return watchedExtensions[filepath.Ext(name)]
}

// record adds a path to the pending set and arms the debounce timer. The
// timer callback drains the whole set at once.
func (w *TemplateWatcher) record(path string) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	w.pending[path] = true

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *TemplateWatcher) flush() {
	w.mutex.Lock()
	paths := make([]string, 0, len(w.pending))
	for path := range w.pending {
		paths = append(paths, path)
	}
	w.pending = make(map[string]bool)
	w.mutex.Unlock()

	if len(paths) == 0 {
		return
	}

	w.handler(paths)
}
