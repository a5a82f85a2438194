package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ahrav/go-ragqa/internal/logging"
)

// DefaultDebounce collects bursts of editor writes into one re-index.
const DefaultDebounce = 500 * time.Millisecond

// ChangeHandler applies file changes to the index.
type ChangeHandler interface {
	// IndexFile replaces the chunks of path with freshly split ones.
	IndexFile(ctx context.Context, path string) error
	// RemoveFile drops every chunk of path.
	RemoveFile(ctx context.Context, path string) error
}

// Watcher re-indexes documents as they change on disk.
type Watcher struct {
	loader   *Loader
	handler  ChangeHandler
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
}

// NewWatcher creates a watcher. A zero debounce selects DefaultDebounce.
func NewWatcher(loader *Loader, handler ChangeHandler, debounce time.Duration, logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		loader:   loader,
		handler:  handler,
		debounce: debounce,
		logger:   logging.OrDefault(logger).With("component", "watcher"),
		pending:  make(map[string]struct{}),
	}
}

// Run watches until ctx is cancelled. Directories created later are
// watched too.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	if err := w.addTree(fsw, w.loader.Dir()); err != nil {
		return err
	}
	w.logger.Info("watching for changes", "dir", w.loader.Dir())

	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, fsw, event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watch error", "error", err)
		}
	}
}

func (w *Watcher) addTree(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if err := fsw.Add(path); err != nil {
				return fmt.Errorf("watch %s: %w", path, err)
			}
		}
		return nil
	})
}

func (w *Watcher) handleEvent(ctx context.Context, fsw *fsnotify.Watcher, event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(fsw, event.Name); err != nil {
				w.logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
			}
			return
		}
	}
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
		return
	}
	if !w.loader.Matches(event.Name) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[event.Name] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() { w.flush(ctx) })
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

// flush applies every pending path. A path that no longer exists is
// removed from the index; any other path is re-indexed.
func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	for _, path := range paths {
		if ctx.Err() != nil {
			return
		}
		_, statErr := os.Stat(path)
		switch {
		case errors.Is(statErr, fs.ErrNotExist):
			if err := w.handler.RemoveFile(ctx, path); err != nil {
				w.logger.Error("failed to remove file from index", "path", path, "error", err)
				continue
			}
			w.logger.Info("removed from index", "path", path)
		default:
			if err := w.handler.IndexFile(ctx, path); err != nil {
				w.logger.Error("failed to re-index file", "path", path, "error", err)
				continue
			}
			w.logger.Info("re-indexed", "path", path)
		}
	}
}
