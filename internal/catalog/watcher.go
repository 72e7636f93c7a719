package catalog

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads schema files from a directory when they change.
// Removing a file keeps the last good schema registered.
type Watcher struct {
	dir      string
	loader   *Loader
	debounce time.Duration
	fsw      *fsnotify.Watcher

	pendingMu sync.Mutex
	pending   map[string]struct{}
}

// NewWatcher creates a watcher for dir; call Start to begin watching
func NewWatcher(dir string, loader *Loader, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{
		dir:      dir,
		loader:   loader,
		debounce: debounce,
		fsw:      fsw,
		pending:  make(map[string]struct{}),
	}, nil
}

// Start adds watches on dir and its subdirectories and processes events until
// ctx is cancelled
func (w *Watcher) Start(ctx context.Context) error {
	err := filepath.WalkDir(w.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if base := d.Name(); strings.HasPrefix(base, ".") && path != w.dir {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			slog.Warn("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	go w.run(ctx)
	slog.Info("schema watcher started", "dir", w.dir, "debounce", w.debounce)
	return nil
}

// Close stops the underlying watcher
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) run(ctx context.Context) {
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("schema watcher stopped")
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Error("schema watcher error", "error", err)
		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.fsw.Add(event.Name); err != nil {
				slog.Warn("failed to watch new directory", "path", event.Name, "error", err)
			}
			return
		}
	}
	if !isSchemaFile(event.Name) {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}

	w.pendingMu.Lock()
	w.pending[event.Name] = struct{}{}
	w.pendingMu.Unlock()
}

func (w *Watcher) flush() {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	paths := w.pending
	w.pending = make(map[string]struct{})
	w.pendingMu.Unlock()

	fsys := os.DirFS(w.dir)
	for path := range paths {
		rel, err := filepath.Rel(w.dir, path)
		if err != nil {
			continue
		}
		s, err := ParseFile(fsys, filepath.ToSlash(rel))
		if err != nil {
			slog.Warn("schema reload failed, keeping previous version", "file", rel, "error", err)
			continue
		}
		if err := w.loader.registry.Register(s); err != nil {
			slog.Warn("schema reload rejected, keeping previous version", "file", rel, "error", err)
			continue
		}
		slog.Info("schema reloaded", "id", s.ID, "file", rel)
	}
}

func isSchemaFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
