// Package watcher reports changes to the PDFs in the documents directory.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 2 * time.Second

// Watcher calls onChange once per burst of PDF changes in a single directory.
// Bursts are collapsed because a change triggers a full index rebuild.
type Watcher struct {
	dir       string
	extension string
	debounce  time.Duration
	onChange  func(ctx context.Context, paths []string)

	mu      sync.Mutex
	timer   *time.Timer
	pending map[string]struct{}
}

func New(dir string, debounce time.Duration, onChange func(ctx context.Context, paths []string)) *Watcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Watcher{
		dir:       filepath.Clean(dir),
		extension: ".pdf",
		debounce:  debounce,
		onChange:  onChange,
		pending:   make(map[string]struct{}),
	}
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fs watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	slog.Info("docs_watch_started", "dir", w.dir, "debounce", w.debounce.String())

	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("docs_watch_error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}
	name := filepath.Base(ev.Name)
	if strings.HasPrefix(name, ".") || !strings.EqualFold(filepath.Ext(name), w.extension) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[name] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() { w.flush(ctx) })
}

func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for name := range w.pending {
		paths = append(paths, name)
	}
	w.pending = make(map[string]struct{})
	w.timer = nil
	w.mu.Unlock()

	if len(paths) == 0 || ctx.Err() != nil {
		return
	}
	slog.Info("docs_changed", "files", len(paths))
	w.onChange(ctx, paths)
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}
