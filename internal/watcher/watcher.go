// Package watcher rebuilds the index when a corpus file changes. Every
// burst of changes inside the debounce window triggers one full rebuild.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	apperrors "github.com/Adithya-Monish-Kumar-K/tfsearch/pkg/errors"
)

const defaultDebounce = 500 * time.Millisecond

// RebuildFunc runs one full rebuild. Returning ErrRebuildInProgress makes
// the watcher try again after another debounce window.
type RebuildFunc func(ctx context.Context, changed []string) error

type Watcher struct {
	files    map[string]struct{}
	dirs     []string
	debounce time.Duration
	rebuild  RebuildFunc
	logger   *slog.Logger

	mu       sync.Mutex
	pending  map[string]struct{}
	rebuilds atomic.Int64
}

// New watches files (the corpus paths). debounce <= 0 uses the default.
func New(files []string, debounce time.Duration, rebuild RebuildFunc) (*Watcher, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files to watch", apperrors.ErrInvalidConfig)
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	w := &Watcher{
		files:    make(map[string]struct{}, len(files)),
		debounce: debounce,
		rebuild:  rebuild,
		pending:  make(map[string]struct{}),
		logger:   slog.Default().With("component", "corpus-watcher"),
	}
	dirs := make(map[string]struct{})
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", f, err)
		}
		w.files[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	for d := range dirs {
		w.dirs = append(w.dirs, d)
	}
	sort.Strings(w.dirs)
	return w, nil
}

// Rebuilds returns how many rebuilds the watcher has triggered.
func (w *Watcher) Rebuilds() int64 {
	return w.rebuilds.Load()
}

// Run watches until ctx is cancelled. Directories rather than files are
// watched so editors that replace files by rename are still seen.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	for _, dir := range w.dirs {
		if err := fsw.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}
	w.logger.Info("corpus watcher started", "dirs", w.dirs, "files", len(w.files), "debounce", w.debounce)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("corpus watcher stopped")
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if w.relevant(event) {
				timer.Reset(w.debounce)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("fsnotify error", "error", err)
		case <-timer.C:
			if w.fire(ctx) {
				timer.Reset(w.debounce)
			}
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	if _, ok := w.files[abs]; !ok {
		return false
	}
	w.mu.Lock()
	w.pending[abs] = struct{}{}
	w.mu.Unlock()
	w.logger.Debug("corpus file changed", "path", abs, "op", event.Op.String())
	return true
}

// fire runs the rebuild for the pending changes. It reports whether the
// rebuild should be retried later.
func (w *Watcher) fire(ctx context.Context) bool {
	w.mu.Lock()
	changed := make([]string, 0, len(w.pending))
	for p := range w.pending {
		changed = append(changed, p)
	}
	w.mu.Unlock()
	if len(changed) == 0 {
		return false
	}
	sort.Strings(changed)

	err := w.rebuild(ctx, changed)
	if errors.Is(err, apperrors.ErrRebuildInProgress) {
		w.logger.Info("rebuild already running, retrying after debounce", "changed", len(changed))
		return true
	}

	w.mu.Lock()
	for _, p := range changed {
		delete(w.pending, p)
	}
	w.mu.Unlock()

	w.rebuilds.Add(1)
	if err != nil {
		w.logger.Error("rebuild after corpus change failed", "changed", changed, "error", err)
		return false
	}
	w.logger.Info("index rebuilt after corpus change", "changed", changed)
	return false
}
