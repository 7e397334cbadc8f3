package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reports document changes under a loader's root so callers can
// re-run the pipeline. Events are debounced: a burst of writes to the
// same file produces a single notification.
type Watcher struct {
	loader   *Loader
	watcher  *fsnotify.Watcher
	onChange func([]string)
	debounce time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	pending map[string]bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher creates a watcher over the loader's root. callback receives
// changed paths relative to the root, filtered with the loader's rules.
func NewWatcher(l *Loader, callback func([]string), logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		loader:   l,
		watcher:  fsw,
		onChange: callback,
		debounce: 500 * time.Millisecond,
		logger:   logger,
		pending:  make(map[string]bool),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start registers every non-excluded directory under the root and begins
// delivering debounced change notifications.
func (w *Watcher) Start() error {
	err := filepath.WalkDir(w.loader.Root(), func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(w.loader.Root(), path)
		if err != nil {
			return nil
		}
		if rel != "." && w.loader.excludeRules.MatchesPath(filepath.ToSlash(rel)) {
			return filepath.SkipDir
		}

		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("failed to watch directory", zap.String("path", path), zap.Error(err))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk document root: %w", err)
	}

	w.wg.Add(2)
	go w.eventLoop()
	go w.debounceLoop()
	return nil
}

// Stop stops the watcher and waits for its goroutines to exit.
func (w *Watcher) Stop() error {
	w.cancel()
	w.wg.Wait()
	return w.watcher.Close()
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	rel, err := filepath.Rel(w.loader.Root(), event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	// New directories need to be registered before their files produce
	// events.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !w.loader.excludeRules.MatchesPath(rel) {
				if err := w.watcher.Add(event.Name); err != nil {
					w.logger.Warn("failed to watch new directory",
						zap.String("path", event.Name), zap.Error(err))
				}
			}
			return
		}
	}

	// Deletions of previously loaded files matter even though the loader
	// rules no longer match a missing path.
	if !w.loader.matches(rel) && !event.Has(fsnotify.Remove) {
		return
	}

	if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
		event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		w.mu.Lock()
		w.pending[rel] = true
		w.mu.Unlock()
	}
}

func (w *Watcher) debounceLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case <-ticker.C:
			w.flushPending()
		}
	}
}

func (w *Watcher) flushPending() {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for path := range w.pending {
		paths = append(paths, path)
	}
	w.pending = make(map[string]bool)
	w.mu.Unlock()

	w.logger.Info("documents changed", zap.Int("count", len(paths)))
	if w.onChange != nil {
		w.onChange(paths)
	}
}
