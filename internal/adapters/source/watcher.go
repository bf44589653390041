package source

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors the paths of local-watch-folder providers and triggers
// an immediate check when files change, so local drops are picked up ahead
// of the polling interval. Polling remains the source of truth; the watcher
// is purely an accelerator.
type Watcher struct {
	watcher      *fsnotify.Watcher
	trigger      func(ctx context.Context, providerID string)
	debounceTime time.Duration
	log          *slog.Logger

	mu      sync.Mutex
	byPath  map[string]string // watched root -> provider id
	pending map[string]time.Time
}

func NewWatcher(trigger func(ctx context.Context, providerID string), log *slog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:      fsWatcher,
		trigger:      trigger,
		debounceTime: 2 * time.Second,
		log:          log,
		byPath:       make(map[string]string),
		pending:      make(map[string]time.Time),
	}, nil
}

// AddProvider registers a provider's watch path, recursively.
func (w *Watcher) AddProvider(providerID, root string) error {
	root = filepath.Clean(root)
	w.mu.Lock()
	w.byPath[root] = providerID
	w.mu.Unlock()
	return w.addRecursive(root)
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			w.log.Warn("cannot watch path", slog.String("path", path), slog.Any("error", err))
			return nil
		}
		if info.IsDir() {
			if err := w.watcher.Add(path); err != nil {
				w.log.Warn("cannot watch directory", slog.String("path", path), slog.Any("error", err))
			}
		}
		return nil
	})
}

// Start processes events until ctx is cancelled. Blocks.
func (w *Watcher) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.debounceTime)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return w.watcher.Close()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watcher error", slog.Any("error", err))

		case <-ticker.C:
			w.firePending(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
		return
	}

	// New directories need their own watch.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.addRecursive(event.Name)
		}
	}

	if id := w.providerFor(event.Name); id != "" {
		w.mu.Lock()
		w.pending[id] = time.Now()
		w.mu.Unlock()
	}
}

func (w *Watcher) providerFor(path string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	for root, id := range w.byPath {
		if path == root || filepath.HasPrefix(path, root+string(filepath.Separator)) {
			return id
		}
	}
	return ""
}

// firePending triggers one check per provider with debounced events.
func (w *Watcher) firePending(ctx context.Context) {
	w.mu.Lock()
	due := make([]string, 0, len(w.pending))
	now := time.Now()
	for id, at := range w.pending {
		if now.Sub(at) >= w.debounceTime {
			due = append(due, id)
			delete(w.pending, id)
		}
	}
	w.mu.Unlock()

	for _, id := range due {
		w.log.Debug("filesystem change triggers check", slog.String("provider", id))
		go w.trigger(ctx, id)
	}
}
