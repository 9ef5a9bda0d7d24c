package widget

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce groups editor save bursts into one reload.
const DefaultDebounce = 150 * time.Millisecond

// Watcher reloads seeded widgets when their manifest or code file changes.
type Watcher struct {
	watcher *fsnotify.Watcher
	seeder  *Seeder
	delay   time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	ctx     context.Context

	// reloaded receives the manifests of each flushed batch; used by tests.
	reloaded func(manifests []string)
}

// NewWatcher creates a watcher over the seeder's directory.
func NewWatcher(seeder *Seeder, delay time.Duration, logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if delay <= 0 {
		delay = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		watcher: fw,
		seeder:  seeder,
		delay:   delay,
		logger:  logger,
		pending: make(map[string]struct{}),
	}, nil
}

// Start watches the seed directory tree until ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addRecursive(w.seeder.Dir()); err != nil {
		return err
	}
	w.mu.Lock()
	w.ctx = ctx
	w.mu.Unlock()

	go w.watchLoop(ctx)
	return nil
}

// Stop stops the watcher and drops pending reloads.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()
	return w.watcher.Close()
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
}

func (w *Watcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
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
			w.logger.Warn("seed watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				w.logger.Warn("failed to watch directory", zap.String("dir", event.Name), zap.Error(err))
			}
			return
		}
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}

	manifest, ok := w.seeder.ManifestFor(event.Name)
	if !ok {
		return
	}
	w.schedule(manifest)
}

func (w *Watcher) schedule(manifest string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[manifest] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.delay, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	manifests := make([]string, 0, len(w.pending))
	for m := range w.pending {
		manifests = append(manifests, m)
	}
	w.pending = make(map[string]struct{})
	ctx := w.ctx
	w.mu.Unlock()

	if ctx == nil || ctx.Err() != nil {
		return
	}
	sort.Strings(manifests)

	for _, manifest := range manifests {
		st, err := w.seeder.Load(ctx, manifest)
		switch {
		case errors.Is(err, os.ErrNotExist):
			w.logger.Debug("seed manifest removed", zap.String("manifest", manifest))
		case err != nil:
			w.logger.Warn("failed to reload widget", zap.String("manifest", manifest), zap.Error(err))
		default:
			w.logger.Info("widget reloaded",
				zap.String("widget_id", st.ID),
				zap.String("manifest", manifest),
				zap.Bool("crashed", st.View.Crashed))
		}
	}
	if w.reloaded != nil {
		w.reloaded(manifests)
	}
}
