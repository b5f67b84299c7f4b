// Package watcher reloads configuration on file change with fsnotify and debouncing.
package watcher

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/soroe/internal/config"
)

const defaultDebounce = 400 * time.Millisecond

// ConfigWatcher watches a config file and invokes a callback with the freshly
// parsed config after each change. Editors typically write a file several
// times in quick succession, so events are debounced.
type ConfigWatcher struct {
	path     string
	onReload func(*config.Config)
	debounce time.Duration
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	timer    *time.Timer
	done     chan struct{}
	started  bool
	stopOnce sync.Once
	logger   *zap.Logger
}

// Option configures a ConfigWatcher.
type Option func(*ConfigWatcher)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(w *ConfigWatcher) { w.logger = l }
}

// WithDebounce overrides the reload debounce window.
func WithDebounce(d time.Duration) Option {
	return func(w *ConfigWatcher) { w.debounce = d }
}

// NewConfigWatcher creates a watcher for the config file at path. onReload is
// called with the parsed config after each debounced change; parse failures
// are logged and the previous config stays in effect.
func NewConfigWatcher(path string, onReload func(*config.Config), opts ...Option) *ConfigWatcher {
	w := &ConfigWatcher{
		path:     path,
		onReload: onReload,
		debounce: defaultDebounce,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start starts the watcher. It runs until ctx is cancelled or Stop is called.
func (w *ConfigWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	// Watch the directory: editors replace files by rename, which drops a
	// watch on the file itself.
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		_ = watcher.Close()
		w.mu.Unlock()
		return err
	}
	w.watcher = watcher
	w.started = true
	if w.logger != nil {
		w.logger.Debug("config watcher starting", zap.String("path", w.path))
	}
	w.mu.Unlock()
	go w.run(ctx)
	return nil
}

func (w *ConfigWatcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if err != nil && w.logger != nil {
				w.logger.Debug("config watcher error", zap.Error(err))
			}
		}
	}
}

func (w *ConfigWatcher) handleEvent(ev fsnotify.Event) {
	if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
		return
	}
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *ConfigWatcher) reload() {
	cfg, err := config.Load(w.path)
	if err != nil {
		if w.logger != nil {
			w.logger.Warn("config reload failed, keeping previous config", zap.Error(err))
		}
		return
	}
	if w.logger != nil {
		w.logger.Info("config reloaded", zap.String("path", w.path))
	}
	w.onReload(cfg)
}

// Stop stops the watcher. Safe to call multiple times.
func (w *ConfigWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.timer != nil {
			w.timer.Stop()
			w.timer = nil
		}
		if w.watcher != nil {
			_ = w.watcher.Close()
			w.watcher = nil
		}
		w.started = false
	})
}
