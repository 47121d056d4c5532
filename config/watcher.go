package config

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watcher reloads the layered configuration when any of its files change.
type Watcher struct {
	watcher  *fsnotify.Watcher
	startDir string
	debounce time.Duration
	logger   *logrus.Entry
	onReload func(*Config)

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher watches the global config directory and the project directory
// resolved from startDir. onReload receives every successfully reloaded config;
// files that fail to load are logged and the previous config stays in effect.
func NewWatcher(startDir string, debounce time.Duration, logger *logrus.Entry, onReload func(*Config)) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dirs := map[string]bool{startDir: true}
	if global := GlobalConfigPath(); global != "" {
		dirs[filepath.Dir(global)] = true
	}
	if project, err := FindConfigFile(startDir); err == nil {
		dirs[filepath.Dir(project)] = true
	}

	for dir := range dirs {
		// Missing directories are not fatal; the global dir often does not exist.
		if err := watcher.Add(dir); err != nil {
			logger.WithError(err).Debugf("Not watching %s", dir)
		}
	}

	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}

	return &Watcher{
		watcher:  watcher,
		startDir: startDir,
		debounce: debounce,
		logger:   logger,
		onReload: onReload,
	}, nil
}

// Start processes file events until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	defer w.watcher.Close()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if !isConfigFile(event.Name) {
				continue
			}
			w.logger.Debugf("fsnotify event: %s op=%v", event.Name, event.Op)
			w.schedule(ctx)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Errorf("Watcher error: %v", err)
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			return
		}
	}
}

// schedule debounces bursts of writes into one reload.
func (w *Watcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if ctx.Err() != nil {
			return
		}
		cfg, err := LoadFrom(w.startDir)
		if err != nil {
			w.logger.WithError(err).Warn("Config reload failed, keeping previous configuration")
			return
		}
		w.logger.Info("Configuration reloaded")
		if w.onReload != nil {
			w.onReload(cfg)
		}
	})
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func isConfigFile(name string) bool {
	base := filepath.Base(name)
	if !strings.Contains(base, "cryoview") {
		return false
	}
	return strings.HasSuffix(base, ".yml") || strings.HasSuffix(base, ".yaml") || strings.HasSuffix(base, ".toml")
}
