package cfgfile

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"execd-go/internal/config"
)

// Watcher monitors the servers directory and hands configurations from
// newly created files to a callback. Per-file failures are logged and
// never stop the watch loop.
type Watcher struct {
	dir      string
	loader   *Loader
	watcher  *fsnotify.Watcher
	logger   *zap.Logger
	stopChan chan struct{}
	onLoad   func(*config.ServerConfig)
}

// NewWatcher creates a watcher for the given directory.
func NewWatcher(dir string, loader *Loader, logger *zap.Logger) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Watcher{
		dir:      dir,
		loader:   loader,
		watcher:  watcher,
		logger:   logger,
		stopChan: make(chan struct{}),
	}, nil
}

// Start begins watching the directory. The onLoad callback receives each
// successfully loaded configuration.
func (w *Watcher) Start(onLoad func(*config.ServerConfig)) error {
	w.onLoad = onLoad

	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch servers directory: %w", err)
	}

	go w.watchLoop()

	w.logger.Info("Started watching servers directory",
		zap.String("dir", w.dir))

	return nil
}

// watchLoop runs the file watching loop.
func (w *Watcher) watchLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			// Only react to newly created files so rewrites of an
			// already-registered file are not added twice.
			if event.Op&fsnotify.Create == fsnotify.Create {
				w.handleCreate(event.Name)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", zap.Error(err))

		case <-w.stopChan:
			return
		}
	}
}

func (w *Watcher) handleCreate(path string) {
	if !strings.HasSuffix(path, ConfigFileSuffix) {
		return
	}

	cfg, err := w.loader.Load(path)
	if err != nil {
		w.logger.Warn("Skipping server configuration file",
			zap.String("path", path),
			zap.Error(err))
		return
	}

	w.logger.Info("Loaded server configuration from watched directory",
		zap.String("path", path),
		zap.String("server", cfg.Name))

	if w.onLoad != nil {
		w.onLoad(cfg)
	}
}

// Stop stops the file watcher and cleans up resources.
func (w *Watcher) Stop() error {
	close(w.stopChan)

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	return nil
}
