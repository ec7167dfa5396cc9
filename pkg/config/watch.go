package config

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dlogio/dlog/internal/logger"
)

// Watcher hot-reloads the logging level and format without restarting the
// daemon. The reloaded rolling-enabled flag is logged but not applied to
// running log writers; it and everything else (backend selection, listen
// addresses, stream tuning) take effect only after a restart.
type Watcher struct {
	path   string
	stopCh chan struct{}
	doneCh chan struct{}
}

// WatchFile starts watching configPath for changes, reloading it and
// applying the logging settings whenever it's rewritten. Call Stop to release
// the underlying fsnotify watcher.
func WatchFile(configPath string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(configPath)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		path:   configPath,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go w.run(fsw)
	return w, nil
}

func (w *Watcher) run(fsw *fsnotify.Watcher) {
	defer close(w.doneCh)
	defer fsw.Close()

	var debounce *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(200*time.Millisecond, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case _, ok := <-fsw.Errors:
			if !ok {
				return
			}
		case <-reload:
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		logger.Warn("config hot-reload failed, keeping previous settings", "path", w.path, "error", err)
		return
	}
	logger.SetLevel(cfg.Logging.Level)
	logger.SetFormat(cfg.Logging.Format)
	logger.Info("config hot-reload applied", "path", w.path,
		"logging_level", cfg.Logging.Level, "logging_format", cfg.Logging.Format,
		"rolling_enabled", cfg.Rolling.Enabled)
}

// Stop stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Stop() {
	close(w.stopCh)
	<-w.doneCh
}
