package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher watches a config file and reloads it on change. Editors often
// write via rename, so the parent directory is watched rather than the
// file itself.
type Watcher struct {
	path     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	logger   *slog.Logger

	// Reloaded configs are delivered here; invalid files are logged and
	// skipped, never delivered.
	updates chan *Config
}

// NewWatcher creates a watcher for the given config file path.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		path:     path,
		debounce: defaultDebounce,
		watcher:  fsw,
		logger:   logger,
		updates:  make(chan *Config, 1),
	}, nil
}

// Updates returns the channel of reloaded configs.
func (w *Watcher) Updates() <-chan *Config {
	return w.updates
}

// Start begins watching the config file's directory for changes.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	go w.processEvents(ctx)

	w.logger.Info("Config watcher started",
		"path", w.path,
		"debounce", w.debounce)

	return nil
}

// Stop stops the watcher. The updates channel is closed by processEvents.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.updates)

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			// Debounce: collect changes before reloading
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				fire = timer.C
			} else {
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(w.debounce)
			}

		case <-fire:
			timer = nil
			fire = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watch error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadFromFile(w.path)
	if err != nil {
		w.logger.Warn("Failed to reload config", "path", w.path, "error", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		w.logger.Warn("Reloaded config invalid, keeping previous", "path", w.path, "error", err)
		return
	}

	select {
	case w.updates <- cfg:
	default:
		// Consumer hasn't drained the previous update; drop the stale one.
		select {
		case <-w.updates:
		default:
		}
		w.updates <- cfg
	}

	w.logger.Info("Config reloaded", "path", w.path)
}
