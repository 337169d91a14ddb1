package config

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watcher re-parses the config file on every write and publishes the result
// on Events, letting cmd/convoyd swap debounce windows / credit rates /
// sampling without a restart. Only the one config file is watched.
type Watcher struct {
	path   string
	logger *slog.Logger
	events chan Config
}

func NewWatcher(path string, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{path: path, logger: logger, events: make(chan Config, 1)}
}

func (w *Watcher) Events() <-chan Config {
	return w.events
}

// Start watches path and emits a freshly-loaded Config on every write,
// create, or rename event. A reload that fails to parse is logged and
// skipped — the previously published Config stays in effect.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(w.path); err != nil {
		fsw.Close()
		return err
	}

	go func() {
		defer fsw.Close()
		defer close(w.events)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				cfg, err := Load(w.path)
				if err != nil {
					w.logger.Error("config: reload failed, keeping previous config", "path", w.path, "error", err)
					continue
				}
				select {
				case w.events <- cfg:
				default:
				}
				w.logger.Info("config: reloaded", "path", w.path)
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				w.logger.Error("config: watcher error", "error", err)
			}
		}
	}()
	return nil
}
