package config

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// WatchFile calls onChange each time path is written or recreated, until ctx
// is cancelled. A failing onChange is logged and the previous state is kept by
// the caller.
func WatchFile(ctx context.Context, logger *slog.Logger, path string, onChange func() error) error {
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}
	logger.Info("watching file for changes", slog.String("path", path))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Atomic saves surface as Create after a rename.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := onChange(); err != nil {
				logger.Error("reload failed, keeping previous state", slog.String("path", path), slog.Any("error", err))
				continue
			}
			logger.Info("reloaded", slog.String("path", path))
			_ = watcher.Add(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("file watcher error", slog.Any("error", err))
		}
	}
}
