package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/zeusync/bigspace/internal/core/observability/log"
)

// Watch reloads the file at path whenever it changes and passes every
// configuration that loads and validates to apply. Invalid revisions are
// logged and skipped. The parent directory is watched so editors that
// replace the file by rename are followed. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, logger log.Log, apply func(Config)) error {
	if logger == nil {
		logger = log.NewNop()
	}
	target, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err = watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}
	logger.Info("watching config", log.String("path", target))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			c, err := LoadFile(target)
			if err != nil {
				logger.Warn("config reload rejected", log.String("path", target), log.Error(err))
				continue
			}
			logger.Info("config reloaded", log.String("path", target))
			apply(c)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", log.Error(err))
		}
	}
}
