package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch observes the config file and invokes onChange with the freshly
// loaded configuration whenever the file is rewritten. Only changes the
// caller can apply live (currently the log level) are worth acting on;
// everything else requires a restart, which is the caller's call.
//
// Watch blocks until ctx is cancelled. Editors commonly replace files
// by rename, so the parent directory is watched rather than the file
// itself.
func Watch(ctx context.Context, path string, onChange func(Config)) error {
	if path == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	target := filepath.Clean(path)
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
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			cfg, err := Load(path)
			if err != nil {
				// A half-written or invalid file keeps the running config.
				continue
			}
			onChange(cfg)
		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
		}
	}
}
