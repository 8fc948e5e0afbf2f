package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch reloads the config at path whenever it changes on disk and passes
// each successfully parsed result to onChange. A file that fails to parse is
// logged and the previous settings stay in effect. Watch blocks until ctx
// is cancelled.
//
// The parent directory is watched rather than the file so editors that
// replace the file on save are followed.
func Watch(ctx context.Context, path string, log *zap.SugaredLogger, onChange func(Config)) error {
	resolved, err := ResolvePath(path)
	if err != nil {
		return err
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(resolved)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch config dir %s: %w", dir, err)
	}
	log.Debugf("watching config file %s", resolved)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher event channel closed")
			}
			if filepath.Clean(event.Name) != resolved {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg, err := Load(resolved)
			if err != nil {
				log.Warnf("config reload failed, keeping previous settings: %v", err)
				continue
			}
			log.Infof("config reloaded from %s", resolved)
			onChange(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			log.Warnf("config watcher error: %v", err)
		}
	}
}
