package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ReloadFunc receives a freshly loaded, validated config after the file
// changed on disk. Callers decide which fields are safe to apply at runtime.
type ReloadFunc func(cfg Config)

// Watch re-loads the config file whenever it changes and hands valid results
// to onReload. Invalid edits are logged and skipped, keeping the running
// config intact. Watch blocks until ctx is cancelled.
//
// The parent directory is watched rather than the file itself: editors and
// config management tools typically replace the file via rename, which
// drops a watch placed on the old inode.
func Watch(ctx context.Context, path string, log zerolog.Logger, onReload ReloadFunc) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	defer func() {
		_ = w.Close()
	}()

	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("config watch %s: %w", dir, err)
	}

	target := filepath.Clean(path)

	// Debounce: a single save often produces several events.
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			pending = time.After(250 * time.Millisecond)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("config watcher error")
		case <-pending:
			pending = nil
			cfg, err := Load(path)
			if err != nil {
				log.Warn().Err(err).Str("path", path).Msg("config reload skipped")
				continue
			}
			log.Info().Str("path", path).Msg("config reloaded")
			onReload(cfg)
		}
	}
}
