package roles

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the registry whenever its overlay file changes on
// disk. It watches the parent directory rather than the file itself
// so atomic rename-into-place updates (the way most config management
// tools write files) are still observed. Blocks until ctx is done.
func (r *Registry) Watch(ctx context.Context) error {
	if r.path == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(r.path)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	target := filepath.Clean(r.path)
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
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := r.Reload(); err != nil {
				if r.logger != nil {
					r.logger.WithError(err).Warn("Role overlay reload failed, keeping previous snapshot")
				}
				continue
			}
			if r.logger != nil {
				r.logger.WithField("path", r.path).Info("Role registry reloaded")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if r.logger != nil {
				r.logger.WithError(err).Warn("Role overlay watcher error")
			}
		}
	}
}
