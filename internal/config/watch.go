package config

import (
	"context"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watch reloads store from path whenever the file changes on disk,
// until ctx is cancelled. Reload errors are logged and the previous
// snapshot is kept in place.
func Watch(ctx context.Context, store *Store, path string, log *logrus.Entry) error {
	if path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := store.Reload(path); err != nil {
					log.WithError(err).Warn("config: hot reload failed, keeping previous snapshot")
					continue
				}
				log.Info("config: reloaded from disk")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("config: watcher error")
			}
		}
	}()

	return nil
}
