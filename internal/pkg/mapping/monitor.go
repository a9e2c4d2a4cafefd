package mapping

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/gethiox/keymapper/internal/pkg/logger"
	"go.uber.org/zap"
)

const watchedOps = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename

// DetectChanges reports paths of mapping files modified under root directory.
// Channel is closed when ctx is done or the watcher cannot be set up.
func DetectChanges(ctx context.Context, root string) <-chan string {
	var change = make(chan string)

	go func() {
		defer close(change)
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			log.Info(fmt.Sprintf("cannot create watcher: %v", err), logger.Warning)
			return
		}

		go func() {
			<-ctx.Done()
			err := watcher.Close()
			if err != nil {
				log.Info(fmt.Sprintf("closing watcher failed: %v", err), logger.Debug)
			}
		}()

		err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if entry.IsDir() {
				return watcher.Add(path)
			}
			return nil
		})
		if err != nil {
			log.Info(fmt.Sprintf("cannot watch mappings directory: %v", err), zap.String("mapping", root), logger.Warning)
		}

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&watchedOps == 0 || !isMappingFile(event.Name) {
					continue
				}
				log.Info("mapping change detected", zap.String("mapping", event.Name), logger.Info)
				select {
				case change <- event.Name:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Info(fmt.Sprintf("watcher error: %v", err), logger.Debug)
			}
		}
	}()

	return change
}
