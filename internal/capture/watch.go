package capture

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/san-kum/lifeviz/internal/logging"
)

const watchDebounce = 100 * time.Millisecond

// watchDir calls onChange, debounced, whenever a file in dir matching keep
// is written, created, removed or renamed. It returns when ctx is done. If
// the watcher cannot be created it just waits for ctx.
func watchDir(ctx context.Context, dir string, keep func(name string) bool, onChange func()) {
	log := logging.FromContext(ctx)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Debug("file watching unavailable", "error", err)
		<-ctx.Done()
		return
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		log.Debug("cannot watch directory", "dir", dir, "error", err)
		<-ctx.Done()
		return
	}

	debounce := time.NewTimer(0)
	<-debounce.C
	defer debounce.Stop()

	const ops = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op&ops == 0 || !keep(filepath.Clean(ev.Name)) {
				continue
			}
			debounce.Reset(watchDebounce)
		case <-debounce.C:
			onChange()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Debug("watch error", "error", err)
		}
	}
}
