package prefs

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const watchSettle = 150 * time.Millisecond

// Watcher reports changes to a prefs file made by other processes.
type Watcher struct {
	fs   *fsnotify.Watcher
	done chan struct{}
}

// Watch calls onChange after the file at path settles following a write,
// rename or create. The parent directory is watched because saves replace
// the file by rename.
func Watch(ctx context.Context, path string, logger *zap.Logger, onChange func()) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(resolved)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(resolved), err)
	}

	w := &Watcher{fs: fw, done: make(chan struct{})}
	go w.loop(ctx, resolved, logger, onChange)
	return w, nil
}

func (w *Watcher) loop(ctx context.Context, target string, logger *zap.Logger, onChange func()) {
	defer close(w.done)

	settle := time.NewTimer(watchSettle)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			settle.Reset(watchSettle)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			logger.Warn("prefs watcher error", zap.Error(err))
		case <-settle.C:
			onChange()
		}
	}
}

// Close stops watching and waits for the event loop to exit.
func (w *Watcher) Close() error {
	err := w.fs.Close()
	<-w.done
	return err
}
