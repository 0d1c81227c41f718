// Package signals lets another process stop an in-flight council run by
// dropping a file into .council/signals.
package signals

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Dir is the signals directory relative to a project root.
const Dir = ".council/signals"

// StopFile is the file name that requests a stop.
const StopFile = "stop"

// ErrStopRequested is the cancellation cause when a stop file appears.
var ErrStopRequested = errors.New("stop requested via signal file")

// StopPath returns the stop file path for root.
func StopPath(root string) string {
	return filepath.Join(root, Dir, StopFile)
}

// SendStop creates the stop file for root.
func SendStop(root string) error {
	path := StopPath(root)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(time.Now().Format(time.RFC3339)), 0644)
}

// Stopped reports whether ctx was cancelled by a stop file.
func Stopped(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), ErrStopRequested)
}

// Watch returns a context derived from ctx that is cancelled with
// ErrStopRequested when the stop file under root is created or written.
// A stale stop file is removed first, and the file is removed again once
// consumed. release stops watching and cancels the returned context; it
// is safe to call more than once. Without fsnotify support the context
// is only cancelled by ctx or release.
func Watch(ctx context.Context, root string, logger *zap.Logger) (context.Context, func()) {
	if logger == nil {
		logger = zap.NewNop()
	}
	derived, cancel := context.WithCancelCause(ctx)

	dir := filepath.Join(root, Dir)
	stopPath := filepath.Join(dir, StopFile)
	_ = os.Remove(stopPath)

	w := &watch{cancel: cancel, done: make(chan struct{})}

	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Warn("signals directory unavailable", zap.Error(err))
		return derived, w.release
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("file watcher unavailable", zap.Error(err))
		return derived, w.release
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		logger.Warn("cannot watch signals directory", zap.String("dir", dir), zap.Error(err))
		return derived, w.release
	}
	w.watcher = watcher

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-w.done:
				return
			case <-derived.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != StopFile {
					continue
				}
				if event.Op&fsnotify.Create == 0 && event.Op&fsnotify.Write == 0 {
					continue
				}
				logger.Info("stop signal received", zap.String("path", event.Name))
				_ = os.Remove(stopPath)
				cancel(ErrStopRequested)
				return
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Debug("watcher error", zap.Error(err))
			}
		}
	}()

	return derived, w.release
}

type watch struct {
	watcher *fsnotify.Watcher
	cancel  context.CancelCauseFunc
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

func (w *watch) release() {
	w.once.Do(func() {
		close(w.done)
		w.wg.Wait()
		if w.watcher != nil {
			w.watcher.Close()
		}
		w.cancel(context.Canceled)
	})
}
