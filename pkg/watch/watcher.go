// Package watch re-runs alignments when an event log or model file changes.
package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/logflow/ptalign/pkg/errors"
)

// DefaultDebounce is the quiet period before a change is handled.
const DefaultDebounce = 500 * time.Millisecond

// Watcher monitors files and calls OnChange once per burst of writes.
type Watcher struct {
	watcher  *fsnotify.Watcher
	files    map[string]*fileState
	mu       sync.RWMutex
	debounce time.Duration
	logger   *slog.Logger

	// OnChange is called with the absolute path of a changed file. Calls
	// for one file never overlap.
	OnChange func(ctx context.Context, path string) error
	OnError  func(path string, err error)
}

type fileState struct {
	lastModified time.Time
	size         int64
	processing   bool
}

// NewWatcher creates a watcher. A nil logger selects slog.Default().
func NewWatcher(logger *slog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeUnknown, "failed to create watcher")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		watcher:  fsWatcher,
		files:    make(map[string]*fileState),
		debounce: DefaultDebounce,
		logger:   logger,
	}, nil
}

// SetDebounce changes the quiet period.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Watch starts watching path.
func (w *Watcher) Watch(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(err, errors.CodeFileNotFound, "failed to resolve path").WithContext("path", path)
	}

	stat, err := os.Stat(absPath)
	if err != nil {
		return errors.FileNotFound(absPath)
	}

	w.mu.Lock()
	w.files[absPath] = &fileState{
		lastModified: stat.ModTime(),
		size:         stat.Size(),
	}
	w.mu.Unlock()

	// Editors replace files by rename, so watch the directory.
	if err := w.watcher.Add(filepath.Dir(absPath)); err != nil {
		return errors.Wrap(err, errors.CodeUnknown, "failed to watch directory").WithContext("path", absPath)
	}
	w.logger.Debug("watching file", "path", absPath)
	return nil
}

// Run handles events until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	debounceTimers := make(map[string]*time.Timer)
	var timerMu sync.Mutex
	defer func() {
		timerMu.Lock()
		for _, t := range debounceTimers {
			t.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			w.watcher.Close()
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			absPath, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}

			w.mu.RLock()
			state, isWatched := w.files[absPath]
			w.mu.RUnlock()
			if !isWatched {
				continue
			}

			timerMu.Lock()
			if timer, exists := debounceTimers[absPath]; exists {
				timer.Stop()
			}
			debounceTimers[absPath] = time.AfterFunc(w.debounce, func() {
				w.handleChange(ctx, absPath, state)
			})
			timerMu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.reportError("", err)
		}
	}
}

func (w *Watcher) handleChange(ctx context.Context, path string, state *fileState) {
	w.mu.Lock()
	if state.processing {
		w.mu.Unlock()
		return
	}
	state.processing = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		state.processing = false
		w.mu.Unlock()
	}()

	stat, err := os.Stat(path)
	if err != nil {
		w.reportError(path, err)
		return
	}

	w.mu.Lock()
	unchanged := stat.ModTime().Equal(state.lastModified) && stat.Size() == state.size
	state.lastModified = stat.ModTime()
	state.size = stat.Size()
	w.mu.Unlock()
	if unchanged {
		return
	}

	w.logger.Info("file changed", "path", path, "size", stat.Size())
	if w.OnChange != nil {
		if err := w.OnChange(ctx, path); err != nil {
			w.reportError(path, err)
		}
	}
}

func (w *Watcher) reportError(path string, err error) {
	if w.OnError != nil {
		w.OnError(path, err)
		return
	}
	w.logger.Error("watch failed", "path", path, "error", err)
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
