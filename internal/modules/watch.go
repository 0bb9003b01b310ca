package modules

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Change describes a module file that changed on disk.
type Change struct {
	Key     string
	Path    string
	Removed bool
}

// debounce is how long a file must be quiet before its change is applied.
const debounce = 100 * time.Millisecond

// Watch reloads modules whose files change until ctx is done. Each applied
// change is passed to onChange, which may be nil.
func (s *Set) Watch(ctx context.Context, onChange func(Change)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	for _, p := range s.Packages() {
		if err := watchDirRecursive(watcher, p.Dir); err != nil {
			s.logger.Error("failed to watch package directory",
				slog.String("package", p.Name), slog.String("error", err.Error()))
		}
	}

	var (
		mu     sync.Mutex
		timers = make(map[string]*time.Timer)
	)
	defer func() {
		mu.Lock()
		for _, t := range timers {
			t.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				// New subdirectories need their own watch.
				_ = watchDirRecursive(watcher, event.Name)
			}
			if filepath.Ext(event.Name) != ".sql" {
				continue
			}

			path := event.Name
			mu.Lock()
			if t, ok := timers[path]; ok {
				t.Stop()
			}
			timers[path] = time.AfterFunc(debounce, func() {
				mu.Lock()
				delete(timers, path)
				mu.Unlock()
				if ctx.Err() != nil {
					return
				}
				if change, ok := s.apply(path); ok && onChange != nil {
					onChange(change)
				}
			})
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("watcher error", slog.String("error", err.Error()))
		}
	}
}

// apply reloads or forgets the module at path.
func (s *Set) apply(path string) (Change, bool) {
	m, err := s.Reload(path)
	if err == nil {
		s.logger.Debug("module reloaded", slog.String("module", m.Key), slog.String("file", path))
		return Change{Key: m.Key, Path: m.Path}, true
	}

	if key, ok := s.Forget(path); ok {
		s.logger.Debug("module removed", slog.String("module", key), slog.String("file", path))
		return Change{Key: key, Path: path, Removed: true}, true
	}
	s.logger.Warn("failed to reload module", slog.String("file", path), slog.String("error", err.Error()))
	return Change{}, false
}

// watchDirRecursive adds a directory and all subdirectories to the watcher.
// Files are skipped.
func watchDirRecursive(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}
