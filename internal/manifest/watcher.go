package manifest

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period after the last file event before a
// reload is triggered.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reports manifest changes under a set of roots. Directories are
// watched recursively; files are watched through their parent directory so
// editors that replace files atomically are picked up.
type Watcher struct {
	watcher  *fsnotify.Watcher
	roots    []string
	debounce time.Duration
	logger   *slog.Logger
}

// NewWatcher starts watching roots.
func NewWatcher(roots []string, logger *slog.Logger) (*Watcher, error) {
	if len(roots) == 0 {
		return nil, ErrNoManifests
	}

	if logger == nil {
		logger = slog.Default()
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create file watcher")
	}

	w := &Watcher{
		watcher:  fsWatcher,
		roots:    roots,
		debounce: DefaultDebounce,
		logger:   logger.With("component", "manifest-watcher"),
	}

	for _, root := range roots {
		err = w.addRoot(root)
		if err != nil {
			_ = fsWatcher.Close()

			return nil, err
		}
	}

	return w, nil
}

// SetDebounce sets the debounce duration for file changes.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

func (w *Watcher) addRoot(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return errors.Wrapf(err, "failed to stat %s", root)
	}

	if !info.IsDir() {
		return w.addDir(filepath.Dir(root))
	}

	return errors.Wrapf(filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if !entry.IsDir() {
			return nil
		}

		return w.addDir(path)
	}), "failed to watch %s", root)
}

func (w *Watcher) addDir(dir string) error {
	err := w.watcher.Add(dir)
	if err != nil {
		return errors.Wrapf(err, "failed to watch %s", dir)
	}

	w.logger.Debug("watching directory", "dir", dir)

	return nil
}

// Run calls onChange after manifest files settle, until ctx is done.
// onChange runs on the watcher goroutine, so calls never overlap.
func (w *Watcher) Run(ctx context.Context, onChange func(context.Context)) error {
	defer w.watcher.Close()

	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()

			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}

			if !w.relevant(event) {
				continue
			}

			w.logger.Debug("manifest change", "path", event.Name, "op", event.Op.String())

			// Debounce rapid events
			timer.Reset(w.debounce)

		case <-timer.C:
			onChange(ctx)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}

			w.logger.Error("manifest watcher error", "error", err)
		}
	}
}

// relevant reports whether event may change the loaded manifests. New
// directories are added to the watch set.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if addErr := w.addRoot(event.Name); addErr != nil {
				w.logger.Warn("failed to watch new directory", "dir", event.Name, "error", addErr)
			}

			return true
		}
	}

	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}

	name := filepath.Base(event.Name)

	return IsManifestFile(name) || name == "Kustomization"
}
