// Package watch reloads agent presets and configuration when their files
// change on disk, backing the `cortex watch` command.
package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow coalesces the burst of events editors emit for one save.
const debounceWindow = 250 * time.Millisecond

// Watcher observes a set of directories and files and invokes OnChange
// once per settled burst of filesystem events.
type Watcher struct {
	// Dirs are directories to watch recursively one level deep (preset
	// directories). Missing entries are skipped.
	Dirs []string

	// Files are individual files to watch (the config file). Missing
	// entries are skipped.
	Files []string

	// OnChange is called with the paths that changed since the last
	// invocation. Required.
	OnChange func(paths []string)

	Log *slog.Logger
}

// Run blocks until ctx is cancelled, invoking OnChange on debounced
// filesystem changes. The listed Files are reported whatever their
// extension; any other path is reported only if it is a .md, .toml, .yaml
// or .yml file.
func (w *Watcher) Run(ctx context.Context) error {
	log := w.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "watch")

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	for _, dir := range w.Dirs {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := fsw.Add(dir); err != nil {
			log.Warn("cannot watch directory", "dir", dir, "error", err)
			continue
		}
		log.Info("watching", "dir", dir)
	}
	for _, file := range w.Files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		// Watch the parent directory: editors replace files by rename,
		// which drops a direct file watch.
		if err := fsw.Add(filepath.Dir(file)); err != nil {
			log.Warn("cannot watch file", "file", file, "error", err)
			continue
		}
		log.Info("watching", "file", file)
	}

	var (
		pending map[string]struct{}
		timer   *time.Timer
		timerC  <-chan time.Time
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if !w.relevant(event.Name) {
				continue
			}
			if pending == nil {
				pending = make(map[string]struct{})
			}
			pending[event.Name] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
				timerC = timer.C
			} else {
				timer.Reset(debounceWindow)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			log.Warn("watch error", "error", err)

		case <-timerC:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			pending = nil
			timer = nil
			timerC = nil
			log.Info("files changed, reloading", "count", len(paths))
			w.OnChange(paths)
		}
	}
}

// relevant filters events down to watched files and recognized extensions.
func (w *Watcher) relevant(path string) bool {
	for _, f := range w.Files {
		if filepath.Clean(f) == filepath.Clean(path) {
			return true
		}
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".toml", ".yaml", ".yml":
		return true
	}
	return false
}
