// Package watch turns a watch folder into a stream of jobs. New media files
// are debounced until writes settle, then handed to a bounded pool of
// workers. Each file is submitted at most once per run.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/backmassage/clipmaster/internal/pipeline"
)

// DefaultDebounce is how long a file must go without writes before it is
// submitted.
const DefaultDebounce = 2 * time.Second

// Logger is the logging interface the watcher needs.
type Logger interface {
	Info(string, ...interface{})
	Warn(string, ...interface{})
	Error(string, ...interface{})
}

// Handler processes one settled media file. It runs on a worker goroutine.
type Handler func(ctx context.Context, path string) error

// Config controls a Watcher.
type Config struct {
	Dir         string
	Workers     int           // Handler concurrency; <= 0 means 1.
	Debounce    time.Duration // <= 0 means DefaultDebounce.
	InitialScan bool          // Submit media already present at start.
	Ignore      []string      // Directories whose contents are never submitted (e.g. the output dir).
}

// Watcher watches Config.Dir recursively.
type Watcher struct {
	cfg     Config
	handle  Handler
	log     Logger
	fsw     *fsnotify.Watcher
	ignore  []string
	initial []string
}

// New validates cfg and registers the directory tree with fsnotify. Events
// that arrive between New and Run are buffered by fsnotify.
func New(cfg Config, h Handler, log Logger) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, errors.New("watch: no directory")
	}
	if h == nil {
		return nil, errors.New("watch: nil handler")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, err
	}
	cfg.Dir = dir

	w := &Watcher{cfg: cfg, handle: h, log: log}
	for _, p := range cfg.Ignore {
		if p == "" {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			w.ignore = append(w.ignore, abs)
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	w.fsw = fsw
	files, err := w.addTree(dir)
	if err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	if cfg.InitialScan {
		w.initial = files
	}
	return w, nil
}

// Run dispatches settled files to the worker pool until ctx is done, then
// waits for in-flight handlers to return. It closes the underlying
// fsnotify watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	ready := make(chan string)
	deb := newDebouncer(w.cfg.Debounce, ready)
	defer deb.stop()

	work := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range work {
				w.log.Info("Watch: submitting %s", filepath.Base(path))
				if err := w.handle(ctx, path); err != nil {
					w.log.Error("Watch: %s: %v", filepath.Base(path), err)
				}
			}
		}()
	}
	defer wg.Wait()
	defer close(work)

	for _, p := range w.initial {
		deb.touch(p)
	}
	w.log.Info("Watching %s (%d worker(s))", w.cfg.Dir, w.cfg.Workers)

	submitted := make(map[string]bool)
	var queue []string
	for {
		var out chan string
		var next string
		if len(queue) > 0 {
			out, next = work, queue[0]
		}

		select {
		case <-ctx.Done():
			if len(queue) > 0 {
				w.log.Warn("Watch: %d settled file(s) not submitted", len(queue))
			}
			return nil

		case out <- next:
			queue = queue[1:]

		case path := <-ready:
			if submitted[path] || !isRegular(path) {
				continue
			}
			submitted[path] = true
			queue = append(queue, path)

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ev, deb)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("Watch: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event, deb *debouncer) {
	switch {
	case ev.Op.Has(fsnotify.Create) && isDir(ev.Name):
		if strings.HasPrefix(filepath.Base(ev.Name), ".") || w.ignored(ev.Name) {
			return
		}
		// Files may land in a new directory before it is watched.
		files, err := w.addTree(ev.Name)
		if err != nil {
			w.log.Warn("Watch: cannot watch %s: %v", ev.Name, err)
		}
		for _, f := range files {
			deb.touch(f)
		}
	case ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename):
		deb.cancel(ev.Name)
	case ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write):
		if w.wanted(ev.Name) {
			deb.touch(ev.Name)
		}
	}
}

// addTree watches root and every directory below it, and returns the media
// files already present.
func (w *Watcher) addTree(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && (strings.HasPrefix(d.Name(), ".") || w.ignored(path)) {
				return filepath.SkipDir
			}
			return w.fsw.Add(path)
		}
		if w.wanted(path) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// wanted reports whether path is a visible media file outside the ignored
// directories.
func (w *Watcher) wanted(path string) bool {
	if strings.HasPrefix(filepath.Base(path), ".") || !pipeline.IsMediaFile(path) {
		return false
	}
	return !w.ignored(path)
}

func (w *Watcher) ignored(path string) bool {
	for _, dir := range w.ignore {
		if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

func isRegular(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}
