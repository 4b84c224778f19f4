// Package watcher reports source changes under a project directory
package watcher

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Options configures a Watcher
type Options struct {
	// Root is the directory watched recursively
	Root string
	// Extensions limits which files trigger a change; empty means any file
	Extensions []string
	// Ignore lists directory names that are never descended into.
	// Directories starting with a dot are always ignored.
	Ignore []string
	// Debounce coalesces bursts of events into one callback
	Debounce time.Duration
}

// Watcher calls a function after relevant files change
type Watcher struct {
	opts     Options
	fsw      *fsnotify.Watcher
	onChange func(path string)
	logger   *slog.Logger

	mu      sync.Mutex
	timer   *time.Timer
	pending string

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New starts watching opts.Root. onChange runs on its own goroutine after each
// debounced burst, with the last changed path.
func New(opts Options, onChange func(path string), logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &Watcher{
		opts:     opts,
		fsw:      fsw,
		onChange: onChange,
		logger:   logger,
		done:     make(chan struct{}),
	}

	if err := w.addTree(opts.Root); err != nil {
		fsw.Close()
		return nil, err
	}

	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// Close stops watching. Pending callbacks are dropped.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fsw.Close()
		w.wg.Wait()

		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
	})
	return err
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.ignored(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) ignored(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	for _, ig := range w.opts.Ignore {
		if name == ig {
			return true
		}
	}
	return false
}

// relevant reports whether a change to path should trigger a callback
func (w *Watcher) relevant(path string) bool {
	rel, err := filepath.Rel(w.opts.Root, path)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if w.ignored(part) {
			return false
		}
	}
	if len(w.opts.Extensions) == 0 {
		return true
	}
	ext := filepath.Ext(path)
	for _, e := range w.opts.Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", "root", w.opts.Root, "error", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if !w.ignored(filepath.Base(ev.Name)) {
				if err := w.addTree(ev.Name); err != nil && !errors.Is(err, fs.ErrNotExist) {
					w.logger.Debug("failed to watch new directory", "path", ev.Name, "error", err)
				}
			}
			return
		}
	}
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}
	if !w.relevant(ev.Name) {
		return
	}
	w.schedule(ev.Name)
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending = path
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.opts.Debounce, w.fire)
}

func (w *Watcher) fire() {
	select {
	case <-w.done:
		return
	default:
	}

	w.mu.Lock()
	path := w.pending
	w.pending = ""
	w.mu.Unlock()

	if path != "" {
		w.onChange(path)
	}
}
