// Package watcher drives incremental re-indexing from filesystem events.
// Bursts of events are debounced into a single callback so a branch switch
// or bulk save triggers one re-index, not hundreds.
package watcher

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period after the last event before the
// callback fires
const DefaultDebounce = 2 * time.Second

// skippedDirs are directory names never watched
var skippedDirs = map[string]struct{}{
	"node_modules": {},
	"vendor":       {},
	"dist":         {},
	"build":        {},
	"target":       {},
}

// Watcher watches a workspace tree and reports batches of changed paths.
// fsnotify watches are per-directory, so the workspace is walked once at
// startup and newly created directories are added as they appear.
type Watcher struct {
	fsw      *fsnotify.Watcher
	root     string
	debounce time.Duration
	onChange func(paths []string)

	mu      sync.Mutex
	pending map[string]struct{}

	done     chan struct{}
	stopOnce sync.Once
}

// Option configures a Watcher
type Option func(*Watcher)

// WithDebounce sets the quiet period before onChange fires
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// New starts watching the tree rooted at root. onChange receives the set of
// paths touched since the last callback, after the debounce window closes.
func New(root string, onChange func(paths []string), opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsw:      fsw,
		root:     root,
		debounce: DefaultDebounce,
		onChange: onChange,
		pending:  make(map[string]struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := w.watchTree(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	go w.loop()
	return w, nil
}

// Close stops the watcher. Pending changes are dropped.
func (w *Watcher) Close() error {
	w.stopOnce.Do(func() { close(w.done) })
	return w.fsw.Close()
}

// watchTree adds a watch for every directory under root
func (w *Watcher) watchTree(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || !info.IsDir() {
			return nil
		}

		name := info.Name()
		if _, skip := skippedDirs[name]; skip {
			return filepath.SkipDir
		}
		if strings.HasPrefix(name, ".") && path != root {
			return filepath.SkipDir
		}

		return w.fsw.Add(path)
	})
}

func (w *Watcher) loop() {
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			// New directories need their own watch
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.watchTree(event.Name)
					continue
				}
			}

			w.mu.Lock()
			w.pending[event.Name] = struct{}{}
			w.mu.Unlock()
			timer.Reset(w.debounce)

		case <-timer.C:
			w.flush()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("watcher: %v", err)

		case <-w.done:
			return
		}
	}
}

// flush hands the accumulated batch to the callback
func (w *Watcher) flush() {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	w.onChange(paths)
}
