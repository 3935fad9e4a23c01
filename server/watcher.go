package server

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watcher observes a serve root recursively, applies ignore rules, and
// coalesces bursts of filesystem events into a single onChange call fired
// debounce after the last qualifying change. Each watcher is exclusively
// owned by its instance; retargeting replaces the watcher rather than
// mutating it in place.
type watcher struct {
	fsw      *fsnotify.Watcher
	root     string
	rules    []ignoreRule
	debounce time.Duration
	onChange func(path string)
	logf     func(format string, args ...any)

	mu      sync.Mutex
	timer   *time.Timer
	pending string
	stopped bool
}

// newWatcher starts watching root. Ignore rules are loaded from the
// root-local ignore file once, here - not hot-reloaded mid-watch.
func newWatcher(root string, debounce time.Duration, onChange func(string), logf func(format string, args ...any)) (*watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &watcher{
		fsw:      fsw,
		root:     root,
		rules:    loadIgnoreRules(root),
		debounce: debounce,
		onChange: onChange,
		logf:     logf,
	}

	if err := fsw.Add(root); err != nil {
		fsw.Close()
		return nil, err
	}

	// Subdirectory registration failures degrade the watch to whatever
	// could be registered instead of failing the instance.
	if err := w.watchDirRecursive(root); err != nil {
		w.logf("recursive watch degraded: %v", err)
	}

	go w.eventLoop()

	return w, nil
}

// watchDirRecursive adds the subdirectories of root to the watch list,
// skipping hidden directories.
func (w *watcher) watchDirRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip unreadable entries
		}
		if !info.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(info.Name(), ".") {
			return filepath.SkipDir
		}
		if path != root {
			if err := w.fsw.Add(path); err != nil {
				w.logf("failed to watch %s: %v", path, err)
			}
		}
		return nil
	})
}

// eventLoop processes filesystem notifications until the watcher closes.
func (w *watcher) eventLoop() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logf("watch error: %v", err)
		}
	}
}

// handleEvent filters one notification and (re)arms the debounce timer.
func (w *watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	// New directories join the watch so the recursive contract holds
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !strings.HasPrefix(filepath.Base(event.Name), ".") {
				w.watchDirRecursive(event.Name)
			}
		}
	}

	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		rel = event.Name
	}
	if ignored(w.rules, rel, event.Name) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}

	// Reset, not stack: a burst of N changes within the debounce window
	// produces exactly one firing, debounce after the last change.
	w.pending = event.Name
	if w.timer == nil {
		w.timer = time.AfterFunc(w.debounce, w.fire)
	} else {
		w.timer.Reset(w.debounce)
	}
}

// fire delivers the coalesced change and clears the pending path.
func (w *watcher) fire() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	changed := w.pending
	w.pending = ""
	w.mu.Unlock()

	w.onChange(changed)
}

// stop cancels any pending debounce firing and closes the watch handles.
// No onChange call is delivered after stop returns.
func (w *watcher) stop() {
	w.mu.Lock()
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	w.fsw.Close()
}
