// Package watcher follows a file on disk and calls back once a burst of
// writes to it has settled. The terminal UI uses it to notice snapshot
// updates made by other taskdesk processes.
package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"taskdesk/internal/debounce"
	"taskdesk/internal/utils"
)

// DefaultDebounceDuration is the default window for batching rapid writes
const DefaultDebounceDuration = 250 * time.Millisecond

// Config holds file watcher configuration.
type Config struct {
	Path             string        // File to follow; its directory must exist
	DebounceDuration time.Duration // Window to batch rapid writes
	OnChange         func()        // Called once writes settle
}

// Watcher monitors a file and its sidecar files (e.g. SQLite journals).
type Watcher struct {
	cfg      Config
	fsw      *fsnotify.Watcher
	debounce *debounce.Debouncer
	stopCh   chan struct{}
	started  bool
	stopped  bool
	mu       sync.Mutex
}

// New creates a new Watcher instance.
func New(cfg Config) (*Watcher, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("watcher needs a path")
	}
	if cfg.DebounceDuration <= 0 {
		cfg.DebounceDuration = DefaultDebounceDuration
	}
	onChange := cfg.OnChange
	if onChange == nil {
		onChange = func() {}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		cfg:      cfg,
		fsw:      fsw,
		debounce: debounce.New(cfg.DebounceDuration, onChange),
		stopCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. The parent directory is watched so that files
// replaced or created later are still seen.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return fmt.Errorf("watcher has been stopped and cannot be restarted")
	}
	if w.started {
		return nil
	}

	dir := filepath.Dir(w.cfg.Path)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("failed to watch %q: %w", dir, err)
	}
	if err := w.fsw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %q: %w", dir, err)
	}

	w.started = true
	go w.eventLoop()
	return nil
}

// Stop stops the watcher and drops any pending callback.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	w.stopped = true
	w.debounce.Stop()
	close(w.stopCh)
	_ = w.fsw.Close()
}

// relevant reports whether name is the watched file or one of its sidecars
func (w *Watcher) relevant(name string) bool {
	base := filepath.Base(w.cfg.Path)
	return strings.HasPrefix(filepath.Base(name), base)
}

// eventLoop feeds matching fsnotify events into the debouncer.
func (w *Watcher) eventLoop() {
	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if !w.relevant(event.Name) {
				continue
			}
			w.debounce.Trigger()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			utils.Warnf("File watcher error: %v", err)
		}
	}
}
