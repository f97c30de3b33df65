// Package watcher implements C12, FileWatcher: a process-wide file-change
// notifier combining OS notifications with a polling fallback, coalesced
// with a debounce window (spec.md §4.12).
package watcher

import (
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mimecast/logdcore/internal/config"
	"github.com/mimecast/logdcore/internal/logging"
)

type watchedFile struct {
	path        string
	onChanged   func()
	lastSize    int64
	lastModTime time.Time
	timer       *time.Timer
}

// Watcher is a single watch set shared by every LogData that attaches to
// it. Construct one per process via New, or use Default for the
// constructor-injected-with-static-accessor pattern spec.md §9 calls for
// (a real instance by default, swappable in tests via SetDefault).
type Watcher struct {
	cfg *config.Config
	log *logging.Logger

	fsw *fsnotify.Watcher

	mu    sync.Mutex
	files map[string]*watchedFile

	debounce time.Duration
	poll     time.Duration

	stopCh chan struct{}
	once   sync.Once
}

// New starts a Watcher backed by fsnotify where available, with an
// always-on polling fallback at cfg.WatcherPollIntervalMs.
func New(cfg *config.Config, log *logging.Logger) (*Watcher, error) {
	if log == nil {
		log = logging.Default
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		// fsnotify unavailable (e.g. inotify instance limit): fall back to
		// polling only, matching spec.md §4.12's "uses OS notifications
		// when available".
		log.Warn("fsnotify unavailable, falling back to polling only: ", err)
		fsw = nil
	}

	debounceMs := cfg.WatcherDebounceMs
	if debounceMs <= 0 {
		debounceMs = 500
	}
	pollMs := cfg.WatcherPollIntervalMs
	if pollMs <= 0 {
		pollMs = 2000
	}

	w := &Watcher{
		cfg:      cfg,
		log:      log,
		fsw:      fsw,
		files:    make(map[string]*watchedFile),
		debounce: time.Duration(debounceMs) * time.Millisecond,
		poll:     time.Duration(pollMs) * time.Millisecond,
		stopCh:   make(chan struct{}),
	}
	if fsw != nil {
		go w.runFsEvents()
	}
	go w.runPolling()
	return w, nil
}

// AddFile registers path for change notification. onChanged is invoked
// (on an internal goroutine) at most once per debounce window.
func (w *Watcher) AddFile(path string, onChanged func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	wf := &watchedFile{path: path, onChanged: onChanged}
	if st, err := stat(path); err == nil {
		wf.lastSize = st.size
		wf.lastModTime = st.modTime
	}
	w.files[path] = wf

	if w.fsw != nil {
		_ = w.fsw.Add(path) // best-effort: the file may not exist yet
	}
}

// RemoveFile stops watching path.
func (w *Watcher) RemoveFile(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if wf, ok := w.files[path]; ok && wf.timer != nil {
		wf.timer.Stop()
	}
	delete(w.files, path)
	if w.fsw != nil {
		_ = w.fsw.Remove(path)
	}
}

// Close stops all background goroutines and releases OS resources.
func (w *Watcher) Close() {
	w.once.Do(func() { close(w.stopCh) })
	if w.fsw != nil {
		w.fsw.Close()
	}
}

func (w *Watcher) runFsEvents() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.scheduleDebounced(ev.Name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watcher error: ", err)
		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) runPolling() {
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.pollOnce()
		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) pollOnce() {
	w.mu.Lock()
	paths := make([]string, 0, len(w.files))
	for p := range w.files {
		paths = append(paths, p)
	}
	w.mu.Unlock()

	for _, path := range paths {
		st, err := stat(path)
		if err != nil {
			continue
		}
		w.mu.Lock()
		wf, ok := w.files[path]
		if !ok {
			w.mu.Unlock()
			continue
		}
		changed := wf.lastSize != st.size || !wf.lastModTime.Equal(st.modTime)
		if changed {
			wf.lastSize = st.size
			wf.lastModTime = st.modTime
		}
		w.mu.Unlock()
		if changed {
			w.scheduleDebounced(path)
		}
	}
}

// scheduleDebounced (re)arms a per-file timer so that a burst of events
// within the debounce window collapses into a single callback.
func (w *Watcher) scheduleDebounced(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	wf, ok := w.files[path]
	if !ok {
		return
	}
	if wf.timer != nil {
		wf.timer.Stop()
	}
	wf.timer = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		cur, ok := w.files[path]
		w.mu.Unlock()
		if ok && cur.onChanged != nil {
			cur.onChanged()
		}
	})
}

type fileStat struct {
	size    int64
	modTime time.Time
}

func stat(path string) (fileStat, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return fileStat{}, err
	}
	return fileStat{size: fi.Size(), modTime: fi.ModTime()}, nil
}

// --- singleton accessor (spec.md §9 "global singletons") ---

var (
	defaultMu       sync.Mutex
	defaultInstance *Watcher
)

// Default returns the process-wide Watcher, creating it on first use.
func Default() *Watcher {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultInstance == nil {
		defaultInstance, _ = New(config.Default(), nil)
	}
	return defaultInstance
}

// SetDefault substitutes the process-wide Watcher, so tests can inject a
// fake instead of touching the real filesystem watch APIs.
func SetDefault(w *Watcher) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultInstance = w
}
